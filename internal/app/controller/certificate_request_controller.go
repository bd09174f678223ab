package controller

import (
	"net/http"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/service"
	apperrors "github.com/brightwire/cert-portal/internal/errors"
	"github.com/brightwire/cert-portal/internal/middleware"
	"github.com/gin-gonic/gin"
)

type CertificateRequestController struct {
	requestService service.CertificateRequestService
}

func NewCertificateRequestController(requestService service.CertificateRequestService) *CertificateRequestController {
	return &CertificateRequestController{requestService: requestService}
}

type FulfillRequest struct {
	CertificateID uint `json:"certificate_id" binding:"required"`
}

// CreateRequest raises a certificate request for a property
// POST /api/v1/certificate-requests
func (ctrl *CertificateRequestController) CreateRequest(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req service.CreateCertificateRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid certificate request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	created, err := ctrl.requestService.CreateRequest(userID, req)
	if err != nil {
		respondWorkflowError(c, log, err, requestCodes, "create certificate request")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Certificate request received",
		"request": created,
	})
}

// ListRequests returns the caller's own requests, or every request for staff
// GET /api/v1/certificate-requests?status=&page=&page_size=
func (ctrl *CertificateRequestController) ListRequests(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	requests, total, err := ctrl.requestService.ListRequests(userID, model.CertificateRequestStatus(c.Query("status")), page, pageSize)
	if err != nil {
		respondWorkflowError(c, log, err, requestCodes, "list certificate requests")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": requests,
		"count":    len(requests),
		"total":    total,
	})
}

// GetRequest returns one certificate request
// GET /api/v1/certificate-requests/:id
func (ctrl *CertificateRequestController) GetRequest(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	req, err := ctrl.requestService.GetRequest(id, userID)
	if err != nil {
		respondWorkflowError(c, log, err, requestCodes, "get certificate request")
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": req})
}

// Triage moves a request along its intake states
// POST /api/v1/certificate-requests/:id/triage
func (ctrl *CertificateRequestController) Triage(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.TriageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "decision is required")
		return
	}

	updated, err := ctrl.requestService.Triage(id, userID, req)
	if err != nil {
		respondWorkflowError(c, log, err, requestCodes, "triage certificate request")
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": updated})
}

// Fulfill links the request to the certificate raised for it
// POST /api/v1/certificate-requests/:id/fulfill
func (ctrl *CertificateRequestController) Fulfill(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "certificate_id is required")
		return
	}

	updated, err := ctrl.requestService.Fulfill(id, userID, req.CertificateID)
	if err != nil {
		respondWorkflowError(c, log, err, requestCodes, "fulfil certificate request")
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": updated})
}
