package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/app/service"
	"github.com/brightwire/cert-portal/internal/app/workflow"
	apperrors "github.com/brightwire/cert-portal/internal/errors"
	"github.com/brightwire/cert-portal/internal/middleware"
	"github.com/gin-gonic/gin"
)

type CertificateController struct {
	certificateService service.CertificateService
	pdfService         service.PDFService
}

func NewCertificateController(certificateService service.CertificateService, pdfService service.PDFService) *CertificateController {
	return &CertificateController{
		certificateService: certificateService,
		pdfService:         pdfService,
	}
}

// TransitionRequest is the caller's last-read view of the certificate
type TransitionRequest struct {
	ExpectedStatus  model.CertificateStatus `json:"expected_status"`
	ExpectedVersion uint                    `json:"expected_version"`
}

type RejectRequest struct {
	TransitionRequest
	Reason string `json:"reason"`
}

func (r TransitionRequest) expectation() workflow.Expectation {
	return workflow.Expectation{Status: r.ExpectedStatus, Version: r.ExpectedVersion}
}

// CreateCertificate starts a draft certificate for a property
// POST /api/v1/certificates
func (ctrl *CertificateController) CreateCertificate(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req service.CreateCertificateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid create certificate request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid certificate data")
		return
	}

	cert, err := ctrl.certificateService.CreateCertificate(userID, req)
	if err != nil {
		respondWorkflowError(c, log, err, certificateCodes, "create certificate")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     "Certificate created",
		"certificate": cert,
	})
}

// ListCertificates returns a filtered page of certificates
// GET /api/v1/certificates?status=&type=&property_id=&page=&page_size=
func (ctrl *CertificateController) ListCertificates(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	page, pageSize := pagination(c)

	filter := repository.CertificateFilter{
		Status: model.CertificateStatus(c.Query("status")),
		Type:   model.CertificateType(c.Query("type")),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if v := c.Query("property_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid property_id")
			return
		}
		filter.PropertyID = uint(id)
	}
	if v := c.Query("customer_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid customer_id")
			return
		}
		filter.CustomerID = uint(id)
	}

	certs, total, err := ctrl.certificateService.ListCertificates(filter)
	if err != nil {
		respondWorkflowError(c, log, err, certificateCodes, "list certificates")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"certificates": certs,
		"count":        len(certs),
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
	})
}

// GetCertificate returns one certificate
// GET /api/v1/certificates/:id
func (ctrl *CertificateController) GetCertificate(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	cert, err := ctrl.certificateService.GetCertificate(id)
	if err != nil {
		respondWorkflowError(c, log, err, certificateCodes, "get certificate")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"certificate":     cert,
		"allowed_actions": workflow.AllowedActions(cert.Status),
	})
}

// UpdateCertificate edits inspection fields while the certificate is still a draft or under revision
// PUT /api/v1/certificates/:id
func (ctrl *CertificateController) UpdateCertificate(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateCertificateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid certificate data")
		return
	}

	cert, err := ctrl.certificateService.UpdateCertificate(id, userID, req)
	if err != nil {
		respondWorkflowError(c, log, err, certificateCodes, "update certificate")
		return
	}

	c.JSON(http.StatusOK, gin.H{"certificate": cert})
}

// Submit sends a draft or revised certificate for review
// POST /api/v1/certificates/:id/submit
func (ctrl *CertificateController) Submit(c *gin.Context) {
	var req TransitionRequest
	ctrl.transition(c, "submit certificate", &req, func(id, actor uint) (*model.Certificate, error) {
		return ctrl.certificateService.Submit(id, actor, req.expectation())
	})
}

// Approve issues a certificate under review
// POST /api/v1/certificates/:id/approve
func (ctrl *CertificateController) Approve(c *gin.Context) {
	var req TransitionRequest
	ctrl.transition(c, "approve certificate", &req, func(id, actor uint) (*model.Certificate, error) {
		return ctrl.certificateService.Approve(id, actor, req.expectation())
	})
}

// Reject returns a certificate under review to its inspector
// POST /api/v1/certificates/:id/reject
func (ctrl *CertificateController) Reject(c *gin.Context) {
	var req RejectRequest
	ctrl.transition(c, "reject certificate", &req, func(id, actor uint) (*model.Certificate, error) {
		return ctrl.certificateService.Reject(id, actor, req.Reason, req.expectation())
	})
}

func (ctrl *CertificateController) transition(
	c *gin.Context,
	op string,
	req interface{ expectation() workflow.Expectation },
	apply func(id, actor uint) (*model.Certificate, error),
) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := c.ShouldBindJSON(req); err != nil {
		log.Warn("Invalid transition request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request body")
		return
	}

	cert, err := apply(id, userID)
	if err != nil {
		respondWorkflowError(c, log, err, certificateCodes, op)
		return
	}

	log.Info("Certificate transition applied", map[string]interface{}{
		"certificate_id": id,
		"status":         cert.Status,
		"version":        cert.Version,
	})
	c.JSON(http.StatusOK, gin.H{"certificate": cert})
}

// ListEvents returns the audit trail
// GET /api/v1/certificates/:id/events
func (ctrl *CertificateController) ListEvents(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	events, err := ctrl.certificateService.ListEvents(id)
	if err != nil {
		respondWorkflowError(c, log, err, certificateCodes, "list certificate events")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// GetPDF returns a short-lived download link
// GET /api/v1/certificates/:id/pdf
func (ctrl *CertificateController) GetPDF(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	url, err := ctrl.pdfService.DownloadURL(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPDFNotReady) {
			apperrors.NotFound(c, apperrors.CertificatePDFNotReady, "The certificate PDF is not available yet")
			return
		}
		if errors.Is(err, workflow.ErrNotFound) {
			respondWorkflowError(c, log, err, certificateCodes, "get certificate pdf")
			return
		}
		log.Error("Failed to presign certificate pdf", err, map[string]interface{}{
			"certificate_id": id,
		})
		apperrors.RespondWithError(c, http.StatusBadGateway, apperrors.InternalExternalAPI, "Could not create a download link")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
