package controller

import (
	"errors"
	"net/http"

	"github.com/brightwire/cert-portal/internal/app/service"
	apperrors "github.com/brightwire/cert-portal/internal/errors"
	"github.com/brightwire/cert-portal/internal/middleware"
	"github.com/gin-gonic/gin"
)

type PropertyController struct {
	propertyService service.PropertyService
	authService     service.AuthService
}

func NewPropertyController(propertyService service.PropertyService, authService service.AuthService) *PropertyController {
	return &PropertyController{
		propertyService: propertyService,
		authService:     authService,
	}
}

// GetProperty returns one property; customers may only read their own
// GET /api/v1/properties/:id
func (ctrl *PropertyController) GetProperty(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	user, err := ctrl.authService.GetUserByID(userID)
	if err != nil {
		apperrors.Unauthorized(c, "Login required")
		return
	}

	property, err := ctrl.propertyService.GetPropertyForUser(id, user)
	if err != nil {
		if errors.Is(err, service.ErrPropertyAccessDenied) {
			// same answer as a missing property
			apperrors.NotFound(c, apperrors.ResourceNotFound, "Property not found")
			return
		}
		respondWorkflowError(c, log, err, certificateCodes, "get property")
		return
	}

	c.JSON(http.StatusOK, gin.H{"property": property})
}

// ListMyProperties lists the properties of the caller's customer record
// GET /api/v1/properties
func (ctrl *PropertyController) ListMyProperties(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	user, err := ctrl.authService.GetUserByID(userID)
	if err != nil {
		apperrors.Unauthorized(c, "Login required")
		return
	}
	if user.CustomerID == nil {
		c.JSON(http.StatusOK, gin.H{"properties": []interface{}{}, "count": 0})
		return
	}

	properties, err := ctrl.propertyService.ListCustomerProperties(*user.CustomerID)
	if err != nil {
		log.Error("Failed to list properties", err, map[string]interface{}{
			"customer_id": *user.CustomerID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"properties": properties,
		"count":      len(properties),
	})
}
