package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/brightwire/cert-portal/internal/app/workflow"
	apperrors "github.com/brightwire/cert-portal/internal/errors"
	"github.com/brightwire/cert-portal/internal/middleware"
	"github.com/brightwire/cert-portal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// parseID reads a positive numeric path parameter and answers 400 itself when it is not one
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid ID")
		return 0, false
	}
	return uint(id), true
}

func requireUserID(c *gin.Context) (uint, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apperrors.Unauthorized(c, "Login required")
	}
	return userID, ok
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pagination reads page and page_size, falling back to page 1 and the default size
// for anything out of range so callers can derive offsets directly.
func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

// workflowCodes picks the error codes of one aggregate
type workflowCodes struct {
	invalidTransition string
	stale             string
}

var (
	certificateCodes = workflowCodes{
		invalidTransition: apperrors.CertificateInvalidTransition,
		stale:             apperrors.CertificateStaleState,
	}
	requestCodes = workflowCodes{
		invalidTransition: apperrors.RequestInvalidTransition,
		stale:             apperrors.RequestStaleState,
	}
)

// respondWorkflowError maps domain errors to their HTTP status; anything else goes through the DB error parser
func respondWorkflowError(c *gin.Context, log *logger.Logger, err error, codes workflowCodes, op string) {
	var stale *workflow.StaleStateError
	switch {
	case errors.As(err, &stale):
		apperrors.RespondWithStaleState(c, codes.stale, err.Error(), stale.CurrentStatus, stale.CurrentVersion)
	case errors.Is(err, workflow.ErrValidation):
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		apperrors.Conflict(c, codes.invalidTransition, err.Error())
	case errors.Is(err, workflow.ErrAlreadyFulfilled):
		apperrors.Conflict(c, apperrors.RequestAlreadyFulfilled, err.Error())
	case errors.Is(err, workflow.ErrNotFound):
		apperrors.NotFound(c, apperrors.ResourceNotFound, err.Error())
	default:
		log.Error("Failed to "+op, err)
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, op)
		return
	}

	log.Warn("Request refused", map[string]interface{}{
		"operation": op,
		"error":     err.Error(),
	})
}
