package controller

import (
	"net/http"
	"strconv"

	"github.com/brightwire/cert-portal/internal/app/service"
	apperrors "github.com/brightwire/cert-portal/internal/errors"
	"github.com/brightwire/cert-portal/internal/middleware"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type RenewalController struct {
	renewalService service.RenewalService
}

func NewRenewalController(renewalService service.RenewalService) *RenewalController {
	return &RenewalController{renewalService: renewalService}
}

// horizon reads horizon_months; absent means the configured default
func horizon(c *gin.Context) (int, bool) {
	v := c.Query("horizon_months")
	if v == "" {
		return 0, true
	}
	months, err := strconv.Atoi(v)
	if err != nil || months == 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidRange, "horizon_months must be a whole number between 1 and 60")
		return 0, false
	}
	return months, true
}

// ListExpiring returns approved certificates bucketed by expiry
// GET /api/v1/certificates/renewals?horizon_months=3
func (ctrl *RenewalController) ListExpiring(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	months, ok := horizon(c)
	if !ok {
		return
	}

	buckets, err := ctrl.renewalService.ListExpiring(months)
	if err != nil {
		respondWorkflowError(c, log, err, certificateCodes, "list renewals")
		return
	}

	c.JSON(http.StatusOK, buckets)
}

// Export streams the same buckets as an XLSX workbook
// GET /api/v1/certificates/renewals/export?horizon_months=3
func (ctrl *RenewalController) Export(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	months, ok := horizon(c)
	if !ok {
		return
	}

	data, err := ctrl.renewalService.ExportXLSX(months)
	if err != nil {
		respondWorkflowError(c, log, err, certificateCodes, "export renewals")
		return
	}

	log.Info("Renewals exported", map[string]interface{}{
		"horizon_months": months,
		"size":           len(data),
	})
	c.Header("Content-Disposition", `attachment; filename="renewals.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}
