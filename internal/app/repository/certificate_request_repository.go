package repository

import (
	"errors"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/pkg/logger"
	"gorm.io/gorm"
)

type CertificateRequestFilter struct {
	Status     model.CertificateRequestStatus
	CustomerID uint
	PropertyID uint
	Limit      int
	Offset     int
}

type CertificateRequestRepository interface {
	Create(req *model.CertificateRequest) error
	FindByID(id uint) (*model.CertificateRequest, error)
	List(filter CertificateRequestFilter) ([]model.CertificateRequest, int64, error)
	ApplyUpdate(next *model.CertificateRequest, expectedStatus model.CertificateRequestStatus) error
}

type certificateRequestRepository struct {
	db *gorm.DB
}

func NewCertificateRequestRepository(db *gorm.DB) CertificateRequestRepository {
	return &certificateRequestRepository{db: db}
}

func (r *certificateRequestRepository) Create(req *model.CertificateRequest) error {
	logger.Debug("Creating certificate request in database", map[string]interface{}{
		"property_id":      req.PropertyID,
		"customer_id":      req.CustomerID,
		"certificate_type": req.CertificateType,
	})

	if err := r.db.Omit("Property", "Certificate").Create(req).Error; err != nil {
		logger.Error("Failed to create certificate request in database", err, map[string]interface{}{
			"property_id": req.PropertyID,
		})
		return err
	}

	logger.Debug("Certificate request created in database", map[string]interface{}{
		"request_id": req.ID,
	})
	return nil
}

func (r *certificateRequestRepository) FindByID(id uint) (*model.CertificateRequest, error) {
	var req model.CertificateRequest
	if err := r.db.Preload("Property").First(&req, id).Error; err != nil {
		logger.Error("Failed to find certificate request by ID", err, map[string]interface{}{
			"request_id": id,
		})
		return nil, err
	}
	return &req, nil
}

func (r *certificateRequestRepository) List(filter CertificateRequestFilter) ([]model.CertificateRequest, int64, error) {
	var reqs []model.CertificateRequest
	var total int64

	query := r.db.Model(&model.CertificateRequest{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != 0 {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.PropertyID != 0 {
		query = query.Where("property_id = ?", filter.PropertyID)
	}

	if err := query.Count(&total).Error; err != nil {
		logger.Error("Failed to count certificate requests", err)
		return nil, 0, err
	}

	query = query.Preload("Property").Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&reqs).Error; err != nil {
		logger.Error("Failed to list certificate requests", err)
		return nil, 0, err
	}
	return reqs, total, nil
}

// ApplyUpdate writes next only while the stored request is still in expectedStatus.
// Fulfilment additionally requires that no certificate is linked yet.
func (r *certificateRequestRepository) ApplyUpdate(next *model.CertificateRequest, expectedStatus model.CertificateRequestStatus) error {
	query := r.db.Model(&model.CertificateRequest{}).Where("id = ? AND status = ?", next.ID, expectedStatus)
	if next.Status == model.RequestStatusFulfilled {
		query = query.Where("certificate_id IS NULL")
	}

	result := query.Updates(map[string]interface{}{
		"status":         next.Status,
		"certificate_id": next.CertificateID,
		"triaged_by":     next.TriagedBy,
		"triaged_at":     next.TriagedAt,
		"decline_reason": next.DeclineReason,
		"fulfilled_at":   next.FulfilledAt,
	})
	if result.Error != nil {
		logger.Error("Failed to update certificate request", result.Error, map[string]interface{}{
			"request_id": next.ID,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		logger.Warn("Certificate request changed before conditional update", map[string]interface{}{
			"request_id":      next.ID,
			"expected_status": expectedStatus,
		})
		return ErrConditionFailed
	}

	logger.Debug("Certificate request updated", map[string]interface{}{
		"request_id": next.ID,
		"status":     next.Status,
	})
	return nil
}

// IsNotFound reports whether err is gorm's missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
