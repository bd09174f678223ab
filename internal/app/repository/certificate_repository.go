package repository

import (
	"errors"
	"fmt"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrConditionFailed means a conditional write matched no row: another writer got there first.
var ErrConditionFailed = errors.New("conditional update matched no rows")

type CertificateFilter struct {
	Status     model.CertificateStatus
	Type       model.CertificateType
	PropertyID uint
	CustomerID uint
	Limit      int
	Offset     int
}

type CertificateRepository interface {
	Create(cert *model.Certificate) error
	FindByID(id uint) (*model.Certificate, error)
	FindByIDWithRelations(id uint) (*model.Certificate, error)
	List(filter CertificateFilter) ([]model.Certificate, int64, error)
	FindWithNextInspection() ([]model.Certificate, error)
	ApplyUpdate(next *model.Certificate, expectedStatus model.CertificateStatus, expectedVersion uint, event *model.CertificateEvent) error
	SetPDFURL(id uint, url string) (bool, error)
	ListEvents(certificateID uint) ([]model.CertificateEvent, error)
}

type certificateRepository struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) CertificateRepository {
	return &certificateRepository{db: db}
}

// Create inserts the certificate, derives its number from the new row id and records the
// created event, all in one transaction.
func (r *certificateRepository) Create(cert *model.Certificate) error {
	logger.Debug("Creating certificate in database", map[string]interface{}{
		"certificate_type": cert.CertificateType,
		"property_id":      cert.PropertyID,
	})

	err := r.db.Transaction(func(tx *gorm.DB) error {
		// unique placeholder until the id is known
		cert.CertificateNo = "PENDING-" + uuid.NewString()
		if err := tx.Omit("Property", "Job", "Company", "Customer").Create(cert).Error; err != nil {
			return err
		}

		cert.CertificateNo = model.FormatCertificateNo(cert.CertificateType, cert.ID)
		if err := tx.Model(&model.Certificate{}).Where("id = ?", cert.ID).
			Update("certificate_no", cert.CertificateNo).Error; err != nil {
			return err
		}

		actor := cert.CreatedBy
		return tx.Create(&model.CertificateEvent{
			CertificateID: cert.ID,
			Action:        model.CertificateActionCreated,
			ToStatus:      cert.Status,
			ActorID:       &actor,
		}).Error
	})
	if err != nil {
		logger.Error("Failed to create certificate in database", err, map[string]interface{}{
			"certificate_type": cert.CertificateType,
			"property_id":      cert.PropertyID,
		})
		return err
	}

	logger.Debug("Certificate created in database", map[string]interface{}{
		"certificate_id": cert.ID,
		"certificate_no": cert.CertificateNo,
	})
	return nil
}

func (r *certificateRepository) FindByID(id uint) (*model.Certificate, error) {
	logger.Debug("Finding certificate by ID in database", map[string]interface{}{
		"certificate_id": id,
	})

	var cert model.Certificate
	if err := r.db.First(&cert, id).Error; err != nil {
		logger.Error("Failed to find certificate by ID in database", err, map[string]interface{}{
			"certificate_id": id,
		})
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepository) FindByIDWithRelations(id uint) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.db.Preload("Property").Preload("Job").Preload("Company").Preload("Customer").
		First(&cert, id).Error
	if err != nil {
		logger.Error("Failed to find certificate with relations", err, map[string]interface{}{
			"certificate_id": id,
		})
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepository) List(filter CertificateFilter) ([]model.Certificate, int64, error) {
	logger.Debug("Listing certificates from database", map[string]interface{}{
		"status":      filter.Status,
		"type":        filter.Type,
		"property_id": filter.PropertyID,
	})

	var certs []model.Certificate
	var total int64

	query := r.db.Model(&model.Certificate{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("certificate_type = ?", filter.Type)
	}
	if filter.PropertyID != 0 {
		query = query.Where("property_id = ?", filter.PropertyID)
	}
	if filter.CustomerID != 0 {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}

	if err := query.Count(&total).Error; err != nil {
		logger.Error("Failed to count certificates", err)
		return nil, 0, err
	}

	query = query.Preload("Property").Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&certs).Error; err != nil {
		logger.Error("Failed to list certificates", err)
		return nil, 0, err
	}

	logger.Debug("Certificates listed from database", map[string]interface{}{
		"count": len(certs),
		"total": total,
	})
	return certs, total, nil
}

// FindWithNextInspection loads every approved certificate that carries a renewal date.
func (r *certificateRepository) FindWithNextInspection() ([]model.Certificate, error) {
	var certs []model.Certificate
	err := r.db.Preload("Property").
		Where("status = ? AND next_inspection_date IS NOT NULL", model.CertificateStatusApproved).
		Order("next_inspection_date ASC").Order("certificate_no ASC").
		Find(&certs).Error
	if err != nil {
		logger.Error("Failed to load certificates with a next inspection date", err)
		return nil, err
	}
	return certs, nil
}

// ApplyUpdate writes next only if the stored row still has expectedStatus and expectedVersion,
// and appends event in the same transaction. A lost race returns ErrConditionFailed.
func (r *certificateRepository) ApplyUpdate(next *model.Certificate, expectedStatus model.CertificateStatus, expectedVersion uint, event *model.CertificateEvent) error {
	fields := map[string]interface{}{
		"status":               next.Status,
		"version":              next.Version,
		"submitted_at":         next.SubmittedAt,
		"submitted_by":         next.SubmittedBy,
		"approved_at":          next.ApprovedAt,
		"approved_by":          next.ApprovedBy,
		"rejection_reason":     next.RejectionReason,
		"inspection_date":      next.InspectionDate,
		"next_inspection_date": next.NextInspectionDate,
		"test_results":         next.TestResults,
		"observations":         next.Observations,
		"pdf_url":              next.PDFURL,
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Certificate{}).
			Where("id = ? AND status = ? AND version = ?", next.ID, expectedStatus, expectedVersion).
			Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConditionFailed
		}
		if event == nil {
			return nil
		}
		event.CertificateID = next.ID
		return tx.Create(event).Error
	})
	if err != nil {
		if errors.Is(err, ErrConditionFailed) {
			logger.Warn("Certificate changed before conditional update", map[string]interface{}{
				"certificate_id":   next.ID,
				"expected_status":  expectedStatus,
				"expected_version": expectedVersion,
			})
			return err
		}
		logger.Error("Failed to update certificate in database", err, map[string]interface{}{
			"certificate_id": next.ID,
		})
		return fmt.Errorf("update certificate %d: %w", next.ID, err)
	}

	logger.Debug("Certificate updated in database", map[string]interface{}{
		"certificate_id": next.ID,
		"status":         next.Status,
		"version":        next.Version,
	})
	return nil
}

// SetPDFURL records the rendered document once; it reports false when the certificate is not
// approved or already has one.
func (r *certificateRepository) SetPDFURL(id uint, url string) (bool, error) {
	var updated bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Certificate{}).
			Where("id = ? AND status = ? AND (pdf_url IS NULL OR pdf_url = '')", id, model.CertificateStatusApproved).
			Update("pdf_url", url)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		updated = true
		return tx.Create(&model.CertificateEvent{
			CertificateID: id,
			Action:        model.CertificateActionPDFReady,
			FromStatus:    model.CertificateStatusApproved,
			ToStatus:      model.CertificateStatusApproved,
			Details:       url,
		}).Error
	})
	if err != nil {
		logger.Error("Failed to set certificate pdf url", err, map[string]interface{}{
			"certificate_id": id,
		})
		return false, err
	}
	return updated, nil
}

func (r *certificateRepository) ListEvents(certificateID uint) ([]model.CertificateEvent, error) {
	var events []model.CertificateEvent
	if err := r.db.Where("certificate_id = ?", certificateID).Order("id ASC").Find(&events).Error; err != nil {
		logger.Error("Failed to list certificate events", err, map[string]interface{}{
			"certificate_id": certificateID,
		})
		return nil, err
	}
	return events, nil
}
