package service

import (
	"bytes"
	"fmt"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/app/workflow"
	"github.com/brightwire/cert-portal/pkg/logger"
	"github.com/xuri/excelize/v2"
)

const (
	overdueSheet  = "Overdue"
	upcomingSheet = "Upcoming"
)

var renewalColumns = []interface{}{
	"Certificate No", "Type", "Address", "Postcode", "Inspection Date", "Next Inspection", "Days",
}

type RenewalService interface {
	ListExpiring(horizonMonths int) (*workflow.RenewalBuckets, error)
	ExportXLSX(horizonMonths int) ([]byte, error)
	SendReminders() (int, error)
}

type renewalService struct {
	repo           repository.CertificateRepository
	notifications  NotificationService
	defaultHorizon int
	now            func() time.Time
}

// NewRenewalService builds the service; a nil now defaults to the wall clock.
func NewRenewalService(
	repo repository.CertificateRepository,
	notifications NotificationService,
	defaultHorizon int,
	now func() time.Time,
) RenewalService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if defaultHorizon < 1 || defaultHorizon > workflow.MaxHorizonMonths {
		defaultHorizon = workflow.DefaultHorizonMonths
	}
	return &renewalService{
		repo:           repo,
		notifications:  notifications,
		defaultHorizon: defaultHorizon,
		now:            now,
	}
}

// ListExpiring buckets approved certificates by expiry; 0 months uses the configured default.
func (s *renewalService) ListExpiring(horizonMonths int) (*workflow.RenewalBuckets, error) {
	if horizonMonths == 0 {
		horizonMonths = s.defaultHorizon
	}
	months, err := workflow.ValidateHorizon(horizonMonths)
	if err != nil {
		return nil, err
	}

	certs, err := s.repo.FindWithNextInspection()
	if err != nil {
		return nil, err
	}

	buckets := workflow.Bucketize(certs, s.now(), months)
	logger.Debug("Renewals bucketed", map[string]interface{}{
		"as_of":          buckets.AsOf.Format("2006-01-02"),
		"horizon_months": months,
		"overdue":        len(buckets.Overdue),
		"upcoming":       len(buckets.Upcoming),
	})
	return &buckets, nil
}

func (s *renewalService) ExportXLSX(horizonMonths int) ([]byte, error) {
	buckets, err := s.ListExpiring(horizonMonths)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), overdueSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(upcomingSheet); err != nil {
		return nil, fmt.Errorf("failed to add sheet: %w", err)
	}

	if err := writeRenewalSheet(f, overdueSheet, buckets.Overdue, buckets.AsOf); err != nil {
		return nil, err
	}
	if err := writeRenewalSheet(f, upcomingSheet, buckets.Upcoming, buckets.AsOf); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// writeRenewalSheet one header row, then one row per certificate. Days is negative when overdue.
func writeRenewalSheet(f *excelize.File, sheet string, certs []model.Certificate, asOf time.Time) error {
	if err := f.SetSheetRow(sheet, "A1", &renewalColumns); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}

	for i, c := range certs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		var address, postcode, inspection string
		if c.Property != nil {
			address = c.Property.DisplayAddress()
			postcode = c.Property.Postcode
		}
		if c.InspectionDate != nil {
			inspection = c.InspectionDate.Format("2006-01-02")
		}
		due := workflow.DateOnly(*c.NextInspectionDate)
		days := int(due.Sub(asOf).Hours() / 24)

		row := []interface{}{
			c.CertificateNo,
			c.CertificateType.Label(),
			address,
			postcode,
			inspection,
			due.Format("2006-01-02"),
			days,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// SendReminders buckets with the default horizon, refreshes the gauges and notifies staff
func (s *renewalService) SendReminders() (int, error) {
	buckets, err := s.ListExpiring(0)
	if err != nil {
		return 0, err
	}

	certificatesOverdue.Set(float64(len(buckets.Overdue)))
	certificatesUpcoming.Set(float64(len(buckets.Upcoming)))

	if len(buckets.Overdue) == 0 && len(buckets.Upcoming) == 0 {
		logger.Info("No renewals due", map[string]interface{}{
			"as_of": buckets.AsOf.Format("2006-01-02"),
		})
		return 0, nil
	}
	if s.notifications == nil {
		return 0, nil
	}

	sent := s.notifications.NotifyRenewalDue(*buckets)
	logger.Info("Renewal reminders sent", map[string]interface{}{
		"overdue":    len(buckets.Overdue),
		"upcoming":   len(buckets.Upcoming),
		"recipients": sent,
	})
	return sent, nil
}
