package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/app/workflow"
	"github.com/brightwire/cert-portal/pkg/logger"
)

// CertificateRenderer produces the PDF for an approved certificate in the background
type CertificateRenderer interface {
	RenderAsync(cert *model.Certificate)
}

type CreateCertificateInput struct {
	CertificateType model.CertificateType `json:"certificate_type" binding:"required"`
	PropertyID      uint                  `json:"property_id" binding:"required"`
	JobID           *uint                 `json:"job_id"`
	CompanyID       *uint                 `json:"company_id"`
	CustomerID      *uint                 `json:"customer_id"`
	InspectionDate  *time.Time            `json:"inspection_date"`
	Observations    string                `json:"observations"`
	TestResults     model.JSONText        `json:"test_results"`
}

// UpdateCertificateInput carries a partial edit; nil fields are left unchanged.
type UpdateCertificateInput struct {
	ExpectedStatus  model.CertificateStatus `json:"expected_status"`
	ExpectedVersion uint                    `json:"expected_version"`
	InspectionDate  *time.Time              `json:"inspection_date"`
	Observations    *string                 `json:"observations"`
	TestResults     model.JSONText          `json:"test_results"`
}

type CertificateService interface {
	CreateCertificate(actor uint, input CreateCertificateInput) (*model.Certificate, error)
	GetCertificate(id uint) (*model.Certificate, error)
	ListCertificates(filter repository.CertificateFilter) ([]model.Certificate, int64, error)
	UpdateCertificate(id, actor uint, input UpdateCertificateInput) (*model.Certificate, error)
	Submit(id, actor uint, exp workflow.Expectation) (*model.Certificate, error)
	Approve(id, actor uint, exp workflow.Expectation) (*model.Certificate, error)
	Reject(id, actor uint, reason string, exp workflow.Expectation) (*model.Certificate, error)
	ListEvents(id uint) ([]model.CertificateEvent, error)
}

type certificateService struct {
	repo          repository.CertificateRepository
	properties    PropertyService
	notifications NotificationService
	renderer      CertificateRenderer
	now           func() time.Time
}

// NewCertificateService wires the certificate workflow; notifications and renderer may be nil.
func NewCertificateService(
	repo repository.CertificateRepository,
	properties PropertyService,
	notifications NotificationService,
	renderer CertificateRenderer,
) CertificateService {
	return &certificateService{
		repo:          repo,
		properties:    properties,
		notifications: notifications,
		renderer:      renderer,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *certificateService) CreateCertificate(actor uint, input CreateCertificateInput) (*model.Certificate, error) {
	logger.Info("Creating certificate", map[string]interface{}{
		"actor":            actor,
		"certificate_type": input.CertificateType,
		"property_id":      input.PropertyID,
	})

	if !input.CertificateType.Valid() {
		return nil, fmt.Errorf("%w: unknown certificate type %q", workflow.ErrValidation, input.CertificateType)
	}

	property, err := s.properties.GetProperty(input.PropertyID)
	if err != nil {
		return nil, asValidation(err, "property %d does not exist", input.PropertyID)
	}
	if input.JobID != nil {
		job, err := s.properties.GetJob(*input.JobID)
		if err != nil {
			return nil, asValidation(err, "job %d does not exist", *input.JobID)
		}
		if job.PropertyID != property.ID {
			return nil, fmt.Errorf("%w: job %d is for a different property", workflow.ErrValidation, job.ID)
		}
	}
	if input.CustomerID != nil {
		if _, err := s.properties.GetCustomer(*input.CustomerID); err != nil {
			return nil, asValidation(err, "customer %d does not exist", *input.CustomerID)
		}
	}
	if input.CompanyID != nil {
		if _, err := s.properties.GetCompany(*input.CompanyID); err != nil {
			return nil, asValidation(err, "company %d does not exist", *input.CompanyID)
		}
	}

	owner, err := workflow.ResolveOwnership(property, input.CustomerID, input.CompanyID)
	if err != nil {
		return nil, err
	}

	cert := &model.Certificate{
		CertificateType: input.CertificateType,
		PropertyID:      property.ID,
		JobID:           input.JobID,
		CompanyID:       owner.CompanyID,
		CustomerID:      owner.CustomerID,
		Status:          model.CertificateStatusDraft,
		Version:         1,
		CreatedBy:       actor,
		InspectionDate:  dateOnlyPtr(input.InspectionDate),
		Observations:    input.Observations,
		TestResults:     input.TestResults,
	}
	if err := workflow.ValidateCertificate(cert); err != nil {
		return nil, err
	}

	if err := s.repo.Create(cert); err != nil {
		logger.Error("Failed to create certificate", err, map[string]interface{}{
			"property_id": property.ID,
		})
		return nil, err
	}

	logger.Info("Certificate created", map[string]interface{}{
		"certificate_id": cert.ID,
		"certificate_no": cert.CertificateNo,
	})
	return cert, nil
}

func (s *certificateService) GetCertificate(id uint) (*model.Certificate, error) {
	cert, err := s.repo.FindByIDWithRelations(id)
	if err != nil {
		return nil, notFound("certificate", id, err)
	}
	return cert, nil
}

func (s *certificateService) ListCertificates(filter repository.CertificateFilter) ([]model.Certificate, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", workflow.ErrValidation, filter.Status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown certificate type %q", workflow.ErrValidation, filter.Type)
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.repo.List(filter)
}

func (s *certificateService) UpdateCertificate(id, actor uint, input UpdateCertificateInput) (*model.Certificate, error) {
	current, err := s.load(id)
	if err != nil {
		return nil, err
	}

	exp := workflow.Expectation{Status: input.ExpectedStatus, Version: input.ExpectedVersion}
	if err := workflow.CheckEditable(current, exp); err != nil {
		return nil, err
	}

	next := *current
	next.Version = current.Version + 1
	if input.InspectionDate != nil {
		next.InspectionDate = dateOnlyPtr(input.InspectionDate)
	}
	if input.Observations != nil {
		next.Observations = *input.Observations
	}
	if input.TestResults != nil {
		next.TestResults = input.TestResults
	}
	if err := workflow.ValidateCertificate(&next); err != nil {
		return nil, err
	}

	event := &model.CertificateEvent{
		Action:     model.CertificateActionUpdated,
		FromStatus: current.Status,
		ToStatus:   next.Status,
		ActorID:    &actor,
	}
	if err := s.repo.ApplyUpdate(&next, current.Status, current.Version, event); err != nil {
		return nil, s.writeError(id, err)
	}
	return &next, nil
}

func (s *certificateService) Submit(id, actor uint, exp workflow.Expectation) (*model.Certificate, error) {
	next, err := s.transition(id, actor, workflow.ActionSubmit, func(cur *model.Certificate) (*model.Certificate, error) {
		return workflow.Submit(cur, actor, s.now(), exp)
	})
	if err != nil {
		return nil, err
	}
	if s.notifications != nil {
		s.notifications.NotifyCertificateSubmitted(next)
	}
	return next, nil
}

// Approve commits first and only then asks for the PDF, so approved is visible before pdf_url.
func (s *certificateService) Approve(id, actor uint, exp workflow.Expectation) (*model.Certificate, error) {
	next, err := s.transition(id, actor, workflow.ActionApprove, func(cur *model.Certificate) (*model.Certificate, error) {
		return workflow.Approve(cur, actor, s.now(), exp)
	})
	if err != nil {
		return nil, err
	}
	if s.notifications != nil {
		s.notifications.NotifyCertificateReviewed(next)
	}
	if s.renderer != nil {
		s.renderer.RenderAsync(next)
	}
	return next, nil
}

func (s *certificateService) Reject(id, actor uint, reason string, exp workflow.Expectation) (*model.Certificate, error) {
	next, err := s.transition(id, actor, workflow.ActionReject, func(cur *model.Certificate) (*model.Certificate, error) {
		return workflow.Reject(cur, actor, reason, s.now(), exp)
	})
	if err != nil {
		return nil, err
	}
	if s.notifications != nil {
		s.notifications.NotifyCertificateReviewed(next)
	}
	return next, nil
}

func (s *certificateService) ListEvents(id uint) ([]model.CertificateEvent, error) {
	if _, err := s.load(id); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(id)
}

func (s *certificateService) load(id uint) (*model.Certificate, error) {
	cert, err := s.repo.FindByID(id)
	if err != nil {
		return nil, notFound("certificate", id, err)
	}
	return cert, nil
}

var transitionEvents = map[workflow.Action]string{
	workflow.ActionSubmit:  model.CertificateActionSubmitted,
	workflow.ActionApprove: model.CertificateActionApproved,
	workflow.ActionReject:  model.CertificateActionRejected,
}

// transition loads the snapshot, lets apply compute the next state and writes it conditionally
func (s *certificateService) transition(
	id, actor uint,
	action workflow.Action,
	apply func(cur *model.Certificate) (*model.Certificate, error),
) (*model.Certificate, error) {
	current, err := s.load(id)
	if err != nil {
		certificateTransitionsTotal.WithLabelValues(string(action), outcomeOf(err)).Inc()
		return nil, err
	}

	next, err := apply(current)
	if err != nil {
		certificateTransitionsTotal.WithLabelValues(string(action), outcomeOf(err)).Inc()
		logger.Warn("Certificate transition refused", map[string]interface{}{
			"certificate_id": id,
			"action":         action,
			"status":         current.Status,
			"error":          err.Error(),
		})
		return nil, err
	}

	event := &model.CertificateEvent{
		Action:     transitionEvents[action],
		FromStatus: current.Status,
		ToStatus:   next.Status,
		ActorID:    &actor,
		Details:    next.RejectionReason,
	}
	if err := s.repo.ApplyUpdate(next, current.Status, current.Version, event); err != nil {
		err = s.writeError(id, err)
		certificateTransitionsTotal.WithLabelValues(string(action), outcomeOf(err)).Inc()
		return nil, err
	}

	certificateTransitionsTotal.WithLabelValues(string(action), "ok").Inc()
	logger.Info("Certificate transitioned", map[string]interface{}{
		"certificate_id": id,
		"action":         action,
		"from":           current.Status,
		"to":             next.Status,
		"version":        next.Version,
		"actor":          actor,
	})
	return next, nil
}

// writeError turns a lost conditional write into StaleState carrying what is stored now
func (s *certificateService) writeError(id uint, err error) error {
	if !errors.Is(err, repository.ErrConditionFailed) {
		return err
	}
	current, loadErr := s.load(id)
	if loadErr != nil {
		return loadErr
	}
	return &workflow.StaleStateError{
		CurrentStatus:  string(current.Status),
		CurrentVersion: current.Version,
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		return "validation"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, workflow.ErrStaleState):
		return "stale"
	case errors.Is(err, workflow.ErrAlreadyFulfilled):
		return "already_fulfilled"
	case errors.Is(err, workflow.ErrNotFound):
		return "not_found"
	}
	return "error"
}

// asValidation reports a missing referenced record as bad input rather than a missing resource
func asValidation(err error, format string, args ...interface{}) error {
	if errors.Is(err, workflow.ErrNotFound) {
		return fmt.Errorf("%w: %s", workflow.ErrValidation, fmt.Sprintf(format, args...))
	}
	return err
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := workflow.DateOnly(*t)
	return &d
}
