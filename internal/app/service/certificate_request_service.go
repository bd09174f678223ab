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

type CreateCertificateRequestInput struct {
	PropertyID      uint                  `json:"property_id" binding:"required"`
	CertificateType model.CertificateType `json:"certificate_type" binding:"required"`
	PreferredDate   *time.Time            `json:"preferred_date"`
	Notes           string                `json:"notes"`
}

type TriageInput struct {
	Decision       model.TriageDecision           `json:"decision" binding:"required"`
	Reason         string                         `json:"reason"`
	ExpectedStatus model.CertificateRequestStatus `json:"expected_status"`
}

type CertificateRequestService interface {
	CreateRequest(userID uint, input CreateCertificateRequestInput) (*model.CertificateRequest, error)
	GetRequest(id, userID uint) (*model.CertificateRequest, error)
	ListRequests(userID uint, status model.CertificateRequestStatus, page, pageSize int) ([]model.CertificateRequest, int64, error)
	Triage(id, actor uint, input TriageInput) (*model.CertificateRequest, error)
	Fulfill(id, actor, certificateID uint) (*model.CertificateRequest, error)
}

type certificateRequestService struct {
	repo          repository.CertificateRequestRepository
	certRepo      repository.CertificateRepository
	userRepo      repository.UserRepository
	properties    PropertyService
	notifications NotificationService
	now           func() time.Time
}

func NewCertificateRequestService(
	repo repository.CertificateRequestRepository,
	certRepo repository.CertificateRepository,
	userRepo repository.UserRepository,
	properties PropertyService,
	notifications NotificationService,
) CertificateRequestService {
	return &certificateRequestService{
		repo:          repo,
		certRepo:      certRepo,
		userRepo:      userRepo,
		properties:    properties,
		notifications: notifications,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *certificateRequestService) user(id uint) (*model.User, error) {
	u, err := s.userRepo.FindByID(id)
	if err != nil {
		return nil, notFound("user", id, err)
	}
	return u, nil
}

func (s *certificateRequestService) CreateRequest(userID uint, input CreateCertificateRequestInput) (*model.CertificateRequest, error) {
	user, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	if user.Role != model.RoleCustomer {
		return nil, fmt.Errorf("%w: only customer accounts can request certificates", workflow.ErrValidation)
	}

	property, err := s.properties.GetProperty(input.PropertyID)
	if err != nil {
		return nil, asValidation(err, "property %d does not exist", input.PropertyID)
	}

	req, err := workflow.NewRequest(property, user.CustomerID, user.ID, input.CertificateType, dateOnlyPtr(input.PreferredDate), input.Notes)
	if err != nil {
		logger.Warn("Certificate request refused", map[string]interface{}{
			"user_id":     userID,
			"property_id": input.PropertyID,
			"error":       err.Error(),
		})
		return nil, err
	}

	if err := s.repo.Create(req); err != nil {
		return nil, err
	}

	logger.Info("Certificate request created", map[string]interface{}{
		"request_id":  req.ID,
		"property_id": req.PropertyID,
		"customer_id": req.CustomerID,
	})
	if s.notifications != nil {
		s.notifications.NotifyRequestCreated(req)
	}
	return req, nil
}

// GetRequest loads a request. Customers only see their own; a foreign one reads as missing.
func (s *certificateRequestService) GetRequest(id, userID uint) (*model.CertificateRequest, error) {
	user, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	req, err := s.repo.FindByID(id)
	if err != nil {
		return nil, notFound("certificate request", id, err)
	}
	if user.Role == model.RoleCustomer && (user.CustomerID == nil || *user.CustomerID != req.CustomerID) {
		return nil, fmt.Errorf("%w: certificate request %d", workflow.ErrNotFound, id)
	}
	return req, nil
}

func (s *certificateRequestService) ListRequests(userID uint, status model.CertificateRequestStatus, page, pageSize int) ([]model.CertificateRequest, int64, error) {
	user, err := s.user(userID)
	if err != nil {
		return nil, 0, err
	}
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", workflow.ErrValidation, status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	filter := repository.CertificateRequestFilter{
		Status: status,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if user.Role == model.RoleCustomer {
		if user.CustomerID == nil {
			return []model.CertificateRequest{}, 0, nil
		}
		filter.CustomerID = *user.CustomerID
	}
	return s.repo.List(filter)
}

func (s *certificateRequestService) Triage(id, actor uint, input TriageInput) (*model.CertificateRequest, error) {
	current, err := s.repo.FindByID(id)
	if err != nil {
		err = notFound("certificate request", id, err)
		requestTransitionsTotal.WithLabelValues("triage", outcomeOf(err)).Inc()
		return nil, err
	}

	next, err := workflow.Triage(current, input.Decision, actor, input.Reason, s.now(), input.ExpectedStatus)
	if err != nil {
		requestTransitionsTotal.WithLabelValues("triage", outcomeOf(err)).Inc()
		return nil, err
	}

	if err := s.repo.ApplyUpdate(next, current.Status); err != nil {
		err = s.writeError(id, err)
		requestTransitionsTotal.WithLabelValues("triage", outcomeOf(err)).Inc()
		return nil, err
	}

	requestTransitionsTotal.WithLabelValues("triage", "ok").Inc()
	logger.Info("Certificate request triaged", map[string]interface{}{
		"request_id": id,
		"decision":   input.Decision,
		"status":     next.Status,
		"actor":      actor,
	})
	if s.notifications != nil {
		s.notifications.NotifyRequestTriaged(next)
	}
	return next, nil
}

func (s *certificateRequestService) Fulfill(id, actor, certificateID uint) (*model.CertificateRequest, error) {
	current, err := s.repo.FindByID(id)
	if err != nil {
		err = notFound("certificate request", id, err)
		requestTransitionsTotal.WithLabelValues("fulfill", outcomeOf(err)).Inc()
		return nil, err
	}

	var cert *model.Certificate
	if certificateID != 0 {
		cert, err = s.certRepo.FindByID(certificateID)
		if err != nil && !repository.IsNotFound(err) {
			return nil, err
		}
	}

	next, err := workflow.Fulfill(current, cert, s.now())
	if err != nil {
		requestTransitionsTotal.WithLabelValues("fulfill", outcomeOf(err)).Inc()
		return nil, err
	}

	if err := s.repo.ApplyUpdate(next, current.Status); err != nil {
		err = s.writeError(id, err)
		requestTransitionsTotal.WithLabelValues("fulfill", outcomeOf(err)).Inc()
		return nil, err
	}

	requestTransitionsTotal.WithLabelValues("fulfill", "ok").Inc()
	logger.Info("Certificate request fulfilled", map[string]interface{}{
		"request_id":     id,
		"certificate_id": certificateID,
		"actor":          actor,
	})
	return next, nil
}

// writeError re-reads a request after a lost conditional write. A link set by the
// winner means the request is already fulfilled; anything else is stale.
func (s *certificateRequestService) writeError(id uint, err error) error {
	if !errors.Is(err, repository.ErrConditionFailed) {
		return err
	}
	current, loadErr := s.repo.FindByID(id)
	if loadErr != nil {
		return notFound("certificate request", id, loadErr)
	}
	if current.CertificateID != nil {
		return fmt.Errorf("%w: request %d is linked to certificate %d", workflow.ErrAlreadyFulfilled, id, *current.CertificateID)
	}
	return &workflow.StaleStateError{CurrentStatus: string(current.Status)}
}
