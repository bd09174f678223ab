package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
)

var requestTransitions = map[model.CertificateRequestStatus][]model.CertificateRequestStatus{
	model.RequestStatusPending:   {model.RequestStatusScheduled, model.RequestStatusDeclined},
	model.RequestStatusScheduled: {model.RequestStatusFulfilled},
}

// CanTransitionRequest reports whether the intake table allows from -> to.
func CanTransitionRequest(from, to model.CertificateRequestStatus) bool {
	for _, s := range requestTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func requestStale(r *model.CertificateRequest) error {
	return &StaleStateError{CurrentStatus: string(r.Status)}
}

// CheckRequestOwnership verifies the property belongs to the requesting customer.
func CheckRequestOwnership(property *model.Property, customerID *uint) error {
	if customerID == nil {
		return validationf("only customer accounts can request certificates")
	}
	if property == nil || property.CustomerID == nil || *property.CustomerID != *customerID {
		return validationf("property does not belong to the requesting customer")
	}
	return nil
}

// NewRequest builds a pending request after the ownership and type checks.
func NewRequest(property *model.Property, customerID *uint, requestedBy uint, t model.CertificateType, preferred *time.Time, notes string) (*model.CertificateRequest, error) {
	if !t.Valid() {
		return nil, validationf("unknown certificate type %q", t)
	}
	if err := CheckRequestOwnership(property, customerID); err != nil {
		return nil, err
	}
	return &model.CertificateRequest{
		PropertyID:      property.ID,
		CustomerID:      *customerID,
		RequestedBy:     requestedBy,
		CertificateType: t,
		PreferredDate:   preferred,
		Notes:           strings.TrimSpace(notes),
		Status:          model.RequestStatusPending,
	}, nil
}

// Triage accepts or declines a pending request. An empty expected status skips the stale check.
func Triage(current *model.CertificateRequest, decision model.TriageDecision, actor uint, reason string, now time.Time, expected model.CertificateRequestStatus) (*model.CertificateRequest, error) {
	var to model.CertificateRequestStatus
	switch decision {
	case model.TriageAccept:
		to = model.RequestStatusScheduled
	case model.TriageDecline:
		to = model.RequestStatusDeclined
	default:
		return nil, validationf("unknown triage decision %q", decision)
	}
	if expected != "" && expected != current.Status {
		return nil, requestStale(current)
	}
	if !CanTransitionRequest(current.Status, to) {
		return nil, fmt.Errorf("%w: cannot triage a request in status %s", ErrInvalidTransition, current.Status)
	}

	next := *current
	next.Status = to
	next.TriagedBy = &actor
	next.TriagedAt = &now
	if to == model.RequestStatusDeclined {
		next.DeclineReason = strings.TrimSpace(reason)
	}
	return &next, nil
}

// Fulfill links a scheduled request to the certificate produced for it.
// A request that already carries a link is reported as AlreadyFulfilled before anything else.
func Fulfill(current *model.CertificateRequest, cert *model.Certificate, now time.Time) (*model.CertificateRequest, error) {
	if current.CertificateID != nil {
		return nil, fmt.Errorf("%w: request %d is linked to certificate %d", ErrAlreadyFulfilled, current.ID, *current.CertificateID)
	}
	if !CanTransitionRequest(current.Status, model.RequestStatusFulfilled) {
		return nil, fmt.Errorf("%w: cannot fulfil a request in status %s", ErrInvalidTransition, current.Status)
	}
	if cert == nil {
		return nil, validationf("certificate does not exist")
	}
	if cert.PropertyID != current.PropertyID {
		return nil, validationf("certificate %s is for a different property", cert.CertificateNo)
	}
	if cert.CertificateType != current.CertificateType {
		return nil, validationf("certificate %s is a %s, the request is for a %s",
			cert.CertificateNo, cert.CertificateType, current.CertificateType)
	}

	next := *current
	next.Status = model.RequestStatusFulfilled
	next.CertificateID = &cert.ID
	next.FulfilledAt = &now
	return &next, nil
}
