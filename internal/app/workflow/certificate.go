package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
)

type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

type transition struct {
	from []model.CertificateStatus
	to   model.CertificateStatus
}

// certificateTransitions is the only place certificate transition legality is defined.
var certificateTransitions = map[Action]transition{
	ActionSubmit: {
		from: []model.CertificateStatus{model.CertificateStatusDraft, model.CertificateStatusRevisionRequested},
		to:   model.CertificateStatusSubmitted,
	},
	ActionApprove: {
		from: []model.CertificateStatus{model.CertificateStatusSubmitted},
		to:   model.CertificateStatusApproved,
	},
	ActionReject: {
		from: []model.CertificateStatus{model.CertificateStatusSubmitted},
		to:   model.CertificateStatusRevisionRequested,
	},
}

// NextStatus returns the status reached by applying action from current.
func NextStatus(current model.CertificateStatus, action Action) (model.CertificateStatus, error) {
	t, ok := certificateTransitions[action]
	if !ok {
		return "", validationf("unknown action %q", action)
	}
	for _, from := range t.from {
		if from == current {
			return t.to, nil
		}
	}
	return "", fmt.Errorf("%w: cannot %s a certificate in status %s", ErrInvalidTransition, action, current)
}

// AllowedActions lists the transitions available from status, in table order.
func AllowedActions(status model.CertificateStatus) []Action {
	actions := make([]Action, 0, 2)
	for _, a := range []Action{ActionSubmit, ActionApprove, ActionReject} {
		if _, err := NextStatus(status, a); err == nil {
			actions = append(actions, a)
		}
	}
	return actions
}

// Editable reports whether inspection fields may still change in status.
func Editable(status model.CertificateStatus) bool {
	return status == model.CertificateStatusDraft || status == model.CertificateStatusRevisionRequested
}

// Expectation is the caller's last-read view of a certificate. Version 0 skips the version check.
type Expectation struct {
	Status  model.CertificateStatus
	Version uint
}

// CheckExpectation compares the caller's view against the stored snapshot.
func CheckExpectation(current *model.Certificate, exp Expectation) error {
	if exp.Status == "" {
		return validationf("expected_status is required")
	}
	if !exp.Status.Valid() {
		return validationf("unknown expected_status %q", exp.Status)
	}
	if current.Status != exp.Status || (exp.Version != 0 && current.Version != exp.Version) {
		return staleCertificate(current)
	}
	return nil
}

func begin(current *model.Certificate, action Action, exp Expectation) (*model.Certificate, error) {
	if err := CheckExpectation(current, exp); err != nil {
		return nil, err
	}
	to, err := NextStatus(current.Status, action)
	if err != nil {
		return nil, err
	}
	next := *current
	next.Status = to
	next.Version = current.Version + 1
	return &next, nil
}

// Submit moves a draft or revision_requested certificate to submitted.
func Submit(current *model.Certificate, actor uint, now time.Time, exp Expectation) (*model.Certificate, error) {
	next, err := begin(current, ActionSubmit, exp)
	if err != nil {
		return nil, err
	}
	next.SubmittedAt = &now
	next.SubmittedBy = &actor
	next.RejectionReason = ""
	return next, nil
}

// Approve moves a submitted certificate to approved and derives the next inspection date.
// pdf_url is left for the renderer to fill in after the transition is committed.
func Approve(current *model.Certificate, actor uint, now time.Time, exp Expectation) (*model.Certificate, error) {
	next, err := begin(current, ActionApprove, exp)
	if err != nil {
		return nil, err
	}
	next.ApprovedAt = &now
	next.ApprovedBy = &actor
	next.RejectionReason = ""
	next.NextInspectionDate = nil
	if next.InspectionDate != nil {
		next.NextInspectionDate = DeriveRenewalDate(next.CertificateType, *next.InspectionDate)
	}
	return next, nil
}

// Reject sends a submitted certificate back for revision with a reason.
func Reject(current *model.Certificate, actor uint, reason string, now time.Time, exp Expectation) (*model.Certificate, error) {
	next, err := begin(current, ActionReject, exp)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationf("rejection reason is required")
	}
	next.RejectionReason = reason
	next.ApprovedAt = nil
	next.ApprovedBy = nil
	next.PDFURL = ""
	return next, nil
}

// CheckEditable guards field edits with the same optimistic contract as transitions.
func CheckEditable(current *model.Certificate, exp Expectation) error {
	if err := CheckExpectation(current, exp); err != nil {
		return err
	}
	if !Editable(current.Status) {
		return fmt.Errorf("%w: certificate in status %s can no longer be edited", ErrInvalidTransition, current.Status)
	}
	return nil
}

// Ownership is the resolved customer/company pair a new certificate is filed under.
type Ownership struct {
	CustomerID *uint
	CompanyID  *uint
}

// ResolveOwnership fills missing parties from the property; at least one must be known.
func ResolveOwnership(property *model.Property, customerID, companyID *uint) (Ownership, error) {
	if property == nil {
		return Ownership{}, validationf("property is required")
	}
	owner := Ownership{CustomerID: customerID, CompanyID: companyID}
	if owner.CustomerID == nil && owner.CompanyID == nil {
		owner.CustomerID = property.CustomerID
		owner.CompanyID = property.CompanyID
	}
	if owner.CustomerID == nil && owner.CompanyID == nil {
		return Ownership{}, validationf("property %d has no customer or company and none was supplied", property.ID)
	}
	return owner, nil
}

// ValidateCertificate checks the record-level invariants that hold in every state.
func ValidateCertificate(c *model.Certificate) error {
	if !c.CertificateType.Valid() {
		return validationf("unknown certificate type %q", c.CertificateType)
	}
	if !c.Status.Valid() {
		return validationf("unknown status %q", c.Status)
	}
	if c.NextInspectionDate != nil {
		if c.InspectionDate == nil || !DateOnly(*c.NextInspectionDate).After(DateOnly(*c.InspectionDate)) {
			return validationf("next inspection date must be after the inspection date")
		}
	}
	if c.RejectionReason != "" && c.Status != model.CertificateStatusRevisionRequested {
		return validationf("rejection reason is only allowed on certificates awaiting revision")
	}
	if c.PDFURL != "" && c.Status != model.CertificateStatusApproved {
		return validationf("pdf is only available once approved")
	}
	return nil
}
