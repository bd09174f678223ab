// Package workflow holds the certificate and certificate-request rules:
// the transition tables, their guards and side effects, and renewal
// derivation. Nothing here touches the database or the clock; callers pass
// the snapshot they read and "now" explicitly.
package workflow

import (
	"errors"
	"fmt"

	"github.com/brightwire/cert-portal/internal/app/model"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStaleState        = errors.New("stale state")
	ErrAlreadyFulfilled  = errors.New("request already fulfilled")
	ErrNotFound          = errors.New("not found")
)

// StaleStateError reports what the store holds now so the caller can re-fetch and retry.
type StaleStateError struct {
	CurrentStatus  string
	CurrentVersion uint
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("%s: current status is %s (version %d)", ErrStaleState, e.CurrentStatus, e.CurrentVersion)
}

func (e *StaleStateError) Is(target error) bool {
	return target == ErrStaleState
}

func staleCertificate(c *model.Certificate) error {
	return &StaleStateError{CurrentStatus: string(c.Status), CurrentVersion: c.Version}
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
