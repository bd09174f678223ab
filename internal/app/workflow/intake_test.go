package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightwire/cert-portal/internal/app/model"
)

func ownedProperty(id, customerID uint) *model.Property {
	return &model.Property{ID: id, AddressLine1: "1 High Street", CustomerID: &customerID}
}

func TestNewRequest(t *testing.T) {
	customerA, customerB := uint(1), uint(2)
	property := ownedProperty(5, customerA)

	t.Run("Own property", func(t *testing.T) {
		req, err := NewRequest(property, &customerA, 99, model.CertificateTypeEICR, nil, " landlord check ")
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusPending, req.Status)
		assert.Equal(t, uint(5), req.PropertyID)
		assert.Equal(t, customerA, req.CustomerID)
		assert.Equal(t, "landlord check", req.Notes)
		assert.Nil(t, req.CertificateID)
	})

	t.Run("Foreign property", func(t *testing.T) {
		_, err := NewRequest(property, &customerB, 98, model.CertificateTypeEICR, nil, "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("No customer record", func(t *testing.T) {
		_, err := NewRequest(property, nil, 97, model.CertificateTypeEICR, nil, "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Unowned property", func(t *testing.T) {
		_, err := NewRequest(&model.Property{ID: 6}, &customerA, 99, model.CertificateTypeEIC, nil, "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Unknown type", func(t *testing.T) {
		_, err := NewRequest(property, &customerA, 99, "pat_test", nil, "")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestTriage(t *testing.T) {
	now := time.Now()
	pending := &model.CertificateRequest{ID: 1, PropertyID: 5, Status: model.RequestStatusPending}

	tests := []struct {
		name     string
		status   model.CertificateRequestStatus
		decision model.TriageDecision
		want     model.CertificateRequestStatus
		wantErr  error
	}{
		{"accept pending", model.RequestStatusPending, model.TriageAccept, model.RequestStatusScheduled, nil},
		{"decline pending", model.RequestStatusPending, model.TriageDecline, model.RequestStatusDeclined, nil},
		{"accept scheduled", model.RequestStatusScheduled, model.TriageAccept, "", ErrInvalidTransition},
		{"decline fulfilled", model.RequestStatusFulfilled, model.TriageDecline, "", ErrInvalidTransition},
		{"accept declined", model.RequestStatusDeclined, model.TriageAccept, "", ErrInvalidTransition},
		{"unknown decision", model.RequestStatusPending, model.TriageDecision("maybe"), "", ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := *pending
			req.Status = tt.status
			got, err := Triage(&req, tt.decision, 3, "", now, "")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, uint(3), *got.TriagedBy)
			assert.Equal(t, now, *got.TriagedAt)
		})
	}

	t.Run("Decline keeps reason", func(t *testing.T) {
		got, err := Triage(pending, model.TriageDecline, 3, " outside service area ", now, model.RequestStatusPending)
		require.NoError(t, err)
		assert.Equal(t, "outside service area", got.DeclineReason)
	})

	t.Run("Stale expected status", func(t *testing.T) {
		_, err := Triage(pending, model.TriageAccept, 3, "", now, model.RequestStatusScheduled)
		assert.ErrorIs(t, err, ErrStaleState)
	})
}

func TestFulfill(t *testing.T) {
	now := time.Now()
	scheduled := &model.CertificateRequest{ID: 1, PropertyID: 5, CertificateType: model.CertificateTypeEICR, Status: model.RequestStatusScheduled}
	cert := &model.Certificate{ID: 42, CertificateNo: "EICR-000042", PropertyID: 5, CertificateType: model.CertificateTypeEICR}

	t.Run("Links certificate", func(t *testing.T) {
		got, err := Fulfill(scheduled, cert, now)
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusFulfilled, got.Status)
		require.NotNil(t, got.CertificateID)
		assert.Equal(t, uint(42), *got.CertificateID)

		t.Run("Second fulfil", func(t *testing.T) {
			other := &model.Certificate{ID: 43, CertificateNo: "EICR-000043", PropertyID: 5, CertificateType: model.CertificateTypeEICR}
			again, err := Fulfill(got, other, now)
			assert.ErrorIs(t, err, ErrAlreadyFulfilled)
			assert.Nil(t, again)
			assert.Equal(t, uint(42), *got.CertificateID)
		})
	})

	t.Run("Pending request", func(t *testing.T) {
		req := *scheduled
		req.Status = model.RequestStatusPending
		_, err := Fulfill(&req, cert, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("Certificate for another property", func(t *testing.T) {
		_, err := Fulfill(scheduled, &model.Certificate{ID: 50, PropertyID: 6, CertificateType: model.CertificateTypeEICR}, now)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Certificate of another type", func(t *testing.T) {
		minor := &model.Certificate{ID: 51, CertificateNo: "MW-000051", PropertyID: 5, CertificateType: model.CertificateTypeMinorWorks}
		got, err := Fulfill(scheduled, minor, now)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Nil(t, got)
		assert.Nil(t, scheduled.CertificateID)
	})

	t.Run("Missing certificate", func(t *testing.T) {
		_, err := Fulfill(scheduled, nil, now)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestCanTransitionRequest(t *testing.T) {
	assert.True(t, CanTransitionRequest(model.RequestStatusPending, model.RequestStatusScheduled))
	assert.True(t, CanTransitionRequest(model.RequestStatusPending, model.RequestStatusDeclined))
	assert.True(t, CanTransitionRequest(model.RequestStatusScheduled, model.RequestStatusFulfilled))
	assert.False(t, CanTransitionRequest(model.RequestStatusPending, model.RequestStatusFulfilled))
	assert.False(t, CanTransitionRequest(model.RequestStatusDeclined, model.RequestStatusScheduled))
	assert.False(t, CanTransitionRequest(model.RequestStatusFulfilled, model.RequestStatusScheduled))
}
