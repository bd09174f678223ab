package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/app/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateService_CreateCertificate(t *testing.T) {
	env := setupServiceTest(t)
	svc := env.newCertificateService(nil)

	job := &model.Job{Reference: "JOB-1", PropertyID: env.foreign.ID}
	require.NoError(t, env.propertyRepo.CreateJob(job))
	orphan := &model.Property{AddressLine1: "1 Nowhere Road", Postcode: "N1 1AA"}
	require.NoError(t, env.propertyRepo.Create(orphan))
	missing := uint(9999)

	tests := []struct {
		name    string
		input   CreateCertificateInput
		wantErr error
	}{
		{
			name:  "Valid EICR inherits the property owner",
			input: CreateCertificateInput{CertificateType: model.CertificateTypeEICR, PropertyID: env.property.ID},
		},
		{
			name:    "Unknown type",
			input:   CreateCertificateInput{CertificateType: "gas_safety", PropertyID: env.property.ID},
			wantErr: workflow.ErrValidation,
		},
		{
			name:    "Unknown property",
			input:   CreateCertificateInput{CertificateType: model.CertificateTypeEIC, PropertyID: missing},
			wantErr: workflow.ErrValidation,
		},
		{
			name:    "Unknown customer",
			input:   CreateCertificateInput{CertificateType: model.CertificateTypeEIC, PropertyID: env.property.ID, CustomerID: &missing},
			wantErr: workflow.ErrValidation,
		},
		{
			name:    "Job for another property",
			input:   CreateCertificateInput{CertificateType: model.CertificateTypeEIC, PropertyID: env.property.ID, JobID: &job.ID},
			wantErr: workflow.ErrValidation,
		},
		{
			name:    "No resolvable owner",
			input:   CreateCertificateInput{CertificateType: model.CertificateTypeMinorWorks, PropertyID: orphan.ID},
			wantErr: workflow.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert, err := svc.CreateCertificate(env.staff.ID, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, cert)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.CertificateStatusDraft, cert.Status)
			assert.Equal(t, uint(1), cert.Version)
			require.NotNil(t, cert.CustomerID)
			assert.Equal(t, env.customer.ID, *cert.CustomerID)
			assert.Contains(t, cert.CertificateNo, "EICR-")
		})
	}
}

func TestCertificateService_SubmitThenApprove(t *testing.T) {
	env := setupServiceTest(t)
	renderer := &fakeRenderer{}
	svc := env.newCertificateService(renderer)
	cert := env.createDraft(t, svc, model.CertificateTypeEICR, date(2023, time.January, 10))

	submitted, err := svc.Submit(cert.ID, env.staff.ID, workflow.Expectation{Status: model.CertificateStatusDraft, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, model.CertificateStatusSubmitted, submitted.Status)
	assert.Equal(t, uint(2), submitted.Version)
	assert.Len(t, env.notificationsOf(t, env.qs.ID, model.NotificationTypeCertificateSubmitted), 1)

	approved, err := svc.Approve(cert.ID, env.qs.ID, workflow.Expectation{Status: model.CertificateStatusSubmitted})
	require.NoError(t, err)
	assert.Equal(t, model.CertificateStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, env.qs.ID, *approved.ApprovedBy)
	require.NotNil(t, approved.NextInspectionDate)
	assert.True(t, date(2028, time.January, 10).Equal(*approved.NextInspectionDate))
	assert.Empty(t, approved.PDFURL)
	assert.Equal(t, []uint{cert.ID}, renderer.calls())
	assert.Len(t, env.notificationsOf(t, env.staff.ID, model.NotificationTypeCertificateApproved), 1)

	stored, err := svc.GetCertificate(cert.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CertificateStatusApproved, stored.Status)
	assert.Equal(t, uint(3), stored.Version)

	events, err := svc.ListEvents(cert.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, model.CertificateActionCreated, events[0].Action)
	assert.Equal(t, model.CertificateActionSubmitted, events[1].Action)
	assert.Equal(t, model.CertificateActionApproved, events[2].Action)
}

func TestCertificateService_ApproveTwice(t *testing.T) {
	env := setupServiceTest(t)
	svc := env.newCertificateService(nil)
	cert := env.createDraft(t, svc, model.CertificateTypeEIC, date(2024, time.March, 1))

	_, err := svc.Submit(cert.ID, env.staff.ID, workflow.Expectation{Status: model.CertificateStatusDraft})
	require.NoError(t, err)
	_, err = svc.Approve(cert.ID, env.qs.ID, workflow.Expectation{Status: model.CertificateStatusSubmitted})
	require.NoError(t, err)

	_, err = svc.Approve(cert.ID, env.qs.ID, workflow.Expectation{Status: model.CertificateStatusApproved})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestCertificateService_Reject(t *testing.T) {
	env := setupServiceTest(t)
	svc := env.newCertificateService(nil)
	cert := env.createDraft(t, svc, model.CertificateTypeEICR, date(2024, time.March, 1))
	_, err := svc.Submit(cert.ID, env.staff.ID, workflow.Expectation{Status: model.CertificateStatusDraft})
	require.NoError(t, err)

	t.Run("Blank reason leaves the certificate untouched", func(t *testing.T) {
		_, err := svc.Reject(cert.ID, env.qs.ID, "   ", workflow.Expectation{Status: model.CertificateStatusSubmitted})
		assert.ErrorIs(t, err, workflow.ErrValidation)

		stored, err := svc.GetCertificate(cert.ID)
		require.NoError(t, err)
		assert.Equal(t, model.CertificateStatusSubmitted, stored.Status)
		assert.Equal(t, uint(2), stored.Version)
	})

	t.Run("Reason sends it back for revision", func(t *testing.T) {
		rejected, err := svc.Reject(cert.ID, env.qs.ID, "RCD test results missing", workflow.Expectation{Status: model.CertificateStatusSubmitted})
		require.NoError(t, err)
		assert.Equal(t, model.CertificateStatusRevisionRequested, rejected.Status)
		assert.Equal(t, "RCD test results missing", rejected.RejectionReason)
		assert.Len(t, env.notificationsOf(t, env.staff.ID, model.NotificationTypeCertificateRejected), 1)
	})

	t.Run("Resubmission clears the reason", func(t *testing.T) {
		resubmitted, err := svc.Submit(cert.ID, env.staff.ID, workflow.Expectation{Status: model.CertificateStatusRevisionRequested})
		require.NoError(t, err)
		assert.Equal(t, model.CertificateStatusSubmitted, resubmitted.Status)
		assert.Empty(t, resubmitted.RejectionReason)
	})
}

func TestCertificateService_StaleExpectation(t *testing.T) {
	env := setupServiceTest(t)
	svc := env.newCertificateService(nil)
	cert := env.createDraft(t, svc, model.CertificateTypeEICR, date(2024, time.March, 1))
	_, err := svc.Submit(cert.ID, env.staff.ID, workflow.Expectation{Status: model.CertificateStatusDraft})
	require.NoError(t, err)

	tests := []struct {
		name string
		exp  workflow.Expectation
	}{
		{"Status moved on", workflow.Expectation{Status: model.CertificateStatusDraft}},
		{"Version moved on", workflow.Expectation{Status: model.CertificateStatusSubmitted, Version: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(cert.ID, env.staff.ID, tt.exp)
			require.ErrorIs(t, err, workflow.ErrStaleState)

			var stale *workflow.StaleStateError
			require.True(t, errors.As(err, &stale))
			assert.Equal(t, string(model.CertificateStatusSubmitted), stale.CurrentStatus)
			assert.Equal(t, uint(2), stale.CurrentVersion)
		})
	}

	t.Run("Missing expected status", func(t *testing.T) {
		_, err := svc.Approve(cert.ID, env.qs.ID, workflow.Expectation{})
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})
}

// snapshotRepo serves one stale read, as if another writer committed right after it
type snapshotRepo struct {
	repository.CertificateRepository
	mu       sync.Mutex
	snapshot *model.Certificate
}

func (r *snapshotRepo) FindByID(id uint) (*model.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot != nil && r.snapshot.ID == id {
		cp := *r.snapshot
		r.snapshot = nil
		return &cp, nil
	}
	return r.CertificateRepository.FindByID(id)
}

func TestCertificateService_LostRaceIsStale(t *testing.T) {
	env := setupServiceTest(t)
	svc := env.newCertificateService(nil)
	cert := env.createDraft(t, svc, model.CertificateTypeEICR, date(2024, time.March, 1))
	_, err := svc.Submit(cert.ID, env.staff.ID, workflow.Expectation{Status: model.CertificateStatusDraft})
	require.NoError(t, err)

	snapshot, err := env.certRepo.FindByID(cert.ID)
	require.NoError(t, err)

	_, err = svc.Approve(cert.ID, env.qs.ID, workflow.Expectation{Status: model.CertificateStatusSubmitted, Version: 2})
	require.NoError(t, err)

	racing := NewCertificateService(&snapshotRepo{CertificateRepository: env.certRepo, snapshot: snapshot}, env.properties, nil, nil)
	_, err = racing.Approve(cert.ID, env.admin.ID, workflow.Expectation{Status: model.CertificateStatusSubmitted, Version: 2})
	require.ErrorIs(t, err, workflow.ErrStaleState)

	var stale *workflow.StaleStateError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, string(model.CertificateStatusApproved), stale.CurrentStatus)
	assert.Equal(t, uint(3), stale.CurrentVersion)

	stored, err := env.certRepo.FindByID(cert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, env.qs.ID, *stored.ApprovedBy)
}

func TestCertificateService_UpdateCertificate(t *testing.T) {
	env := setupServiceTest(t)
	svc := env.newCertificateService(nil)
	cert := env.createDraft(t, svc, model.CertificateTypeEICR, date(2024, time.March, 1))

	observations := "C2: no RCD protection on sockets"
	updated, err := svc.UpdateCertificate(cert.ID, env.staff.ID, UpdateCertificateInput{
		ExpectedStatus:  model.CertificateStatusDraft,
		ExpectedVersion: 1,
		Observations:    &observations,
		TestResults:     model.JSONText(`{"circuits":[{"ref":"1","zs":0.42}]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, observations, updated.Observations)
	assert.Equal(t, uint(2), updated.Version)

	_, err = svc.Submit(cert.ID, env.staff.ID, workflow.Expectation{Status: model.CertificateStatusDraft})
	require.NoError(t, err)

	_, err = svc.UpdateCertificate(cert.ID, env.staff.ID, UpdateCertificateInput{
		ExpectedStatus: model.CertificateStatusSubmitted,
		Observations:   &observations,
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestCertificateService_NotFound(t *testing.T) {
	env := setupServiceTest(t)
	svc := env.newCertificateService(nil)

	_, err := svc.GetCertificate(404)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = svc.Submit(404, env.staff.ID, workflow.Expectation{Status: model.CertificateStatusDraft})
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}
