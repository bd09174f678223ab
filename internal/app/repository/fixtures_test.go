package repository

import (
	"testing"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixtures struct {
	customer *model.Customer
	other    *model.Customer
	property *model.Property
	foreign  *model.Property
	staff    *model.User
	qs       *model.User
}

func seedFixtures(t *testing.T, testDB *gorm.DB) fixtures {
	t.Helper()

	props := NewPropertyRepository(testDB)
	users := NewUserRepository(testDB)

	customer := &model.Customer{Name: "Alice Landlord", Email: "alice@example.com"}
	require.NoError(t, props.CreateCustomer(customer))
	other := &model.Customer{Name: "Bob Owner", Email: "bob@example.com"}
	require.NoError(t, props.CreateCustomer(other))

	property := &model.Property{AddressLine1: "12 Mill Lane", City: "Leeds", Postcode: "LS1 4AP", CustomerID: &customer.ID}
	require.NoError(t, props.Create(property))
	foreign := &model.Property{AddressLine1: "3 Quay Street", City: "York", Postcode: "YO1 7HH", CustomerID: &other.ID}
	require.NoError(t, props.Create(foreign))

	staff := &model.User{Email: "sparky@example.com", PasswordHash: "x", Name: "Sam Staff", Role: model.RoleStaff}
	require.NoError(t, users.Create(staff))
	qs := &model.User{Email: "qs@example.com", PasswordHash: "x", Name: "Quinn Supervisor", Role: model.RoleQS}
	require.NoError(t, users.Create(qs))

	return fixtures{customer: customer, other: other, property: property, foreign: foreign, staff: staff, qs: qs}
}

func newDraftCertificate(f fixtures, t model.CertificateType) *model.Certificate {
	inspected := time.Date(2023, time.January, 10, 0, 0, 0, 0, time.UTC)
	return &model.Certificate{
		CertificateType: t,
		PropertyID:      f.property.ID,
		CustomerID:      f.property.CustomerID,
		Status:          model.CertificateStatusDraft,
		Version:         1,
		CreatedBy:       f.staff.ID,
		InspectionDate:  &inspected,
	}
}
