package service

import (
	"sync"
	"testing"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db            *gorm.DB
	certRepo      repository.CertificateRepository
	requestRepo   repository.CertificateRequestRepository
	userRepo      repository.UserRepository
	propertyRepo  repository.PropertyRepository
	notifRepo     repository.NotificationRepository
	properties    PropertyService
	notifications NotificationService

	customer     *model.Customer
	other        *model.Customer
	property     *model.Property
	foreign      *model.Property
	staff        *model.User
	qs           *model.User
	admin        *model.User
	customerUser *model.User
}

func setupServiceTest(t *testing.T) *testEnv {
	t.Helper()

	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	env := &testEnv{
		db:           testDB,
		certRepo:     repository.NewCertificateRepository(testDB),
		requestRepo:  repository.NewCertificateRequestRepository(testDB),
		userRepo:     repository.NewUserRepository(testDB),
		propertyRepo: repository.NewPropertyRepository(testDB),
		notifRepo:    repository.NewNotificationRepository(testDB),
	}
	env.properties = NewPropertyService(env.propertyRepo)
	env.notifications = NewNotificationService(env.notifRepo, env.userRepo, nil)

	env.customer = &model.Customer{Name: "Alice Landlord", Email: "alice@example.com"}
	require.NoError(t, env.propertyRepo.CreateCustomer(env.customer))
	env.other = &model.Customer{Name: "Bob Owner", Email: "bob@example.com"}
	require.NoError(t, env.propertyRepo.CreateCustomer(env.other))

	env.property = &model.Property{AddressLine1: "12 Mill Lane", City: "Leeds", Postcode: "LS1 4AP", CustomerID: &env.customer.ID}
	require.NoError(t, env.propertyRepo.Create(env.property))
	env.foreign = &model.Property{AddressLine1: "3 Quay Street", City: "York", Postcode: "YO1 7HH", CustomerID: &env.other.ID}
	require.NoError(t, env.propertyRepo.Create(env.foreign))

	env.staff = env.createUser(t, "sparky@example.com", model.RoleStaff, nil)
	env.qs = env.createUser(t, "qs@example.com", model.RoleQS, nil)
	env.admin = env.createUser(t, "admin@example.com", model.RoleAdmin, nil)
	env.customerUser = env.createUser(t, "alice@example.com", model.RoleCustomer, &env.customer.ID)

	return env
}

func (env *testEnv) createUser(t *testing.T, email string, role model.UserRole, customerID *uint) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "x", Name: email, Role: role, CustomerID: customerID}
	require.NoError(t, env.userRepo.Create(u))
	return u
}

func (env *testEnv) newCertificateService(renderer CertificateRenderer) CertificateService {
	return NewCertificateService(env.certRepo, env.properties, env.notifications, renderer)
}

func (env *testEnv) createDraft(t *testing.T, svc CertificateService, certType model.CertificateType, inspected time.Time) *model.Certificate {
	t.Helper()
	cert, err := svc.CreateCertificate(env.staff.ID, CreateCertificateInput{
		CertificateType: certType,
		PropertyID:      env.property.ID,
		InspectionDate:  &inspected,
	})
	require.NoError(t, err)
	return cert
}

func (env *testEnv) notificationsOf(t *testing.T, userID uint, notifType model.NotificationType) []model.Notification {
	t.Helper()
	list, _, err := env.notifRepo.GetNotifications(userID, &notifType, nil, 100, 0)
	require.NoError(t, err)
	return list
}

// fakeRenderer records which certificates were handed over for rendering
type fakeRenderer struct {
	mu  sync.Mutex
	ids []uint
}

func (r *fakeRenderer) RenderAsync(cert *model.Certificate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, cert.ID)
}

func (r *fakeRenderer) calls() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.ids...)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
