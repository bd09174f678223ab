package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/app/service"
	"github.com/brightwire/cert-portal/internal/db"
	"github.com/brightwire/cert-portal/internal/middleware"
	"github.com/brightwire/cert-portal/pkg/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

type controllerEnv struct {
	db     *gorm.DB
	router *gin.Engine

	authService         service.AuthService
	certificateService  service.CertificateService
	requestService      service.CertificateRequestService
	notificationService service.NotificationService

	customer     *model.Customer
	other        *model.Customer
	property     *model.Property
	foreign      *model.Property
	staff        *model.User
	qs           *model.User
	admin        *model.User
	customerUser *model.User
}

// setupControllerTest wires the real services over an in-memory database
// behind the same routes and role guards the server uses.
func setupControllerTest(t *testing.T) *controllerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	userRepo := repository.NewUserRepository(testDB)
	propertyRepo := repository.NewPropertyRepository(testDB)
	certRepo := repository.NewCertificateRepository(testDB)
	requestRepo := repository.NewCertificateRequestRepository(testDB)
	notifRepo := repository.NewNotificationRepository(testDB)

	env := &controllerEnv{db: testDB}
	properties := service.NewPropertyService(propertyRepo)
	env.notificationService = service.NewNotificationService(notifRepo, userRepo, nil)
	env.authService = service.NewAuthService(userRepo, propertyRepo, nil, testSecret, 15*time.Minute, 7*24*time.Hour)
	env.certificateService = service.NewCertificateService(certRepo, properties, env.notificationService, nil)
	env.requestService = service.NewCertificateRequestService(requestRepo, certRepo, userRepo, properties, env.notificationService)
	renewals := service.NewRenewalService(certRepo, env.notificationService, 3, nil)
	pdfs := service.NewPDFService(certRepo, nil, env.notificationService, service.PDFConfig{})

	env.customer = &model.Customer{Name: "Alice Landlord", Email: "alice@example.com"}
	require.NoError(t, propertyRepo.CreateCustomer(env.customer))
	env.other = &model.Customer{Name: "Bob Owner", Email: "bob@example.com"}
	require.NoError(t, propertyRepo.CreateCustomer(env.other))
	env.property = &model.Property{AddressLine1: "12 Mill Lane", City: "Leeds", Postcode: "LS1 4AP", CustomerID: &env.customer.ID}
	require.NoError(t, propertyRepo.Create(env.property))
	env.foreign = &model.Property{AddressLine1: "3 Quay Street", City: "York", Postcode: "YO1 7HH", CustomerID: &env.other.ID}
	require.NoError(t, propertyRepo.Create(env.foreign))

	createUser := func(email string, role model.UserRole, customerID *uint) *model.User {
		u := &model.User{Email: email, PasswordHash: "x", Name: email, Role: role, CustomerID: customerID}
		require.NoError(t, userRepo.Create(u))
		return u
	}
	env.staff = createUser("sparky@example.com", model.RoleStaff, nil)
	env.qs = createUser("qs@example.com", model.RoleQS, nil)
	env.admin = createUser("admin@example.com", model.RoleAdmin, nil)
	env.customerUser = createUser("alice@example.com", model.RoleCustomer, &env.customer.ID)

	authCtrl := NewAuthController(env.authService)
	certCtrl := NewCertificateController(env.certificateService, pdfs)
	renewalCtrl := NewRenewalController(renewals)
	requestCtrl := NewCertificateRequestController(env.requestService)
	propertyCtrl := NewPropertyController(properties, env.authService)
	adminCtrl := NewAdminController(env.authService)
	notifCtrl := NewNotificationController(env.notificationService)
	authMiddleware := middleware.NewAuthMiddleware(testSecret, nil)

	staff := authMiddleware.RequireRole(model.RoleStaff, model.RoleAdmin)
	office := authMiddleware.RequireRole(model.RoleStaff, model.RoleQS, model.RoleAdmin)
	reviewers := authMiddleware.RequireRole(model.RoleQS, model.RoleAdmin)

	router := gin.New()
	router.POST("/auth/register", authCtrl.Register)
	router.POST("/auth/login", authCtrl.Login)
	router.POST("/auth/refresh", authCtrl.Refresh)

	api := router.Group("")
	api.Use(authMiddleware.Authenticate())
	api.POST("/auth/logout", authCtrl.Logout)
	api.GET("/auth/me", authCtrl.GetMe)
	api.PUT("/auth/me", authCtrl.UpdateMe)

	api.POST("/certificates", staff, certCtrl.CreateCertificate)
	api.GET("/certificates", office, certCtrl.ListCertificates)
	api.GET("/certificates/renewals", office, renewalCtrl.ListExpiring)
	api.GET("/certificates/renewals/export", office, renewalCtrl.Export)
	api.GET("/certificates/:id", office, certCtrl.GetCertificate)
	api.PUT("/certificates/:id", staff, certCtrl.UpdateCertificate)
	api.POST("/certificates/:id/submit", staff, certCtrl.Submit)
	api.POST("/certificates/:id/approve", reviewers, certCtrl.Approve)
	api.POST("/certificates/:id/reject", reviewers, certCtrl.Reject)
	api.GET("/certificates/:id/events", office, certCtrl.ListEvents)
	api.GET("/certificates/:id/pdf", office, certCtrl.GetPDF)

	api.POST("/certificate-requests", authMiddleware.RequireRole(model.RoleCustomer), requestCtrl.CreateRequest)
	api.GET("/certificate-requests", requestCtrl.ListRequests)
	api.GET("/certificate-requests/:id", requestCtrl.GetRequest)
	api.POST("/certificate-requests/:id/triage", staff, requestCtrl.Triage)
	api.POST("/certificate-requests/:id/fulfill", staff, requestCtrl.Fulfill)

	api.GET("/properties", propertyCtrl.ListMyProperties)
	api.GET("/properties/:id", propertyCtrl.GetProperty)

	api.GET("/admin/users", authMiddleware.RequireRole(model.RoleAdmin), adminCtrl.ListUsers)
	api.PUT("/admin/users/:id/role", authMiddleware.RequireRole(model.RoleAdmin), adminCtrl.SetRole)
	api.PUT("/admin/users/:id/customer", staff, adminCtrl.LinkCustomer)

	api.GET("/notifications", notifCtrl.GetNotifications)
	api.GET("/notifications/unread-count", notifCtrl.GetUnreadCount)
	api.PUT("/notifications/read-all", notifCtrl.MarkAllAsRead)
	api.PUT("/notifications/:id/read", notifCtrl.MarkAsRead)
	api.GET("/notifications/settings", notifCtrl.GetNotificationSettings)
	api.PUT("/notifications/settings", notifCtrl.UpdateNotificationSettings)

	env.router = router
	return env
}

func tokenFor(t *testing.T, user *model.User) string {
	t.Helper()
	tokens, err := util.GenerateTokenPair(user.ID, user.Email, string(user.Role), testSecret, 15*time.Minute, time.Hour)
	require.NoError(t, err)
	return tokens.AccessToken
}

// do sends body as JSON; a nil user sends no Authorization header
func (env *controllerEnv) do(t *testing.T, method, path string, user *model.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, user))
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

func (env *controllerEnv) createDraft(t *testing.T, inspected time.Time) *model.Certificate {
	t.Helper()
	cert, err := env.certificateService.CreateCertificate(env.staff.ID, service.CreateCertificateInput{
		CertificateType: model.CertificateTypeEICR,
		PropertyID:      env.property.ID,
		InspectionDate:  &inspected,
	})
	require.NoError(t, err)
	return cert
}

func pathOf(format string, id uint) string {
	return fmt.Sprintf(format, id)
}
