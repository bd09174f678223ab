package service

import (
	"context"
	"testing"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/app/workflow"
	"github.com/brightwire/cert-portal/internal/db"
	"github.com/brightwire/cert-portal/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret"

type fakeRevoker struct {
	revoked map[string]time.Duration
}

func (r *fakeRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	r.revoked[tokenID] = ttl
	return nil
}

func setupAuthServiceTest(t *testing.T) (AuthService, repository.PropertyRepository, *fakeRevoker) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	propertyRepo := repository.NewPropertyRepository(testDB)
	revoker := &fakeRevoker{revoked: make(map[string]time.Duration)}
	authService := NewAuthService(
		repository.NewUserRepository(testDB),
		propertyRepo,
		revoker,
		testJWTSecret,
		15*time.Minute,
		7*24*time.Hour,
	)

	return authService, propertyRepo, revoker
}

func TestAuthService_Register(t *testing.T) {
	authService, propertyRepo, _ := setupAuthServiceTest(t)

	landlord := &model.Customer{Name: "Harbour Lettings", Email: "office@harbour.example.com"}
	require.NoError(t, propertyRepo.CreateCustomer(landlord))

	tests := []struct {
		name         string
		email        string
		password     string
		userName     string
		wantErr      error
		notCustomer  *uint
	}{
		{
			name:     "Valid registration creates a customer",
			email:    "test@example.com",
			password: "password123",
			userName: "Test User",
		},
		{
			name:        "Existing customer email gets its own record",
			email:       "Office@Harbour.example.com",
			password:    "password123",
			userName:    "Harbour Office",
			notCustomer: &landlord.ID,
		},
		{
			name:     "Duplicate email",
			email:    "test@example.com",
			password: "password456",
			userName: "Another User",
			wantErr:  ErrEmailAlreadyExists,
		},
		{
			name:     "Short password",
			email:    "short@example.com",
			password: "abc",
			userName: "Short",
			wantErr:  util.ErrPasswordTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, tokens, err := authService.Register(tt.email, tt.password, tt.userName, "07700 900123")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				assert.Nil(t, tokens)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, tokens)
			assert.Equal(t, model.RoleCustomer, user.Role)
			require.NotNil(t, user.CustomerID)
			if tt.notCustomer != nil {
				assert.NotEqual(t, *tt.notCustomer, *user.CustomerID)
			}
			assert.NotEqual(t, tt.password, user.PasswordHash)
			assert.NotEqual(t, tokens.AccessToken, tokens.RefreshToken)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	authService, _, _ := setupAuthServiceTest(t)

	email := "test@example.com"
	password := "password123"
	_, _, err := authService.Register(email, password, "Test User", "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"Valid login", email, password, nil},
		{"Email is case-insensitive", "TEST@example.com", password, nil},
		{"Wrong password", email, "wrongpassword", ErrInvalidCredentials},
		{"Non-existing user", "notfound@example.com", password, ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, tokens, err := authService.Login(tt.email, tt.password)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				assert.Nil(t, tokens)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, email, user.Email)

			claims, err := util.ValidateToken(tokens.AccessToken, testJWTSecret)
			require.NoError(t, err)
			assert.Equal(t, user.ID, claims.UserID)
			assert.Equal(t, string(model.RoleCustomer), claims.Role)
		})
	}
}

func TestAuthService_Logout(t *testing.T) {
	authService, _, revoker := setupAuthServiceTest(t)

	_, tokens, err := authService.Register("test@example.com", "password123", "Test User", "")
	require.NoError(t, err)
	claims, err := util.ValidateToken(tokens.AccessToken, testJWTSecret)
	require.NoError(t, err)

	require.NoError(t, authService.Logout(context.Background(), claims))

	ttl, ok := revoker.revoked[claims.ID]
	require.True(t, ok)
	assert.True(t, ttl > 0 && ttl <= 15*time.Minute)
}

func TestAuthService_SetRole(t *testing.T) {
	authService, _, _ := setupAuthServiceTest(t)

	admin, _, err := authService.Register("admin@example.com", "password123", "Admin", "")
	require.NoError(t, err)
	user, _, err := authService.Register("sparky@example.com", "password123", "Sparky", "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		actorID uint
		userID  uint
		role    model.UserRole
		wantErr error
	}{
		{"Promote to staff", admin.ID, user.ID, model.RoleStaff, nil},
		{"Unknown role", admin.ID, user.ID, "owner", ErrInvalidRole},
		{"Own role", admin.ID, admin.ID, model.RoleCustomer, ErrCannotChangeOwnRole},
		{"Unknown user", admin.ID, 9999, model.RoleQS, ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := authService.SetRole(tt.actorID, tt.userID, tt.role)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, updated.Role)
		})
	}

	staffRole := model.RoleStaff
	users, total, err := authService.ListUsers(&staffRole, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, users, 1)
	assert.Equal(t, user.ID, users[0].ID)
}

func TestAuthService_UpdateProfile(t *testing.T) {
	authService, _, _ := setupAuthServiceTest(t)

	user, _, err := authService.Register("test@example.com", "password123", "Test User", "")
	require.NoError(t, err)

	updated, err := authService.UpdateProfile(user.ID, "Renamed", "0113 496 0000")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "0113 496 0000", updated.Phone)

	_, err = authService.UpdateProfile(9999, "Nobody", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthService_Refresh(t *testing.T) {
	authService, _, _ := setupAuthServiceTest(t)

	user, tokens, err := authService.Register("test@example.com", "password123", "Test User", "")
	require.NoError(t, err)

	refreshed, err := authService.Refresh(tokens.RefreshToken)
	require.NoError(t, err)
	claims, err := util.ValidateToken(refreshed.AccessToken, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, util.TokenTypeAccess, claims.TokenType)

	_, err = authService.Refresh(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = authService.Refresh("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestAuthService_RegisterDoesNotClaimExistingCustomer(t *testing.T) {
	env := setupServiceTest(t)
	authService := NewAuthService(env.userRepo, env.propertyRepo, nil, testJWTSecret, 15*time.Minute, time.Hour)
	requests := NewCertificateRequestService(env.requestRepo, env.certRepo, env.userRepo, env.properties, env.notifications)

	// Bob is a customer on file without a login; anyone can sign up with his address.
	stranger, _, err := authService.Register("bob@example.com", "password123", "Not Bob", "")
	require.NoError(t, err)
	require.NotNil(t, stranger.CustomerID)
	assert.NotEqual(t, env.other.ID, *stranger.CustomerID)

	props, err := env.properties.ListCustomerProperties(*stranger.CustomerID)
	require.NoError(t, err)
	assert.Empty(t, props)

	_, err = env.properties.GetPropertyForUser(env.foreign.ID, stranger)
	assert.Error(t, err)

	_, err = requests.CreateRequest(stranger.ID, CreateCertificateRequestInput{
		PropertyID:      env.foreign.ID,
		CertificateType: model.CertificateTypeEICR,
	})
	assert.ErrorIs(t, err, workflow.ErrValidation)
}

func TestAuthService_LinkCustomer(t *testing.T) {
	env := setupServiceTest(t)
	authService := NewAuthService(env.userRepo, env.propertyRepo, nil, testJWTSecret, 15*time.Minute, time.Hour)

	bob, _, err := authService.Register("bob@example.com", "password123", "Bob", "")
	require.NoError(t, err)

	tests := []struct {
		name       string
		userID     uint
		customerID uint
		wantErr    error
	}{
		{"Staff account", env.staff.ID, env.other.ID, ErrNotCustomerAccount},
		{"Unknown customer", bob.ID, 9999, ErrCustomerNotFound},
		{"Unknown user", 9999, env.other.ID, ErrUserNotFound},
		{"Customer account", bob.ID, env.other.ID, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := authService.LinkCustomer(env.admin.ID, tt.userID, tt.customerID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, user.CustomerID)
			assert.Equal(t, env.other.ID, *user.CustomerID)

			prop, err := env.properties.GetPropertyForUser(env.foreign.ID, user)
			require.NoError(t, err)
			assert.Equal(t, env.foreign.ID, prop.ID)
		})
	}
}
