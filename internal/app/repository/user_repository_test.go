package repository

import (
	"errors"
	"testing"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupUserTest(t *testing.T) (*gorm.DB, UserRepository) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)

	repo := NewUserRepository(testDB)
	return testDB, repo
}

func createTestUser(t *testing.T, repo UserRepository, email string, role model.UserRole) *model.User {
	user := &model.User{
		Email:        email,
		PasswordHash: "hashedpassword",
		Name:         "Test User",
		Phone:        "07700 900123",
		Role:         role,
	}
	require.NoError(t, repo.Create(user))
	return user
}

func TestUserRepository_Create(t *testing.T) {
	testDB, repo := setupUserTest(t)
	defer db.CleanupTestDB(testDB)

	tests := []struct {
		name    string
		user    *model.User
		wantErr bool
	}{
		{
			name: "Valid user",
			user: &model.User{
				Email:        "test@example.com",
				PasswordHash: "hashedpassword",
				Name:         "Test User",
				Role:         model.RoleStaff,
			},
			wantErr: false,
		},
		{
			name: "Duplicate email",
			user: &model.User{
				Email:        "test@example.com",
				PasswordHash: "hashedpassword",
				Name:         "Another User",
				Role:         model.RoleCustomer,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(tt.user)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.NotZero(t, tt.user.ID)
			}
		})
	}
}

func TestUserRepository_FindByID(t *testing.T) {
	testDB, repo := setupUserTest(t)
	defer db.CleanupTestDB(testDB)

	user := createTestUser(t, repo, "test@example.com", model.RoleQS)

	tests := []struct {
		name    string
		id      uint
		wantErr bool
	}{
		{name: "Existing user", id: user.ID, wantErr: false},
		{name: "Non-existing user", id: 9999, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := repo.FindByID(tt.id)

			if tt.wantErr {
				assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
				assert.Nil(t, found)
			} else {
				require.NoError(t, err)
				require.NotNil(t, found)
				assert.Equal(t, user.Email, found.Email)
				assert.Equal(t, model.RoleQS, found.Role)
			}
		})
	}
}

func TestUserRepository_FindByEmail(t *testing.T) {
	testDB, repo := setupUserTest(t)
	defer db.CleanupTestDB(testDB)

	user := createTestUser(t, repo, "test@example.com", model.RoleStaff)

	found, err := repo.FindByEmail("test@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	found, err = repo.FindByEmail("notfound@example.com")
	assert.Error(t, err)
	assert.Nil(t, found)
}

func TestUserRepository_ListAndRoles(t *testing.T) {
	testDB, repo := setupUserTest(t)
	defer db.CleanupTestDB(testDB)

	staff := createTestUser(t, repo, "staff@example.com", model.RoleStaff)
	qs := createTestUser(t, repo, "qs@example.com", model.RoleQS)
	admin := createTestUser(t, repo, "admin@example.com", model.RoleAdmin)
	createTestUser(t, repo, "customer@example.com", model.RoleCustomer)

	users, total, err := repo.List(nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, users, 4)

	role := model.RoleQS
	users, total, err = repo.List(&role, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, qs.ID, users[0].ID)

	ids, err := repo.FindIDsByRoles(model.RoleStaff, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, []uint{staff.ID, admin.ID}, ids)
}

func TestUserRepository_UpdateRole(t *testing.T) {
	testDB, repo := setupUserTest(t)
	defer db.CleanupTestDB(testDB)

	user := createTestUser(t, repo, "test@example.com", model.RoleCustomer)

	require.NoError(t, repo.UpdateRole(user.ID, model.RoleStaff))
	updated, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleStaff, updated.Role)

	err = repo.UpdateRole(9999, model.RoleStaff)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepository_Update(t *testing.T) {
	testDB, repo := setupUserTest(t)
	defer db.CleanupTestDB(testDB)

	user := createTestUser(t, repo, "test@example.com", model.RoleStaff)
	user.Name = "Updated Name"
	user.Phone = "07700 900999"
	require.NoError(t, repo.Update(user))

	updated, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated Name", updated.Name)
	assert.Equal(t, "07700 900999", updated.Phone)
}
