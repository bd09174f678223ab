package controller

import (
	"errors"
	"net/http"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/service"
	apperrors "github.com/brightwire/cert-portal/internal/errors"
	"github.com/brightwire/cert-portal/internal/middleware"
	"github.com/gin-gonic/gin"
)

// AdminController manages portal accounts
type AdminController struct {
	authService service.AuthService
}

func NewAdminController(authService service.AuthService) *AdminController {
	return &AdminController{authService: authService}
}

type SetRoleRequest struct {
	Role model.UserRole `json:"role" binding:"required"`
}

type LinkCustomerRequest struct {
	CustomerID uint `json:"customer_id" binding:"required"`
}

// ListUsers returns a page of user accounts
// GET /api/v1/admin/users?role=&page=&page_size=
func (ctrl *AdminController) ListUsers(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	page, pageSize := pagination(c)

	var role *model.UserRole
	if v := c.Query("role"); v != "" {
		r := model.UserRole(v)
		role = &r
	}

	users, total, err := ctrl.authService.ListUsers(role, page, pageSize)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRole) {
			apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Unknown role")
			return
		}
		log.Error("Failed to list users", err)
		apperrors.InternalError(c, "")
		return
	}

	result := make([]gin.H, 0, len(users))
	for i := range users {
		result = append(result, userResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"users": result,
		"total": total,
	})
}

// SetRole changes another user's role
// PUT /api/v1/admin/users/:id/role
func (ctrl *AdminController) SetRole(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "role is required")
		return
	}

	user, err := ctrl.authService.SetRole(actorID, id, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Unknown role")
		case errors.Is(err, service.ErrCannotChangeOwnRole):
			apperrors.Forbidden(c, "You cannot change your own role")
		case errors.Is(err, service.ErrUserNotFound):
			apperrors.NotFound(c, apperrors.ResourceNotFound, "User not found")
		default:
			log.Error("Failed to change role", err, map[string]interface{}{
				"user_id": id,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userResponse(user)})
}

// LinkCustomer attaches a customer login to an existing customer record
// PUT /api/v1/admin/users/:id/customer
func (ctrl *AdminController) LinkCustomer(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req LinkCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "customer_id is required")
		return
	}

	user, err := ctrl.authService.LinkCustomer(actorID, id, req.CustomerID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotCustomerAccount):
			apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Only customer accounts can be linked")
		case errors.Is(err, service.ErrCustomerNotFound):
			apperrors.NotFound(c, apperrors.ResourceNotFound, "Customer not found")
		case errors.Is(err, service.ErrUserNotFound):
			apperrors.NotFound(c, apperrors.ResourceNotFound, "User not found")
		default:
			log.Error("Failed to link customer", err, map[string]interface{}{
				"user_id":     id,
				"customer_id": req.CustomerID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userResponse(user)})
}
