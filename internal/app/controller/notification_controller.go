package controller

import (
	"errors"
	"net/http"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/service"
	"github.com/brightwire/cert-portal/internal/app/workflow"
	apperrors "github.com/brightwire/cert-portal/internal/errors"
	"github.com/brightwire/cert-portal/internal/middleware"
	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	service service.NotificationService
}

func NewNotificationController(service service.NotificationService) *NotificationController {
	return &NotificationController{
		service: service,
	}
}

// GetNotifications lists the caller's notifications
// GET /api/v1/notifications?page=&page_size=&type=&is_read=
func (ctrl *NotificationController) GetNotifications(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	var notifType *model.NotificationType
	if typeStr := c.Query("type"); typeStr != "" {
		t := model.NotificationType(typeStr)
		notifType = &t
	}

	var isRead *bool
	switch c.Query("is_read") {
	case "true":
		t := true
		isRead = &t
	case "false":
		f := false
		isRead = &f
	}

	notifications, total, unreadCount, err := ctrl.service.GetNotifications(userID, notifType, isRead, page, pageSize)
	if err != nil {
		log.Error("Failed to list notifications", err, map[string]interface{}{
			"user_id": userID,
		})
		apperrors.InternalError(c, "Failed to load notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":         notifications,
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
		"unread_count": unreadCount,
	})
}

// GetUnreadCount returns how many notifications are unread
// GET /api/v1/notifications/unread-count
func (ctrl *NotificationController) GetUnreadCount(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	count, err := ctrl.service.GetUnreadCount(userID)
	if err != nil {
		apperrors.InternalError(c, "Failed to count unread notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"unread_count": count,
	})
}

// MarkAsRead marks one notification as read
// PUT /api/v1/notifications/:id/read
func (ctrl *NotificationController) MarkAsRead(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	notification, err := ctrl.service.MarkAsRead(id, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotificationForbidden):
			apperrors.Forbidden(c, "Not your notification")
		case errors.Is(err, service.ErrNotificationNotFound):
			apperrors.NotFound(c, apperrors.NotificationNotFound, "Notification not found")
		default:
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notification": notification,
	})
}

// MarkAllAsRead marks every notification of the caller as read
// PUT /api/v1/notifications/read-all
func (ctrl *NotificationController) MarkAllAsRead(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := ctrl.service.MarkAllAsRead(userID); err != nil {
		apperrors.InternalError(c, "Failed to mark notifications as read")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "All notifications marked as read",
	})
}

// GetNotificationSettings returns the caller's notification settings
// GET /api/v1/notifications/settings
func (ctrl *NotificationController) GetNotificationSettings(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	settings, err := ctrl.service.GetNotificationSettings(userID)
	if err != nil {
		apperrors.InternalError(c, "Failed to load notification settings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"settings": settings,
	})
}

// UpdateNotificationSettings replaces the caller's notification settings
// PUT /api/v1/notifications/settings
func (ctrl *NotificationController) UpdateNotificationSettings(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req service.UpdateNotificationSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid settings")
		return
	}

	settings, err := ctrl.service.UpdateNotificationSettings(userID, &req)
	if err != nil {
		if errors.Is(err, workflow.ErrValidation) {
			apperrors.BadRequest(c, apperrors.ValidationInvalidInput, err.Error())
			return
		}
		apperrors.InternalError(c, "Failed to update notification settings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"settings": settings,
	})
}
