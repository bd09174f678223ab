package repository

import (
	"errors"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/pkg/logger"
	"gorm.io/gorm"
)

// NotificationRepository persists notifications and per-user delivery settings
type NotificationRepository interface {
	CreateNotification(notification *model.Notification) error
	GetNotificationByID(id uint) (*model.Notification, error)
	GetNotifications(userID uint, notifType *model.NotificationType, isRead *bool, limit, offset int) ([]model.Notification, int64, error)
	GetUnreadCount(userID uint) (int64, error)
	MarkAsRead(id uint) error
	MarkAllAsRead(userID uint) error

	GetNotificationSettings(userID uint) (*model.NotificationSettings, error)
	UpdateNotificationSettings(settings *model.NotificationSettings) error

	// Recipient lookups
	GetReviewRecipients() ([]uint, error)
	GetRenewalRecipients(certType model.CertificateType) ([]uint, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) CreateNotification(notification *model.Notification) error {
	return r.db.Omit("User").Create(notification).Error
}

func (r *notificationRepository) GetNotificationByID(id uint) (*model.Notification, error) {
	var notification model.Notification
	if err := r.db.First(&notification, id).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *notificationRepository) GetNotifications(
	userID uint,
	notifType *model.NotificationType,
	isRead *bool,
	limit, offset int,
) ([]model.Notification, int64, error) {
	var notifications []model.Notification
	var total int64

	query := r.db.Model(&model.Notification{}).Where("user_id = ?", userID)
	if notifType != nil {
		query = query.Where("type = ?", *notifType)
	}
	if isRead != nil {
		query = query.Where("is_read = ?", *isRead)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&notifications).Error; err != nil {
		return nil, 0, err
	}

	return notifications, total, nil
}

func (r *notificationRepository) GetUnreadCount(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) MarkAsRead(id uint) error {
	return r.db.Model(&model.Notification{}).
		Where("id = ?", id).
		Update("is_read", true).Error
}

func (r *notificationRepository) MarkAllAsRead(userID uint) error {
	return r.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}

// GetNotificationSettings returns the stored settings, creating the defaults on first access
func (r *notificationRepository) GetNotificationSettings(userID uint) (*model.NotificationSettings, error) {
	var settings model.NotificationSettings
	err := r.db.Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = defaultSettings(userID)
		if err := r.db.Omit("User").Create(&settings).Error; err != nil {
			return nil, err
		}
		return &settings, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *notificationRepository) UpdateNotificationSettings(settings *model.NotificationSettings) error {
	return r.db.Omit("User").Save(settings).Error
}

func defaultSettings(userID uint) model.NotificationSettings {
	return model.NotificationSettings{
		UserID:              userID,
		ReviewNotification:  true,
		RenewalNotification: true,
		CertificateTypes:    []string{},
	}
}

// settingsFor loads the settings of userIDs; users without a row get the defaults.
func (r *notificationRepository) settingsFor(userIDs []uint) ([]model.NotificationSettings, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var stored []model.NotificationSettings
	if err := r.db.Where("user_id IN ?", userIDs).Find(&stored).Error; err != nil {
		return nil, err
	}
	byUser := make(map[uint]model.NotificationSettings, len(stored))
	for _, s := range stored {
		byUser[s.UserID] = s
	}

	result := make([]model.NotificationSettings, 0, len(userIDs))
	for _, id := range userIDs {
		s, ok := byUser[id]
		if !ok {
			s = defaultSettings(id)
		}
		result = append(result, s)
	}
	return result, nil
}

func (r *notificationRepository) usersWithRoles(roles ...model.UserRole) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&model.User{}).Where("role IN ?", roles).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

// GetReviewRecipients returns the QS reviewers who want to hear about submissions
func (r *notificationRepository) GetReviewRecipients() ([]uint, error) {
	ids, err := r.usersWithRoles(model.RoleQS)
	if err != nil {
		logger.Error("Failed to load reviewers", err)
		return nil, err
	}
	settings, err := r.settingsFor(ids)
	if err != nil {
		return nil, err
	}

	recipients := make([]uint, 0, len(settings))
	for _, s := range settings {
		if s.ReviewNotification {
			recipients = append(recipients, s.UserID)
		}
	}
	return recipients, nil
}

// GetRenewalRecipients returns the staff and admins whose settings include certType
func (r *notificationRepository) GetRenewalRecipients(certType model.CertificateType) ([]uint, error) {
	ids, err := r.usersWithRoles(model.RoleStaff, model.RoleAdmin)
	if err != nil {
		logger.Error("Failed to load renewal recipients", err)
		return nil, err
	}
	settings, err := r.settingsFor(ids)
	if err != nil {
		return nil, err
	}

	recipients := make([]uint, 0, len(settings))
	for i := range settings {
		if settings[i].WantsRenewalFor(certType) {
			recipients = append(recipients, settings[i].UserID)
		}
	}
	return recipients, nil
}
