package service

import (
	"errors"
	"fmt"
	"sort"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/app/workflow"
	"github.com/brightwire/cert-portal/internal/websocket"
	"github.com/brightwire/cert-portal/pkg/logger"
)

var (
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrNotificationForbidden = errors.New("notification belongs to another user")
)

type NotificationService interface {
	GetNotifications(userID uint, notifType *model.NotificationType, isRead *bool, page, pageSize int) ([]model.Notification, int64, int64, error)
	GetUnreadCount(userID uint) (int64, error)
	MarkAsRead(notificationID, userID uint) (*model.Notification, error)
	MarkAllAsRead(userID uint) error

	GetNotificationSettings(userID uint) (*model.NotificationSettings, error)
	UpdateNotificationSettings(userID uint, req *UpdateNotificationSettingsRequest) (*model.NotificationSettings, error)

	// Workflow triggers. Delivery failures are logged, never returned to the workflow.
	NotifyCertificateSubmitted(cert *model.Certificate)
	NotifyCertificateReviewed(cert *model.Certificate)
	NotifyPDFReady(cert *model.Certificate)
	NotifyRequestCreated(req *model.CertificateRequest)
	NotifyRequestTriaged(req *model.CertificateRequest)
	NotifyRenewalDue(buckets workflow.RenewalBuckets) int
}

type notificationService struct {
	repo     repository.NotificationRepository
	userRepo repository.UserRepository
	hub      *websocket.Hub
}

type UpdateNotificationSettingsRequest struct {
	ReviewNotification  *bool     `json:"review_notification"`
	RenewalNotification *bool     `json:"renewal_notification"`
	CertificateTypes    *[]string `json:"certificate_types"`
}

// NewNotificationService builds the service. A nil hub means notifications are only stored.
func NewNotificationService(repo repository.NotificationRepository, userRepo repository.UserRepository, hub *websocket.Hub) NotificationService {
	return &notificationService{
		repo:     repo,
		userRepo: userRepo,
		hub:      hub,
	}
}

func (s *notificationService) GetNotifications(
	userID uint,
	notifType *model.NotificationType,
	isRead *bool,
	page, pageSize int,
) ([]model.Notification, int64, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize

	notifications, total, err := s.repo.GetNotifications(userID, notifType, isRead, pageSize, offset)
	if err != nil {
		return nil, 0, 0, err
	}

	unreadCount, err := s.repo.GetUnreadCount(userID)
	if err != nil {
		return nil, 0, 0, err
	}

	return notifications, total, unreadCount, nil
}

func (s *notificationService) GetUnreadCount(userID uint) (int64, error) {
	return s.repo.GetUnreadCount(userID)
}

func (s *notificationService) MarkAsRead(notificationID, userID uint) (*model.Notification, error) {
	notification, err := s.repo.GetNotificationByID(notificationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}

	if notification.UserID != userID {
		return nil, ErrNotificationForbidden
	}

	if notification.IsRead {
		return notification, nil
	}

	if err := s.repo.MarkAsRead(notificationID); err != nil {
		return nil, err
	}

	notification.IsRead = true
	return notification, nil
}

func (s *notificationService) MarkAllAsRead(userID uint) error {
	return s.repo.MarkAllAsRead(userID)
}

func (s *notificationService) GetNotificationSettings(userID uint) (*model.NotificationSettings, error) {
	return s.repo.GetNotificationSettings(userID)
}

func (s *notificationService) UpdateNotificationSettings(
	userID uint,
	req *UpdateNotificationSettingsRequest,
) (*model.NotificationSettings, error) {
	settings, err := s.repo.GetNotificationSettings(userID)
	if err != nil {
		return nil, err
	}

	if req.ReviewNotification != nil {
		settings.ReviewNotification = *req.ReviewNotification
	}
	if req.RenewalNotification != nil {
		settings.RenewalNotification = *req.RenewalNotification
	}
	if req.CertificateTypes != nil {
		types := make([]string, 0, len(*req.CertificateTypes))
		for _, t := range *req.CertificateTypes {
			if !model.CertificateType(t).Valid() {
				return nil, fmt.Errorf("%w: unknown certificate type %q", workflow.ErrValidation, t)
			}
			types = append(types, t)
		}
		settings.CertificateTypes = types
	}

	if err := s.repo.UpdateNotificationSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// deliver stores the notification and pushes it to the user's open sessions
func (s *notificationService) deliver(notification *model.Notification) {
	if err := s.repo.CreateNotification(notification); err != nil {
		logger.Error("Failed to create notification", err, map[string]interface{}{
			"user_id": notification.UserID,
			"type":    notification.Type,
		})
		return
	}

	if s.hub == nil {
		return
	}
	unreadCount, _ := s.repo.GetUnreadCount(notification.UserID)
	wsMessage := map[string]interface{}{
		"type":         "new_notification",
		"unread_count": unreadCount,
		"notification": notification,
	}
	if err := s.hub.SendToUser(notification.UserID, wsMessage); err != nil {
		logger.Warn("Failed to push notification over websocket", map[string]interface{}{
			"user_id": notification.UserID,
			"error":   err.Error(),
		})
	}
}

func certificateLink(id uint) string {
	return fmt.Sprintf("/certificates/%d", id)
}

func (s *notificationService) NotifyCertificateSubmitted(cert *model.Certificate) {
	recipients, err := s.repo.GetReviewRecipients()
	if err != nil {
		logger.Error("Failed to load review recipients", err, map[string]interface{}{
			"certificate_id": cert.ID,
		})
		return
	}

	for _, userID := range recipients {
		s.deliver(&model.Notification{
			UserID:               userID,
			Type:                 model.NotificationTypeCertificateSubmitted,
			Title:                fmt.Sprintf("%s is ready for review", cert.CertificateNo),
			Content:              fmt.Sprintf("%s certificate submitted for review", cert.CertificateType.Label()),
			Link:                 certificateLink(cert.ID),
			RelatedCertificateID: &cert.ID,
		})
	}
}

// NotifyCertificateReviewed tells the submitter about an approval or a revision request
func (s *notificationService) NotifyCertificateReviewed(cert *model.Certificate) {
	if cert.SubmittedBy == nil {
		return
	}

	n := &model.Notification{
		UserID:               *cert.SubmittedBy,
		Link:                 certificateLink(cert.ID),
		RelatedCertificateID: &cert.ID,
	}
	switch cert.Status {
	case model.CertificateStatusApproved:
		n.Type = model.NotificationTypeCertificateApproved
		n.Title = fmt.Sprintf("%s approved", cert.CertificateNo)
		n.Content = "The certificate was approved"
	case model.CertificateStatusRevisionRequested:
		n.Type = model.NotificationTypeCertificateRejected
		n.Title = fmt.Sprintf("%s needs revision", cert.CertificateNo)
		n.Content = cert.RejectionReason
	default:
		return
	}
	s.deliver(n)
}

func (s *notificationService) NotifyPDFReady(cert *model.Certificate) {
	if cert.SubmittedBy == nil {
		return
	}
	s.deliver(&model.Notification{
		UserID:               *cert.SubmittedBy,
		Type:                 model.NotificationTypeCertificatePDFReady,
		Title:                fmt.Sprintf("%s PDF is ready", cert.CertificateNo),
		Content:              "The signed certificate can now be downloaded",
		Link:                 certificateLink(cert.ID) + "/pdf",
		RelatedCertificateID: &cert.ID,
	})
}

func (s *notificationService) NotifyRequestCreated(req *model.CertificateRequest) {
	recipients, err := s.userRepo.FindIDsByRoles(model.RoleStaff, model.RoleAdmin)
	if err != nil {
		logger.Error("Failed to load request recipients", err, map[string]interface{}{
			"request_id": req.ID,
		})
		return
	}

	for _, userID := range recipients {
		s.deliver(&model.Notification{
			UserID:           userID,
			Type:             model.NotificationTypeRequestCreated,
			Title:            fmt.Sprintf("New %s request", req.CertificateType.Label()),
			Content:          req.Notes,
			Link:             fmt.Sprintf("/certificate-requests/%d", req.ID),
			RelatedRequestID: &req.ID,
		})
	}
}

func (s *notificationService) NotifyRequestTriaged(req *model.CertificateRequest) {
	content := "Your request has been scheduled"
	if req.Status == model.RequestStatusDeclined {
		content = "Your request was declined"
		if req.DeclineReason != "" {
			content += ": " + req.DeclineReason
		}
	}
	s.deliver(&model.Notification{
		UserID:           req.RequestedBy,
		Type:             model.NotificationTypeRequestTriaged,
		Title:            fmt.Sprintf("%s request %s", req.CertificateType.Label(), req.Status),
		Content:          content,
		Link:             fmt.Sprintf("/certificate-requests/%d", req.ID),
		RelatedRequestID: &req.ID,
	})
}

type renewalTally struct {
	overdue  int
	upcoming int
}

// NotifyRenewalDue sends one summary per interested staff or admin user and returns how many were sent.
// Users who filter by certificate type only count certificates of those types.
func (s *notificationService) NotifyRenewalDue(buckets workflow.RenewalBuckets) int {
	byType := make(map[model.CertificateType]*renewalTally)
	for _, c := range buckets.Overdue {
		tallyFor(byType, c.CertificateType).overdue++
	}
	for _, c := range buckets.Upcoming {
		tallyFor(byType, c.CertificateType).upcoming++
	}

	perUser := make(map[uint]*renewalTally)
	for certType, tally := range byType {
		recipients, err := s.repo.GetRenewalRecipients(certType)
		if err != nil {
			logger.Error("Failed to load renewal recipients", err, map[string]interface{}{
				"certificate_type": certType,
			})
			continue
		}
		for _, userID := range recipients {
			t, ok := perUser[userID]
			if !ok {
				t = &renewalTally{}
				perUser[userID] = t
			}
			t.overdue += tally.overdue
			t.upcoming += tally.upcoming
		}
	}

	userIDs := make([]uint, 0, len(perUser))
	for id := range perUser {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	for _, userID := range userIDs {
		t := perUser[userID]
		s.deliver(&model.Notification{
			UserID: userID,
			Type:   model.NotificationTypeRenewalReminder,
			Title:  fmt.Sprintf("%d overdue, %d due within %d months", t.overdue, t.upcoming, buckets.HorizonMonths),
			Content: fmt.Sprintf("Renewals as of %s up to %s",
				buckets.AsOf.Format("2006-01-02"), buckets.HorizonEnd.Format("2006-01-02")),
			Link: fmt.Sprintf("/certificates/renewals?horizon_months=%d", buckets.HorizonMonths),
		})
	}
	return len(userIDs)
}

func tallyFor(m map[model.CertificateType]*renewalTally, t model.CertificateType) *renewalTally {
	tally, ok := m[t]
	if !ok {
		tally = &renewalTally{}
		m[t] = tally
	}
	return tally
}
