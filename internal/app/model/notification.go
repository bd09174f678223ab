package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypeCertificateSubmitted NotificationType = "certificate_submitted"
	NotificationTypeCertificateApproved  NotificationType = "certificate_approved"
	NotificationTypeCertificateRejected  NotificationType = "certificate_rejected"
	NotificationTypeCertificatePDFReady  NotificationType = "certificate_pdf_ready"
	NotificationTypeRequestCreated       NotificationType = "request_created"
	NotificationTypeRequestTriaged       NotificationType = "request_triaged"
	NotificationTypeRenewalReminder      NotificationType = "renewal_reminder"
)

type Notification struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID uint  `gorm:"not null;index" json:"user_id"`
	User   *User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Type    NotificationType `gorm:"type:varchar(50);not null;index" json:"type"`
	Title   string           `gorm:"type:text;not null" json:"title"`
	Content string           `gorm:"type:text;not null" json:"content"`
	Link    string           `gorm:"type:text;not null" json:"link"`
	IsRead  bool             `gorm:"default:false;index" json:"is_read"`

	RelatedCertificateID *uint `gorm:"index" json:"related_certificate_id,omitempty"`
	RelatedRequestID     *uint `gorm:"index" json:"related_request_id,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

// NotificationSettings holds per-user delivery preferences
type NotificationSettings struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID uint  `gorm:"uniqueIndex;not null" json:"user_id"`
	User   *User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	ReviewNotification  bool           `gorm:"default:true" json:"review_notification"`
	RenewalNotification bool           `gorm:"default:true" json:"renewal_notification"`
	CertificateTypes    pq.StringArray `gorm:"type:text[];default:'{}';not null" json:"certificate_types"` // renewal reminder filter, empty = all
}

func (NotificationSettings) TableName() string {
	return "notification_settings"
}

// WantsRenewalFor reports whether reminders for t should reach this user
func (s *NotificationSettings) WantsRenewalFor(t CertificateType) bool {
	if !s.RenewalNotification {
		return false
	}
	if len(s.CertificateTypes) == 0 {
		return true
	}
	for _, ct := range s.CertificateTypes {
		if CertificateType(ct) == t {
			return true
		}
	}
	return false
}
