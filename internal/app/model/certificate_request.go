package model

import (
	"time"

	"gorm.io/gorm"
)

type CertificateRequestStatus string

const (
	RequestStatusPending   CertificateRequestStatus = "pending"
	RequestStatusScheduled CertificateRequestStatus = "scheduled"
	RequestStatusFulfilled CertificateRequestStatus = "fulfilled"
	RequestStatusDeclined  CertificateRequestStatus = "declined"
)

func (s CertificateRequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusScheduled, RequestStatusFulfilled, RequestStatusDeclined:
		return true
	}
	return false
}

type TriageDecision string

const (
	TriageAccept  TriageDecision = "accept"
	TriageDecline TriageDecision = "decline"
)

// CertificateRequest is a customer asking for an inspection / certificate at one of their properties
type CertificateRequest struct {
	ID              uint                     `gorm:"primarykey" json:"id"`
	PropertyID      uint                     `gorm:"not null;index" json:"property_id"`
	CustomerID      uint                     `gorm:"not null;index" json:"customer_id"`
	RequestedBy     uint                     `gorm:"not null;index" json:"requested_by"` // customer user
	CertificateType CertificateType          `gorm:"type:varchar(20);not null" json:"certificate_type"`
	PreferredDate   *time.Time               `json:"preferred_date,omitempty"`
	Notes           string                   `gorm:"type:text" json:"notes,omitempty"`
	Status          CertificateRequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CertificateID   *uint                    `gorm:"index" json:"certificate_id,omitempty"` // set once, on fulfilment
	TriagedBy       *uint                    `json:"triaged_by,omitempty"`
	TriagedAt       *time.Time               `json:"triaged_at,omitempty"`
	DeclineReason   string                   `gorm:"type:text" json:"decline_reason,omitempty"`
	FulfilledAt     *time.Time               `json:"fulfilled_at,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
	DeletedAt       gorm.DeletedAt           `gorm:"index" json:"-"`

	Property    *Property    `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
	Certificate *Certificate `gorm:"foreignKey:CertificateID" json:"certificate,omitempty"`
}

func (CertificateRequest) TableName() string {
	return "certificate_requests"
}
