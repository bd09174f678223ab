package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type CertificateType string

const (
	CertificateTypeEICR       CertificateType = "eicr"        // Electrical Installation Condition Report
	CertificateTypeEIC        CertificateType = "eic"         // Electrical Installation Certificate
	CertificateTypeMinorWorks CertificateType = "minor_works" // Minor Electrical Installation Works
)

// Valid reports whether t is a known certificate type
func (t CertificateType) Valid() bool {
	switch t {
	case CertificateTypeEICR, CertificateTypeEIC, CertificateTypeMinorWorks:
		return true
	}
	return false
}

// Prefix is the human-readable prefix used in certificate numbers
func (t CertificateType) Prefix() string {
	switch t {
	case CertificateTypeEICR:
		return "EICR"
	case CertificateTypeEIC:
		return "EIC"
	case CertificateTypeMinorWorks:
		return "MW"
	}
	return "CERT"
}

// Label is the name printed on reports and exports
func (t CertificateType) Label() string {
	switch t {
	case CertificateTypeEICR:
		return "EICR"
	case CertificateTypeEIC:
		return "EIC"
	case CertificateTypeMinorWorks:
		return "Minor Works"
	}
	return string(t)
}

type CertificateStatus string

const (
	CertificateStatusDraft             CertificateStatus = "draft"
	CertificateStatusSubmitted         CertificateStatus = "submitted"
	CertificateStatusApproved          CertificateStatus = "approved"
	CertificateStatusRevisionRequested CertificateStatus = "revision_requested"
)

func (s CertificateStatus) Valid() bool {
	switch s {
	case CertificateStatusDraft, CertificateStatusSubmitted, CertificateStatusApproved, CertificateStatusRevisionRequested:
		return true
	}
	return false
}

// JSONText stores an opaque JSON document in a text column
type JSONText []byte

func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSONText) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONText(v)
	default:
		return errors.New("failed to scan JSONText")
	}
	return nil
}

func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONText) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*j = nil
		return nil
	}
	if !json.Valid(data) {
		return errors.New("invalid JSON payload")
	}
	*j = append((*j)[:0], data...)
	return nil
}

type Certificate struct {
	ID              uint            `gorm:"primarykey" json:"id"`
	CertificateNo   string          `gorm:"uniqueIndex;not null;type:varchar(64)" json:"certificate_no"`
	CertificateType CertificateType `gorm:"type:varchar(20);not null;index" json:"certificate_type"`

	// Linkage
	PropertyID uint  `gorm:"not null;index" json:"property_id"`
	JobID      *uint `gorm:"index" json:"job_id,omitempty"`
	CompanyID  *uint `gorm:"index" json:"company_id,omitempty"`
	CustomerID *uint `gorm:"index" json:"customer_id,omitempty"`

	// Workflow
	Status          CertificateStatus `gorm:"type:varchar(30);not null;default:'draft';index" json:"status"`
	Version         uint              `gorm:"not null;default:1" json:"version"` // bumped on every transition
	CreatedBy       uint              `gorm:"not null" json:"created_by"`
	SubmittedAt     *time.Time        `json:"submitted_at,omitempty"`
	SubmittedBy     *uint             `json:"submitted_by,omitempty"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
	ApprovedBy      *uint             `json:"approved_by,omitempty"`
	RejectionReason string            `gorm:"type:text" json:"rejection_reason,omitempty"`

	// Inspection
	InspectionDate     *time.Time `json:"inspection_date,omitempty"`
	NextInspectionDate *time.Time `gorm:"index" json:"next_inspection_date,omitempty"`
	TestResults        JSONText   `gorm:"type:text" json:"test_results,omitempty"` // schedule of test results, validated upstream
	Observations       string     `gorm:"type:text" json:"observations,omitempty"`

	PDFURL string `gorm:"type:text" json:"pdf_url,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Property *Property `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
	Job      *Job      `gorm:"foreignKey:JobID" json:"job,omitempty"`
	Company  *Company  `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	Customer *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
}

func (Certificate) TableName() string {
	return "certificates"
}

// FormatCertificateNo builds the public number from the type and row id, e.g. EICR-000042
func FormatCertificateNo(t CertificateType, id uint) string {
	return fmt.Sprintf("%s-%06d", t.Prefix(), id)
}

// CertificateEvent is one entry in a certificate's audit trail
type CertificateEvent struct {
	ID            uint              `gorm:"primarykey" json:"id"`
	CertificateID uint              `gorm:"not null;index" json:"certificate_id"`
	Action        string            `gorm:"type:varchar(20);not null" json:"action"`
	FromStatus    CertificateStatus `gorm:"type:varchar(30)" json:"from_status,omitempty"`
	ToStatus      CertificateStatus `gorm:"type:varchar(30)" json:"to_status,omitempty"`
	ActorID       *uint             `json:"actor_id,omitempty"` // nil for system actions (pdf rendering)
	Details       string            `gorm:"type:text" json:"details,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (CertificateEvent) TableName() string {
	return "certificate_events"
}

const (
	CertificateActionCreated   = "created"
	CertificateActionUpdated   = "updated"
	CertificateActionSubmitted = "submitted"
	CertificateActionApproved  = "approved"
	CertificateActionRejected  = "rejected"
	CertificateActionPDFReady  = "pdf_ready"
)
