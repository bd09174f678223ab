package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type InstallationType string

const (
	InstallationDomestic   InstallationType = "domestic"
	InstallationCommercial InstallationType = "commercial"
)

type Property struct {
	ID               uint             `gorm:"primarykey" json:"id"`
	AddressLine1     string           `gorm:"not null" json:"address_line1"`
	AddressLine2     string           `json:"address_line2"`
	City             string           `gorm:"index" json:"city"`
	Postcode         string           `gorm:"type:varchar(10);index" json:"postcode"`
	InstallationType InstallationType `gorm:"type:varchar(20);default:'domestic'" json:"installation_type"`
	CustomerID       *uint            `gorm:"index" json:"customer_id,omitempty"` // owning customer
	CompanyID        *uint            `gorm:"index" json:"company_id,omitempty"`  // managing company
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	DeletedAt        gorm.DeletedAt   `gorm:"index" json:"-"`

	Customer *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Company  *Company  `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
}

func (Property) TableName() string {
	return "properties"
}

// DisplayAddress joins the non-empty address parts on one line
func (p *Property) DisplayAddress() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{p.AddressLine1, p.AddressLine2, p.City, p.Postcode} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Job is the work order a certificate may be raised against
type Job struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	Reference   string         `gorm:"uniqueIndex;not null" json:"reference"`
	PropertyID  uint           `gorm:"not null;index" json:"property_id"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"type:varchar(20);default:'open'" json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Property *Property `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
}

func (Job) TableName() string {
	return "jobs"
}
