package model

import (
	"time"

	"gorm.io/gorm"
)

// Company is a commercial client (landlord, letting agent, facilities firm)
type Company struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	Name      string         `gorm:"not null;index" json:"name"`
	Email     string         `json:"email"`
	Phone     string         `gorm:"type:varchar(30)" json:"phone"`
	Address   string         `gorm:"type:text" json:"address"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Company) TableName() string {
	return "companies"
}

type Customer struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	Name      string         `gorm:"not null;index" json:"name"`
	Email     string         `gorm:"index" json:"email"`
	Phone     string         `gorm:"type:varchar(30)" json:"phone"`
	CompanyID *uint          `gorm:"index" json:"company_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Company *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
}

func (Customer) TableName() string {
	return "customers"
}
