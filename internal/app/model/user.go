package model

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleAdmin    UserRole = "admin"    // office administrator, every permission
	RoleStaff    UserRole = "staff"    // electrician / engineer filling in certificates
	RoleQS       UserRole = "qs"       // quality supervisor reviewing submissions
	RoleCustomer UserRole = "customer" // customer portal login
)

// Valid reports whether r is one of the portal roles
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleQS, RoleCustomer:
		return true
	}
	return false
}

type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Name         string         `gorm:"not null" json:"name"`
	Phone        string         `json:"phone"`
	Role         UserRole       `gorm:"type:varchar(20);default:'customer';index" json:"role"`
	CustomerID   *uint          `gorm:"index" json:"customer_id,omitempty"` // set for customer logins
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Customer *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
}

func (User) TableName() string {
	return "users"
}
