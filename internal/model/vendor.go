package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vendor is a card printing/fulfilment partner. Vendors sign in with their own
// email, so Email doubles as the login identity and never changes.
type Vendor struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(255);not null;index" json:"name"`
	Email       string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PhoneNumber string         `gorm:"type:varchar(50)" json:"phoneNumber"`
	State       string         `gorm:"type:varchar(100)" json:"state"`
	City        string         `gorm:"type:varchar(100)" json:"city"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"` // soft delete keeps references on closed submissions readable
}
