package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Location is an office a candidate is placed at.
type Location struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Slug                string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	PreFormattedAddress string         `gorm:"type:text" json:"preFormattedAddress"`
	Contact             string         `gorm:"type:varchar(100)" json:"contact"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}
