package model

import (
	"time"

	"github.com/google/uuid"
)

// LinkPurpose constants
const (
	LinkPurposeLogin     = "LOGIN"
	LinkPurposeCandidate = "CANDIDATE"
)

// MagicLink is a single-use emailed credential. Only the bcrypt hash of the
// secret half of the token is stored.
type MagicLink struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Purpose    string     `gorm:"type:varchar(20);not null;index" json:"purpose"`
	Role       Role       `gorm:"type:varchar(20);not null" json:"role"`
	SubjectID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"subjectId"` // user, vendor or submission id
	Email      string     `gorm:"type:varchar(255);not null" json:"email"`
	SecretHash string     `gorm:"type:varchar(255);not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expiresAt"`
	UsedAt     *time.Time `json:"usedAt"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}
