package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the three-valued claim carried by access tokens, plus the
// link-scoped candidate role that never appears in a bearer token.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleHR        Role = "HR"
	RoleVendor    Role = "VENDOR"
	RoleCandidate Role = "CANDIDATE"
)

// StaffRole reports whether r is stored in the users table.
func (r Role) StaffRole() bool {
	return r == RoleAdmin || r == RoleHR
}

// User is an ADMIN or HR operator. Vendors authenticate as Vendor rows.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Role      Role           `gorm:"type:varchar(20);not null;index" json:"role"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Identity is the request-scoped actor passed into every service call.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  Role      `json:"role"`
}
