package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateSubmission  = "CREATE_SUBMISSION"
	ActionUpdateSubmission  = "UPDATE_SUBMISSION"
	ActionTransition        = "TRANSITION_SUBMISSION"
	ActionCreateVendor      = "CREATE_VENDOR"
	ActionUpdateVendor      = "UPDATE_VENDOR"
	ActionDeleteVendor      = "DELETE_VENDOR"
	ActionCreateLocation    = "CREATE_LOCATION"
	ActionUpdateLocation    = "UPDATE_LOCATION"
	ActionDeleteLocation    = "DELETE_LOCATION"
	ActionCreateStaff       = "CREATE_STAFF"
	ActionDeleteStaff       = "DELETE_STAFF"
	ActionIssueCandidateURL = "ISSUE_CANDIDATE_LINK"
)

// AuditLog tracks who did what to which entity. ActorRole is kept because
// vendor and candidate actors have no users row.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActorID    *uuid.UUID `gorm:"type:uuid;index" json:"actorId"`
	ActorRole  Role       `gorm:"type:varchar(20)" json:"actorRole"`
	ActorEmail string     `gorm:"type:varchar(255)" json:"actorEmail"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entityId"`
	EntityName string     `gorm:"type:varchar(255)" json:"entityName,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
}
