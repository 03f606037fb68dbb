package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionType distinguishes new-hire applications from walk-in replacements.
type SubmissionType string

const (
	SubmissionTypeNewApplication SubmissionType = "NEW_APPLICATION"
	SubmissionTypeLostAndFound   SubmissionType = "LOST_AND_FOUND"
)

// Status is the lifecycle phase of a submission.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusApproved    Status = "APPROVED"
	StatusNeedChanges Status = "NEED_CHANGES"
	StatusDone        Status = "DONE"
	StatusRejected    Status = "REJECTED"
)

// Terminal reports whether only an admin reopen can move the submission on.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusRejected
}

// Stage names the party whose action is currently required.
type Stage string

const (
	StageCandidate Stage = "CANDIDATE"
	StageHR        Stage = "HR"
	StageAdmin     Stage = "ADMIN"
	StageVendor    Stage = "VENDOR"
)

func ValidSubmissionType(t SubmissionType) bool {
	return t == SubmissionTypeNewApplication || t == SubmissionTypeLostAndFound
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusNeedChanges, StatusDone, StatusRejected:
		return true
	}
	return false
}

func ValidStage(s Stage) bool {
	switch s {
	case StageCandidate, StageHR, StageAdmin, StageVendor:
		return true
	}
	return false
}

// Submission is one candidate's ID-card application. Rows are never deleted;
// state only changes through lifecycle transitions.
type Submission struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Type       SubmissionType `gorm:"type:varchar(30);not null;index" json:"type"`
	Name       string         `gorm:"type:varchar(255);not null" json:"name"`
	Email      string         `gorm:"type:varchar(255);not null;index" json:"email"`
	EmployeeID string         `gorm:"column:employee_id;type:varchar(100)" json:"employeeID"`
	PhotoURL   string         `gorm:"type:text" json:"photoUrl"`
	LocationID *uuid.UUID     `gorm:"type:uuid;index" json:"locationId"`
	Location   *Location      `gorm:"foreignKey:LocationID" json:"location,omitempty"`
	Status     Status         `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Stage      Stage          `gorm:"type:varchar(20);not null;default:'CANDIDATE';index" json:"stage"`
	VendorID   *uuid.UUID     `gorm:"type:uuid;index" json:"vendorId"`
	Vendor     *Vendor        `gorm:"foreignKey:VendorID" json:"vendor,omitempty"`
	Comments   string         `gorm:"type:text" json:"comments"`
	Version    int            `gorm:"not null;default:1" json:"version"`
	CreatedBy  *uuid.UUID     `gorm:"type:uuid" json:"createdBy"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// State is the (stage, status) pair the transition table keys on.
type State struct {
	Stage  Stage
	Status Status
}

func (s State) String() string {
	return string(s.Stage) + "/" + string(s.Status)
}

func (s *Submission) State() State {
	return State{Stage: s.Stage, Status: s.Status}
}
