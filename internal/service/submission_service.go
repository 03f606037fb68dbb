package service

import (
	"context"
	"fmt"

	"idportal/internal/apperr"
	"idportal/internal/model"
	"idportal/internal/repository"
	"idportal/pkg/pagination"

	"github.com/google/uuid"
)

// SubmissionQuery filters a listing. Vendors only ever see their own
// assignments regardless of VendorID.
type SubmissionQuery struct {
	Search     string
	Status     model.Status
	Stage      model.Stage
	Type       model.SubmissionType
	LocationID *uuid.UUID
	VendorID   *uuid.UUID
	Page       int
	Limit      int
}

// SubmissionView is a submission plus the actions the caller may take on it.
type SubmissionView struct {
	*model.Submission
	Actions []Action `json:"actions"`
}

type SubmissionService interface {
	Create(ctx context.Context, actor model.Identity, req CreateSubmissionRequest) (*TransitionResult, error)
	Transition(ctx context.Context, actor model.Identity, id uuid.UUID, action Action, in TransitionInput) (*TransitionResult, error)
	Submit(ctx context.Context, actor *model.Identity, id uuid.UUID, req SubmitFormRequest) (*TransitionResult, error)
	ResendInvite(ctx context.Context, actor model.Identity, id uuid.UUID) (*TransitionResult, error)
	UpdateDetails(ctx context.Context, actor model.Identity, id uuid.UUID, req UpdateSubmissionRequest) (*model.Submission, error)

	Get(ctx context.Context, actor model.Identity, id uuid.UUID) (*SubmissionView, error)
	List(ctx context.Context, actor model.Identity, q SubmissionQuery) (pagination.Page[model.Submission], error)
	History(ctx context.Context, actor model.Identity, id uuid.UUID) ([]model.AuditLog, error)
	VerifyCandidateToken(ctx context.Context, token string) (*SubmissionView, error)
}

type submissionService struct {
	*Engine
}

func NewSubmissionService(engine *Engine) SubmissionService {
	return &submissionService{Engine: engine}
}

func (s *submissionService) Get(ctx context.Context, actor model.Identity, id uuid.UUID) (*SubmissionView, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canRead(actor, sub); err != nil {
		return nil, err
	}
	return &SubmissionView{Submission: sub, Actions: Allowed(actor, sub)}, nil
}

func canRead(actor model.Identity, sub *model.Submission) error {
	switch actor.Role {
	case model.RoleAdmin, model.RoleHR:
		return nil
	case model.RoleVendor:
		if sub.VendorID != nil && *sub.VendorID == actor.ID {
			return nil
		}
		return apperr.Authorization("the submission is not assigned to you")
	case model.RoleCandidate:
		if sub.ID == actor.ID {
			return nil
		}
	}
	return apperr.Authorization("you may not view this submission")
}

// List is a pure read; it is polled by the front end.
func (s *submissionService) List(ctx context.Context, actor model.Identity, q SubmissionQuery) (pagination.Page[model.Submission], error) {
	var empty pagination.Page[model.Submission]

	filter := repository.SubmissionFilter{
		Search:     q.Search,
		Status:     q.Status,
		Stage:      q.Stage,
		Type:       q.Type,
		LocationID: q.LocationID,
		VendorID:   q.VendorID,
	}

	switch actor.Role {
	case model.RoleAdmin, model.RoleHR:
	case model.RoleVendor:
		own := actor.ID
		filter.VendorID = &own
		filter.Stage = model.StageVendor
	default:
		return empty, apperr.Authorization(fmt.Sprintf("role %s may not list submissions", roleLabel(actor.Role)))
	}

	if filter.Status != "" && !model.ValidStatus(filter.Status) {
		return empty, apperr.Validation("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Stage != "" && !model.ValidStage(filter.Stage) {
		return empty, apperr.Validation("stage", fmt.Sprintf("unknown stage %q", filter.Stage))
	}
	if filter.Type != "" && !model.ValidSubmissionType(filter.Type) {
		return empty, apperr.Validation("type", fmt.Sprintf("unknown submission type %q", filter.Type))
	}

	p := pagination.Normalize(q.Page, q.Limit)
	filter.Page, filter.Limit = p.Page, p.Limit

	subs, total, err := s.subs.List(ctx, filter)
	if err != nil {
		return empty, fmt.Errorf("failed to list submissions: %w", err)
	}
	return pagination.NewPage(subs, total, p), nil
}

func (s *submissionService) History(ctx context.Context, actor model.Identity, id uuid.UUID) ([]model.AuditLog, error) {
	if !roleIn(actor.Role, []model.Role{model.RoleHR, model.RoleAdmin}) {
		return nil, apperr.Authorization(fmt.Sprintf("role %s may not view submission history", roleLabel(actor.Role)))
	}
	if _, err := s.subs.FindByID(ctx, id); err != nil {
		return nil, err
	}
	logs, err := s.audit.ListByEntity(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}

// VerifyCandidateToken returns the submission a candidate link belongs to.
// The link stays valid until the candidate submits.
func (s *submissionService) VerifyCandidateToken(ctx context.Context, token string) (*SubmissionView, error) {
	link, err := s.links.Resolve(ctx, token, model.LinkPurposeCandidate)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.FindByID(ctx, link.SubjectID)
	if err != nil {
		return nil, err
	}
	actor := model.Identity{ID: sub.ID, Email: link.Email, Role: model.RoleCandidate}
	return &SubmissionView{Submission: sub, Actions: Allowed(actor, sub)}, nil
}
