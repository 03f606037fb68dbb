package service

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"idportal/internal/apperr"
	"idportal/internal/model"
	"idportal/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventSubmissionUpdated is published after every committed submission change.
const EventSubmissionUpdated = "submission.updated"

// SubmissionEvent is the payload pushed to subscribers.
type SubmissionEvent struct {
	ID      uuid.UUID    `json:"id"`
	Stage   model.Stage  `json:"stage"`
	Status  model.Status `json:"status"`
	Action  string       `json:"action"`
	Version int          `json:"version"`
}

// NotificationStatus reports the email a change triggered. A failed delivery
// never undoes the change itself.
type NotificationStatus struct {
	Type      string `json:"type"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

type TransitionResult struct {
	Submission   *model.Submission   `json:"submission"`
	Notification *NotificationStatus `json:"notification,omitempty"`
}

type CreateSubmissionRequest struct {
	Type       model.SubmissionType `json:"type"`
	Name       string               `json:"name" binding:"required"`
	Email      string               `json:"email" binding:"required,email"`
	EmployeeID string               `json:"employeeID"`
	LocationID *uuid.UUID           `json:"locationId"`
}

// UpdateSubmissionRequest edits identity fields; nil fields are left alone.
type UpdateSubmissionRequest struct {
	Name            *string    `json:"name"`
	Email           *string    `json:"email"`
	EmployeeID      *string    `json:"employeeID"`
	LocationID      *uuid.UUID `json:"locationId"`
	ExpectedVersion *int       `json:"expectedVersion"`
}

// SubmitFormRequest is the candidate's photo + form upload. Token is the
// candidate link; staff submitting a walk-in leave it empty.
type SubmitFormRequest struct {
	Token           string
	EmployeeID      string
	Photo           io.Reader
	ExpectedVersion *int
}

// EngineDeps wires the lifecycle engine to storage and its collaborators.
type EngineDeps struct {
	Submissions      repository.SubmissionRepository
	Vendors          repository.VendorRepository
	Locations        repository.LocationRepository
	Audit            repository.AuditRepository
	Tx               repository.TransactionManager
	Links            *LinkManager
	Notifier         Notifier
	Publisher        Publisher
	Photos           PhotoStore
	CandidateLinkTTL time.Duration
	Logger           *zap.Logger
}

// Engine applies lifecycle transitions. Each transition runs in one
// transaction under a per-submission lock: the row is read FOR UPDATE,
// checked against the transition table, and written back with a version
// compare-and-swap together with its audit entry.
type Engine struct {
	subs         repository.SubmissionRepository
	vendors      repository.VendorRepository
	locations    repository.LocationRepository
	audit        repository.AuditRepository
	tx           repository.TransactionManager
	links        *LinkManager
	notifier     Notifier
	pub          Publisher
	photos       PhotoStore
	candidateTTL time.Duration
	locks        *keyedMutex
	log          *zap.Logger
}

func NewEngine(d EngineDeps) *Engine {
	e := &Engine{
		subs:         d.Submissions,
		vendors:      d.Vendors,
		locations:    d.Locations,
		audit:        d.Audit,
		tx:           d.Tx,
		links:        d.Links,
		notifier:     d.Notifier,
		pub:          d.Publisher,
		photos:       d.Photos,
		candidateTTL: d.CandidateLinkTTL,
		locks:        newKeyedMutex(),
		log:          d.Logger,
	}
	if e.pub == nil {
		e.pub = nopPublisher{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.candidateTTL <= 0 {
		e.candidateTTL = 7 * 24 * time.Hour
	}
	return e
}

type transitionHook func(ctx context.Context, current, next *model.Submission) error

type transitionOpts struct {
	// beforeWrite runs inside the transaction after the transition was
	// accepted; an error aborts it.
	beforeWrite transitionHook
	// quiet suppresses the per-item email; batches send one summary instead.
	quiet bool
}

// Transition applies one action to one submission on behalf of actor.
func (e *Engine) Transition(ctx context.Context, actor model.Identity, id uuid.UUID, action Action, in TransitionInput) (*TransitionResult, error) {
	return e.run(ctx, actor, id, action, in, transitionOpts{beforeWrite: e.checkReferences(in)})
}

// Submit performs the candidate submit transition, storing the photo and
// consuming the candidate link in the same transaction. actor may be nil when
// a link token is supplied.
func (e *Engine) Submit(ctx context.Context, actor *model.Identity, id uuid.UUID, req SubmitFormRequest) (*TransitionResult, error) {
	var who model.Identity
	var link *model.MagicLink
	switch {
	case req.Token != "":
		l, err := e.links.Resolve(ctx, req.Token, model.LinkPurposeCandidate)
		if err != nil {
			return nil, err
		}
		link = l
		who = model.Identity{ID: l.SubjectID, Email: l.Email, Role: model.RoleCandidate}
	case actor != nil:
		who = *actor
	default:
		return nil, apperr.Unauthenticated("a candidate link or a staff session is required")
	}

	in := TransitionInput{
		EmployeeID:      req.EmployeeID,
		HasPhoto:        req.Photo != nil,
		ExpectedVersion: req.ExpectedVersion,
	}
	hook := func(ctx context.Context, _, next *model.Submission) error {
		if req.Photo != nil {
			url, err := e.photos.Save(ctx, req.Photo)
			if err != nil {
				return err
			}
			next.PhotoURL = url
		}
		if link != nil {
			return e.links.Consume(ctx, link.ID)
		}
		return nil
	}
	return e.run(ctx, who, id, ActionSubmit, in, transitionOpts{beforeWrite: hook})
}

// checkReferences makes sure vendor and location ids in the input exist.
func (e *Engine) checkReferences(in TransitionInput) transitionHook {
	return func(ctx context.Context, _, _ *model.Submission) error {
		if in.VendorID != nil {
			if _, err := e.vendors.FindByID(ctx, *in.VendorID); err != nil {
				return err
			}
		}
		if in.LocationID != nil {
			if _, err := e.locations.FindByID(ctx, *in.LocationID); err != nil {
				return err
			}
		}
		return nil
	}
}

func (e *Engine) run(ctx context.Context, actor model.Identity, id uuid.UUID, action Action, in TransitionInput, opts transitionOpts) (*TransitionResult, error) {
	prev, next, err := e.apply(ctx, actor, id, action, in, opts)
	if err != nil {
		e.log.Debug("transition refused",
			zap.String("submission_id", id.String()),
			zap.String("action", string(action)),
			zap.String("actor_role", string(actor.Role)),
			zap.Error(err))
		return nil, err
	}

	e.log.Info("submission transitioned",
		zap.String("submission_id", id.String()),
		zap.String("action", string(action)),
		zap.String("actor_role", string(actor.Role)),
		zap.String("from", prev.State().String()),
		zap.String("to", next.State().String()),
		zap.Int("version", next.Version))

	e.publish(next, string(action))

	res := &TransitionResult{Submission: next}
	if !opts.quiet {
		res.Notification = e.notifyTransition(ctx, action, in, next)
	}
	return res, nil
}

func (e *Engine) apply(ctx context.Context, actor model.Identity, id uuid.UUID, action Action, in TransitionInput, opts transitionOpts) (prev, next *model.Submission, err error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	err = e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := e.subs.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}

		planned, err := Plan(actor, current, action, in)
		if err != nil {
			return err
		}

		if in.ExpectedVersion != nil && *in.ExpectedVersion != current.Version {
			return apperr.Conflict(fmt.Sprintf("submission changed since version %d (now %d), reload and try again",
				*in.ExpectedVersion, current.Version))
		}

		if opts.beforeWrite != nil {
			if err := opts.beforeWrite(txCtx, current, planned); err != nil {
				return err
			}
		}

		if err := e.subs.CompareAndSwap(txCtx, planned, current.Version); err != nil {
			return err
		}

		details := map[string]interface{}{
			"action": action,
			"from":   current.State().String(),
			"to":     planned.State().String(),
		}
		if c := strings.TrimSpace(in.Comment); c != "" {
			details["comment"] = c
		}
		if planned.VendorID != nil {
			details["vendorId"] = planned.VendorID.String()
		}
		if err := recordAudit(txCtx, e.audit, actor, model.ActionTransition, id.String(), planned.Name, details); err != nil {
			return err
		}

		prev, next = current, planned
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return prev, e.reload(ctx, next), nil
}

// reload fetches sub with its relations, falling back to sub on error.
func (e *Engine) reload(ctx context.Context, sub *model.Submission) *model.Submission {
	fresh, err := e.subs.FindByID(ctx, sub.ID)
	if err != nil {
		e.log.Warn("failed to reload submission", zap.String("submission_id", sub.ID.String()), zap.Error(err))
		return sub
	}
	return fresh
}

// Create opens a new submission at CANDIDATE/PENDING. New applications get an
// invite link by email; walk-ins are completed by staff.
func (e *Engine) Create(ctx context.Context, actor model.Identity, req CreateSubmissionRequest) (*TransitionResult, error) {
	if !roleIn(actor.Role, []model.Role{model.RoleHR, model.RoleAdmin}) {
		return nil, apperr.Authorization(fmt.Sprintf("role %s may not create submissions", roleLabel(actor.Role)))
	}

	if req.Type == "" {
		req.Type = model.SubmissionTypeNewApplication
	}
	if !model.ValidSubmissionType(req.Type) {
		return nil, apperr.Validation("type", fmt.Sprintf("unknown submission type %q", req.Type))
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name", "a name is required")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	creator := actor.ID
	sub := &model.Submission{
		ID:         uuid.New(),
		Type:       req.Type,
		Name:       name,
		Email:      email,
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		LocationID: req.LocationID,
		Status:     model.StatusPending,
		Stage:      model.StageCandidate,
		Version:    1,
		CreatedBy:  &creator,
	}

	err = e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if req.LocationID != nil {
			if _, err := e.locations.FindByID(txCtx, *req.LocationID); err != nil {
				return err
			}
		}
		if err := e.subs.Create(txCtx, sub); err != nil {
			return fmt.Errorf("failed to create submission: %w", err)
		}
		return recordAudit(txCtx, e.audit, actor, model.ActionCreateSubmission, sub.ID.String(), sub.Name, map[string]interface{}{
			"type":  sub.Type,
			"email": sub.Email,
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("submission created",
		zap.String("submission_id", sub.ID.String()),
		zap.String("type", string(sub.Type)),
		zap.String("actor_role", string(actor.Role)))

	sub = e.reload(ctx, sub)
	e.publish(sub, "CREATE")

	res := &TransitionResult{Submission: sub}
	if sub.Type == model.SubmissionTypeNewApplication {
		res.Notification = e.notifyCandidate(ctx, sub, false)
	}
	return res, nil
}

// ResendInvite replaces the candidate's outstanding link while the
// submission waits on the candidate.
func (e *Engine) ResendInvite(ctx context.Context, actor model.Identity, id uuid.UUID) (*TransitionResult, error) {
	if !roleIn(actor.Role, []model.Role{model.RoleHR, model.RoleAdmin}) {
		return nil, apperr.Authorization(fmt.Sprintf("role %s may not send candidate invites", roleLabel(actor.Role)))
	}
	sub, err := e.subs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Stage != model.StageCandidate {
		return nil, apperr.InvalidTransition(fmt.Sprintf("cannot resend an invite for a submission at %s; it must be waiting on the candidate", sub.State()))
	}

	if err := recordAudit(ctx, e.audit, actor, model.ActionIssueCandidateURL, sub.ID.String(), sub.Name, map[string]interface{}{
		"email": sub.Email,
	}); err != nil {
		return nil, err
	}
	return &TransitionResult{
		Submission:   sub,
		Notification: e.notifyCandidate(ctx, sub, sub.Status == model.StatusNeedChanges),
	}, nil
}

// UpdateDetails edits identity fields of an open submission. It is not a
// transition: stage and status stay as they are.
func (e *Engine) UpdateDetails(ctx context.Context, actor model.Identity, id uuid.UUID, req UpdateSubmissionRequest) (*model.Submission, error) {
	if !roleIn(actor.Role, []model.Role{model.RoleHR, model.RoleAdmin}) {
		return nil, apperr.Authorization(fmt.Sprintf("role %s may not edit submissions", roleLabel(actor.Role)))
	}

	unlock := e.locks.Lock(id)
	defer unlock()

	var updated *model.Submission
	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := e.subs.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return apperr.InvalidTransition(fmt.Sprintf("cannot edit a submission at %s; reopen it first", current.State()))
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != current.Version {
			return apperr.Conflict(fmt.Sprintf("submission changed since version %d (now %d), reload and try again",
				*req.ExpectedVersion, current.Version))
		}

		next := *current
		changed := map[string]interface{}{}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return apperr.Validation("name", "a name is required")
			}
			next.Name = name
			changed["name"] = name
		}
		if req.Email != nil {
			email, err := normalizeEmail(*req.Email)
			if err != nil {
				return err
			}
			next.Email = email
			changed["email"] = email
		}
		if req.EmployeeID != nil {
			next.EmployeeID = strings.TrimSpace(*req.EmployeeID)
			changed["employeeID"] = next.EmployeeID
		}
		if req.LocationID != nil {
			if _, err := e.locations.FindByID(txCtx, *req.LocationID); err != nil {
				return err
			}
			loc := *req.LocationID
			next.LocationID = &loc
			changed["locationId"] = loc.String()
		}
		if len(changed) == 0 {
			return apperr.Validation("body", "nothing to update")
		}

		if err := e.subs.CompareAndSwap(txCtx, &next, current.Version); err != nil {
			return err
		}
		if err := recordAudit(txCtx, e.audit, actor, model.ActionUpdateSubmission, id.String(), next.Name, changed); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated = e.reload(ctx, updated)
	e.publish(updated, "UPDATE")
	return updated, nil
}

func (e *Engine) publish(sub *model.Submission, action string) {
	e.pub.Publish(EventSubmissionUpdated, SubmissionEvent{
		ID:      sub.ID,
		Stage:   sub.Stage,
		Status:  sub.Status,
		Action:  action,
		Version: sub.Version,
	})
}

func (e *Engine) notifyTransition(ctx context.Context, action Action, in TransitionInput, sub *model.Submission) *NotificationStatus {
	switch {
	case action == ActionRequestChanges,
		action == ActionReopen && in.TargetStage == model.StageCandidate:
		return e.notifyCandidate(ctx, sub, true)
	case action == ActionSendToVendor,
		action == ActionReopen && in.TargetStage == model.StageVendor:
		if sub.VendorID == nil {
			return nil
		}
		return e.notifyVendor(ctx, *sub.VendorID, 1)
	}
	return nil
}

// notifyCandidate issues a fresh candidate link, revoking older ones, and
// mails it.
func (e *Engine) notifyCandidate(ctx context.Context, sub *model.Submission, changes bool) *NotificationStatus {
	status := &NotificationStatus{Type: "candidate_invite", Channel: "email", Recipient: sub.Email}
	if changes {
		status.Type = "changes_requested"
	}

	if err := e.links.Revoke(ctx, model.LinkPurposeCandidate, sub.ID); err != nil {
		e.log.Warn("failed to revoke candidate links", zap.String("submission_id", sub.ID.String()), zap.Error(err))
	}

	err := func() error {
		token, err := e.links.Issue(ctx, model.LinkPurposeCandidate, model.RoleCandidate, sub.ID, sub.Email, e.candidateTTL)
		if err != nil {
			return err
		}
		link := e.links.URL(model.LinkPurposeCandidate, token)
		if changes {
			return e.notifier.ChangesRequested(ctx, sub, link)
		}
		return e.notifier.CandidateInvite(ctx, sub, link)
	}()
	return e.deliveryStatus(status, sub.ID, err)
}

func (e *Engine) notifyVendor(ctx context.Context, vendorID uuid.UUID, count int) *NotificationStatus {
	status := &NotificationStatus{Type: "vendor_assigned", Channel: "email"}
	vendor, err := e.vendors.FindByID(ctx, vendorID)
	if err == nil {
		status.Recipient = vendor.Email
		err = e.notifier.VendorAssigned(ctx, vendor, count)
	}
	return e.deliveryStatus(status, vendorID, err)
}

func (e *Engine) deliveryStatus(status *NotificationStatus, subject uuid.UUID, err error) *NotificationStatus {
	if err != nil {
		e.log.Warn("notification failed",
			zap.String("type", status.Type),
			zap.String("subject_id", subject.String()),
			zap.Error(err))
		status.Error = apperr.External("email delivery failed", err).Error()
		return status
	}
	status.Delivered = true
	return status
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("email", "a valid email address is required")
	}
	return email, nil
}
