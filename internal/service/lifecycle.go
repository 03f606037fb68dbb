package service

import (
	"fmt"
	"strings"

	"idportal/internal/apperr"
	"idportal/internal/model"

	"github.com/google/uuid"
)

// Action names a lifecycle transition.
type Action string

const (
	ActionSubmit         Action = "SUBMIT"
	ActionRequestChanges Action = "REQUEST_CHANGES"
	ActionApprove        Action = "APPROVE"
	ActionSendToVendor   Action = "SEND_TO_VENDOR"
	ActionMarkCompleted  Action = "MARK_COMPLETED"
	ActionReject         Action = "REJECT"
	ActionReopen         Action = "REOPEN"
)

// TransitionInput carries the optional inputs a transition may require.
type TransitionInput struct {
	Comment     string      `json:"comment"`
	VendorID    *uuid.UUID  `json:"vendorId"`
	LocationID  *uuid.UUID  `json:"locationId"`
	TargetStage model.Stage `json:"stage"`
	EmployeeID  string      `json:"employeeID"`
	// HasPhoto marks that a new photo accompanies a submit request.
	HasPhoto bool `json:"-"`
	// ExpectedVersion, when set, must equal the stored version.
	ExpectedVersion *int `json:"expectedVersion"`
}

type rule struct {
	roles []model.Role
	// owns checks actor-specific access after the role check passed.
	owns func(actor model.Identity, sub *model.Submission) error
	// from reports whether the current state allows the transition.
	from     func(st model.State) bool
	fromDesc string
	inputs   func(sub *model.Submission, in TransitionInput) error
	apply    func(sub *model.Submission, in TransitionInput)
}

var transitions = map[Action]rule{
	ActionSubmit: {
		roles: []model.Role{model.RoleCandidate, model.RoleHR, model.RoleAdmin},
		owns: func(actor model.Identity, sub *model.Submission) error {
			if actor.Role == model.RoleCandidate {
				if actor.ID != sub.ID {
					return apperr.Authorization("this link does not belong to the submission")
				}
				return nil
			}
			if sub.Type != model.SubmissionTypeLostAndFound {
				return apperr.Authorization("only the candidate can submit a new application")
			}
			return nil
		},
		from: func(st model.State) bool {
			return st.Stage == model.StageCandidate &&
				(st.Status == model.StatusPending || st.Status == model.StatusNeedChanges)
		},
		fromDesc: "waiting on the candidate",
		inputs: func(sub *model.Submission, in TransitionInput) error {
			if !in.HasPhoto && sub.PhotoURL == "" {
				return apperr.Validation("profileImage", "a photo is required")
			}
			return nil
		},
		apply: func(sub *model.Submission, in TransitionInput) {
			sub.Stage = model.StageHR
			sub.Status = model.StatusPending
			sub.Comments = ""
			if e := strings.TrimSpace(in.EmployeeID); e != "" {
				sub.EmployeeID = e
			}
		},
	},
	ActionRequestChanges: {
		roles: []model.Role{model.RoleHR, model.RoleAdmin},
		from: func(st model.State) bool {
			return st.Status == model.StatusPending &&
				(st.Stage == model.StageCandidate || st.Stage == model.StageHR)
		},
		fromDesc: "pending at the candidate or HR stage",
		inputs:   requireComment,
		apply: func(sub *model.Submission, in TransitionInput) {
			sub.Stage = model.StageCandidate
			sub.Status = model.StatusNeedChanges
			sub.Comments = strings.TrimSpace(in.Comment)
			sub.VendorID = nil
		},
	},
	ActionApprove: {
		roles: []model.Role{model.RoleHR, model.RoleAdmin},
		from: func(st model.State) bool {
			return st.Stage == model.StageHR && st.Status == model.StatusPending
		},
		fromDesc: "pending HR review",
		inputs: func(sub *model.Submission, in TransitionInput) error {
			if sub.PhotoURL == "" {
				return apperr.Validation("photoUrl", "the submission has no photo")
			}
			if sub.LocationID == nil && in.LocationID == nil {
				return apperr.Validation("locationId", "a location is required before approval")
			}
			return nil
		},
		apply: func(sub *model.Submission, in TransitionInput) {
			sub.Stage = model.StageAdmin
			sub.Status = model.StatusApproved
			if in.LocationID != nil {
				sub.LocationID = in.LocationID
			}
		},
	},
	ActionSendToVendor: {
		roles: []model.Role{model.RoleAdmin},
		from: func(st model.State) bool {
			return st.Stage == model.StageAdmin && st.Status == model.StatusApproved
		},
		fromDesc: "approved and waiting on an admin",
		inputs:   requireVendor,
		apply: func(sub *model.Submission, in TransitionInput) {
			sub.Stage = model.StageVendor
			sub.Status = model.StatusApproved
			v := *in.VendorID
			sub.VendorID = &v
		},
	},
	ActionMarkCompleted: {
		roles: []model.Role{model.RoleVendor},
		owns: func(actor model.Identity, sub *model.Submission) error {
			if sub.VendorID == nil || *sub.VendorID != actor.ID {
				return apperr.Authorization("the submission is not assigned to you")
			}
			return nil
		},
		from: func(st model.State) bool {
			return st.Stage == model.StageVendor && st.Status == model.StatusApproved
		},
		fromDesc: "assigned to a vendor and not yet completed",
		apply: func(sub *model.Submission, _ TransitionInput) {
			sub.Status = model.StatusDone
		},
	},
	ActionReject: {
		roles: []model.Role{model.RoleAdmin},
		from: func(st model.State) bool {
			return (st.Stage == model.StageAdmin || st.Stage == model.StageVendor) && !st.Status.Terminal()
		},
		fromDesc: "open at the admin or vendor stage",
		apply: func(sub *model.Submission, in TransitionInput) {
			sub.Status = model.StatusRejected
			if c := strings.TrimSpace(in.Comment); c != "" {
				sub.Comments = c
			}
		},
	},
	ActionReopen: {
		roles: []model.Role{model.RoleAdmin},
		from: func(st model.State) bool {
			return st.Status.Terminal()
		},
		fromDesc: "done or rejected",
		inputs: func(sub *model.Submission, in TransitionInput) error {
			switch in.TargetStage {
			case model.StageHR:
				return nil
			case model.StageCandidate:
				return requireComment(sub, in)
			case model.StageVendor:
				return requireVendor(sub, in)
			case "":
				return apperr.Validation("stage", "a target stage is required")
			default:
				return apperr.Validation("stage", fmt.Sprintf("cannot reopen to stage %s", in.TargetStage))
			}
		},
		apply: func(sub *model.Submission, in TransitionInput) {
			switch in.TargetStage {
			case model.StageHR:
				sub.Stage = model.StageHR
				sub.Status = model.StatusPending
				sub.VendorID = nil
			case model.StageCandidate:
				sub.Stage = model.StageCandidate
				sub.Status = model.StatusNeedChanges
				sub.Comments = strings.TrimSpace(in.Comment)
				sub.VendorID = nil
			case model.StageVendor:
				sub.Stage = model.StageVendor
				sub.Status = model.StatusApproved
				v := *in.VendorID
				sub.VendorID = &v
			}
		},
	},
}

func requireComment(_ *model.Submission, in TransitionInput) error {
	if strings.TrimSpace(in.Comment) == "" {
		return apperr.Validation("comment", "a comment is required")
	}
	return nil
}

func requireVendor(_ *model.Submission, in TransitionInput) error {
	if in.VendorID == nil || *in.VendorID == uuid.Nil {
		return apperr.Validation("vendorId", "a vendor must be selected")
	}
	return nil
}

// Plan decides a transition without side effects. It checks the actor's role,
// then the source state, then the inputs, and returns the submission as it
// would look afterwards. sub is not modified.
func Plan(actor model.Identity, sub *model.Submission, action Action, in TransitionInput) (*model.Submission, error) {
	r, ok := transitions[action]
	if !ok {
		return nil, apperr.Validation("action", fmt.Sprintf("unknown action %q", action))
	}

	if !roleIn(actor.Role, r.roles) {
		return nil, apperr.Authorization(fmt.Sprintf("role %s may not %s a submission", roleLabel(actor.Role), actionVerb(action)))
	}
	if r.owns != nil {
		if err := r.owns(actor, sub); err != nil {
			return nil, err
		}
	}

	if !r.from(sub.State()) {
		return nil, apperr.InvalidTransition(fmt.Sprintf("cannot %s a submission at %s; it must be %s",
			actionVerb(action), sub.State(), r.fromDesc))
	}

	if r.inputs != nil {
		if err := r.inputs(sub, in); err != nil {
			return nil, err
		}
	}

	next := *sub
	if sub.VendorID != nil {
		v := *sub.VendorID
		next.VendorID = &v
	}
	r.apply(&next, in)
	return &next, nil
}

// Allowed lists the actions the actor could currently take on sub. Inputs are
// not checked.
func Allowed(actor model.Identity, sub *model.Submission) []Action {
	var out []Action
	for _, a := range actionOrder {
		r := transitions[a]
		if !roleIn(actor.Role, r.roles) || !r.from(sub.State()) {
			continue
		}
		if r.owns != nil && r.owns(actor, sub) != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

var actionOrder = []Action{
	ActionSubmit, ActionRequestChanges, ActionApprove, ActionSendToVendor,
	ActionMarkCompleted, ActionReject, ActionReopen,
}

func roleIn(role model.Role, roles []model.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func roleLabel(r model.Role) string {
	if r == "" {
		return "anonymous"
	}
	return string(r)
}

func actionVerb(a Action) string {
	switch a {
	case ActionSubmit:
		return "submit"
	case ActionRequestChanges:
		return "request changes on"
	case ActionApprove:
		return "approve"
	case ActionSendToVendor:
		return "send to vendor"
	case ActionMarkCompleted:
		return "mark completed"
	case ActionReject:
		return "reject"
	case ActionReopen:
		return "reopen"
	}
	return strings.ToLower(string(a))
}
