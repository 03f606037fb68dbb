package service

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"idportal/internal/apperr"
	"idportal/internal/model"

	"github.com/google/uuid"
)

// tokenFrom pulls the raw token out of a mailed link.
func tokenFrom(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatal(err)
	}
	tok := u.Query().Get("token")
	if tok == "" {
		t.Fatalf("no token in %q", link)
	}
	return tok
}

func TestRoundTripToDone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	loc := h.location.ID

	created, err := h.service.Create(ctx, h.hr, CreateSubmissionRequest{
		Name:       "Jane Roe",
		Email:      " Jane@Corp.Test ",
		LocationID: &loc,
	})
	if err != nil {
		t.Fatal(err)
	}
	sub := created.Submission
	if sub.State() != (model.State{Stage: model.StageCandidate, Status: model.StatusPending}) {
		t.Fatalf("unexpected initial state %s", sub.State())
	}
	if sub.Email != "jane@corp.test" {
		t.Fatalf("email not normalized: %q", sub.Email)
	}
	if created.Notification == nil || !created.Notification.Delivered {
		t.Fatalf("expected a delivered invite, got %+v", created.Notification)
	}
	invite := h.notifier.last()
	if !strings.HasPrefix(invite.link, "http://portal.test/candidate/verify?token=") {
		t.Fatalf("unexpected invite link %q", invite.link)
	}
	token := tokenFrom(t, invite.link)

	view, err := h.service.VerifyCandidateToken(ctx, token)
	if err != nil {
		t.Fatal(err)
	}
	if view.ID != sub.ID || len(view.Actions) != 1 || view.Actions[0] != ActionSubmit {
		t.Fatalf("unexpected candidate view %+v", view)
	}

	if _, err := h.service.Submit(ctx, nil, sub.ID, SubmitFormRequest{
		Token:      token,
		EmployeeID: "E-42",
		Photo:      bytes.NewReader([]byte("photo")),
	}); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		actor  model.Identity
		action Action
		in     TransitionInput
	}{
		{h.hr, ActionApprove, TransitionInput{}},
		{h.admin, ActionSendToVendor, TransitionInput{VendorID: &h.vendor.ID}},
		{h.vendorIdentity(), ActionMarkCompleted, TransitionInput{}},
	}
	for _, s := range steps {
		if _, err := h.service.Transition(ctx, s.actor, sub.ID, s.action, s.in); err != nil {
			t.Fatalf("%s: %v", s.action, err)
		}
	}

	final := h.subs.get(sub.ID)
	if final.State() != (model.State{Stage: model.StageVendor, Status: model.StatusDone}) {
		t.Fatalf("expected VENDOR/DONE, got %s", final.State())
	}
	if final.EmployeeID != "E-42" || final.PhotoURL == "" {
		t.Fatalf("submit did not store form data: %+v", final)
	}
	if final.Version != 5 {
		t.Fatalf("expected version 5 after four transitions, got %d", final.Version)
	}
	if got := h.audit.count(model.ActionTransition); got != 4 {
		t.Fatalf("expected 4 transition audit rows, got %d", got)
	}
	if h.pub.len() != 5 {
		t.Fatalf("expected 5 published events, got %d", h.pub.len())
	}

	history, err := h.service.History(ctx, h.admin, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 history rows, got %d", len(history))
	}
	if history[0].ActorID == nil || *history[0].ActorID != h.hr.ID {
		t.Fatalf("create should be attributed to hr")
	}
	if history[1].ActorID != nil || history[1].ActorRole != model.RoleCandidate {
		t.Fatalf("submit should be attributed to the candidate without an actor id")
	}
}

func TestCandidateLinkIsSingleUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.service.Create(ctx, h.hr, CreateSubmissionRequest{Name: "Jo", Email: "jo@corp.test"})
	if err != nil {
		t.Fatal(err)
	}
	token := tokenFrom(t, h.notifier.last().link)

	req := SubmitFormRequest{Token: token, Photo: strings.NewReader("p")}
	if _, err := h.service.Submit(ctx, nil, res.Submission.ID, req); err != nil {
		t.Fatal(err)
	}
	req.Photo = strings.NewReader("p")
	_, err = h.service.Submit(ctx, nil, res.Submission.ID, req)
	requireKind(t, err, apperr.KindUnauthenticated)
}

func TestSubmitRefusedKeepsPhotoAndLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.service.Create(ctx, h.hr, CreateSubmissionRequest{Name: "Jo", Email: "jo@corp.test"})
	if err != nil {
		t.Fatal(err)
	}
	token := tokenFrom(t, h.notifier.last().link)

	stale := 7
	_, err = h.service.Submit(ctx, nil, res.Submission.ID, SubmitFormRequest{
		Token:           token,
		Photo:           strings.NewReader("p"),
		ExpectedVersion: &stale,
	})
	requireKind(t, err, apperr.KindConflict)
	if h.photos.saved != 0 {
		t.Fatalf("photo stored for a refused submit")
	}
	if _, err := h.service.VerifyCandidateToken(ctx, token); err != nil {
		t.Fatalf("link should still be valid: %v", err)
	}
}

func TestSubmitWithoutPhotoIsValidationError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.service.Create(ctx, h.hr, CreateSubmissionRequest{Name: "Jo", Email: "jo@corp.test"})
	if err != nil {
		t.Fatal(err)
	}
	token := tokenFrom(t, h.notifier.last().link)

	_, err = h.service.Submit(ctx, nil, res.Submission.ID, SubmitFormRequest{Token: token})
	requireKind(t, err, apperr.KindValidation)
	var e *apperr.Error
	if !errors.As(err, &e) || e.Field != "profileImage" {
		t.Fatalf("expected profileImage field, got %v", err)
	}
}

func TestSubmitWithLinkForAnotherSubmission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, _ := h.service.Create(ctx, h.hr, CreateSubmissionRequest{Name: "A", Email: "a@corp.test"})
	tokenA := tokenFrom(t, h.notifier.last().link)
	b, _ := h.service.Create(ctx, h.hr, CreateSubmissionRequest{Name: "B", Email: "b@corp.test"})

	_, err := h.service.Submit(ctx, nil, b.Submission.ID, SubmitFormRequest{Token: tokenA, Photo: strings.NewReader("p")})
	requireKind(t, err, apperr.KindAuthorization)
	if got := h.subs.get(a.Submission.ID).Stage; got != model.StageCandidate {
		t.Fatalf("submission A moved to %s", got)
	}
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.seed(model.StageHR, model.StatusPending)
	h.notifier.err = errors.New("smtp: connection refused")

	res, err := h.service.Transition(ctx, h.hr, sub.ID, ActionRequestChanges, TransitionInput{Comment: "wrong photo"})
	if err != nil {
		t.Fatalf("transition should succeed despite email failure: %v", err)
	}
	if res.Notification == nil || res.Notification.Delivered || res.Notification.Error == "" {
		t.Fatalf("expected a failed notification status, got %+v", res.Notification)
	}
	if res.Notification.Type != "changes_requested" {
		t.Fatalf("unexpected notification type %q", res.Notification.Type)
	}
	stored := h.subs.get(sub.ID)
	if stored.State() != (model.State{Stage: model.StageCandidate, Status: model.StatusNeedChanges}) {
		t.Fatalf("state not persisted: %s", stored.State())
	}
	if stored.Comments != "wrong photo" {
		t.Fatalf("comment not persisted: %q", stored.Comments)
	}
}

func TestSendToVendorNotifiesVendor(t *testing.T) {
	h := newHarness(t)
	sub := h.seed(model.StageAdmin, model.StatusApproved)

	res, err := h.service.Transition(context.Background(), h.admin, sub.ID, ActionSendToVendor, TransitionInput{VendorID: &h.vendor.ID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Notification == nil || res.Notification.Recipient != h.vendor.Email || !res.Notification.Delivered {
		t.Fatalf("unexpected notification %+v", res.Notification)
	}
}

func TestSendToUnknownVendor(t *testing.T) {
	h := newHarness(t)
	sub := h.seed(model.StageAdmin, model.StatusApproved)
	missing := uuid.New()

	_, err := h.service.Transition(context.Background(), h.admin, sub.ID, ActionSendToVendor, TransitionInput{VendorID: &missing})
	requireKind(t, err, apperr.KindNotFound)
	if got := h.subs.get(sub.ID); got.VendorID != nil || got.Version != 1 {
		t.Fatalf("refused transition changed the submission: %+v", got)
	}
}

func TestMarkCompletedTwice(t *testing.T) {
	h := newHarness(t)
	sub := h.seed(model.StageVendor, model.StatusApproved)
	vendor := h.vendorIdentity()

	if _, err := h.service.Transition(context.Background(), vendor, sub.ID, ActionMarkCompleted, TransitionInput{}); err != nil {
		t.Fatal(err)
	}
	_, err := h.service.Transition(context.Background(), vendor, sub.ID, ActionMarkCompleted, TransitionInput{})
	requireKind(t, err, apperr.KindInvalidTransition)
	if got := h.subs.get(sub.ID).Version; got != 2 {
		t.Fatalf("second completion wrote a new version: %d", got)
	}
}

func TestStaleExpectedVersion(t *testing.T) {
	h := newHarness(t)
	sub := h.seed(model.StageHR, model.StatusPending)
	stale := 0

	_, err := h.service.Transition(context.Background(), h.hr, sub.ID, ActionApprove, TransitionInput{ExpectedVersion: &stale})
	requireKind(t, err, apperr.KindConflict)
}

func TestConcurrentApproveAndReject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		sub := h.seed(model.StageHR, model.StatusPending)
		v := sub.Version

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = h.service.Transition(ctx, h.hr, sub.ID, ActionApprove, TransitionInput{ExpectedVersion: &v})
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = h.service.Transition(ctx, h.admin, sub.ID, ActionReject, TransitionInput{ExpectedVersion: &v})
		}()
		wg.Wait()

		// Reject only applies from the admin stage, so it either loses the
		// race on version or finds the submission still at HR.
		if errs[0] != nil {
			t.Fatalf("approve failed: %v", errs[0])
		}
		if errs[1] == nil {
			t.Fatalf("reject with a stale version succeeded")
		}
		kind := apperr.KindOf(errs[1])
		if kind != apperr.KindConflict && kind != apperr.KindInvalidTransition {
			t.Fatalf("unexpected reject error kind %s", kind)
		}
		if got := h.subs.get(sub.ID); got.State() != (model.State{Stage: model.StageAdmin, Status: model.StatusApproved}) || got.Version != v+1 {
			t.Fatalf("unexpected final state %s v%d", got.State(), got.Version)
		}
	}
}

func TestConcurrentTransitionsSameVersionOneWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.seed(model.StageAdmin, model.StatusApproved)
	v := sub.Version

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.service.Transition(ctx, h.admin, sub.ID, ActionReject, TransitionInput{ExpectedVersion: &v})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestReopenToHRIsAdminOnly(t *testing.T) {
	h := newHarness(t)
	sub := h.seed(model.StageVendor, model.StatusDone)

	_, err := h.service.Transition(context.Background(), h.hr, sub.ID, ActionReopen, TransitionInput{TargetStage: model.StageHR})
	requireKind(t, err, apperr.KindAuthorization)

	res, err := h.service.Transition(context.Background(), h.admin, sub.ID, ActionReopen, TransitionInput{TargetStage: model.StageHR})
	if err != nil {
		t.Fatal(err)
	}
	if res.Submission.VendorID != nil || res.Submission.State() != (model.State{Stage: model.StageHR, Status: model.StatusPending}) {
		t.Fatalf("unexpected reopened submission %+v", res.Submission)
	}
}

func TestResendInviteRevokesOldLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.service.Create(ctx, h.hr, CreateSubmissionRequest{Name: "Jo", Email: "jo@corp.test"})
	if err != nil {
		t.Fatal(err)
	}
	first := tokenFrom(t, h.notifier.last().link)

	if _, err := h.service.ResendInvite(ctx, h.hr, res.Submission.ID); err != nil {
		t.Fatal(err)
	}
	second := tokenFrom(t, h.notifier.last().link)

	if _, err := h.service.VerifyCandidateToken(ctx, first); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Fatalf("old link should be revoked, got %v", err)
	}
	if _, err := h.service.VerifyCandidateToken(ctx, second); err != nil {
		t.Fatalf("new link should be valid: %v", err)
	}

	sub := h.seed(model.StageHR, model.StatusPending)
	_, err = h.service.ResendInvite(ctx, h.hr, sub.ID)
	requireKind(t, err, apperr.KindInvalidTransition)
}

func TestCreateLostAndFoundSendsNoInvite(t *testing.T) {
	h := newHarness(t)
	res, err := h.service.Create(context.Background(), h.admin, CreateSubmissionRequest{
		Type:  model.SubmissionTypeLostAndFound,
		Name:  "Walk In",
		Email: "walk@corp.test",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Notification != nil || h.notifier.count("candidate_invite") != 0 {
		t.Fatalf("walk-in submissions get no invite")
	}

	if _, err := h.service.Submit(context.Background(), &h.admin, res.Submission.ID, SubmitFormRequest{Photo: strings.NewReader("p")}); err != nil {
		t.Fatalf("staff submit of a walk-in: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.service.Create(ctx, h.vendorIdentity(), CreateSubmissionRequest{Name: "x", Email: "x@corp.test"})
	requireKind(t, err, apperr.KindAuthorization)

	_, err = h.service.Create(ctx, h.hr, CreateSubmissionRequest{Name: "x", Email: "not-an-email"})
	requireKind(t, err, apperr.KindValidation)

	missing := uuid.New()
	_, err = h.service.Create(ctx, h.hr, CreateSubmissionRequest{Name: "x", Email: "x@corp.test", LocationID: &missing})
	requireKind(t, err, apperr.KindNotFound)
}

func TestUpdateDetails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.seed(model.StageHR, model.StatusPending)

	name := "Renamed"
	updated, err := h.service.UpdateDetails(ctx, h.hr, sub.ID, UpdateSubmissionRequest{Name: &name})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != name || updated.Version != 2 || updated.State() != sub.State() {
		t.Fatalf("unexpected update result %+v", updated)
	}

	_, err = h.service.UpdateDetails(ctx, h.hr, sub.ID, UpdateSubmissionRequest{})
	requireKind(t, err, apperr.KindValidation)

	done := h.seed(model.StageVendor, model.StatusDone)
	_, err = h.service.UpdateDetails(ctx, h.admin, done.ID, UpdateSubmissionRequest{Name: &name})
	requireKind(t, err, apperr.KindInvalidTransition)
}

func TestVendorScopedReads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mine := h.seed(model.StageVendor, model.StatusApproved)
	h.seed(model.StageHR, model.StatusPending)

	other := model.Identity{ID: uuid.New(), Role: model.RoleVendor}
	_, err := h.service.Get(ctx, other, mine.ID)
	requireKind(t, err, apperr.KindAuthorization)

	page, err := h.service.List(ctx, h.vendorIdentity(), SubmissionQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalCount != 1 || page.Results[0].ID != mine.ID {
		t.Fatalf("vendor should only see own assignments, got %+v", page)
	}

	_, err = h.service.List(ctx, h.admin, SubmissionQuery{Status: "LOST"})
	requireKind(t, err, apperr.KindValidation)
}
