package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"idportal/internal/apperr"
	"idportal/internal/cardgen"
	"idportal/internal/model"
	"idportal/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type fakeTx struct{}

func (fakeTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type fakeSubmissions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Submission
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{rows: make(map[uuid.UUID]model.Submission)}
}

func (f *fakeSubmissions) put(sub model.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub.Version == 0 {
		sub.Version = 1
	}
	f.rows[sub.ID] = sub
}

func (f *fakeSubmissions) get(id uuid.UUID) model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

func (f *fakeSubmissions) Create(_ context.Context, sub *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	f.rows[sub.ID] = *sub
	return nil
}

func (f *fakeSubmissions) FindByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFound("submission not found")
	}
	return &sub, nil
}

func (f *fakeSubmissions) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeSubmissions) CompareAndSwap(_ context.Context, sub *model.Submission, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[sub.ID]
	if !ok || cur.Version != expectedVersion {
		return apperr.Conflict("submission was modified concurrently")
	}
	sub.Version = expectedVersion + 1
	f.rows[sub.ID] = *sub
	return nil
}

func (f *fakeSubmissions) List(_ context.Context, filter repository.SubmissionFilter) ([]model.Submission, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Submission
	for _, sub := range f.rows {
		if filter.Stage != "" && sub.Stage != filter.Stage {
			continue
		}
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		if filter.VendorID != nil && (sub.VendorID == nil || *sub.VendorID != *filter.VendorID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(sub.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, int64(len(out)), nil
}

func (f *fakeSubmissions) countOpen(match func(model.Submission) bool) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, sub := range f.rows {
		if !sub.Status.Terminal() && match(sub) {
			n++
		}
	}
	return n
}

func (f *fakeSubmissions) CountOpenByVendor(_ context.Context, vendorID uuid.UUID) (int64, error) {
	return f.countOpen(func(s model.Submission) bool { return s.VendorID != nil && *s.VendorID == vendorID }), nil
}

func (f *fakeSubmissions) CountOpenByLocation(_ context.Context, locationID uuid.UUID) (int64, error) {
	return f.countOpen(func(s model.Submission) bool { return s.LocationID != nil && *s.LocationID == locationID }), nil
}

type fakeVendors struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Vendor
}

func newFakeVendors(vs ...model.Vendor) *fakeVendors {
	f := &fakeVendors{rows: make(map[uuid.UUID]model.Vendor)}
	for _, v := range vs {
		f.rows[v.ID] = v
	}
	return f
}

func (f *fakeVendors) Create(_ context.Context, v *model.Vendor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	f.rows[v.ID] = *v
	return nil
}

func (f *fakeVendors) Update(_ context.Context, v *model.Vendor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[v.ID] = *v
	return nil
}

func (f *fakeVendors) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeVendors) FindByID(_ context.Context, id uuid.UUID) (*model.Vendor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFound("vendor not found")
	}
	return &v, nil
}

func (f *fakeVendors) FindByEmail(_ context.Context, email string) (*model.Vendor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.rows {
		if strings.EqualFold(v.Email, email) {
			return &v, nil
		}
	}
	return nil, apperr.NotFound("vendor not found")
}

func (f *fakeVendors) List(_ context.Context, search string, _, _ int) ([]model.Vendor, int64, error) {
	out, _ := f.Suggest(context.Background(), search, 1000)
	return out, int64(len(out)), nil
}

func (f *fakeVendors) Suggest(_ context.Context, search string, limit int) ([]model.Vendor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Vendor
	for _, v := range f.rows {
		if search == "" || strings.Contains(strings.ToLower(v.Name), strings.ToLower(search)) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeLocations struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Location
}

func newFakeLocations(ls ...model.Location) *fakeLocations {
	f := &fakeLocations{rows: make(map[uuid.UUID]model.Location)}
	for _, l := range ls {
		f.rows[l.ID] = l
	}
	return f
}

func (f *fakeLocations) Create(_ context.Context, l *model.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.Slug == l.Slug {
			return apperr.Conflict("location already exists")
		}
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	f.rows[l.ID] = *l
	return nil
}

func (f *fakeLocations) Update(_ context.Context, l *model.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[l.ID] = *l
	return nil
}

func (f *fakeLocations) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeLocations) FindByID(_ context.Context, id uuid.UUID) (*model.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFound("location not found")
	}
	return &l, nil
}

func (f *fakeLocations) List(_ context.Context, search string, _, _ int) ([]model.Location, int64, error) {
	out, _ := f.Suggest(context.Background(), search, 1000)
	return out, int64(len(out)), nil
}

func (f *fakeLocations) Suggest(_ context.Context, search string, limit int) ([]model.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Location
	for _, l := range f.rows {
		if search == "" || strings.Contains(strings.ToLower(l.Slug), strings.ToLower(search)) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeUsers struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.User
}

func newFakeUsers(us ...model.User) *fakeUsers {
	f := &fakeUsers{rows: make(map[uuid.UUID]model.User)}
	for _, u := range us {
		f.rows[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.rows[u.ID] = *u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.rows {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (f *fakeUsers) List(_ context.Context, role model.Role, search string, _, _ int) ([]model.User, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, u := range f.rows {
		if u.Role == role && (search == "" || strings.Contains(u.Email, search)) {
			out = append(out, u)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

type fakeLinks struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.MagicLink
}

func newFakeLinks() *fakeLinks {
	return &fakeLinks{rows: make(map[uuid.UUID]model.MagicLink)}
}

func (f *fakeLinks) Create(_ context.Context, l *model.MagicLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[l.ID] = *l
	return nil
}

func (f *fakeLinks) FindByID(_ context.Context, id uuid.UUID) (*model.MagicLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFound("link not found")
	}
	return &l, nil
}

func (f *fakeLinks) MarkUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.rows[id]
	if !ok || l.UsedAt != nil {
		return apperr.Conflict("link already used")
	}
	l.UsedAt = &at
	f.rows[id] = l
	return nil
}

func (f *fakeLinks) RevokeForSubject(_ context.Context, purpose string, subjectID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, l := range f.rows {
		if l.Purpose == purpose && l.SubjectID == subjectID && l.UsedAt == nil {
			l.UsedAt = &at
			f.rows[id] = l
		}
	}
	return nil
}

func (f *fakeLinks) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, l := range f.rows {
		if l.ExpiresAt.Before(before) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

type fakeAudit struct {
	mu   sync.Mutex
	rows []model.AuditLog
}

func (f *fakeAudit) Log(_ context.Context, entry *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	f.rows = append(f.rows, *entry)
	return nil
}

func (f *fakeAudit) List(_ context.Context, action string, _, _ int) ([]model.AuditLog, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AuditLog
	for _, r := range f.rows {
		if action == "" || r.Action == action {
			out = append(out, r)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAudit) ListByEntity(_ context.Context, entityID string) ([]model.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AuditLog
	for _, r := range f.rows {
		if r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAudit) count(action string) int {
	rows, _, _ := f.List(context.Background(), action, 1, 100)
	return len(rows)
}

type sentMail struct {
	kind string
	to   string
	link string
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []sentMail
}

func (f *fakeNotifier) record(kind, to, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{kind: kind, to: to, link: link})
	return nil
}

func (f *fakeNotifier) CandidateInvite(_ context.Context, sub *model.Submission, link string) error {
	return f.record("candidate_invite", sub.Email, link)
}

func (f *fakeNotifier) ChangesRequested(_ context.Context, sub *model.Submission, link string) error {
	return f.record("changes_requested", sub.Email, link)
}

func (f *fakeNotifier) VendorAssigned(_ context.Context, v *model.Vendor, count int) error {
	return f.record("vendor_assigned", v.Email, fmt.Sprint(count))
}

func (f *fakeNotifier) LoginLink(_ context.Context, _, email string, _ model.Role, link string) error {
	return f.record("login_link", email, link)
}

func (f *fakeNotifier) last() sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMail{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeNotifier) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.kind == kind {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu     sync.Mutex
	events []SubmissionEvent
}

func (f *fakePublisher) Publish(_ string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev, ok := data.(SubmissionEvent); ok {
		f.events = append(f.events, ev)
	}
}

func (f *fakePublisher) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakePhotos struct {
	mu    sync.Mutex
	err   error
	saved int
}

func (f *fakePhotos) Save(_ context.Context, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.saved++
	return fmt.Sprintf("http://api.test/photos/%d.png", f.saved), nil
}

type fakeRenderer struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (f *fakeRenderer) Render(_ context.Context, card cardgen.Card) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[card.SubmissionID] {
		return nil, apperr.External("card renderer failed", errors.New("status 500"))
	}
	return []byte("%PDF-1.4 " + card.Name + " " + card.SubmissionID), nil
}

// harness bundles an engine with its fakes.
type harness struct {
	subs      *fakeSubmissions
	vendors   *fakeVendors
	locations *fakeLocations
	users     *fakeUsers
	links     *fakeLinks
	audit     *fakeAudit
	notifier  *fakeNotifier
	pub       *fakePublisher
	photos    *fakePhotos
	renderer  *fakeRenderer
	manager   *LinkManager
	engine    *Engine
	service   SubmissionService
	batch     *BatchService

	vendor   model.Vendor
	location model.Location
	admin    model.Identity
	hr       model.Identity
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		vendor:   model.Vendor{ID: uuid.New(), Name: "Acme Print", Email: "print@acme.test"},
		location: model.Location{ID: uuid.New(), Slug: "hq"},
		admin:    model.Identity{ID: uuid.New(), Email: "admin@corp.test", Role: model.RoleAdmin},
		hr:       model.Identity{ID: uuid.New(), Email: "hr@corp.test", Role: model.RoleHR},
	}
	h.subs = newFakeSubmissions()
	h.vendors = newFakeVendors(h.vendor)
	h.locations = newFakeLocations(h.location)
	h.users = newFakeUsers(
		model.User{ID: h.admin.ID, Name: "Ada", Email: h.admin.Email, Role: model.RoleAdmin},
		model.User{ID: h.hr.ID, Name: "Hal", Email: h.hr.Email, Role: model.RoleHR},
	)
	h.links = newFakeLinks()
	h.audit = &fakeAudit{}
	h.notifier = &fakeNotifier{}
	h.pub = &fakePublisher{}
	h.photos = &fakePhotos{}
	h.renderer = &fakeRenderer{fail: map[string]bool{}}

	h.manager = NewLinkManager(h.links, "http://portal.test/")
	h.manager.cost = bcrypt.MinCost

	h.engine = NewEngine(EngineDeps{
		Submissions: h.subs,
		Vendors:     h.vendors,
		Locations:   h.locations,
		Audit:       h.audit,
		Tx:          fakeTx{},
		Links:       h.manager,
		Notifier:    h.notifier,
		Publisher:   h.pub,
		Photos:      h.photos,
		Logger:      zaptest.NewLogger(t),
	})
	h.service = NewSubmissionService(h.engine)
	h.batch = NewBatchService(h.engine, h.renderer, 3, zaptest.NewLogger(t))
	return h
}

func (h *harness) vendorIdentity() model.Identity {
	return model.Identity{ID: h.vendor.ID, Email: h.vendor.Email, Role: model.RoleVendor}
}

// seed stores a submission at the given state with a photo and location.
func (h *harness) seed(stage model.Stage, status model.Status) model.Submission {
	loc := h.location.ID
	sub := model.Submission{
		ID:         uuid.New(),
		Type:       model.SubmissionTypeNewApplication,
		Name:       "Cand " + uuid.NewString()[:6],
		Email:      "cand@corp.test",
		EmployeeID: "E-100",
		PhotoURL:   "http://api.test/photos/seed.png",
		LocationID: &loc,
		Stage:      stage,
		Status:     status,
		Version:    1,
	}
	if stage == model.StageVendor {
		v := h.vendor.ID
		sub.VendorID = &v
	}
	h.subs.put(sub)
	return sub
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}
