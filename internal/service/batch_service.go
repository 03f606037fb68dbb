package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"idportal/internal/apperr"
	"idportal/internal/cardgen"
	"idportal/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ItemResult is the outcome for one id of a batch.
type ItemResult struct {
	ID        string       `json:"id"`
	Succeeded bool         `json:"succeeded"`
	Code      apperr.Kind  `json:"code,omitempty"`
	Error     string       `json:"error,omitempty"`
	Stage     model.Stage  `json:"stage,omitempty"`
	Status    model.Status `json:"status,omitempty"`
	File      string       `json:"file,omitempty"`
}

// BatchResult reports every item; a partially failed batch is not an error.
type BatchResult struct {
	Items        []ItemResult        `json:"items"`
	Succeeded    int                 `json:"succeeded"`
	Failed       int                 `json:"failed"`
	Notification *NotificationStatus `json:"notification,omitempty"`
}

// CardArchive is a ZIP of rendered cards with a results.json manifest.
type CardArchive struct {
	Data   []byte
	Result BatchResult
}

const manifestName = "results.json"

// BatchService applies one transition to many submissions. Items run
// independently with bounded parallelism; each is its own transaction.
type BatchService struct {
	engine      *Engine
	renderer    CardRenderer
	concurrency int
	log         *zap.Logger
}

func NewBatchService(engine *Engine, renderer CardRenderer, concurrency int, log *zap.Logger) *BatchService {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchService{engine: engine, renderer: renderer, concurrency: concurrency, log: log}
}

// SendToVendor assigns every approved submission in ids to vendorID and sends
// the vendor one summary email.
func (b *BatchService) SendToVendor(ctx context.Context, actor model.Identity, ids []string, vendorID *uuid.UUID) (*BatchResult, error) {
	if actor.Role != model.RoleAdmin {
		return nil, apperr.Authorization(fmt.Sprintf("role %s may not send to vendor a submission", roleLabel(actor.Role)))
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, apperr.Validation("ids", "at least one submission id is required")
	}
	in := TransitionInput{VendorID: vendorID}
	if err := requireVendor(nil, in); err != nil {
		return nil, err
	}
	if _, err := b.engine.vendors.FindByID(ctx, *vendorID); err != nil {
		return nil, err
	}

	res := b.each(ctx, ids, func(ctx context.Context, id uuid.UUID) (*model.Submission, string, error) {
		r, err := b.engine.run(ctx, actor, id, ActionSendToVendor, in, transitionOpts{quiet: true})
		if err != nil {
			return nil, "", err
		}
		return r.Submission, "", nil
	})

	if res.Succeeded > 0 {
		res.Notification = b.engine.notifyVendor(ctx, *vendorID, res.Succeeded)
	}
	b.log.Info("batch send to vendor",
		zap.String("vendor_id", vendorID.String()),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed))
	return res, nil
}

// DownloadAndMarkDone renders each assigned card and marks the submission DONE
// only once its card rendered.
func (b *BatchService) DownloadAndMarkDone(ctx context.Context, actor model.Identity, ids []string) (*CardArchive, error) {
	if actor.Role != model.RoleVendor {
		return nil, apperr.Authorization(fmt.Sprintf("role %s may not mark completed a submission", roleLabel(actor.Role)))
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, apperr.Validation("ids", "at least one submission id is required")
	}

	files := make([][]byte, len(ids))
	res := b.eachIndexed(ctx, ids, func(ctx context.Context, i int, id uuid.UUID) (*model.Submission, string, error) {
		var name string
		hook := func(ctx context.Context, current, _ *model.Submission) error {
			card, err := b.cardFor(ctx, current)
			if err != nil {
				return err
			}
			data, err := b.renderer.Render(ctx, card)
			if err != nil {
				return err
			}
			files[i], name = data, card.FileName()
			return nil
		}
		r, err := b.engine.run(ctx, actor, id, ActionMarkCompleted, TransitionInput{}, transitionOpts{beforeWrite: hook, quiet: true})
		if err != nil {
			files[i] = nil
			return nil, "", err
		}
		return r.Submission, name, nil
	})

	b.log.Info("batch download and mark done",
		zap.String("vendor_id", actor.ID.String()),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed))
	return b.archive(res, files)
}

// DownloadCards renders cards without changing any state. Vendors get their
// own assignments; admins get any card that reached the vendor.
func (b *BatchService) DownloadCards(ctx context.Context, actor model.Identity, ids []string) (*CardArchive, error) {
	if actor.Role != model.RoleVendor && actor.Role != model.RoleAdmin {
		return nil, apperr.Authorization(fmt.Sprintf("role %s may not download cards", roleLabel(actor.Role)))
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, apperr.Validation("ids", "at least one submission id is required")
	}

	files := make([][]byte, len(ids))
	res := b.eachIndexed(ctx, ids, func(ctx context.Context, i int, id uuid.UUID) (*model.Submission, string, error) {
		sub, data, card, err := b.render(ctx, actor, id)
		if err != nil {
			return nil, "", err
		}
		files[i] = data
		return sub, card.FileName(), nil
	})
	return b.archive(res, files)
}

// DownloadCard renders a single card as a PDF.
func (b *BatchService) DownloadCard(ctx context.Context, actor model.Identity, id uuid.UUID) ([]byte, string, error) {
	if actor.Role != model.RoleVendor && actor.Role != model.RoleAdmin {
		return nil, "", apperr.Authorization(fmt.Sprintf("role %s may not download cards", roleLabel(actor.Role)))
	}
	_, data, card, err := b.render(ctx, actor, id)
	if err != nil {
		return nil, "", err
	}
	return data, card.FileName(), nil
}

func (b *BatchService) render(ctx context.Context, actor model.Identity, id uuid.UUID) (*model.Submission, []byte, cardgen.Card, error) {
	sub, err := b.engine.subs.FindByID(ctx, id)
	if err != nil {
		return nil, nil, cardgen.Card{}, err
	}
	if err := canDownload(actor, sub); err != nil {
		return nil, nil, cardgen.Card{}, err
	}
	card, err := b.cardFor(ctx, sub)
	if err != nil {
		return nil, nil, cardgen.Card{}, err
	}
	data, err := b.renderer.Render(ctx, card)
	if err != nil {
		return nil, nil, cardgen.Card{}, err
	}
	return sub, data, card, nil
}

func canDownload(actor model.Identity, sub *model.Submission) error {
	if actor.Role == model.RoleVendor && (sub.VendorID == nil || *sub.VendorID != actor.ID) {
		return apperr.Authorization("the submission is not assigned to you")
	}
	if sub.Stage != model.StageVendor {
		return apperr.InvalidTransition(fmt.Sprintf("no card is available for a submission at %s", sub.State()))
	}
	if sub.Status == model.StatusRejected {
		return apperr.InvalidTransition("no card is available for a rejected submission")
	}
	return nil
}

func (b *BatchService) cardFor(ctx context.Context, sub *model.Submission) (cardgen.Card, error) {
	if sub.PhotoURL == "" {
		return cardgen.Card{}, apperr.Validation("photoUrl", "the submission has no photo")
	}
	card := cardgen.Card{
		SubmissionID: sub.ID.String(),
		Name:         sub.Name,
		IDNumber:     sub.EmployeeID,
		PhotoURL:     sub.PhotoURL,
	}
	if sub.Location != nil {
		card.Location = sub.Location.Slug
	} else if sub.LocationID != nil {
		if loc, err := b.engine.locations.FindByID(ctx, *sub.LocationID); err == nil {
			card.Location = loc.Slug
		}
	}
	return card, nil
}

func (b *BatchService) archive(res *BatchResult, files [][]byte) (*CardArchive, error) {
	var buf bytes.Buffer
	bundle := cardgen.NewBundle(&buf)
	for i, item := range res.Items {
		if !item.Succeeded || files[i] == nil {
			continue
		}
		stored, err := bundle.Add(item.File, files[i])
		if err != nil {
			return nil, err
		}
		res.Items[i].File = stored
	}
	if err := bundle.AddJSON(manifestName, res); err != nil {
		return nil, err
	}
	if err := bundle.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return &CardArchive{Data: buf.Bytes(), Result: *res}, nil
}

type itemFunc func(ctx context.Context, i int, id uuid.UUID) (*model.Submission, string, error)

func (b *BatchService) each(ctx context.Context, ids []string, fn func(ctx context.Context, id uuid.UUID) (*model.Submission, string, error)) *BatchResult {
	return b.eachIndexed(ctx, ids, func(ctx context.Context, _ int, id uuid.UUID) (*model.Submission, string, error) {
		return fn(ctx, id)
	})
}

// eachIndexed runs fn for every id and records its outcome at the same index.
// Item failures never stop the batch.
func (b *BatchService) eachIndexed(ctx context.Context, ids []string, fn itemFunc) *BatchResult {
	items := make([]ItemResult, len(ids))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, raw := range ids {
		g.Go(func() error {
			items[i] = ItemResult{ID: raw}
			id, err := uuid.Parse(raw)
			if err != nil {
				items[i].Code = apperr.KindValidation
				items[i].Error = "not a valid submission id"
				return nil
			}
			if err := ctx.Err(); err != nil {
				items[i].Code = apperr.KindInternal
				items[i].Error = err.Error()
				return nil
			}
			sub, file, err := fn(ctx, i, id)
			if err != nil {
				items[i].Code = apperr.KindOf(err)
				items[i].Error = userMessage(err)
				if items[i].Code == apperr.KindInternal {
					b.log.Error("batch item failed", zap.String("submission_id", raw), zap.Error(err))
				}
				return nil
			}
			items[i].Succeeded = true
			items[i].Stage = sub.Stage
			items[i].Status = sub.Status
			items[i].File = file
			return nil
		})
	}
	_ = g.Wait()

	res := &BatchResult{Items: items}
	for _, it := range items {
		if it.Succeeded {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}

// userMessage prefers the apperr message over the wrapped chain.
func userMessage(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// dedupe drops blanks and repeats. Valid ids are compared and returned in
// canonical form so different spellings of one id collapse; invalid ones are
// kept as given so they report their own failure.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if parsed, err := uuid.Parse(id); err == nil {
			id = parsed.String()
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// FailedIDs lists the ids that did not succeed, sorted.
func (r *BatchResult) FailedIDs() []string {
	var out []string
	for _, it := range r.Items {
		if !it.Succeeded {
			out = append(out, it.ID)
		}
	}
	sort.Strings(out)
	return out
}
