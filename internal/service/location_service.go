package service

import (
	"context"
	"fmt"
	"strings"

	"idportal/internal/apperr"
	"idportal/internal/model"
	"idportal/internal/repository"
	"idportal/pkg/pagination"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LocationRequest struct {
	Slug                string `json:"slug" binding:"required"`
	PreFormattedAddress string `json:"preFormattedAddress"`
	Contact             string `json:"contact"`
}

type UpdateLocationRequest struct {
	Slug                *string `json:"slug"`
	PreFormattedAddress *string `json:"preFormattedAddress"`
	Contact             *string `json:"contact"`
}

type LocationService interface {
	Create(ctx context.Context, actor model.Identity, req LocationRequest) (*model.Location, error)
	Update(ctx context.Context, actor model.Identity, id uuid.UUID, req UpdateLocationRequest) (*model.Location, error)
	Delete(ctx context.Context, actor model.Identity, id uuid.UUID) error
	List(ctx context.Context, search string, page, limit int) (pagination.Page[model.Location], error)
	Suggest(ctx context.Context, search string) ([]model.Location, error)
}

type locationService struct {
	repo  repository.LocationRepository
	subs  repository.SubmissionRepository
	audit repository.AuditRepository
	tx    repository.TransactionManager
	log   *zap.Logger
}

func NewLocationService(repo repository.LocationRepository, subs repository.SubmissionRepository, audit repository.AuditRepository, tx repository.TransactionManager, log *zap.Logger) LocationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &locationService{repo: repo, subs: subs, audit: audit, tx: tx, log: log}
}

func (s *locationService) Create(ctx context.Context, actor model.Identity, req LocationRequest) (*model.Location, error) {
	if err := requireAdmin(actor, "manage locations"); err != nil {
		return nil, err
	}
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		return nil, apperr.Validation("slug", "a location name is required")
	}

	loc := &model.Location{
		Slug:                slug,
		PreFormattedAddress: strings.TrimSpace(req.PreFormattedAddress),
		Contact:             strings.TrimSpace(req.Contact),
	}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, loc); err != nil {
			return fmt.Errorf("failed to create location: %w", err)
		}
		return recordAudit(txCtx, s.audit, actor, model.ActionCreateLocation, loc.ID.String(), loc.Slug, map[string]interface{}{
			"address": loc.PreFormattedAddress,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("location created", zap.String("location_id", loc.ID.String()))
	return loc, nil
}

func (s *locationService) Update(ctx context.Context, actor model.Identity, id uuid.UUID, req UpdateLocationRequest) (*model.Location, error) {
	if err := requireAdmin(actor, "manage locations"); err != nil {
		return nil, err
	}

	var loc *model.Location
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		l, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		changed := map[string]interface{}{}
		if req.Slug != nil {
			slug := strings.TrimSpace(*req.Slug)
			if slug == "" {
				return apperr.Validation("slug", "a location name is required")
			}
			l.Slug = slug
			changed["slug"] = slug
		}
		if req.PreFormattedAddress != nil {
			l.PreFormattedAddress = strings.TrimSpace(*req.PreFormattedAddress)
			changed["address"] = l.PreFormattedAddress
		}
		if req.Contact != nil {
			l.Contact = strings.TrimSpace(*req.Contact)
			changed["contact"] = l.Contact
		}
		if err := s.repo.Update(txCtx, l); err != nil {
			return fmt.Errorf("failed to update location: %w", err)
		}
		loc = l
		return recordAudit(txCtx, s.audit, actor, model.ActionUpdateLocation, l.ID.String(), l.Slug, changed)
	})
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// Delete soft-deletes a location no open submission is placed at.
func (s *locationService) Delete(ctx context.Context, actor model.Identity, id uuid.UUID) error {
	if err := requireAdmin(actor, "manage locations"); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		l, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		open, err := s.subs.CountOpenByLocation(txCtx, id)
		if err != nil {
			return fmt.Errorf("failed to check location usage: %w", err)
		}
		if open > 0 {
			return apperr.Conflict(fmt.Sprintf("location %s still has %d open submission(s)", l.Slug, open))
		}
		if err := s.repo.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete location: %w", err)
		}
		return recordAudit(txCtx, s.audit, actor, model.ActionDeleteLocation, l.ID.String(), l.Slug, nil)
	})
}

func (s *locationService) List(ctx context.Context, search string, page, limit int) (pagination.Page[model.Location], error) {
	p := pagination.Normalize(page, limit)
	locs, total, err := s.repo.List(ctx, strings.TrimSpace(search), p.Page, p.Limit)
	if err != nil {
		return pagination.Page[model.Location]{}, fmt.Errorf("failed to list locations: %w", err)
	}
	return pagination.NewPage(locs, total, p), nil
}

// Suggest matches on slug; empty input returns the first locations by slug.
func (s *locationService) Suggest(ctx context.Context, search string) ([]model.Location, error) {
	locs, err := s.repo.Suggest(ctx, strings.TrimSpace(search), SuggestLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest locations: %w", err)
	}
	if locs == nil {
		locs = []model.Location{}
	}
	return locs, nil
}
