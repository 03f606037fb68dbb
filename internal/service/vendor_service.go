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

// SuggestLimit bounds typeahead results.
const SuggestLimit = 10

type CreateVendorRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	PhoneNumber string `json:"phoneNumber"`
	State       string `json:"state"`
	City        string `json:"city"`
}

// UpdateVendorRequest changes contact details. Email is accepted only if it
// is unchanged.
type UpdateVendorRequest struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
	State       *string `json:"state"`
	City        *string `json:"city"`
}

type VendorService interface {
	Create(ctx context.Context, actor model.Identity, req CreateVendorRequest) (*model.Vendor, error)
	Update(ctx context.Context, actor model.Identity, id uuid.UUID, req UpdateVendorRequest) (*model.Vendor, error)
	Delete(ctx context.Context, actor model.Identity, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*model.Vendor, error)
	List(ctx context.Context, search string, page, limit int) (pagination.Page[model.Vendor], error)
	Suggest(ctx context.Context, search string) ([]model.Vendor, error)
}

type vendorService struct {
	repo  repository.VendorRepository
	subs  repository.SubmissionRepository
	audit repository.AuditRepository
	tx    repository.TransactionManager
	log   *zap.Logger
}

func NewVendorService(repo repository.VendorRepository, subs repository.SubmissionRepository, audit repository.AuditRepository, tx repository.TransactionManager, log *zap.Logger) VendorService {
	if log == nil {
		log = zap.NewNop()
	}
	return &vendorService{repo: repo, subs: subs, audit: audit, tx: tx, log: log}
}

func requireAdmin(actor model.Identity, what string) error {
	if actor.Role != model.RoleAdmin {
		return apperr.Authorization(fmt.Sprintf("only admins may %s", what))
	}
	return nil
}

func (s *vendorService) Create(ctx context.Context, actor model.Identity, req CreateVendorRequest) (*model.Vendor, error) {
	if err := requireAdmin(actor, "manage vendors"); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name", "a name is required")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	vendor := &model.Vendor{
		Name:        name,
		Email:       email,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		State:       strings.TrimSpace(req.State),
		City:        strings.TrimSpace(req.City),
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.FindByEmail(txCtx, email); err == nil {
			return apperr.Conflict(fmt.Sprintf("a vendor with email %s already exists", email))
		}
		if err := s.repo.Create(txCtx, vendor); err != nil {
			return fmt.Errorf("failed to create vendor: %w", err)
		}
		return recordAudit(txCtx, s.audit, actor, model.ActionCreateVendor, vendor.ID.String(), vendor.Name, map[string]interface{}{
			"email": vendor.Email,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("vendor created", zap.String("vendor_id", vendor.ID.String()))
	return vendor, nil
}

func (s *vendorService) Update(ctx context.Context, actor model.Identity, id uuid.UUID, req UpdateVendorRequest) (*model.Vendor, error) {
	if err := requireAdmin(actor, "manage vendors"); err != nil {
		return nil, err
	}

	var vendor *model.Vendor
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		v, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if req.Email != nil && !strings.EqualFold(strings.TrimSpace(*req.Email), v.Email) {
			return apperr.Validation("email", "a vendor's email cannot be changed")
		}
		changed := map[string]interface{}{}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return apperr.Validation("name", "a name is required")
			}
			v.Name = name
			changed["name"] = name
		}
		if req.PhoneNumber != nil {
			v.PhoneNumber = strings.TrimSpace(*req.PhoneNumber)
			changed["phoneNumber"] = v.PhoneNumber
		}
		if req.State != nil {
			v.State = strings.TrimSpace(*req.State)
			changed["state"] = v.State
		}
		if req.City != nil {
			v.City = strings.TrimSpace(*req.City)
			changed["city"] = v.City
		}
		if err := s.repo.Update(txCtx, v); err != nil {
			return fmt.Errorf("failed to update vendor: %w", err)
		}
		vendor = v
		return recordAudit(txCtx, s.audit, actor, model.ActionUpdateVendor, v.ID.String(), v.Name, changed)
	})
	if err != nil {
		return nil, err
	}
	return vendor, nil
}

// Delete soft-deletes a vendor that has no open submissions.
func (s *vendorService) Delete(ctx context.Context, actor model.Identity, id uuid.UUID) error {
	if err := requireAdmin(actor, "manage vendors"); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		v, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		open, err := s.subs.CountOpenByVendor(txCtx, id)
		if err != nil {
			return fmt.Errorf("failed to check vendor usage: %w", err)
		}
		if open > 0 {
			return apperr.Conflict(fmt.Sprintf("vendor %s still has %d open submission(s)", v.Name, open))
		}
		if err := s.repo.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete vendor: %w", err)
		}
		return recordAudit(txCtx, s.audit, actor, model.ActionDeleteVendor, v.ID.String(), v.Name, map[string]interface{}{
			"email": v.Email,
		})
	})
}

func (s *vendorService) Get(ctx context.Context, id uuid.UUID) (*model.Vendor, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *vendorService) List(ctx context.Context, search string, page, limit int) (pagination.Page[model.Vendor], error) {
	p := pagination.Normalize(page, limit)
	vendors, total, err := s.repo.List(ctx, strings.TrimSpace(search), p.Page, p.Limit)
	if err != nil {
		return pagination.Page[model.Vendor]{}, fmt.Errorf("failed to list vendors: %w", err)
	}
	return pagination.NewPage(vendors, total, p), nil
}

// Suggest matches on name; empty input returns the first vendors by name.
func (s *vendorService) Suggest(ctx context.Context, search string) ([]model.Vendor, error) {
	vendors, err := s.repo.Suggest(ctx, strings.TrimSpace(search), SuggestLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest vendors: %w", err)
	}
	if vendors == nil {
		vendors = []model.Vendor{}
	}
	return vendors, nil
}
