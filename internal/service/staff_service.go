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

// CreateStaffRequest adds an ADMIN or HR operator.
type CreateStaffRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// StaffService manages the users table (ADMIN and HR accounts).
type StaffService interface {
	Create(ctx context.Context, actor model.Identity, role model.Role, req CreateStaffRequest) (*model.User, error)
	List(ctx context.Context, role model.Role, search string, page, limit int) (pagination.Page[model.User], error)
	Delete(ctx context.Context, actor model.Identity, role model.Role, id uuid.UUID) error
}

type staffService struct {
	repo  repository.UserRepository
	audit repository.AuditRepository
	tx    repository.TransactionManager
	log   *zap.Logger
}

func NewStaffService(repo repository.UserRepository, audit repository.AuditRepository, tx repository.TransactionManager, log *zap.Logger) StaffService {
	if log == nil {
		log = zap.NewNop()
	}
	return &staffService{repo: repo, audit: audit, tx: tx, log: log}
}

func validStaffRole(role model.Role) error {
	if !role.StaffRole() {
		return apperr.Validation("role", fmt.Sprintf("%q is not a staff role", role))
	}
	return nil
}

func (s *staffService) Create(ctx context.Context, actor model.Identity, role model.Role, req CreateStaffRequest) (*model.User, error) {
	if err := requireAdmin(actor, "manage staff"); err != nil {
		return nil, err
	}
	if err := validStaffRole(role); err != nil {
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

	user := &model.User{Name: name, Email: email, Role: role}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// Double check email uniqueness via repo directly
		if _, err := s.repo.GetByEmail(txCtx, email); err == nil {
			return apperr.Conflict(fmt.Sprintf("an account with email %s already exists", email))
		}
		if err := s.repo.Create(txCtx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return recordAudit(txCtx, s.audit, actor, model.ActionCreateStaff, user.ID.String(), user.Name, map[string]interface{}{
			"email": user.Email,
			"role":  user.Role,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("staff account created", zap.String("user_id", user.ID.String()), zap.String("role", string(role)))
	return user, nil
}

func (s *staffService) List(ctx context.Context, role model.Role, search string, page, limit int) (pagination.Page[model.User], error) {
	if err := validStaffRole(role); err != nil {
		return pagination.Page[model.User]{}, err
	}
	p := pagination.Normalize(page, limit)
	users, total, err := s.repo.List(ctx, role, strings.TrimSpace(search), p.Page, p.Limit)
	if err != nil {
		return pagination.Page[model.User]{}, fmt.Errorf("failed to list users: %w", err)
	}
	return pagination.NewPage(users, total, p), nil
}

func (s *staffService) Delete(ctx context.Context, actor model.Identity, role model.Role, id uuid.UUID) error {
	if err := requireAdmin(actor, "manage staff"); err != nil {
		return err
	}
	if err := validStaffRole(role); err != nil {
		return err
	}
	if id == actor.ID {
		return apperr.Validation("id", "you cannot delete your own account")
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if user.Role != role {
			return apperr.NotFound(fmt.Sprintf("%s account not found", strings.ToLower(string(role))))
		}
		if err := s.repo.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return recordAudit(txCtx, s.audit, actor, model.ActionDeleteStaff, user.ID.String(), user.Name, map[string]interface{}{
			"email": user.Email,
			"role":  user.Role,
		})
	})
}
