package service

import (
	"context"
	"encoding/json"
	"fmt"

	"idportal/internal/model"
	"idportal/internal/repository"
	"idportal/pkg/pagination"

	"github.com/google/uuid"
)

type AuditService interface {
	GetAuditLogs(ctx context.Context, action string, page, limit int) (pagination.Page[model.AuditLog], error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) GetAuditLogs(ctx context.Context, action string, page, limit int) (pagination.Page[model.AuditLog], error) {
	p := pagination.Normalize(page, limit)
	logs, total, err := s.repo.List(ctx, action, p.Page, p.Limit)
	if err != nil {
		return pagination.Page[model.AuditLog]{}, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return pagination.NewPage(logs, total, p), nil
}

// recordAudit writes one audit row through whatever transaction ctx carries.
func recordAudit(ctx context.Context, repo repository.AuditRepository, actor model.Identity, action, entityID, entityName string, details map[string]interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	entry := &model.AuditLog{
		ActorRole:  actor.Role,
		ActorEmail: actor.Email,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(raw),
	}
	if actor.Role != model.RoleCandidate && actor.ID != uuid.Nil {
		id := actor.ID
		entry.ActorID = &id
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
