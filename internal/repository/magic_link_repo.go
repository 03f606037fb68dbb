package repository

import (
	"context"
	"time"

	"idportal/internal/apperr"
	"idportal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MagicLinkRepository interface {
	Create(ctx context.Context, link *model.MagicLink) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.MagicLink, error)
	// MarkUsed consumes the link; a second call fails with a conflict.
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	// RevokeForSubject expires every unused link of a purpose for one subject.
	RevokeForSubject(ctx context.Context, purpose string, subjectID uuid.UUID, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type magicLinkRepository struct {
	db *gorm.DB
}

func NewMagicLinkRepository(db *gorm.DB) MagicLinkRepository {
	return &magicLinkRepository{db: db}
}

func (r *magicLinkRepository) Create(ctx context.Context, link *model.MagicLink) error {
	return GetDB(ctx, r.db).Create(link).Error
}

func (r *magicLinkRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.MagicLink, error) {
	var link model.MagicLink
	if err := GetDB(ctx, r.db).First(&link, "id = ?", id).Error; err != nil {
		return nil, translate(err, "link")
	}
	return &link, nil
}

func (r *magicLinkRepository) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := GetDB(ctx, r.db).Model(&model.MagicLink{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("link has already been used")
	}
	return nil
}

func (r *magicLinkRepository) RevokeForSubject(ctx context.Context, purpose string, subjectID uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.MagicLink{}).
		Where("purpose = ? AND subject_id = ? AND used_at IS NULL", purpose, subjectID).
		Update("used_at", at).Error
}

func (r *magicLinkRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := GetDB(ctx, r.db).Where("expires_at < ?", before).Delete(&model.MagicLink{})
	return res.RowsAffected, res.Error
}
