package repository

import (
	"context"
	"time"

	"idportal/internal/apperr"
	"idportal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubmissionFilter narrows a listing. Zero values mean "any".
type SubmissionFilter struct {
	Search     string
	Status     model.Status
	Stage      model.Stage
	Type       model.SubmissionType
	LocationID *uuid.UUID
	VendorID   *uuid.UUID
	Page       int
	Limit      int
}

type SubmissionRepository interface {
	Create(ctx context.Context, sub *model.Submission) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	// CompareAndSwap writes every mutable column of sub if the stored version
	// still equals expectedVersion, then bumps sub.Version.
	CompareAndSwap(ctx context.Context, sub *model.Submission, expectedVersion int) error
	List(ctx context.Context, filter SubmissionFilter) ([]model.Submission, int64, error)
	CountOpenByVendor(ctx context.Context, vendorID uuid.UUID) (int64, error)
	CountOpenByLocation(ctx context.Context, locationID uuid.UUID) (int64, error)
}

type submissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// withRelations preloads vendor and location including soft-deleted rows so
// closed submissions keep rendering their historical references.
func withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Location", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }).
		Preload("Vendor", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() })
}

func (r *submissionRepository) Create(ctx context.Context, sub *model.Submission) error {
	if sub.Version == 0 {
		sub.Version = 1
	}
	return translate(GetDB(ctx, r.db).Create(sub).Error, "submission")
}

func (r *submissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	var sub model.Submission
	if err := withRelations(GetDB(ctx, r.db)).First(&sub, "id = ?", id).Error; err != nil {
		return nil, translate(err, "submission")
	}
	return &sub, nil
}

func (r *submissionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	var sub model.Submission
	err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&sub, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "submission")
	}
	return &sub, nil
}

func (r *submissionRepository) CompareAndSwap(ctx context.Context, sub *model.Submission, expectedVersion int) error {
	now := time.Now()
	res := GetDB(ctx, r.db).
		Model(&model.Submission{}).
		Where("id = ? AND version = ?", sub.ID, expectedVersion).
		Updates(map[string]interface{}{
			"name":        sub.Name,
			"email":       sub.Email,
			"employee_id": sub.EmployeeID,
			"photo_url":   sub.PhotoURL,
			"location_id": sub.LocationID,
			"status":      sub.Status,
			"stage":       sub.Stage,
			"vendor_id":   sub.VendorID,
			"comments":    sub.Comments,
			"version":     expectedVersion + 1,
			"updated_at":  now,
		})
	if res.Error != nil {
		return translate(res.Error, "submission")
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("submission was changed by someone else, reload and try again")
	}
	sub.Version = expectedVersion + 1
	sub.UpdatedAt = now
	return nil
}

func applySubmissionFilter(query *gorm.DB, f SubmissionFilter) *gorm.DB {
	if f.Search != "" {
		p := likePattern(f.Search)
		query = query.Where("name ILIKE ? OR email ILIKE ? OR employee_id ILIKE ?", p, p, p)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Stage != "" {
		query = query.Where("stage = ?", f.Stage)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.LocationID != nil {
		query = query.Where("location_id = ?", *f.LocationID)
	}
	if f.VendorID != nil {
		query = query.Where("vendor_id = ?", *f.VendorID)
	}
	return query
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]model.Submission, int64, error) {
	var subs []model.Submission
	var total int64

	db := GetDB(ctx, r.db)
	if err := applySubmissionFilter(db.Model(&model.Submission{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	fetchQuery := applySubmissionFilter(withRelations(db.Model(&model.Submission{})), filter)
	if err := fetchQuery.Order("updated_at DESC").Offset(offset).Limit(filter.Limit).Find(&subs).Error; err != nil {
		return nil, 0, err
	}

	return subs, total, nil
}

var openStatuses = []model.Status{model.StatusPending, model.StatusApproved, model.StatusNeedChanges}

func (r *submissionRepository) CountOpenByVendor(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Submission{}).
		Where("vendor_id = ? AND status IN ?", vendorID, openStatuses).
		Count(&n).Error
	return n, err
}

func (r *submissionRepository) CountOpenByLocation(ctx context.Context, locationID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Submission{}).
		Where("location_id = ? AND status IN ?", locationID, openStatuses).
		Count(&n).Error
	return n, err
}
