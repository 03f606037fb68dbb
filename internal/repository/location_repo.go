package repository

import (
	"context"

	"idportal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LocationRepository interface {
	Create(ctx context.Context, location *model.Location) error
	Update(ctx context.Context, location *model.Location) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Location, error)
	List(ctx context.Context, search string, page, limit int) ([]model.Location, int64, error)
	Suggest(ctx context.Context, search string, limit int) ([]model.Location, error)
}

type locationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) LocationRepository {
	return &locationRepository{db: db}
}

func (r *locationRepository) Create(ctx context.Context, location *model.Location) error {
	return translate(GetDB(ctx, r.db).Create(location).Error, "location")
}

func (r *locationRepository) Update(ctx context.Context, location *model.Location) error {
	return translate(GetDB(ctx, r.db).Save(location).Error, "location")
}

func (r *locationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Location{}).Error
}

func (r *locationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Location, error) {
	var location model.Location
	if err := GetDB(ctx, r.db).First(&location, "id = ?", id).Error; err != nil {
		return nil, translate(err, "location")
	}
	return &location, nil
}

func (r *locationRepository) List(ctx context.Context, search string, page, limit int) ([]model.Location, int64, error) {
	var locations []model.Location
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Location{})
	if search != "" {
		p := likePattern(search)
		query = query.Where("slug ILIKE ? OR pre_formatted_address ILIKE ?", p, p)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("slug ASC").Offset(offset).Limit(limit).Find(&locations).Error; err != nil {
		return nil, 0, err
	}
	return locations, total, nil
}

func (r *locationRepository) Suggest(ctx context.Context, search string, limit int) ([]model.Location, error) {
	var locations []model.Location
	query := GetDB(ctx, r.db).Model(&model.Location{})
	if search != "" {
		query = query.Where("slug ILIKE ?", likePattern(search))
	}
	if err := query.Order("slug ASC").Limit(limit).Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}
