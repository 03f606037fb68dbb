package repository

import (
	"context"

	"idportal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VendorRepository interface {
	Create(ctx context.Context, vendor *model.Vendor) error
	Update(ctx context.Context, vendor *model.Vendor) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Vendor, error)
	FindByEmail(ctx context.Context, email string) (*model.Vendor, error)
	List(ctx context.Context, search string, page, limit int) ([]model.Vendor, int64, error)
	Suggest(ctx context.Context, search string, limit int) ([]model.Vendor, error)
}

type vendorRepository struct {
	db *gorm.DB
}

func NewVendorRepository(db *gorm.DB) VendorRepository {
	return &vendorRepository{db: db}
}

func (r *vendorRepository) Create(ctx context.Context, vendor *model.Vendor) error {
	return translate(GetDB(ctx, r.db).Create(vendor).Error, "vendor")
}

func (r *vendorRepository) Update(ctx context.Context, vendor *model.Vendor) error {
	return translate(GetDB(ctx, r.db).Save(vendor).Error, "vendor")
}

func (r *vendorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Vendor{}).Error
}

func (r *vendorRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Vendor, error) {
	var vendor model.Vendor
	if err := GetDB(ctx, r.db).First(&vendor, "id = ?", id).Error; err != nil {
		return nil, translate(err, "vendor")
	}
	return &vendor, nil
}

func (r *vendorRepository) FindByEmail(ctx context.Context, email string) (*model.Vendor, error) {
	var vendor model.Vendor
	if err := GetDB(ctx, r.db).First(&vendor, "LOWER(email) = LOWER(?)", email).Error; err != nil {
		return nil, translate(err, "vendor")
	}
	return &vendor, nil
}

func (r *vendorRepository) List(ctx context.Context, search string, page, limit int) ([]model.Vendor, int64, error) {
	var vendors []model.Vendor
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Vendor{})
	if search != "" {
		p := likePattern(search)
		query = query.Where("name ILIKE ? OR email ILIKE ? OR city ILIKE ? OR state ILIKE ?", p, p, p, p)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&vendors).Error; err != nil {
		return nil, 0, err
	}

	return vendors, total, nil
}

func (r *vendorRepository) Suggest(ctx context.Context, search string, limit int) ([]model.Vendor, error) {
	var vendors []model.Vendor
	query := GetDB(ctx, r.db).Model(&model.Vendor{})
	if search != "" {
		query = query.Where("name ILIKE ?", likePattern(search))
	}
	if err := query.Order("name ASC").Limit(limit).Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}
