package repository

import (
	"context"

	"dealdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ShippingRepository interface {
	Create(ctx context.Context, record *model.ShippingRecord) error
	Save(ctx context.Context, record *model.ShippingRecord) error
	FindByDeal(ctx context.Context, dealID uuid.UUID) (*model.ShippingRecord, error)
}

type shippingRepository struct {
	db *gorm.DB
}

func NewShippingRepository(db *gorm.DB) ShippingRepository {
	return &shippingRepository{db: db}
}

func (r *shippingRepository) Create(ctx context.Context, record *model.ShippingRecord) error {
	return GetDB(ctx, r.db).Create(record).Error
}

func (r *shippingRepository) Save(ctx context.Context, record *model.ShippingRecord) error {
	return GetDB(ctx, r.db).Save(record).Error
}

func (r *shippingRepository) FindByDeal(ctx context.Context, dealID uuid.UUID) (*model.ShippingRecord, error) {
	var rec model.ShippingRecord
	if err := GetDB(ctx, r.db).Where("deal_id = ?", dealID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}
