package repository

import (
	"context"

	"dealdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PriceRecordFilter selects the corpus for an estimate. Empty fields match everything.
type PriceRecordFilter struct {
	Category  string
	Material  string
	FactoryID *uuid.UUID
}

// PriceRecordRepository has no update or delete: records are write-once.
type PriceRecordRepository interface {
	Create(ctx context.Context, record *model.PriceRecord) error
	CreateBatch(ctx context.Context, records []model.PriceRecord) error
	Find(ctx context.Context, filter PriceRecordFilter) ([]model.PriceRecord, error)
	List(ctx context.Context, filter PriceRecordFilter, page, limit int) ([]model.PriceRecord, int64, error)
}

type priceRecordRepository struct {
	db *gorm.DB
}

func NewPriceRecordRepository(db *gorm.DB) PriceRecordRepository {
	return &priceRecordRepository{db: db}
}

func (r *priceRecordRepository) Create(ctx context.Context, record *model.PriceRecord) error {
	return GetDB(ctx, r.db).Create(record).Error
}

func (r *priceRecordRepository) CreateBatch(ctx context.Context, records []model.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).CreateInBatches(&records, 200).Error
}

func (f PriceRecordFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Category != "" {
		q = q.Where("LOWER(category) = LOWER(?)", f.Category)
	}
	if f.Material != "" {
		q = q.Where("LOWER(material) = LOWER(?)", f.Material)
	}
	if f.FactoryID != nil {
		q = q.Where("factory_id = ?", *f.FactoryID)
	}
	return q
}

func (r *priceRecordRepository) Find(ctx context.Context, filter PriceRecordFilter) ([]model.PriceRecord, error) {
	var records []model.PriceRecord
	if err := filter.apply(GetDB(ctx, r.db).Model(&model.PriceRecord{})).
		Preload("Factory").
		Order("recorded_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *priceRecordRepository) List(ctx context.Context, filter PriceRecordFilter, page, limit int) ([]model.PriceRecord, int64, error) {
	var records []model.PriceRecord
	var total int64

	db := GetDB(ctx, r.db)
	if err := filter.apply(db.Model(&model.PriceRecord{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := filter.apply(db.Model(&model.PriceRecord{})).Preload("Factory").
		Order("recorded_at DESC").Offset(offset).Limit(limit).Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
