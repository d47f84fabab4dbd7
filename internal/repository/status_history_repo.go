package repository

import (
	"context"

	"dealdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusHistoryRepository is insert-only.
type StatusHistoryRepository interface {
	Append(ctx context.Context, entry *model.StatusHistory) error
	ListByDeal(ctx context.Context, dealID uuid.UUID) ([]model.StatusHistory, error)
	Latest(ctx context.Context, dealID uuid.UUID) (*model.StatusHistory, error)
}

type statusHistoryRepository struct {
	db *gorm.DB
}

func NewStatusHistoryRepository(db *gorm.DB) StatusHistoryRepository {
	return &statusHistoryRepository{db: db}
}

// Append assigns the next sequence number for the deal and inserts the row.
// Callers hold the deal row lock, so sequence numbers cannot collide.
func (r *statusHistoryRepository) Append(ctx context.Context, entry *model.StatusHistory) error {
	db := GetDB(ctx, r.db)
	var maxSeq int64
	if err := db.Model(&model.StatusHistory{}).
		Where("deal_id = ?", entry.DealID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error; err != nil {
		return err
	}
	entry.Seq = maxSeq + 1
	return db.Create(entry).Error
}

func (r *statusHistoryRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]model.StatusHistory, error) {
	var entries []model.StatusHistory
	if err := GetDB(ctx, r.db).Where("deal_id = ?", dealID).Order("seq ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *statusHistoryRepository) Latest(ctx context.Context, dealID uuid.UUID) (*model.StatusHistory, error) {
	var entry model.StatusHistory
	if err := GetDB(ctx, r.db).Where("deal_id = ?", dealID).Order("seq DESC").First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
