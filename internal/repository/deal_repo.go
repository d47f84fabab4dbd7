package repository

import (
	"context"
	"errors"
	"time"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrVersionConflict means the deal changed between read and write.
var ErrVersionConflict = errors.New("deal version conflict")

// DealFilter narrows deal listings
type DealFilter struct {
	Status   lifecycle.Status
	ClientID *uuid.UUID
	Search   string
}

type DealRepository interface {
	Create(ctx context.Context, deal *model.Deal) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Deal, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Deal, error)
	List(ctx context.Context, filter DealFilter, page, limit int) ([]model.Deal, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to lifecycle.Status) error
	CountByPrefix(ctx context.Context, prefix string) (int64, error)
}

type dealRepository struct {
	db *gorm.DB
}

func NewDealRepository(db *gorm.DB) DealRepository {
	return &dealRepository{db: db}
}

func (r *dealRepository) Create(ctx context.Context, deal *model.Deal) error {
	return GetDB(ctx, r.db).Create(deal).Error
}

func (r *dealRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Deal, error) {
	var deal model.Deal
	if err := GetDB(ctx, r.db).Preload("Client").First(&deal, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &deal, nil
}

// FindByIDForUpdate locks the deal row for the rest of the surrounding transaction.
func (r *dealRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Deal, error) {
	var deal model.Deal
	if err := forUpdate(GetDB(ctx, r.db)).First(&deal, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *dealRepository) List(ctx context.Context, filter DealFilter, page, limit int) ([]model.Deal, int64, error) {
	var deals []model.Deal
	var total int64

	db := GetDB(ctx, r.db)
	apply := func(q *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.ClientID != nil {
			q = q.Where("client_id = ?", *filter.ClientID)
		}
		if filter.Search != "" {
			like := "%" + filter.Search + "%"
			q = q.Where("(LOWER(code) LIKE LOWER(?) OR LOWER(title) LIKE LOWER(?))", like, like)
		}
		return q
	}

	if err := apply(db.Model(&model.Deal{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := apply(db.Model(&model.Deal{})).Preload("Client").Order("created_at DESC").Offset(offset).Limit(limit).Find(&deals).Error; err != nil {
		return nil, 0, err
	}

	return deals, total, nil
}

// UpdateStatus writes the new status only if the row still has expectedVersion,
// and bumps the version. A stale version returns ErrVersionConflict.
func (r *dealRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to lifecycle.Status) error {
	res := GetDB(ctx, r.db).Model(&model.Deal{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"status":     to,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *dealRepository) CountByPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Deal{}).Where("code LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
