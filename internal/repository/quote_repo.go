package repository

import (
	"context"
	"time"

	"dealdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DealQuoteRepository interface {
	Create(ctx context.Context, quote *model.DealQuote) error
	Save(ctx context.Context, quote *model.DealQuote) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.DealQuote, error)
	ListByDeal(ctx context.Context, dealID uuid.UUID) ([]model.DealQuote, error)
	ListByDealAndStatus(ctx context.Context, dealID uuid.UUID, statuses ...string) ([]model.DealQuote, error)
	FindApproved(ctx context.Context, dealID uuid.UUID) (*model.DealQuote, error)
	CountByStatus(ctx context.Context, dealID uuid.UUID) (map[string]int64, error)
	TransitionStatus(ctx context.Context, dealID uuid.UUID, from []string, to string) (int64, error)
	Approve(ctx context.Context, dealID, quoteID uuid.UUID, at time.Time) error
}

type dealQuoteRepository struct {
	db *gorm.DB
}

func NewDealQuoteRepository(db *gorm.DB) DealQuoteRepository {
	return &dealQuoteRepository{db: db}
}

func (r *dealQuoteRepository) Create(ctx context.Context, quote *model.DealQuote) error {
	return GetDB(ctx, r.db).Create(quote).Error
}

func (r *dealQuoteRepository) Save(ctx context.Context, quote *model.DealQuote) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(quote).Error
}

func (r *dealQuoteRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.DealQuote, error) {
	var quote model.DealQuote
	if err := GetDB(ctx, r.db).Preload("Factory").First(&quote, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *dealQuoteRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]model.DealQuote, error) {
	var quotes []model.DealQuote
	if err := GetDB(ctx, r.db).Preload("Factory").Where("deal_id = ?", dealID).Order("created_at ASC").Find(&quotes).Error; err != nil {
		return nil, err
	}
	return quotes, nil
}

func (r *dealQuoteRepository) ListByDealAndStatus(ctx context.Context, dealID uuid.UUID, statuses ...string) ([]model.DealQuote, error) {
	var quotes []model.DealQuote
	if err := GetDB(ctx, r.db).Where("deal_id = ? AND status IN ?", dealID, statuses).Order("created_at ASC").Find(&quotes).Error; err != nil {
		return nil, err
	}
	return quotes, nil
}

func (r *dealQuoteRepository) FindApproved(ctx context.Context, dealID uuid.UUID) (*model.DealQuote, error) {
	var quote model.DealQuote
	if err := GetDB(ctx, r.db).Where("deal_id = ? AND status = ?", dealID, model.QuoteApproved).First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *dealQuoteRepository) CountByStatus(ctx context.Context, dealID uuid.UUID) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := GetDB(ctx, r.db).Model(&model.DealQuote{}).
		Select("status, COUNT(*) AS count").
		Where("deal_id = ?", dealID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// TransitionStatus moves every quote of the deal in one of the from statuses to `to`.
func (r *dealQuoteRepository) TransitionStatus(ctx context.Context, dealID uuid.UUID, from []string, to string) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.DealQuote{}).
		Where("deal_id = ? AND status IN ?", dealID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// Approve demotes any currently approved quote of the deal to revising before
// approving quoteID, so the deal never holds two approved quotes.
func (r *dealQuoteRepository) Approve(ctx context.Context, dealID, quoteID uuid.UUID, at time.Time) error {
	db := GetDB(ctx, r.db)
	if err := db.Model(&model.DealQuote{}).
		Where("deal_id = ? AND status = ? AND id <> ?", dealID, model.QuoteApproved, quoteID).
		Updates(map[string]interface{}{"status": model.QuoteRevising, "approved_at": nil, "updated_at": at}).Error; err != nil {
		return err
	}
	res := db.Model(&model.DealQuote{}).
		Where("id = ? AND deal_id = ?", quoteID, dealID).
		Updates(map[string]interface{}{"status": model.QuoteApproved, "approved_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
