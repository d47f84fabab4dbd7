package repository

import (
	"context"
	"time"

	"dealdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	FindByDealAndKind(ctx context.Context, dealID uuid.UUID, kind string) (*model.Payment, error)
	ListByDeal(ctx context.Context, dealID uuid.UUID) ([]model.Payment, error)
	Confirm(ctx context.Context, id uuid.UUID, at time.Time) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

func (r *paymentRepository) FindByDealAndKind(ctx context.Context, dealID uuid.UUID, kind string) (*model.Payment, error) {
	var p model.Payment
	if err := GetDB(ctx, r.db).Where("deal_id = ? AND kind = ?", dealID, kind).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]model.Payment, error) {
	var list []model.Payment
	if err := GetDB(ctx, r.db).Where("deal_id = ?", dealID).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *paymentRepository) Confirm(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := GetDB(ctx, r.db).Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentRecorded).
		Updates(map[string]interface{}{"status": model.PaymentConfirmed, "confirmed_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
