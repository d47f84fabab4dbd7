package repository

import (
	"context"
	"errors"
	"time"

	"dealdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FactoryAssignmentRepository interface {
	Ensure(ctx context.Context, dealID, factoryID uuid.UUID, status string) (*model.FactoryAssignment, error)
	ListByDeal(ctx context.Context, dealID uuid.UUID) ([]model.FactoryAssignment, error)
	SetStatus(ctx context.Context, dealID, factoryID uuid.UUID, status string) error
	TransitionStatus(ctx context.Context, dealID uuid.UUID, from []string, to string) (int64, error)
	Select(ctx context.Context, dealID, factoryID uuid.UUID) error
}

type factoryAssignmentRepository struct {
	db *gorm.DB
}

func NewFactoryAssignmentRepository(db *gorm.DB) FactoryAssignmentRepository {
	return &factoryAssignmentRepository{db: db}
}

// Ensure returns the existing assignment for (deal, factory) or creates one with status.
func (r *factoryAssignmentRepository) Ensure(ctx context.Context, dealID, factoryID uuid.UUID, status string) (*model.FactoryAssignment, error) {
	db := GetDB(ctx, r.db)
	var a model.FactoryAssignment
	err := db.Where("deal_id = ? AND factory_id = ?", dealID, factoryID).First(&a).Error
	if err == nil {
		return &a, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	a = model.FactoryAssignment{DealID: dealID, FactoryID: factoryID, Status: status}
	if err := db.Create(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *factoryAssignmentRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]model.FactoryAssignment, error) {
	var list []model.FactoryAssignment
	if err := GetDB(ctx, r.db).Preload("Factory").Where("deal_id = ?", dealID).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *factoryAssignmentRepository) SetStatus(ctx context.Context, dealID, factoryID uuid.UUID, status string) error {
	res := GetDB(ctx, r.db).Model(&model.FactoryAssignment{}).
		Where("deal_id = ? AND factory_id = ?", dealID, factoryID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *factoryAssignmentRepository) TransitionStatus(ctx context.Context, dealID uuid.UUID, from []string, to string) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.FactoryAssignment{}).
		Where("deal_id = ? AND status IN ?", dealID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// Select marks factoryID as the producing factory and declines every other assignment.
func (r *factoryAssignmentRepository) Select(ctx context.Context, dealID, factoryID uuid.UUID) error {
	if _, err := r.Ensure(ctx, dealID, factoryID, model.AssignmentSelected); err != nil {
		return err
	}
	db := GetDB(ctx, r.db)
	now := time.Now()
	if err := db.Model(&model.FactoryAssignment{}).
		Where("deal_id = ? AND factory_id <> ?", dealID, factoryID).
		Updates(map[string]interface{}{"status": model.AssignmentDeclined, "updated_at": now}).Error; err != nil {
		return err
	}
	return db.Model(&model.FactoryAssignment{}).
		Where("deal_id = ? AND factory_id = ?", dealID, factoryID).
		Updates(map[string]interface{}{"status": model.AssignmentSelected, "updated_at": now}).Error
}
