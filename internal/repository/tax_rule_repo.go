package repository

import (
	"context"
	"time"

	"dealdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaxRuleRepository interface {
	Create(ctx context.Context, rule *model.TaxRule) error
	Update(ctx context.Context, rule *model.TaxRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.TaxRule, error)
	List(ctx context.Context, taxType string, page, limit int) ([]model.TaxRule, int64, error)
	FindActive(ctx context.Context, taxType string, at time.Time) (*model.TaxRule, error)
	CountOverlapping(ctx context.Context, taxType string, from time.Time, to *time.Time, excludeID *uuid.UUID) (int64, error)
}

type taxRuleRepository struct {
	db *gorm.DB
}

func NewTaxRuleRepository(db *gorm.DB) TaxRuleRepository {
	return &taxRuleRepository{db: db}
}

func (r *taxRuleRepository) Create(ctx context.Context, rule *model.TaxRule) error {
	return GetDB(ctx, r.db).Create(rule).Error
}

func (r *taxRuleRepository) Update(ctx context.Context, rule *model.TaxRule) error {
	return GetDB(ctx, r.db).Save(rule).Error
}

func (r *taxRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.TaxRule{}).Error
}

func (r *taxRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.TaxRule, error) {
	var rule model.TaxRule
	if err := GetDB(ctx, r.db).First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *taxRuleRepository) List(ctx context.Context, taxType string, page, limit int) ([]model.TaxRule, int64, error) {
	var rules []model.TaxRule
	var total int64

	byType := func(q *gorm.DB) *gorm.DB {
		if taxType != "" {
			return q.Where("tax_type = ?", taxType)
		}
		return q
	}

	db := GetDB(ctx, r.db)
	if err := byType(db.Model(&model.TaxRule{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := byType(db.Model(&model.TaxRule{})).Order("effective_from desc").Offset(offset).Limit(limit).Find(&rules).Error; err != nil {
		return nil, 0, err
	}

	return rules, total, nil
}

// FindActive returns the rule of taxType in force at `at`, preferring the most recent start date.
func (r *taxRuleRepository) FindActive(ctx context.Context, taxType string, at time.Time) (*model.TaxRule, error) {
	var rule model.TaxRule
	if err := GetDB(ctx, r.db).
		Where("tax_type = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)", taxType, at, at).
		Order("effective_from DESC").
		First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// CountOverlapping counts rules of taxType whose validity window intersects [from, to].
// A nil `to` means open-ended.
func (r *taxRuleRepository) CountOverlapping(ctx context.Context, taxType string, from time.Time, to *time.Time, excludeID *uuid.UUID) (int64, error) {
	var count int64
	q := GetDB(ctx, r.db).Model(&model.TaxRule{}).Where("tax_type = ?", taxType)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}
	q = q.Where("(effective_to IS NULL OR effective_to >= ?)", from)
	if to != nil {
		q = q.Where("effective_from <= ?", *to)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
