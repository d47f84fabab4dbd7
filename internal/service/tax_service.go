package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealdesk/internal/model"
	"dealdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type TaxRuleRequest struct {
	TaxType       string `json:"tax_type" binding:"required,oneof=CONSUMPTION"`
	Rate          string `json:"rate" binding:"required"`           // percent, e.g. "10"
	EffectiveFrom string `json:"effective_from" binding:"required"` // YYYY-MM-DD
	EffectiveTo   string `json:"effective_to"`                      // YYYY-MM-DD, empty = open ended
	Description   string `json:"description"`
}

type TaxRuleResponse struct {
	ID            string  `json:"id"`
	TaxType       string  `json:"tax_type"`
	Rate          string  `json:"rate"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to"`
	Description   string  `json:"description"`
	CreatedAt     string  `json:"created_at"`
}

type ActiveTaxRateResponse struct {
	TaxType string `json:"tax_type"`
	Rate    string `json:"rate"`
	RuleID  string `json:"rule_id,omitempty"`
}

// --- Interface ---

type TaxService interface {
	GetTaxRules(ctx context.Context, taxType string, page, limit int) ([]TaxRuleResponse, int64, error)
	CreateTaxRule(ctx context.Context, req TaxRuleRequest, actor Actor) (TaxRuleResponse, error)
	UpdateTaxRule(ctx context.Context, id string, req TaxRuleRequest, actor Actor) (TaxRuleResponse, error)
	DeleteTaxRule(ctx context.Context, id string, actor Actor) error
	GetActiveTaxRate(ctx context.Context, taxType string, at time.Time) (ActiveTaxRateResponse, error)
	// ActiveRate is the consumption tax percent in force at the given time. When
	// no rule covers it the configured default applies and the rule id is nil.
	ActiveRate(ctx context.Context, at time.Time) (decimal.Decimal, *uuid.UUID, error)
}

type taxService struct {
	repo        repository.TaxRuleRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	defaultRate decimal.Decimal
}

func NewTaxService(repo repository.TaxRuleRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager, defaultRate decimal.Decimal) TaxService {
	return &taxService{repo: repo, auditRepo: auditRepo, txManager: txManager, defaultRate: defaultRate}
}

// --- Implementation ---

func (s *taxService) GetTaxRules(ctx context.Context, taxType string, page, limit int) ([]TaxRuleResponse, int64, error) {
	rules, total, err := s.repo.List(ctx, taxType, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch tax rules: %w", err)
	}

	res := make([]TaxRuleResponse, 0, len(rules))
	for _, r := range rules {
		res = append(res, toTaxRuleResponse(r))
	}
	return res, total, nil
}

func (s *taxService) CreateTaxRule(ctx context.Context, req TaxRuleRequest, actor Actor) (TaxRuleResponse, error) {
	rate, effectiveFrom, effectiveTo, err := parseTaxRuleFields(req)
	if err != nil {
		return TaxRuleResponse{}, err
	}

	rule := model.TaxRule{
		TaxType:       req.TaxType,
		Rate:          rate,
		EffectiveFrom: effectiveFrom,
		EffectiveTo:   effectiveTo,
		Description:   req.Description,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkOverlap(txCtx, req.TaxType, effectiveFrom, effectiveTo, nil); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, &rule); err != nil {
			return fmt.Errorf("failed to create tax rule: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor.idPtr(), model.ActionCreateTaxRule, rule.ID.String(), req.TaxType+" "+rate.StringFixed(4), req)
	})
	if err != nil {
		return TaxRuleResponse{}, err
	}

	return toTaxRuleResponse(rule), nil
}

func (s *taxService) UpdateTaxRule(ctx context.Context, id string, req TaxRuleRequest, actor Actor) (TaxRuleResponse, error) {
	ruleID, err := parseID("id", id)
	if err != nil {
		return TaxRuleResponse{}, err
	}

	rate, effectiveFrom, effectiveTo, err := parseTaxRuleFields(req)
	if err != nil {
		return TaxRuleResponse{}, err
	}

	var rule *model.TaxRule
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rule, err = s.repo.FindByID(txCtx, ruleID)
		if err != nil {
			return notFound(err, "tax rule")
		}
		if err := s.checkOverlap(txCtx, req.TaxType, effectiveFrom, effectiveTo, &ruleID); err != nil {
			return err
		}

		rule.TaxType = req.TaxType
		rule.Rate = rate
		rule.EffectiveFrom = effectiveFrom
		rule.EffectiveTo = effectiveTo
		rule.Description = req.Description

		if err := s.repo.Update(txCtx, rule); err != nil {
			return fmt.Errorf("failed to update tax rule: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor.idPtr(), model.ActionUpdateTaxRule, rule.ID.String(), req.TaxType+" "+rate.StringFixed(4), req)
	})
	if err != nil {
		return TaxRuleResponse{}, err
	}

	return toTaxRuleResponse(*rule), nil
}

func (s *taxService) DeleteTaxRule(ctx context.Context, id string, actor Actor) error {
	ruleID, err := parseID("id", id)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rule, err := s.repo.FindByID(txCtx, ruleID)
		if err != nil {
			return notFound(err, "tax rule")
		}
		if err := s.repo.Delete(txCtx, ruleID); err != nil {
			return fmt.Errorf("failed to delete tax rule: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor.idPtr(), model.ActionDeleteTaxRule, rule.ID.String(), rule.TaxType+" "+rule.Rate.StringFixed(4), map[string]string{"deleted_id": id})
	})
}

func (s *taxService) GetActiveTaxRate(ctx context.Context, taxType string, at time.Time) (ActiveTaxRateResponse, error) {
	rule, err := s.repo.FindActive(ctx, taxType, at)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ActiveTaxRateResponse{}, fmt.Errorf("no active %s tax rule on %s: %w", taxType, at.Format("2006-01-02"), ErrNotFound)
		}
		return ActiveTaxRateResponse{}, fmt.Errorf("failed to query active tax rate: %w", err)
	}

	return ActiveTaxRateResponse{
		TaxType: rule.TaxType,
		Rate:    rule.Rate.StringFixed(4),
		RuleID:  rule.ID.String(),
	}, nil
}

func (s *taxService) ActiveRate(ctx context.Context, at time.Time) (decimal.Decimal, *uuid.UUID, error) {
	rule, err := s.repo.FindActive(ctx, model.TaxTypeConsumption, at)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.defaultRate, nil, nil
		}
		return decimal.Zero, nil, fmt.Errorf("failed to query active tax rate: %w", err)
	}
	id := rule.ID
	return rule.Rate, &id, nil
}

// --- Helpers ---

var maxTaxRate = decimal.NewFromInt(100)

func parseTaxRuleFields(req TaxRuleRequest) (decimal.Decimal, time.Time, *time.Time, error) {
	if req.TaxType != model.TaxTypeConsumption {
		return decimal.Zero, time.Time{}, nil, invalid("tax_type", "must be %s", model.TaxTypeConsumption)
	}

	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		return decimal.Zero, time.Time{}, nil, invalid("rate", "must be a decimal number")
	}
	if rate.IsNegative() || rate.GreaterThan(maxTaxRate) {
		return decimal.Zero, time.Time{}, nil, invalid("rate", "must be between 0 and 100")
	}

	effectiveFrom, err := time.Parse("2006-01-02", req.EffectiveFrom)
	if err != nil {
		return decimal.Zero, time.Time{}, nil, invalid("effective_from", "expected YYYY-MM-DD")
	}

	var effectiveTo *time.Time
	if req.EffectiveTo != "" {
		t, err := time.Parse("2006-01-02", req.EffectiveTo)
		if err != nil {
			return decimal.Zero, time.Time{}, nil, invalid("effective_to", "expected YYYY-MM-DD")
		}
		if t.Before(effectiveFrom) {
			return decimal.Zero, time.Time{}, nil, invalid("effective_to", "must not be before effective_from")
		}
		effectiveTo = &t
	}

	return rate, effectiveFrom, effectiveTo, nil
}

func (s *taxService) checkOverlap(ctx context.Context, taxType string, from time.Time, to *time.Time, excludeID *uuid.UUID) error {
	count, err := s.repo.CountOverlapping(ctx, taxType, from, to, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check overlap: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("a %s tax rule with overlapping effective dates %w", taxType, ErrAlreadyExists)
	}
	return nil
}

func toTaxRuleResponse(r model.TaxRule) TaxRuleResponse {
	resp := TaxRuleResponse{
		ID:            r.ID.String(),
		TaxType:       r.TaxType,
		Rate:          r.Rate.StringFixed(4),
		EffectiveFrom: r.EffectiveFrom.Format("2006-01-02"),
		Description:   r.Description,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
	if r.EffectiveTo != nil {
		s := r.EffectiveTo.Format("2006-01-02")
		resp.EffectiveTo = &s
	}
	return resp
}
