package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dealdesk/internal/cache"
	"dealdesk/internal/estimator"
	"dealdesk/internal/lifecycle"
	"dealdesk/internal/metrics"
	"dealdesk/internal/model"
	"dealdesk/internal/pricing"
	"dealdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EstimateCacheNamespace holds cached estimates; price imports bump its generation.
const EstimateCacheNamespace = "estimates"

// --- DTOs ---

type EstimateRequest struct {
	Category string `json:"category" binding:"required"`
	Material string `json:"material" binding:"required"`
	Size     string `json:"size"`
	Printing string `json:"printing"`
	Quantity int64  `json:"quantity" binding:"required"`
}

func (r EstimateRequest) criteria() estimator.Criteria {
	return estimator.Criteria{
		Category: strings.TrimSpace(r.Category),
		Material: strings.TrimSpace(r.Material),
		Size:     strings.TrimSpace(r.Size),
		Printing: strings.TrimSpace(r.Printing),
		Quantity: r.Quantity,
	}
}

type EstimateResponse struct {
	Criteria  estimator.Criteria          `json:"criteria"`
	Estimates []estimator.FactoryEstimate `json:"estimates"`
}

// AdoptEstimateRequest turns the estimate for one factory into the deal's first quote.
type AdoptEstimateRequest struct {
	FactoryID     string           `json:"factory_id" binding:"required"`
	ExchangeRate  decimal.Decimal  `json:"exchange_rate" swaggertype:"string" example:"150"`
	CostRatio     *decimal.Decimal `json:"cost_ratio,omitempty" swaggertype:"string" example:"0.55"`
	PaymentMethod string           `json:"payment_method" example:"wise"`
	Note          string           `json:"note"`
}

// --- Interface ---

type EstimateService interface {
	Estimate(ctx context.Context, req EstimateRequest) (EstimateResponse, error)
	Adopt(ctx context.Context, dealID string, req AdoptEstimateRequest, actor Actor) (ActionResult, error)
}

type EstimateDeps struct {
	Records          repository.PriceRecordRepository
	Deals            repository.DealRepository
	DealService      DealService
	Cache            *cache.Cache
	Options          estimator.Options
	DefaultCostRatio decimal.Decimal
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
}

type estimateService struct {
	EstimateDeps
	now func() time.Time
}

func NewEstimateService(deps EstimateDeps) EstimateService {
	if deps.Cache == nil {
		deps.Cache = cache.New(nil, 0)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &estimateService{EstimateDeps: deps, now: time.Now}
}

func (s *estimateService) Estimate(ctx context.Context, req EstimateRequest) (EstimateResponse, error) {
	started := s.now()
	c := req.criteria()
	if err := c.Validate(); err != nil {
		s.Metrics.ObserveEstimate(started, "invalid")
		return EstimateResponse{}, err
	}

	key := cache.Key(strings.ToLower(c.Category), strings.ToLower(c.Material),
		strings.ToLower(c.Size), strings.ToLower(c.Printing), strconv.FormatInt(c.Quantity, 10))
	estimates, err := cache.Load(ctx, s.Cache, EstimateCacheNamespace, key, func(ctx context.Context) ([]estimator.FactoryEstimate, error) {
		return s.compute(ctx, c, nil)
	})
	if err != nil {
		s.Metrics.ObserveEstimate(started, "error")
		return EstimateResponse{}, err
	}

	outcome := "ok"
	if len(estimates) == 0 {
		outcome = "empty"
	}
	s.Metrics.ObserveEstimate(started, outcome)
	s.Logger.Debug("estimate computed",
		zap.String("category", c.Category),
		zap.String("material", c.Material),
		zap.Int64("quantity", c.Quantity),
		zap.Int("factories", len(estimates)))
	return EstimateResponse{Criteria: c, Estimates: estimates}, nil
}

func (s *estimateService) compute(ctx context.Context, c estimator.Criteria, factoryID *uuid.UUID) ([]estimator.FactoryEstimate, error) {
	rows, err := s.Records.Find(ctx, repository.PriceRecordFilter{
		Category:  c.Category,
		Material:  c.Material,
		FactoryID: factoryID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load price records: %w", err)
	}
	return estimator.Estimate(toEstimatorRecords(rows), c, s.now(), s.Options)
}

// Adopt re-derives the estimate for the chosen factory from the deal's own
// specification and fires adoptEstimate with it, so clients cannot inject prices.
func (s *estimateService) Adopt(ctx context.Context, dealID string, req AdoptEstimateRequest, actor Actor) (ActionResult, error) {
	did, err := parseID("deal_id", dealID)
	if err != nil {
		return ActionResult{}, err
	}
	factoryID, err := parseID("factory_id", req.FactoryID)
	if err != nil {
		return ActionResult{}, err
	}
	method := pricing.PaymentMethod(req.PaymentMethod)
	if !method.Valid() {
		return ActionResult{}, invalid("payment_method", "must be one of wise, alibaba_cc, bank_transfer")
	}
	if !req.ExchangeRate.IsPositive() {
		return ActionResult{}, invalid("exchange_rate", "must be greater than 0")
	}

	deal, err := s.Deals.FindByID(ctx, did)
	if err != nil {
		return ActionResult{}, notFound(err, "deal")
	}

	c := estimator.Criteria{
		Category: deal.Category,
		Material: deal.Material,
		Size:     deal.Size,
		Printing: deal.Printing,
		Quantity: deal.Quantity,
	}
	estimates, err := s.compute(ctx, c, &factoryID)
	if err != nil {
		return ActionResult{}, err
	}
	if len(estimates) == 0 {
		return ActionResult{}, invalid("factory_id", "no price history for this factory matches the deal")
	}
	est := estimates[0]

	costRatio := s.DefaultCostRatio
	if req.CostRatio != nil {
		costRatio = *req.CostRatio
	}
	return s.DealService.ApplyAction(ctx, dealID, ActionRequest{
		Action: lifecycle.ActionAdoptEstimate,
		Actor:  actor,
		Note:   req.Note,
		Estimate: &AdoptedEstimate{
			FactoryID:     factoryID,
			UnitPriceUsd:  est.EstimatedUnitPriceUsd,
			ShippingUsd:   est.EstimatedShippingUsd,
			Confidence:    string(est.Confidence),
			CostRatio:     costRatio,
			ExchangeRate:  req.ExchangeRate,
			PaymentMethod: method,
		},
	})
}

func toEstimatorRecords(rows []model.PriceRecord) []estimator.PriceRecord {
	out := make([]estimator.PriceRecord, 0, len(rows))
	for _, r := range rows {
		rec := estimator.PriceRecord{
			FactoryID:    r.FactoryID.String(),
			Category:     r.Category,
			Material:     r.Material,
			Size:         r.Size,
			Printing:     r.Printing,
			Quantity:     r.Quantity,
			UnitPriceUsd: r.UnitPriceUsd,
			ShippingUsd:  r.ShippingUsd,
			RecordedAt:   r.RecordedAt,
		}
		if r.Factory != nil {
			rec.FactoryName = r.Factory.Name
		}
		out = append(out, rec)
	}
	return out
}
