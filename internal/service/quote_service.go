package service

import (
	"context"
	"fmt"
	"time"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/metrics"
	"dealdesk/internal/model"
	"dealdesk/internal/pricing"
	"dealdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

// QuoteCalcRequest is the engine input as the API accepts it. CostRatio and
// TaxRate fall back to the configured cost ratio and the active consumption tax.
type QuoteCalcRequest struct {
	FactoryUnitPriceUsd decimal.Decimal  `json:"factory_unit_price_usd" swaggertype:"string" example:"2.50"`
	Quantity            int64            `json:"quantity" example:"1000"`
	ShippingCostUsd     decimal.Decimal  `json:"shipping_cost_usd" swaggertype:"string" example:"180"`
	PlateFeeUsd         decimal.Decimal  `json:"plate_fee_usd" swaggertype:"string" example:"0"`
	OtherFeesUsd        decimal.Decimal  `json:"other_fees_usd" swaggertype:"string" example:"0"`
	CostRatio           *decimal.Decimal `json:"cost_ratio,omitempty" swaggertype:"string" example:"0.55"`
	ExchangeRate        decimal.Decimal  `json:"exchange_rate" swaggertype:"string" example:"150"`
	TaxRate             *decimal.Decimal `json:"tax_rate,omitempty" swaggertype:"string" example:"10"`
	PaymentMethod       string           `json:"payment_method" example:"wise"`
}

type QuantitiesRequest struct {
	QuoteCalcRequest
	Quantities []int64 `json:"quantities" binding:"required,min=1"`
}

// DealQuoteRequest prices a factory's offer for a deal. Quantity defaults to the deal's quantity.
type DealQuoteRequest struct {
	FactoryID string `json:"factory_id" binding:"required"`
	QuoteCalcRequest
}

type DealQuoteResponse struct {
	ID                  uuid.UUID       `json:"id"`
	DealID              uuid.UUID       `json:"deal_id"`
	FactoryID           uuid.UUID       `json:"factory_id"`
	FactoryName         string          `json:"factory_name,omitempty"`
	Status              string          `json:"status"`
	Source              string          `json:"source"`
	Confidence          string          `json:"confidence,omitempty"`
	FactoryUnitPriceUsd decimal.Decimal `json:"factory_unit_price_usd"`
	Quantity            int64           `json:"quantity"`
	ShippingCostUsd     decimal.Decimal `json:"shipping_cost_usd"`
	PlateFeeUsd         decimal.Decimal `json:"plate_fee_usd"`
	OtherFeesUsd        decimal.Decimal `json:"other_fees_usd"`
	CostRatio           decimal.Decimal `json:"cost_ratio"`
	ExchangeRate        decimal.Decimal `json:"exchange_rate"`
	TaxRate             decimal.Decimal `json:"tax_rate"`
	PaymentMethod       string          `json:"payment_method"`
	SubtotalUsd         decimal.Decimal `json:"subtotal_usd"`
	PaymentFeeUsd       decimal.Decimal `json:"payment_fee_usd"`
	TotalCostUsd        decimal.Decimal `json:"total_cost_usd"`
	UnitCostUsd         decimal.Decimal `json:"unit_cost_usd"`
	SellingPriceUsd     decimal.Decimal `json:"selling_price_usd"`
	SellingPriceJpy     int64           `json:"selling_price_jpy"`
	TotalBillingJpy     int64           `json:"total_billing_jpy"`
	TotalBillingTaxJpy  int64           `json:"total_billing_tax_jpy"`
	GrossProfitUsd      decimal.Decimal `json:"gross_profit_usd"`
	GrossProfitMargin   decimal.Decimal `json:"gross_profit_margin"`
	FactoryObligation   decimal.Decimal `json:"factory_obligation_usd"`
	ApprovedAt          *time.Time      `json:"approved_at"`
	CreatedAt           time.Time       `json:"created_at"`
}

// --- Interface ---

type QuoteService interface {
	Calculate(ctx context.Context, req QuoteCalcRequest) (pricing.QuoteResult, error)
	Compare(ctx context.Context, req QuoteCalcRequest) (pricing.PaymentComparison, error)
	CalculateQuantities(ctx context.Context, req QuantitiesRequest) ([]pricing.QuoteResult, error)
	CreateDealQuote(ctx context.Context, dealID string, req DealQuoteRequest, actor Actor) (DealQuoteResponse, error)
	UpdateDealQuote(ctx context.Context, dealID, quoteID string, req QuoteCalcRequest, actor Actor) (DealQuoteResponse, error)
	ListDealQuotes(ctx context.Context, dealID string) ([]DealQuoteResponse, error)
}

type QuoteDeps struct {
	TxManager        repository.TransactionManager
	Deals            repository.DealRepository
	Quotes           repository.DealQuoteRepository
	Assignments      repository.FactoryAssignmentRepository
	Partners         repository.PartnerRepository
	Audit            repository.AuditRepository
	Taxes            TaxService
	Calculator       pricing.Calculator
	DefaultCostRatio decimal.Decimal
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
}

type quoteService struct {
	QuoteDeps
	now func() time.Time
}

func NewQuoteService(deps QuoteDeps) QuoteService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &quoteService{QuoteDeps: deps, now: time.Now}
}

// input resolves the optional fields of a request into a complete engine input.
func (s *quoteService) input(ctx context.Context, req QuoteCalcRequest) (pricing.QuoteInput, error) {
	in := pricing.QuoteInput{
		FactoryUnitPriceUsd: req.FactoryUnitPriceUsd,
		Quantity:            req.Quantity,
		ShippingCostUsd:     req.ShippingCostUsd,
		PlateFeeUsd:         req.PlateFeeUsd,
		OtherFeesUsd:        req.OtherFeesUsd,
		CostRatio:           s.DefaultCostRatio,
		ExchangeRate:        req.ExchangeRate,
		PaymentMethod:       pricing.PaymentMethod(req.PaymentMethod),
	}
	if req.CostRatio != nil {
		in.CostRatio = *req.CostRatio
	}
	if req.TaxRate != nil {
		in.TaxRate = *req.TaxRate
	} else {
		rate, _, err := s.Taxes.ActiveRate(ctx, s.now())
		if err != nil {
			return in, err
		}
		in.TaxRate = rate
	}
	return in, nil
}

func (s *quoteService) Calculate(ctx context.Context, req QuoteCalcRequest) (pricing.QuoteResult, error) {
	in, err := s.input(ctx, req)
	if err != nil {
		return pricing.QuoteResult{}, err
	}
	res, err := s.Calculator.Calculate(in)
	if err != nil {
		return pricing.QuoteResult{}, err
	}
	s.Metrics.RecordQuoteCalculation("calculate")
	return res, nil
}

func (s *quoteService) Compare(ctx context.Context, req QuoteCalcRequest) (pricing.PaymentComparison, error) {
	in, err := s.input(ctx, req)
	if err != nil {
		return pricing.PaymentComparison{}, err
	}
	res, err := s.Calculator.Compare(in)
	if err != nil {
		return pricing.PaymentComparison{}, err
	}
	s.Metrics.RecordQuoteCalculation("compare")
	return res, nil
}

func (s *quoteService) CalculateQuantities(ctx context.Context, req QuantitiesRequest) ([]pricing.QuoteResult, error) {
	if len(req.Quantities) == 0 {
		return nil, invalid("quantities", "at least one quantity is required")
	}
	base := req.QuoteCalcRequest
	if base.Quantity == 0 {
		base.Quantity = req.Quantities[0]
	}
	in, err := s.input(ctx, base)
	if err != nil {
		return nil, err
	}
	res, err := s.Calculator.CalculateMultipleQuantities(in, req.Quantities)
	if err != nil {
		return nil, err
	}
	s.Metrics.RecordQuoteCalculation("quantities")
	return res, nil
}

// quotableUntil is the last status at which quotes may still be entered or edited.
const quotableUntil = lifecycle.M10

func (s *quoteService) CreateDealQuote(ctx context.Context, dealID string, req DealQuoteRequest, actor Actor) (DealQuoteResponse, error) {
	did, err := parseID("deal_id", dealID)
	if err != nil {
		return DealQuoteResponse{}, err
	}
	factoryID, err := parseID("factory_id", req.FactoryID)
	if err != nil {
		return DealQuoteResponse{}, err
	}

	var quote *model.DealQuote
	err = s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		deal, err := s.Deals.FindByIDForUpdate(txCtx, did)
		if err != nil {
			return notFound(err, "deal")
		}
		if deal.Status.Number() > quotableUntil.Number() {
			return invalid("deal_id", "deal %s is past quoting (status %s)", deal.Code, deal.Status)
		}

		factory, err := s.Partners.FindByID(txCtx, factoryID)
		if err != nil {
			return notFound(err, "factory")
		}
		if factory.Type != model.PartnerTypeFactory {
			return invalid("factory_id", "partner %s is not a factory", factory.Code)
		}

		calc := req.QuoteCalcRequest
		if calc.Quantity == 0 {
			calc.Quantity = deal.Quantity
		}
		in, err := s.input(txCtx, calc)
		if err != nil {
			return err
		}
		res, err := s.Calculator.Calculate(in)
		if err != nil {
			return err
		}

		quote = &model.DealQuote{
			DealID:    deal.ID,
			FactoryID: factory.ID,
			Status:    model.QuoteDrafting,
			Source:    model.QuoteSourceManual,
			CreatedBy: actor.idPtr(),
		}
		quote.ApplyResult(res)
		if err := s.Quotes.Create(txCtx, quote); err != nil {
			return fmt.Errorf("failed to create quote: %w", err)
		}
		quote.Factory = factory

		initial := model.AssignmentRequested
		if deal.Status == lifecycle.M01 {
			initial = model.AssignmentCandidate
		}
		if _, err := s.Assignments.Ensure(txCtx, deal.ID, factory.ID, initial); err != nil {
			return fmt.Errorf("failed to assign factory: %w", err)
		}

		return writeAudit(txCtx, s.Audit, actor.idPtr(), model.ActionCreateQuote, quote.ID.String(), deal.Code, map[string]string{
			"factory":           factory.Code,
			"payment_method":    quote.PaymentMethod,
			"total_cost_usd":    quote.TotalCostUsd.StringFixed(2),
			"selling_price_jpy": fmt.Sprint(quote.SellingPriceJpy),
		})
	})
	if err != nil {
		return DealQuoteResponse{}, err
	}

	s.Metrics.RecordQuoteCalculation("deal_quote")
	s.Logger.Info("deal quote created",
		zap.String("deal_id", quote.DealID.String()),
		zap.String("quote_id", quote.ID.String()),
		zap.String("actor", actor.UserID.String()))
	return toDealQuoteResponse(*quote), nil
}

// UpdateDealQuote replaces the inputs of a drafting or revising quote and re-prices it.
func (s *quoteService) UpdateDealQuote(ctx context.Context, dealID, quoteID string, req QuoteCalcRequest, actor Actor) (DealQuoteResponse, error) {
	did, err := parseID("deal_id", dealID)
	if err != nil {
		return DealQuoteResponse{}, err
	}
	qid, err := parseID("quote_id", quoteID)
	if err != nil {
		return DealQuoteResponse{}, err
	}

	var quote *model.DealQuote
	err = s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		deal, err := s.Deals.FindByIDForUpdate(txCtx, did)
		if err != nil {
			return notFound(err, "deal")
		}
		quote, err = s.Quotes.FindByID(txCtx, qid)
		if err != nil || quote.DealID != deal.ID {
			return fmt.Errorf("quote %w", ErrNotFound)
		}
		if quote.Status != model.QuoteDrafting && quote.Status != model.QuoteRevising {
			return invalid("status", "only drafting or revising quotes can be edited, quote is %s", quote.Status)
		}

		if req.Quantity == 0 {
			req.Quantity = quote.Quantity
		}
		if req.CostRatio == nil {
			req.CostRatio = &quote.CostRatio
		}
		if req.TaxRate == nil {
			req.TaxRate = &quote.TaxRate
		}
		if req.PaymentMethod == "" {
			req.PaymentMethod = quote.PaymentMethod
		}
		if req.ExchangeRate.IsZero() {
			req.ExchangeRate = quote.ExchangeRate
		}
		in, err := s.input(txCtx, req)
		if err != nil {
			return err
		}
		res, err := s.Calculator.Calculate(in)
		if err != nil {
			return err
		}
		quote.ApplyResult(res)
		if err := s.Quotes.Save(txCtx, quote); err != nil {
			return fmt.Errorf("failed to save quote: %w", err)
		}
		return writeAudit(txCtx, s.Audit, actor.idPtr(), model.ActionUpdateQuote, quote.ID.String(), deal.Code, req)
	})
	if err != nil {
		return DealQuoteResponse{}, err
	}

	s.Metrics.RecordQuoteCalculation("deal_quote")
	return toDealQuoteResponse(*quote), nil
}

func (s *quoteService) ListDealQuotes(ctx context.Context, dealID string) ([]DealQuoteResponse, error) {
	did, err := parseID("deal_id", dealID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Deals.FindByID(ctx, did); err != nil {
		return nil, notFound(err, "deal")
	}
	quotes, err := s.Quotes.ListByDeal(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quotes: %w", err)
	}
	res := make([]DealQuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		res = append(res, toDealQuoteResponse(q))
	}
	return res, nil
}

func toDealQuoteResponse(q model.DealQuote) DealQuoteResponse {
	res := DealQuoteResponse{
		ID:                  q.ID,
		DealID:              q.DealID,
		FactoryID:           q.FactoryID,
		Status:              q.Status,
		Source:              q.Source,
		Confidence:          q.Confidence,
		FactoryUnitPriceUsd: q.FactoryUnitPriceUsd,
		Quantity:            q.Quantity,
		ShippingCostUsd:     q.ShippingCostUsd,
		PlateFeeUsd:         q.PlateFeeUsd,
		OtherFeesUsd:        q.OtherFeesUsd,
		CostRatio:           q.CostRatio,
		ExchangeRate:        q.ExchangeRate,
		TaxRate:             q.TaxRate,
		PaymentMethod:       q.PaymentMethod,
		SubtotalUsd:         q.SubtotalUsd,
		PaymentFeeUsd:       q.PaymentFeeUsd,
		TotalCostUsd:        q.TotalCostUsd,
		UnitCostUsd:         q.UnitCostUsd,
		SellingPriceUsd:     q.SellingPriceUsd,
		SellingPriceJpy:     q.SellingPriceJpy,
		TotalBillingJpy:     q.TotalBillingJpy,
		TotalBillingTaxJpy:  q.TotalBillingTaxJpy,
		GrossProfitUsd:      q.GrossProfitUsd,
		GrossProfitMargin:   q.GrossProfitMargin,
		FactoryObligation:   q.FactoryObligationUsd().Round(2),
		ApprovedAt:          q.ApprovedAt,
		CreatedAt:           q.CreatedAt,
	}
	if q.Factory != nil {
		res.FactoryName = q.Factory.Name
	}
	return res
}
