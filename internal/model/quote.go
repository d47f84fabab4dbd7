package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"dealdesk/internal/pricing"
)

// DealQuote status enum constants
const (
	QuoteDrafting  = "drafting"
	QuotePresented = "presented"
	QuoteApproved  = "approved"
	QuoteRejected  = "rejected"
	QuoteRevising  = "revising"
)

// DealQuote source enum constants
const (
	QuoteSourceManual   = "MANUAL"
	QuoteSourceEstimate = "ESTIMATE"
)

// DealQuote is a priced proposal for one deal from one factory. The result
// columns are always written from the pricing engine, never edited directly.
// At most one quote per deal may be approved; the partial unique index backs
// that up at the storage level.
type DealQuote struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DealID    uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_deal_quotes_single_approved,where:status = 'approved'" json:"deal_id"`
	FactoryID uuid.UUID `gorm:"type:uuid;not null;index" json:"factory_id"`
	Factory   *Partner  `gorm:"foreignKey:FactoryID" json:"factory,omitempty"`
	Status    string    `gorm:"type:varchar(20);not null;index" json:"status"`
	Source    string    `gorm:"type:varchar(20);not null;default:'MANUAL'" json:"source"`

	// Inputs
	FactoryUnitPriceUsd decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"factory_unit_price_usd"`
	Quantity            int64           `gorm:"not null" json:"quantity"`
	ShippingCostUsd     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"shipping_cost_usd"`
	PlateFeeUsd         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"plate_fee_usd"`
	OtherFeesUsd        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"other_fees_usd"`
	CostRatio           decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"cost_ratio"`
	ExchangeRate        decimal.Decimal `gorm:"type:decimal(18,6);not null" json:"exchange_rate"`
	TaxRate             decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"tax_rate"`
	PaymentMethod       string          `gorm:"type:varchar(20);not null" json:"payment_method"`

	// Results
	SubtotalUsd        decimal.Decimal `gorm:"type:decimal(18,4)" json:"subtotal_usd"`
	PaymentFeeUsd      decimal.Decimal `gorm:"type:decimal(18,4)" json:"payment_fee_usd"`
	TotalCostUsd       decimal.Decimal `gorm:"type:decimal(18,4)" json:"total_cost_usd"`
	UnitCostUsd        decimal.Decimal `gorm:"type:decimal(18,4)" json:"unit_cost_usd"`
	SellingPriceUsd    decimal.Decimal `gorm:"type:decimal(18,4)" json:"selling_price_usd"`
	SellingPriceJpy    int64           `json:"selling_price_jpy"`
	TotalBillingJpy    int64           `json:"total_billing_jpy"`
	TotalBillingTaxJpy int64           `json:"total_billing_tax_jpy"`
	GrossProfitUsd     decimal.Decimal `gorm:"type:decimal(18,4)" json:"gross_profit_usd"`
	GrossProfitMargin  decimal.Decimal `gorm:"type:decimal(10,4)" json:"gross_profit_margin"`

	Confidence string     `gorm:"type:varchar(10)" json:"confidence,omitempty"`
	CreatedBy  *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	ApprovedAt *time.Time `json:"approved_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (q *DealQuote) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// Input rebuilds the engine input from the stored columns.
func (q *DealQuote) Input() pricing.QuoteInput {
	return pricing.QuoteInput{
		FactoryUnitPriceUsd: q.FactoryUnitPriceUsd,
		Quantity:            q.Quantity,
		ShippingCostUsd:     q.ShippingCostUsd,
		PlateFeeUsd:         q.PlateFeeUsd,
		OtherFeesUsd:        q.OtherFeesUsd,
		CostRatio:           q.CostRatio,
		ExchangeRate:        q.ExchangeRate,
		TaxRate:             q.TaxRate,
		PaymentMethod:       pricing.PaymentMethod(q.PaymentMethod),
	}
}

// ApplyResult copies an engine result, inputs included, onto the quote.
func (q *DealQuote) ApplyResult(r pricing.QuoteResult) {
	in := r.Input
	q.FactoryUnitPriceUsd = in.FactoryUnitPriceUsd
	q.Quantity = in.Quantity
	q.ShippingCostUsd = in.ShippingCostUsd
	q.PlateFeeUsd = in.PlateFeeUsd
	q.OtherFeesUsd = in.OtherFeesUsd
	q.CostRatio = in.CostRatio
	q.ExchangeRate = in.ExchangeRate
	q.TaxRate = in.TaxRate
	q.PaymentMethod = string(in.PaymentMethod)

	q.SubtotalUsd = r.SubtotalUsd
	q.PaymentFeeUsd = r.PaymentFeeUsd
	q.TotalCostUsd = r.TotalCostUsd
	q.UnitCostUsd = r.UnitCostUsd
	q.SellingPriceUsd = r.SellingPriceUsd
	q.SellingPriceJpy = r.SellingPriceJpy
	q.TotalBillingJpy = r.TotalBillingJpy
	q.TotalBillingTaxJpy = r.TotalBillingTaxJpy
	q.GrossProfitUsd = r.GrossProfitUsd
	q.GrossProfitMargin = r.GrossProfitMargin
}

// FactoryObligationUsd is what the brokerage owes the factory under this quote:
// goods plus plate and other one-time fees. Shipping and payment fees are excluded.
func (q *DealQuote) FactoryObligationUsd() decimal.Decimal {
	return q.FactoryUnitPriceUsd.Mul(decimal.NewFromInt(q.Quantity)).
		Add(q.PlateFeeUsd).
		Add(q.OtherFeesUsd)
}
