// Package pricing turns factory-side costs into a landed cost and a two-currency
// sell price. Everything here is pure: no I/O, no package state.
package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// QuoteInput is the full set of inputs for one pricing run.
type QuoteInput struct {
	FactoryUnitPriceUsd decimal.Decimal `json:"factory_unit_price_usd"`
	Quantity            int64           `json:"quantity"`
	ShippingCostUsd     decimal.Decimal `json:"shipping_cost_usd"`
	PlateFeeUsd         decimal.Decimal `json:"plate_fee_usd"`
	OtherFeesUsd        decimal.Decimal `json:"other_fees_usd"`
	// CostRatio is the cost share of the sell price: 0.55 means cost is 55% of the tag price.
	CostRatio     decimal.Decimal `json:"cost_ratio"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"` // USD -> JPY
	TaxRate       decimal.Decimal `json:"tax_rate"`      // percent, 10 = 10%
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

// Validate checks the input constraints and returns a *ValidationError for the
// first violation found.
func (in QuoteInput) Validate() error {
	if in.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Message: "must be a positive integer"}
	}
	if !in.CostRatio.IsPositive() || in.CostRatio.GreaterThan(one) {
		return &ValidationError{Field: "cost_ratio", Message: "must be in (0, 1]"}
	}
	if !in.ExchangeRate.IsPositive() {
		return &ValidationError{Field: "exchange_rate", Message: "must be greater than 0"}
	}
	nonNegative := []struct {
		field string
		v     decimal.Decimal
	}{
		{"factory_unit_price_usd", in.FactoryUnitPriceUsd},
		{"shipping_cost_usd", in.ShippingCostUsd},
		{"plate_fee_usd", in.PlateFeeUsd},
		{"other_fees_usd", in.OtherFeesUsd},
		{"tax_rate", in.TaxRate},
	}
	for _, nn := range nonNegative {
		if nn.v.IsNegative() {
			return &ValidationError{Field: nn.field, Message: "must be >= 0"}
		}
	}
	if !in.PaymentMethod.Valid() {
		return &ValidationError{Field: "payment_method", Message: "must be one of wise, alibaba_cc, bank_transfer"}
	}
	return nil
}

// QuoteResult is the derived breakdown. USD totals carry 2 decimals, unit prices
// 4 decimals, JPY amounts are whole yen.
type QuoteResult struct {
	Input              QuoteInput      `json:"input"`
	SubtotalUsd        decimal.Decimal `json:"subtotal_usd"`
	PaymentFeeUsd      decimal.Decimal `json:"payment_fee_usd"`
	TotalCostUsd       decimal.Decimal `json:"total_cost_usd"`
	UnitCostUsd        decimal.Decimal `json:"unit_cost_usd"`
	SellingPriceUsd    decimal.Decimal `json:"selling_price_usd"`
	SellingPriceJpy    int64           `json:"selling_price_jpy"`
	TotalBillingJpy    int64           `json:"total_billing_jpy"`
	TotalBillingTaxJpy int64           `json:"total_billing_tax_jpy"`
	GrossProfitUsd     decimal.Decimal `json:"gross_profit_usd"`
	GrossProfitMargin  decimal.Decimal `json:"gross_profit_margin"`
}

// Calculator prices quotes against a fixed fee schedule.
type Calculator struct {
	Fees FeeSchedule
}

func NewCalculator(fees FeeSchedule) Calculator {
	return Calculator{Fees: fees}
}

// Calculate runs the pricing pipeline. Intermediate values stay unrounded;
// rounding happens once when the result is assembled.
func (c Calculator) Calculate(in QuoteInput) (QuoteResult, error) {
	if err := in.Validate(); err != nil {
		return QuoteResult{}, err
	}

	qty := decimal.NewFromInt(in.Quantity)

	subtotal := in.FactoryUnitPriceUsd.Mul(qty).
		Add(in.ShippingCostUsd).
		Add(in.PlateFeeUsd).
		Add(in.OtherFeesUsd)

	// fee is charged on the pre-fee subtotal only
	fee, err := c.Fees.Fee(in.PaymentMethod, subtotal, in.ExchangeRate)
	if err != nil {
		return QuoteResult{}, err
	}

	totalCost := subtotal.Add(fee)
	unitCost := totalCost.Div(qty)
	sellUsd := unitCost.Div(in.CostRatio)
	sellJpy := sellUsd.Mul(in.ExchangeRate)
	billingJpy := roundYen(sellJpy.Mul(qty))
	billingTaxJpy := roundYen(decimal.NewFromInt(billingJpy).Mul(one.Add(in.TaxRate.Div(hundred))))

	revenue := sellUsd.Mul(qty)
	grossProfit := revenue.Sub(totalCost)
	margin := decimal.Zero
	if !revenue.IsZero() {
		margin = grossProfit.Div(revenue)
	}

	return QuoteResult{
		Input:              in,
		SubtotalUsd:        subtotal.Round(2),
		PaymentFeeUsd:      fee.Round(2),
		TotalCostUsd:       totalCost.Round(2),
		UnitCostUsd:        unitCost.Round(4),
		SellingPriceUsd:    sellUsd.Round(4),
		SellingPriceJpy:    roundYen(sellJpy),
		TotalBillingJpy:    billingJpy,
		TotalBillingTaxJpy: billingTaxJpy,
		GrossProfitUsd:     grossProfit.Round(2),
		GrossProfitMargin:  margin.Round(4),
	}, nil
}

// CalculateMultipleQuantities prices the same input at each quantity. Fixed fees
// are charged once per run, so unit cost falls as quantity grows.
func (c Calculator) CalculateMultipleQuantities(base QuoteInput, quantities []int64) ([]QuoteResult, error) {
	results := make([]QuoteResult, 0, len(quantities))
	for _, q := range quantities {
		in := base
		in.Quantity = q
		res, err := c.Calculate(in)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// roundYen rounds half away from zero to whole yen.
func roundYen(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
