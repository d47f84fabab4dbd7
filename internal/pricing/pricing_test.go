package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	assert.Truef(t, got.Equal(d(want)), "%s = %s, want %s", name, got, want)
}

func scenarioA() QuoteInput {
	return QuoteInput{
		FactoryUnitPriceUsd: d("0.5"),
		Quantity:            5000,
		ShippingCostUsd:     d("200"),
		PlateFeeUsd:         d("100"),
		OtherFeesUsd:        d("0"),
		CostRatio:           d("0.55"),
		ExchangeRate:        d("155"),
		TaxRate:             d("10"),
		PaymentMethod:       MethodWise,
	}
}

func TestCalculate_ScenarioA(t *testing.T) {
	calc := NewCalculator(DefaultFeeSchedule())

	res, err := calc.Calculate(scenarioA())
	require.NoError(t, err)

	// wise: 0.6% of 2800 + 150 JPY / 155
	assertDecimal(t, "subtotal", res.SubtotalUsd, "2800")
	assertDecimal(t, "fee", res.PaymentFeeUsd, "17.77")
	assertDecimal(t, "totalCost", res.TotalCostUsd, "2817.77")
	assertDecimal(t, "unitCost", res.UnitCostUsd, "0.5636")
	assertDecimal(t, "sellingPriceUsd", res.SellingPriceUsd, "1.0246")
	assert.Equal(t, int64(159), res.SellingPriceJpy)
	assert.Equal(t, int64(794098), res.TotalBillingJpy)
	assert.Equal(t, int64(873508), res.TotalBillingTaxJpy)
	assertDecimal(t, "grossProfit", res.GrossProfitUsd, "2305.45")
	assertDecimal(t, "margin", res.GrossProfitMargin, "0.45")
	assert.Equal(t, scenarioA(), res.Input)
}

func TestCalculate_FeeModels(t *testing.T) {
	calc := NewCalculator(DefaultFeeSchedule())

	tests := []struct {
		method    PaymentMethod
		fee       string
		totalCost string
	}{
		{MethodWise, "17.77", "2817.77"},
		{MethodAlibabaCC, "83.72", "2883.72"},
		{MethodBankTransfer, "25", "2825"},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			in := scenarioA()
			in.PaymentMethod = tt.method
			res, err := calc.Calculate(in)
			require.NoError(t, err)
			assertDecimal(t, "fee", res.PaymentFeeUsd, tt.fee)
			assertDecimal(t, "totalCost", res.TotalCostUsd, tt.totalCost)
		})
	}
}

func TestCalculate_Determinism(t *testing.T) {
	calc := NewCalculator(DefaultFeeSchedule())
	first, err := calc.Calculate(scenarioA())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := calc.Calculate(scenarioA())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculate_Validation(t *testing.T) {
	calc := NewCalculator(DefaultFeeSchedule())

	tests := []struct {
		field  string
		mutate func(*QuoteInput)
	}{
		{"quantity", func(in *QuoteInput) { in.Quantity = 0 }},
		{"quantity", func(in *QuoteInput) { in.Quantity = -5 }},
		{"cost_ratio", func(in *QuoteInput) { in.CostRatio = d("0") }},
		{"cost_ratio", func(in *QuoteInput) { in.CostRatio = d("1.01") }},
		{"exchange_rate", func(in *QuoteInput) { in.ExchangeRate = d("0") }},
		{"exchange_rate", func(in *QuoteInput) { in.ExchangeRate = d("-1") }},
		{"shipping_cost_usd", func(in *QuoteInput) { in.ShippingCostUsd = d("-0.01") }},
		{"plate_fee_usd", func(in *QuoteInput) { in.PlateFeeUsd = d("-1") }},
		{"tax_rate", func(in *QuoteInput) { in.TaxRate = d("-10") }},
		{"payment_method", func(in *QuoteInput) { in.PaymentMethod = "paypal" }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			in := scenarioA()
			tt.mutate(&in)
			_, err := calc.Calculate(in)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCalculate_CostRatioOneIsAllowed(t *testing.T) {
	in := scenarioA()
	in.CostRatio = d("1")
	res, err := NewCalculator(DefaultFeeSchedule()).Calculate(in)
	require.NoError(t, err)
	assertDecimal(t, "margin", res.GrossProfitMargin, "0")
	assertDecimal(t, "gross", res.GrossProfitUsd, "0")
}

func TestCalculate_ZeroRevenueMargin(t *testing.T) {
	in := QuoteInput{
		Quantity:      100,
		CostRatio:     d("0.5"),
		ExchangeRate:  d("150"),
		PaymentMethod: MethodAlibabaCC,
	}
	res, err := NewCalculator(DefaultFeeSchedule()).Calculate(in)
	require.NoError(t, err)
	assert.True(t, res.GrossProfitMargin.IsZero())
	assert.Equal(t, int64(0), res.TotalBillingTaxJpy)
}

func TestCalculateMultipleQuantities_UnitCostFalls(t *testing.T) {
	calc := NewCalculator(DefaultFeeSchedule())
	base := scenarioA()
	base.PaymentMethod = MethodBankTransfer

	results, err := calc.CalculateMultipleQuantities(base, []int64{1000, 3000, 5000, 10000})
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i := 1; i < len(results); i++ {
		assert.True(t, results[i].UnitCostUsd.LessThan(results[i-1].UnitCostUsd),
			"unit cost at qty %d should be below qty %d", results[i].Input.Quantity, results[i-1].Input.Quantity)
	}
	// plate fee is charged once per run, not per unit
	assertDecimal(t, "total@1000", results[0].TotalCostUsd, "825")
	assertDecimal(t, "total@10000", results[3].TotalCostUsd, "5325")
}

func TestCalculateMultipleQuantities_PropagatesValidation(t *testing.T) {
	_, err := NewCalculator(DefaultFeeSchedule()).CalculateMultipleQuantities(scenarioA(), []int64{100, 0})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity", verr.Field)
}

func TestCalculate_MarginWithinBounds(t *testing.T) {
	calc := NewCalculator(DefaultFeeSchedule())
	for _, ratio := range []string{"0.1", "0.3", "0.55", "0.8", "0.99"} {
		in := scenarioA()
		in.CostRatio = d(ratio)
		res, err := calc.Calculate(in)
		require.NoError(t, err)
		assert.True(t, res.SellingPriceUsd.GreaterThan(res.UnitCostUsd))
		assert.False(t, res.GrossProfitMargin.IsNegative())
		assert.True(t, res.GrossProfitMargin.LessThanOrEqual(decimal.NewFromInt(1)))
	}
}

func TestParseFeeSchedule(t *testing.T) {
	fs, err := ParseFeeSchedule("0.6", "150", "2.99", "25")
	require.NoError(t, err)
	assert.True(t, fs.WiseRatePercent.Equal(DefaultFeeSchedule().WiseRatePercent))
	assert.True(t, fs.BankTransferFeeUsd.Equal(d("25")))

	_, err = ParseFeeSchedule("abc", "150", "2.99", "25")
	assert.Error(t, err)
	_, err = ParseFeeSchedule("0.6", "150", "-1", "25")
	assert.Error(t, err)
}
