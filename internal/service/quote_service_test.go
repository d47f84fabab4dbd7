package service

import (
	"testing"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/model"
	"dealdesk/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func scenarioRequest() QuoteCalcRequest {
	return QuoteCalcRequest{
		FactoryUnitPriceUsd: dec("0.5"),
		Quantity:            5000,
		ShippingCostUsd:     dec("200"),
		PlateFeeUsd:         dec("100"),
		ExchangeRate:        dec("155"),
		PaymentMethod:       string(pricing.MethodWise),
	}
}

func TestQuoteService_Calculate(t *testing.T) {
	f := newFixture(t)

	t.Run("defaults cost ratio and tax rate", func(t *testing.T) {
		res, err := f.quotes.Calculate(f.ctx, scenarioRequest())
		require.NoError(t, err)
		assert.True(t, res.Input.CostRatio.Equal(dec("0.55")))
		assert.True(t, res.Input.TaxRate.Equal(dec("10")))
		assert.True(t, res.TotalCostUsd.Equal(dec("2817.77")), res.TotalCostUsd.String())
		assert.Equal(t, int64(159), res.SellingPriceJpy)
		assert.Equal(t, int64(873508), res.TotalBillingTaxJpy)
	})

	t.Run("explicit ratio and tax win", func(t *testing.T) {
		req := scenarioRequest()
		ratio, tax := dec("0.6"), dec("8")
		req.CostRatio, req.TaxRate = &ratio, &tax
		res, err := f.quotes.Calculate(f.ctx, req)
		require.NoError(t, err)
		assert.True(t, res.Input.CostRatio.Equal(ratio))
		assert.True(t, res.Input.TaxRate.Equal(tax))
	})

	t.Run("active tax rule applies", func(t *testing.T) {
		g := newFixture(t)
		_, err := g.taxes.CreateTaxRule(g.ctx, TaxRuleRequest{
			TaxType:       model.TaxTypeConsumption,
			Rate:          "8",
			EffectiveFrom: "2000-01-01",
		}, g.admin)
		require.NoError(t, err)

		res, err := g.quotes.Calculate(g.ctx, scenarioRequest())
		require.NoError(t, err)
		assert.True(t, res.Input.TaxRate.Equal(dec("8")), res.Input.TaxRate.String())
	})

	t.Run("invalid input", func(t *testing.T) {
		req := scenarioRequest()
		req.Quantity = 0
		_, err := f.quotes.Calculate(f.ctx, req)
		var ve *pricing.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "quantity", ve.Field)
	})
}

func TestQuoteService_Compare(t *testing.T) {
	f := newFixture(t)
	req := scenarioRequest()
	req.PaymentMethod = ""

	cmp, err := f.quotes.Compare(f.ctx, req)
	require.NoError(t, err)
	require.Len(t, cmp.Results, 3)
	assert.Equal(t, pricing.MethodWise, cmp.Recommendation)
	assert.True(t, cmp.SavingsUsd.Equal(dec("65.95")), cmp.SavingsUsd.String())
}

func TestQuoteService_CalculateQuantities(t *testing.T) {
	f := newFixture(t)

	t.Run("unit cost falls with volume", func(t *testing.T) {
		res, err := f.quotes.CalculateQuantities(f.ctx, QuantitiesRequest{
			QuoteCalcRequest: scenarioRequest(),
			Quantities:       []int64{1000, 5000, 10000},
		})
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.True(t, res[1].UnitCostUsd.LessThan(res[0].UnitCostUsd))
		assert.True(t, res[2].UnitCostUsd.LessThan(res[1].UnitCostUsd))
	})

	t.Run("needs quantities", func(t *testing.T) {
		_, err := f.quotes.CalculateQuantities(f.ctx, QuantitiesRequest{QuoteCalcRequest: scenarioRequest()})
		var ve *pricing.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "quantities", ve.Field)
	})
}

func TestQuoteService_DealQuotes(t *testing.T) {
	f := newFixture(t)
	deal := f.createDeal()

	t.Run("quote defaults to the deal quantity and proposes the factory", func(t *testing.T) {
		q := f.addQuote(deal.ID, f.factory, "2.5")
		assert.Equal(t, int64(1000), q.Quantity)
		assert.Equal(t, model.QuoteDrafting, q.Status)
		assert.Equal(t, model.QuoteSourceManual, q.Source)
		assert.Equal(t, "Shenzhen Box Co", q.FactoryName)
		assert.True(t, q.FactoryObligation.Equal(dec("2600")))

		assignments, err := f.deals.ListAssignments(f.ctx, deal.ID.String())
		require.NoError(t, err)
		require.Len(t, assignments, 1)
		assert.Equal(t, model.AssignmentCandidate, assignments[0].Status)
	})

	t.Run("clients cannot quote", func(t *testing.T) {
		_, err := f.quotes.CreateDealQuote(f.ctx, deal.ID.String(), DealQuoteRequest{
			FactoryID:        f.client.ID.String(),
			QuoteCalcRequest: scenarioRequest(),
		}, f.staff)
		var ve *pricing.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "factory_id", ve.Field)
	})

	t.Run("unknown deal", func(t *testing.T) {
		_, err := f.quotes.CreateDealQuote(f.ctx, uuid.NewString(), DealQuoteRequest{
			FactoryID:        f.factory.ID.String(),
			QuoteCalcRequest: scenarioRequest(),
		}, f.staff)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("quotes are frozen after approval", func(t *testing.T) {
		approved, q := f.toApproved()
		_, err := f.quotes.CreateDealQuote(f.ctx, approved.ID.String(), DealQuoteRequest{
			FactoryID:        f.factory2.ID.String(),
			QuoteCalcRequest: scenarioRequest(),
		}, f.staff)
		var ve *pricing.ValidationError
		require.ErrorAs(t, err, &ve)

		_, err = f.quotes.UpdateDealQuote(f.ctx, approved.ID.String(), q.ID.String(), scenarioRequest(), f.staff)
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "status", ve.Field)
		assert.Equal(t, lifecycle.M11, f.status(approved.ID))
	})

	t.Run("update keeps omitted fields", func(t *testing.T) {
		other := f.createDeal()
		q := f.addQuote(other.ID, f.factory, "2.5")
		updated, err := f.quotes.UpdateDealQuote(f.ctx, other.ID.String(), q.ID.String(), QuoteCalcRequest{
			FactoryUnitPriceUsd: dec("2.0"),
		}, f.staff)
		require.NoError(t, err)
		assert.Equal(t, q.Quantity, updated.Quantity)
		assert.True(t, updated.ExchangeRate.Equal(q.ExchangeRate))
		assert.Equal(t, q.PaymentMethod, updated.PaymentMethod)
		assert.True(t, updated.CostRatio.Equal(q.CostRatio))
		assert.True(t, updated.FactoryUnitPriceUsd.Equal(dec("2.0")))
	})

	t.Run("quote of another deal", func(t *testing.T) {
		other := f.createDeal()
		q := f.addQuote(other.ID, f.factory, "2.5")
		_, err := f.quotes.UpdateDealQuote(f.ctx, deal.ID.String(), q.ID.String(), scenarioRequest(), f.staff)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		list, err := f.quotes.ListDealQuotes(f.ctx, deal.ID.String())
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}
