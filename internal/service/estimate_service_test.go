package service

import (
	"testing"
	"time"

	"dealdesk/internal/estimator"
	"dealdesk/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) seedPrices(factory *model.Partner, unitPrice string, quantities ...int64) {
	f.t.Helper()
	records := make([]model.PriceRecord, 0, len(quantities))
	for _, q := range quantities {
		records = append(records, model.PriceRecord{
			FactoryID:    factory.ID,
			Category:     "Mailer Box",
			Material:     "Kraft",
			Size:         "30x20x10",
			Printing:     "1C",
			Quantity:     q,
			UnitPriceUsd: dec(unitPrice),
			ShippingUsd:  dec("120"),
			RecordedAt:   time.Now().UTC().AddDate(0, 0, -10),
			Source:       PriceSourceImport,
		})
	}
	require.NoError(f.t, f.priceRepo.CreateBatch(f.ctx, records))
}

func TestEstimateService_Estimate(t *testing.T) {
	f := newFixture(t)
	f.seedPrices(f.factory, "0.52", 4000, 5000, 6000, 5000, 4500)
	f.seedPrices(f.factory2, "0.47", 5000)

	req := EstimateRequest{Category: "mailer box", Material: "KRAFT", Size: "30x20x10", Printing: "1c", Quantity: 5000}

	t.Run("ranks factories by estimated total", func(t *testing.T) {
		res, err := f.estimates.Estimate(f.ctx, req)
		require.NoError(t, err)
		require.Len(t, res.Estimates, 2)

		cheapest, other := res.Estimates[0], res.Estimates[1]
		assert.Equal(t, f.factory2.ID.String(), cheapest.FactoryID)
		assert.Equal(t, "Dongguan Pack", cheapest.FactoryName)
		assert.Equal(t, estimator.ConfidenceLow, cheapest.Confidence)
		assert.True(t, cheapest.EstimatedUnitPriceUsd.Equal(dec("0.47")), cheapest.EstimatedUnitPriceUsd.String())

		assert.Equal(t, f.factory.ID.String(), other.FactoryID)
		assert.Equal(t, estimator.ConfidenceHigh, other.Confidence)
		assert.Equal(t, 5, other.MatchingRecords)
		assert.True(t, other.EstimatedTotalUsd.Equal(dec("2720")), other.EstimatedTotalUsd.String())
	})

	t.Run("no history is an empty answer", func(t *testing.T) {
		res, err := f.estimates.Estimate(f.ctx, EstimateRequest{Category: "Tube", Material: "Paper", Quantity: 1000})
		require.NoError(t, err)
		assert.NotNil(t, res.Estimates)
		assert.Empty(t, res.Estimates)
	})

	t.Run("invalid criteria", func(t *testing.T) {
		_, err := f.estimates.Estimate(f.ctx, EstimateRequest{Category: "Tube", Material: "Paper"})
		assert.Error(t, err)
	})
}
