// Package estimator produces per-factory price estimates from historical
// price records. Records close in quantity and recent in time weigh more.
package estimator

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dealdesk/internal/pricing"
)

// PriceRecord is one historical factory price observation.
type PriceRecord struct {
	FactoryID    string
	FactoryName  string
	Category     string
	Material     string
	Size         string
	Printing     string
	Quantity     int64
	UnitPriceUsd decimal.Decimal
	ShippingUsd  decimal.Decimal
	RecordedAt   time.Time
}

// Criteria describes the product being priced. Size and Printing are optional.
type Criteria struct {
	Category string `json:"category"`
	Material string `json:"material"`
	Size     string `json:"size,omitempty"`
	Printing string `json:"printing,omitempty"`
	Quantity int64  `json:"quantity"`
}

func (c Criteria) Validate() error {
	if strings.TrimSpace(c.Category) == "" {
		return &pricing.ValidationError{Field: "category", Message: "is required"}
	}
	if strings.TrimSpace(c.Material) == "" {
		return &pricing.ValidationError{Field: "material", Message: "is required"}
	}
	if c.Quantity <= 0 {
		return &pricing.ValidationError{Field: "quantity", Message: "must be a positive integer"}
	}
	return nil
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// FactoryEstimate is the estimate for a single factory.
type FactoryEstimate struct {
	FactoryID             string          `json:"factory_id"`
	FactoryName           string          `json:"factory_name,omitempty"`
	EstimatedUnitPriceUsd decimal.Decimal `json:"estimated_unit_price_usd"`
	EstimatedShippingUsd  decimal.Decimal `json:"estimated_shipping_usd"`
	EstimatedTotalUsd     decimal.Decimal `json:"estimated_total_usd"`
	Confidence            Confidence      `json:"confidence"`
	MatchingRecords       int             `json:"matching_records"`
	RecordsInBand         int             `json:"records_in_band"`
}

type Options struct {
	// RecencyHalfLifeDays is the age at which a record counts half as much.
	RecencyHalfLifeDays float64
}

func DefaultOptions() Options {
	return Options{RecencyHalfLifeDays: 180}
}

const highConfidenceRecords = 5

type accumulator struct {
	name            string
	weight          decimal.Decimal
	unitSum         decimal.Decimal
	shipSum         decimal.Decimal
	n               int
	inBand          int
	sizeMatched     bool
	printingMatched bool
}

// Estimate groups matching records by factory and returns one estimate per
// factory, cheapest total first. No matching records yields an empty slice.
func Estimate(records []PriceRecord, c Criteria, now time.Time, opts Options) ([]FactoryEstimate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if opts.RecencyHalfLifeDays <= 0 {
		opts = DefaultOptions()
	}

	byFactory := map[string]*accumulator{}
	for _, r := range records {
		if r.Quantity <= 0 || !sameText(r.Category, c.Category) || !sameText(r.Material, c.Material) {
			continue
		}
		acc, ok := byFactory[r.FactoryID]
		if !ok {
			acc = &accumulator{name: r.FactoryName, weight: decimal.Zero, unitSum: decimal.Zero, shipSum: decimal.Zero}
			byFactory[r.FactoryID] = acc
		}

		w := decimal.NewFromFloat(proximity(r.Quantity, c.Quantity) * recency(r.RecordedAt, now, opts.RecencyHalfLifeDays))
		acc.weight = acc.weight.Add(w)
		acc.unitSum = acc.unitSum.Add(r.UnitPriceUsd.Mul(w))
		acc.shipSum = acc.shipSum.Add(r.ShippingUsd.Mul(w))
		acc.n++
		if withinBand(r.Quantity, c.Quantity) {
			acc.inBand++
		}
		if c.Size == "" || sameText(r.Size, c.Size) {
			acc.sizeMatched = true
		}
		if c.Printing == "" || sameText(r.Printing, c.Printing) {
			acc.printingMatched = true
		}
	}

	out := make([]FactoryEstimate, 0, len(byFactory))
	qty := decimal.NewFromInt(c.Quantity)
	for id, acc := range byFactory {
		if !acc.weight.IsPositive() {
			continue
		}
		unit := acc.unitSum.Div(acc.weight)
		ship := acc.shipSum.Div(acc.weight)
		out = append(out, FactoryEstimate{
			FactoryID:             id,
			FactoryName:           acc.name,
			EstimatedUnitPriceUsd: unit.Round(4),
			EstimatedShippingUsd:  ship.Round(2),
			EstimatedTotalUsd:     unit.Mul(qty).Add(ship).Round(2),
			Confidence:            confidence(acc),
			MatchingRecords:       acc.n,
			RecordsInBand:         acc.inBand,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].EstimatedTotalUsd.Cmp(out[j].EstimatedTotalUsd); c != 0 {
			return c < 0
		}
		return out[i].FactoryID < out[j].FactoryID
	})
	return out, nil
}

func confidence(acc *accumulator) Confidence {
	switch {
	case acc.n <= 1 || !acc.sizeMatched || !acc.printingMatched:
		return ConfidenceLow
	case acc.inBand >= highConfidenceRecords:
		return ConfidenceHigh
	default:
		return ConfidenceMedium
	}
}

// proximity is 1 at equal quantities and falls off with the log ratio, so
// 500 vs 1000 and 2000 vs 1000 weigh the same.
func proximity(recordQty, wantQty int64) float64 {
	return 1 / (1 + math.Abs(math.Log(float64(recordQty)/float64(wantQty))))
}

func recency(recordedAt, now time.Time, halfLifeDays float64) float64 {
	age := now.Sub(recordedAt).Hours() / 24
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age/halfLifeDays)
}

func withinBand(recordQty, wantQty int64) bool {
	return recordQty*2 >= wantQty && recordQty <= wantQty*2
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
