package pricing

import (
	"github.com/shopspring/decimal"
)

// PaymentComparison holds one result per payment method and the pick among them.
type PaymentComparison struct {
	Results        []QuoteResult   `json:"results"`
	Recommendation PaymentMethod   `json:"recommendation"`
	SavingsUsd     decimal.Decimal `json:"savings_usd"`
}

// Result returns the entry for method, if present.
func (pc PaymentComparison) Result(method PaymentMethod) (QuoteResult, bool) {
	for _, r := range pc.Results {
		if r.Input.PaymentMethod == method {
			return r, true
		}
	}
	return QuoteResult{}, false
}

// Compare prices in under every payment method. in.PaymentMethod is ignored.
// The recommendation is the highest margin, then lowest total cost, then
// method priority (wise, alibaba_cc, bank_transfer).
func (c Calculator) Compare(in QuoteInput) (PaymentComparison, error) {
	results := make([]QuoteResult, 0, len(Methods()))
	for _, m := range Methods() {
		variant := in
		variant.PaymentMethod = m
		res, err := c.Calculate(variant)
		if err != nil {
			return PaymentComparison{}, err
		}
		results = append(results, res)
	}

	best := results[0]
	cheapest, dearest := results[0].TotalCostUsd, results[0].TotalCostUsd
	for _, r := range results[1:] {
		if better(r, best) {
			best = r
		}
		cheapest = decimal.Min(cheapest, r.TotalCostUsd)
		dearest = decimal.Max(dearest, r.TotalCostUsd)
	}

	return PaymentComparison{
		Results:        results,
		Recommendation: best.Input.PaymentMethod,
		SavingsUsd:     dearest.Sub(cheapest),
	}, nil
}

func better(a, b QuoteResult) bool {
	if c := a.GrossProfitMargin.Cmp(b.GrossProfitMargin); c != 0 {
		return c > 0
	}
	if c := a.TotalCostUsd.Cmp(b.TotalCostUsd); c != 0 {
		return c < 0
	}
	return a.Input.PaymentMethod.priority() < b.Input.PaymentMethod.priority()
}
