package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PaymentMethod identifies how the brokerage pays the factory.
type PaymentMethod string

const (
	MethodWise         PaymentMethod = "wise"
	MethodAlibabaCC    PaymentMethod = "alibaba_cc"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// Methods returns every payment method in tie-break priority order.
func Methods() []PaymentMethod {
	return []PaymentMethod{MethodWise, MethodAlibabaCC, MethodBankTransfer}
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodWise, MethodAlibabaCC, MethodBankTransfer:
		return true
	}
	return false
}

func (m PaymentMethod) priority() int {
	for i, candidate := range Methods() {
		if candidate == m {
			return i
		}
	}
	return len(Methods())
}

// FeeSchedule holds the per-method fee constants. It is built from configuration
// at startup and handed to the Calculator explicitly.
type FeeSchedule struct {
	WiseRatePercent      decimal.Decimal `json:"wise_rate_percent"`
	WiseFixedFeeJpy      decimal.Decimal `json:"wise_fixed_fee_jpy"`
	AlibabaCCRatePercent decimal.Decimal `json:"alibaba_cc_rate_percent"`
	BankTransferFeeUsd   decimal.Decimal `json:"bank_transfer_fee_usd"`
}

// DefaultFeeSchedule returns the fee values used when nothing is configured.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		WiseRatePercent:      decimal.RequireFromString("0.6"),
		WiseFixedFeeJpy:      decimal.NewFromInt(150),
		AlibabaCCRatePercent: decimal.RequireFromString("2.99"),
		BankTransferFeeUsd:   decimal.NewFromInt(25),
	}
}

// ParseFeeSchedule builds a schedule from the string settings in configuration.
func ParseFeeSchedule(wiseRate, wiseFixedJpy, alibabaRate, bankFlatUsd string) (FeeSchedule, error) {
	var fs FeeSchedule
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"wise_rate_percent", wiseRate, &fs.WiseRatePercent},
		{"wise_fixed_fee_jpy", wiseFixedJpy, &fs.WiseFixedFeeJpy},
		{"alibaba_cc_rate_percent", alibabaRate, &fs.AlibabaCCRatePercent},
		{"bank_transfer_fee_usd", bankFlatUsd, &fs.BankTransferFeeUsd},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return FeeSchedule{}, fmt.Errorf("invalid %s %q: %w", f.name, f.raw, err)
		}
		if d.IsNegative() {
			return FeeSchedule{}, fmt.Errorf("invalid %s %q: must be >= 0", f.name, f.raw)
		}
		*f.dst = d
	}
	return fs, nil
}

// Fee returns the USD payment fee for a pre-fee subtotal. The Wise fixed fee is
// quoted in JPY and converted with the deal's exchange rate.
func (fs FeeSchedule) Fee(method PaymentMethod, subtotalUsd, exchangeRate decimal.Decimal) (decimal.Decimal, error) {
	switch method {
	case MethodWise:
		if !exchangeRate.IsPositive() {
			return decimal.Zero, &ValidationError{Field: "exchange_rate", Message: "must be greater than 0"}
		}
		return subtotalUsd.Mul(fs.WiseRatePercent).Div(hundred).
			Add(fs.WiseFixedFeeJpy.Div(exchangeRate)), nil
	case MethodAlibabaCC:
		return subtotalUsd.Mul(fs.AlibabaCCRatePercent).Div(hundred), nil
	case MethodBankTransfer:
		return fs.BankTransferFeeUsd, nil
	default:
		return decimal.Zero, &ValidationError{Field: "payment_method", Message: fmt.Sprintf("unknown payment method %q", method)}
	}
}
