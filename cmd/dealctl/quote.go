package main

import (
	"fmt"
	"strconv"
	"strings"

	"dealdesk/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// quoteFlags are the cost engine inputs shared by quote and compare.
type quoteFlags struct {
	unitPrice string
	quantity  int64
	shipping  string
	plate     string
	other     string
	ratio     string
	rate      string
	tax       string
	method    string
}

func (f *quoteFlags) register(cmd *cobra.Command, withMethod bool) {
	cmd.Flags().StringVar(&f.unitPrice, "unit-price", "", "Factory unit price in USD (required)")
	cmd.Flags().Int64Var(&f.quantity, "quantity", 0, "Order quantity (required)")
	cmd.Flags().StringVar(&f.shipping, "shipping", "0", "Shipping cost in USD")
	cmd.Flags().StringVar(&f.plate, "plate", "0", "Plate/setup fee in USD")
	cmd.Flags().StringVar(&f.other, "other", "0", "Other fees in USD")
	cmd.Flags().StringVar(&f.ratio, "ratio", "", "Cost ratio, cost / selling price (default from config)")
	cmd.Flags().StringVar(&f.rate, "rate", "", "Exchange rate, JPY per USD (required)")
	cmd.Flags().StringVar(&f.tax, "tax", "", "Consumption tax percent (default from config)")
	if withMethod {
		cmd.Flags().StringVar(&f.method, "method", string(pricing.MethodWise), "Payment method: wise, alibaba_cc or bank_transfer")
	}
	_ = cmd.MarkFlagRequired("unit-price")
	_ = cmd.MarkFlagRequired("quantity")
	_ = cmd.MarkFlagRequired("rate")
}

func (f *quoteFlags) input(a *app) (pricing.QuoteInput, error) {
	ratio := f.ratio
	if ratio == "" {
		ratio = a.cfg.Pricing.DefaultCostRatio
	}
	tax := f.tax
	if tax == "" {
		tax = a.cfg.Pricing.DefaultTaxRate
	}

	in := pricing.QuoteInput{Quantity: f.quantity, PaymentMethod: pricing.PaymentMethod(f.method)}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"unit-price", f.unitPrice, &in.FactoryUnitPriceUsd},
		{"shipping", f.shipping, &in.ShippingCostUsd},
		{"plate", f.plate, &in.PlateFeeUsd},
		{"other", f.other, &in.OtherFeesUsd},
		{"ratio", ratio, &in.CostRatio},
		{"rate", f.rate, &in.ExchangeRate},
		{"tax", tax, &in.TaxRate},
	}
	for _, fld := range fields {
		d, err := decimal.NewFromString(strings.TrimSpace(fld.raw))
		if err != nil {
			return in, fmt.Errorf("--%s: %q is not a number", fld.name, fld.raw)
		}
		*fld.dst = d
	}
	return in, nil
}

func (a *app) calculator() (pricing.Calculator, error) {
	fees, err := pricing.ParseFeeSchedule(a.cfg.Pricing.WiseRatePercent, a.cfg.Pricing.WiseFixedFeeJpy,
		a.cfg.Pricing.AlibabaCCRatePercent, a.cfg.Pricing.BankTransferFeeUsd)
	if err != nil {
		return pricing.Calculator{}, err
	}
	return pricing.NewCalculator(fees), nil
}

func parseQuantities(raw string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		q, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("--quantities: %q is not an integer", part)
		}
		out = append(out, q)
	}
	return out, nil
}

func newQuoteCmd(a *app) *cobra.Command {
	var (
		flags      quoteFlags
		quantities string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Calculate landed cost and selling price for one payment method",
		Example: `  dealctl quote --unit-price 2.5 --quantity 1000 --shipping 180 --plate 100 --rate 150
  dealctl quote --unit-price 2.5 --quantity 1000 --rate 150 --method bank_transfer --quantities 1000,3000,5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input(a)
			if err != nil {
				return err
			}
			calc, err := a.calculator()
			if err != nil {
				return err
			}

			if quantities != "" {
				qs, err := parseQuantities(quantities)
				if err != nil {
					return err
				}
				results, err := calc.CalculateMultipleQuantities(in, qs)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			}

			res, err := calc.Calculate(in)
			if err != nil {
				return err
			}
			a.log.Debug("quote calculated", zap.String("method", string(in.PaymentMethod)), zap.Int64("quantity", in.Quantity))
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&quantities, "quantities", "", "Comma-separated quantities to price side by side")
	return cmd
}

func newCompareCmd(a *app) *cobra.Command {
	var flags quoteFlags
	cmd := &cobra.Command{
		Use:     "compare",
		Short:   "Compare every payment method and recommend the cheapest",
		Example: `  dealctl compare --unit-price 2.5 --quantity 1000 --shipping 180 --rate 150`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input(a)
			if err != nil {
				return err
			}
			calc, err := a.calculator()
			if err != nil {
				return err
			}
			cmp, err := calc.Compare(in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cmp)
		},
	}
	flags.register(cmd, false)
	return cmd
}
