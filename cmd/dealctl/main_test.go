package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dealdesk/internal/estimator"
	"dealdesk/internal/importer"
	"dealdesk/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var quoteArgs = []string{"--unit-price", "2.5", "--quantity", "1000", "--shipping", "180", "--plate", "100", "--rate", "150"}

func TestQuoteCommand(t *testing.T) {
	out, err := execute(t, append([]string{"quote"}, quoteArgs...)...)
	require.NoError(t, err)

	var res pricing.QuoteResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, pricing.MethodWise, res.Input.PaymentMethod)
	assert.Equal(t, int64(1000), res.Input.Quantity)
	assert.True(t, res.Input.CostRatio.Equal(dec("0.55")), "cost ratio falls back to config")
	assert.True(t, res.SubtotalUsd.Equal(dec("2780")), res.SubtotalUsd.String())
	assert.Positive(t, res.SellingPriceJpy)
	assert.Greater(t, res.TotalBillingTaxJpy, res.TotalBillingJpy)
}

func TestQuoteCommand_Quantities(t *testing.T) {
	out, err := execute(t, append([]string{"quote", "--quantities", "1000, 5000"}, quoteArgs...)...)
	require.NoError(t, err)

	var res []pricing.QuoteResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	require.Len(t, res, 2)
	assert.Equal(t, int64(5000), res[1].Input.Quantity)
	assert.True(t, res[1].UnitCostUsd.LessThan(res[0].UnitCostUsd))
}

func TestQuoteCommand_BadInput(t *testing.T) {
	t.Run("missing rate", func(t *testing.T) {
		_, err := execute(t, "quote", "--unit-price", "2.5", "--quantity", "1000")
		assert.Error(t, err)
	})

	t.Run("not a number", func(t *testing.T) {
		_, err := execute(t, "quote", "--unit-price", "abc", "--quantity", "1000", "--rate", "150")
		assert.ErrorContains(t, err, "--unit-price")
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := execute(t, append([]string{"quote", "--method", "paypal"}, quoteArgs...)...)
		var verr *pricing.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestCompareCommand(t *testing.T) {
	out, err := execute(t, append([]string{"compare"}, quoteArgs...)...)
	require.NoError(t, err)

	var cmp pricing.PaymentComparison
	require.NoError(t, json.Unmarshal([]byte(out), &cmp), out)
	require.Len(t, cmp.Results, len(pricing.Methods()))
	assert.True(t, cmp.Recommendation.Valid())
	assert.False(t, cmp.SavingsUsd.IsNegative())
}

func TestTemplateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.xlsx")
	_, err := execute(t, "template", "--out", path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = importer.ParseXLSX(f)
	assert.ErrorIs(t, err, importer.ErrEmptySheet)
}

func TestEstimateCommand(t *testing.T) {
	recent := time.Now().UTC().AddDate(0, -1, 0).Format("2006-01-02")
	path := writeWorkbook(t, [][]any{
		{"factory_code", "category", "material", "size", "printing", "quantity", "unit_price_usd", "shipping_usd", "recorded_at"},
		{"F01", "Mailer Box", "Kraft", "", "", "3000", "0.52", "120", recent},
		{"F01", "Mailer Box", "Kraft", "", "", "5000", "0.48", "150", recent},
		{"F02", "Mailer Box", "Kraft", "", "", "3000", "0.61", "90", recent},
		{"F03", "Pouch", "PET", "", "", "3000", "0.20", "50", recent},
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "estimate", "--file", path, "--category", "mailer box", "--material", "kraft", "--quantity", "3000", "--output", "json")
		require.NoError(t, err)

		var res []estimator.FactoryEstimate
		require.NoError(t, json.Unmarshal([]byte(out), &res), out)
		require.Len(t, res, 2)
		ids := []string{res[0].FactoryID, res[1].FactoryID}
		assert.ElementsMatch(t, []string{"F01", "F02"}, ids)
	})

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, "estimate", "--file", path, "--category", "mailer box", "--material", "kraft", "--quantity", "3000")
		require.NoError(t, err)
		assert.Contains(t, out, "FACTORY")
		assert.Contains(t, out, "F02")
	})

	t.Run("no matching history", func(t *testing.T) {
		out, err := execute(t, "estimate", "--file", path, "--category", "tube", "--material", "paper", "--quantity", "3000")
		require.NoError(t, err)
		assert.Contains(t, out, "No factory")
	})

	t.Run("bad output format", func(t *testing.T) {
		_, err := execute(t, "estimate", "--file", path, "--category", "mailer box", "--material", "kraft", "--quantity", "3000", "--output", "csv")
		assert.Error(t, err)
	})
}

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}
