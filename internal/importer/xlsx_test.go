package importer

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

var header = []any{"factory_code", "category", "material", "size", "printing", "quantity", "unit_price_usd", "shipping_usd", "recorded_at"}

func TestParseXLSX_Valid(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		header,
		{"f-01", "Mailer Box", "Kraft", "30x20x10", "1C", "5000", "0.52", "120", "2025-03-01"},
		{"F-02", "Mailer Box", "Kraft", "", "", "10,000", "$0.47", "", "2025/04/15"},
		{},
	})

	rows, err := ParseXLSX(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "F-01", rows[0].FactoryCode)
	assert.Equal(t, int64(5000), rows[0].Quantity)
	assert.True(t, decimal.RequireFromString("0.52").Equal(rows[0].UnitPriceUsd))
	assert.True(t, decimal.NewFromInt(120).Equal(rows[0].ShippingUsd))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), rows[0].RecordedAt)

	assert.Equal(t, int64(10000), rows[1].Quantity)
	assert.True(t, decimal.RequireFromString("0.47").Equal(rows[1].UnitPriceUsd))
	assert.True(t, rows[1].ShippingUsd.IsZero())
	assert.Equal(t, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), rows[1].RecordedAt)
}

func TestParseXLSX_ColumnOrderIndependent(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Recorded_At", "Unit_Price_USD", "Quantity", "Material", "Category", "Factory_Code"},
		{"2025-01-10", "1.10", "300", "PET", "Pouch", "F-09"},
	})

	rows, err := ParseXLSX(buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Pouch", rows[0].Category)
	assert.Equal(t, "F-09", rows[0].FactoryCode)
}

func TestParseXLSX_AllOrNothing(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		header,
		{"F-01", "Mailer Box", "Kraft", "", "", "5000", "0.52", "120", "2025-03-01"},
		{"F-01", "Mailer Box", "Kraft", "", "", "-3", "0.52", "120", "2025-03-01"},
		{"", "Mailer Box", "Kraft", "", "", "100", "abc", "", "someday"},
	})

	rows, err := ParseXLSX(buf)
	assert.Nil(t, rows)

	var importErr *ImportError
	require.True(t, errors.As(err, &importErr))

	cols := map[string]int{}
	for _, e := range importErr.Errors {
		cols[e.Column] = e.Line
	}
	assert.Equal(t, 3, cols["quantity"])
	assert.Equal(t, 4, cols["factory_code"])
	assert.Equal(t, 4, cols["unit_price_usd"])
	assert.Equal(t, 4, cols["recorded_at"])
}

func TestParseXLSX_MissingColumns(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"factory_code", "category"},
		{"F-01", "Box"},
	})

	_, err := ParseXLSX(buf)
	var importErr *ImportError
	require.True(t, errors.As(err, &importErr))
	assert.Len(t, importErr.Errors, 4)
	for _, e := range importErr.Errors {
		assert.Equal(t, 1, e.Line)
	}
}

func TestParseXLSX_HeaderOnly(t *testing.T) {
	_, err := ParseXLSX(buildWorkbook(t, [][]any{header}))
	assert.ErrorIs(t, err, ErrEmptySheet)
}

func TestParseXLSX_NotAWorkbook(t *testing.T) {
	_, err := ParseXLSX(bytes.NewBufferString("factory_code,category\n"))
	assert.Error(t, err)
}

func TestParseDate_Serial(t *testing.T) {
	got, err := parseDate("45658")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestWriteTemplate_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf))

	_, err := ParseXLSX(&buf)
	assert.ErrorIs(t, err, ErrEmptySheet)
}

func TestToEstimatorRecords(t *testing.T) {
	recs := ToEstimatorRecords([]Row{{FactoryCode: "F-01", Category: "Box", Quantity: 10}})
	require.Len(t, recs, 1)
	assert.Equal(t, "F-01", recs[0].FactoryID)
	assert.Equal(t, int64(10), recs[0].Quantity)
}
