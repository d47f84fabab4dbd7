// Package importer reads historical factory price records from spreadsheets.
package importer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"dealdesk/internal/estimator"
)

// Columns lists the header names a price sheet must carry. Order in the sheet
// does not matter; size and printing may be left blank per row.
var Columns = []string{
	"factory_code",
	"category",
	"material",
	"size",
	"printing",
	"quantity",
	"unit_price_usd",
	"shipping_usd",
	"recorded_at",
}

var requiredColumns = map[string]bool{
	"factory_code":   true,
	"category":       true,
	"material":       true,
	"quantity":       true,
	"unit_price_usd": true,
	"recorded_at":    true,
}

// Row is one parsed line of the sheet. Line is the 1-based spreadsheet row.
type Row struct {
	Line         int
	FactoryCode  string
	Category     string
	Material     string
	Size         string
	Printing     string
	Quantity     int64
	UnitPriceUsd decimal.Decimal
	ShippingUsd  decimal.Decimal
	RecordedAt   time.Time
}

// RowError describes why a single line was rejected.
type RowError struct {
	Line    int    `json:"line"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("row %d, %s: %s", e.Line, e.Column, e.Message)
}

// ImportError collects every rejected line. A sheet with any error imports nothing.
type ImportError struct {
	Errors []RowError `json:"errors"`
}

func (e *ImportError) Error() string {
	if len(e.Errors) == 1 {
		return "import rejected: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("import rejected: %d invalid rows, first: %s", len(e.Errors), e.Errors[0].Error())
}

// ErrEmptySheet is returned when the sheet has a header but no data rows.
var ErrEmptySheet = errors.New("sheet contains no price rows")

// ParseXLSX reads the first worksheet of an xlsx workbook. Either every data
// row parses or an *ImportError listing all bad rows is returned.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet: %w", err)
	}
	return parseRows(rows)
}

func parseRows(rows [][]string) ([]Row, error) {
	if len(rows) == 0 {
		return nil, &ImportError{Errors: []RowError{{Line: 1, Message: "missing header row"}}}
	}

	index := map[string]int{}
	for i, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(h))
		if name != "" {
			index[name] = i
		}
	}
	var missing []RowError
	for _, col := range Columns {
		if _, ok := index[col]; !ok && requiredColumns[col] {
			missing = append(missing, RowError{Line: 1, Column: col, Message: "required column is missing"})
		}
	}
	if len(missing) > 0 {
		return nil, &ImportError{Errors: missing}
	}

	var (
		out  []Row
		errs []RowError
	)
	for i := 1; i < len(rows); i++ {
		raw := rows[i]
		if blank(raw) {
			continue
		}
		row, rowErrs := parseRow(i+1, raw, index)
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		out = append(out, row)
	}

	if len(errs) > 0 {
		return nil, &ImportError{Errors: errs}
	}
	if len(out) == 0 {
		return nil, ErrEmptySheet
	}
	return out, nil
}

func parseRow(line int, raw []string, index map[string]int) (Row, []RowError) {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(raw) {
			return ""
		}
		return strings.TrimSpace(raw[i])
	}

	var errs []RowError
	fail := func(col, msg string) {
		errs = append(errs, RowError{Line: line, Column: col, Message: msg})
	}
	required := func(col string) string {
		v := cell(col)
		if v == "" {
			fail(col, "is required")
		}
		return v
	}

	row := Row{
		Line:        line,
		FactoryCode: strings.ToUpper(required("factory_code")),
		Category:    required("category"),
		Material:    required("material"),
		Size:        cell("size"),
		Printing:    cell("printing"),
	}

	if v := required("quantity"); v != "" {
		q, err := strconv.ParseInt(strings.ReplaceAll(v, ",", ""), 10, 64)
		if err != nil || q <= 0 {
			fail("quantity", "must be a positive integer")
		}
		row.Quantity = q
	}
	if v := required("unit_price_usd"); v != "" {
		p, err := parseMoney(v)
		if err != nil || !p.IsPositive() {
			fail("unit_price_usd", "must be a positive number")
		}
		row.UnitPriceUsd = p
	}
	row.ShippingUsd = decimal.Zero
	if v := cell("shipping_usd"); v != "" {
		s, err := parseMoney(v)
		if err != nil || s.IsNegative() {
			fail("shipping_usd", "must be a non-negative number")
		}
		row.ShippingUsd = s
	}
	if v := required("recorded_at"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			fail("recorded_at", err.Error())
		}
		row.RecordedAt = t
	}

	return row, errs
}

func parseMoney(v string) (decimal.Decimal, error) {
	v = strings.TrimPrefix(strings.ReplaceAll(v, ",", ""), "$")
	return decimal.NewFromString(v)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01-02-06",
	"1/2/2006",
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	// unformatted date cells come through as the spreadsheet serial number
	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q, expected YYYY-MM-DD", v)
}

func blank(raw []string) bool {
	for _, c := range raw {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ToEstimatorRecords converts parsed rows for offline estimation, using the
// factory code as the factory identity.
func ToEstimatorRecords(rows []Row) []estimator.PriceRecord {
	out := make([]estimator.PriceRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, estimator.PriceRecord{
			FactoryID:    r.FactoryCode,
			FactoryName:  r.FactoryCode,
			Category:     r.Category,
			Material:     r.Material,
			Size:         r.Size,
			Printing:     r.Printing,
			Quantity:     r.Quantity,
			UnitPriceUsd: r.UnitPriceUsd,
			ShippingUsd:  r.ShippingUsd,
			RecordedAt:   r.RecordedAt,
		})
	}
	return out
}

// WriteTemplate writes an empty sheet carrying just the header row.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, col := range Columns {
		name, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, name, col); err != nil {
			return err
		}
	}
	return f.Write(w)
}
