package kpi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Required column names, matched exactly after trimming header whitespace.
const (
	ColMonth   = "Month"
	ColTeam    = "Team"
	ColProject = "Project"
	ColLead    = "Lead"
	ColActual  = "Actual Money"
	ColTarget  = "Target Money"
)

// RequiredColumns lists the columns every dataset must carry.
var RequiredColumns = []string{ColMonth, ColTeam, ColProject, ColLead, ColActual, ColTarget}

// Table is a raw, untyped table: a header row plus data rows of cell text.
// Rows may be shorter than the header; missing cells read as empty.
type Table struct {
	Header []string
	Rows   [][]string
	// FirstRow is the sheet row number of Rows[0], used in error positions.
	// Zero means 2 (header on row 1).
	FirstRow int
	// SerialDates marks numeric Month cells as spreadsheet serial dates, as
	// read from raw xlsx values. CSV text never carries serials.
	SerialDates bool
}

// SchemaError reports required columns absent from the header.
type SchemaError struct {
	MissingColumns []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("kpi: missing required columns: %s", strings.Join(e.MissingColumns, ", "))
}

// ParseError reports a cell that could not be read as its column's type.
type ParseError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("kpi: row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("kpi: row %d, column %q: cannot parse %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	errEmptyCell    = errors.New("value is empty")
	errInvalidDate  = errors.New("not a recognised date")
	errInvalidMoney = errors.New("not a monetary amount")
	errMoneyRange   = errors.New("amount outside the supported range")
)

// Money cells are bounded so one value cannot blow up every later sum.
const (
	maxMoneyChars    = 64
	maxMoneyDigits   = 30
	maxMoneyExponent = 15
	minMoneyExponent = -20
	// moneyScale is the finest precision kept; finer input is rounded.
	moneyScale       = 10
)

// Serial dates before 1970-01-01 are not plausible months.
const minSerialDate = 25569

// Validate checks t for the required columns and converts every data row into
// a typed Record. It stops at the first problem; no partial set is returned.
// Fully blank rows are skipped.
func Validate(t Table) (RecordSet, error) {
	cols := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		name := strings.TrimSpace(h)
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return RecordSet{}, &SchemaError{MissingColumns: missing}
	}

	first := t.FirstRow
	if first <= 0 {
		first = 2
	}
	records := make([]Record, 0, len(t.Rows))
	for i, row := range t.Rows {
		if blankRow(row) {
			continue
		}
		rowNum := first + i
		cell := func(name string) string {
			idx := cols[name]
			if idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}

		var rec Record
		var err error
		raw := cell(ColMonth)
		if rec.Month, err = monthCell(raw, t.SerialDates); err != nil {
			return RecordSet{}, &ParseError{Row: rowNum, Column: ColMonth, Value: raw, Err: err}
		}
		for _, f := range []struct {
			name string
			dst  *string
		}{{ColTeam, &rec.Team}, {ColProject, &rec.Project}, {ColLead, &rec.Lead}} {
			v := cell(f.name)
			if v == "" {
				return RecordSet{}, &ParseError{Row: rowNum, Column: f.name, Value: v, Err: errEmptyCell}
			}
			*f.dst = v
		}
		raw = cell(ColActual)
		if rec.Actual, err = ParseMoney(raw); err != nil {
			return RecordSet{}, &ParseError{Row: rowNum, Column: ColActual, Value: raw, Err: err}
		}
		raw = cell(ColTarget)
		if rec.Target, err = ParseMoney(raw); err != nil {
			return RecordSet{}, &ParseError{Row: rowNum, Column: ColTarget, Value: raw, Err: err}
		}
		records = append(records, rec)
	}
	return RecordSet{records: records}, nil
}

var monthLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"2006-01",
	"Jan-2006",
	"Jan 2006",
	"January 2006",
}

// ParseMonth reads a textual date and truncates it to the first of its month
// in UTC. Bare numbers are rejected.
func ParseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyCell
	}
	for _, l := range monthLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return startOfMonth(t), nil
		}
	}
	return time.Time{}, errInvalidDate
}

// ParseSerialMonth reads a spreadsheet serial date (1900 date system) and
// truncates it to its month.
func ParseSerialMonth(serial float64) (time.Time, error) {
	if serial < minSerialDate {
		return time.Time{}, fmt.Errorf("%w: serial %v predates 1970", errInvalidDate, serial)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errInvalidDate, err)
	}
	return startOfMonth(t), nil
}

func monthCell(raw string, serials bool) (time.Time, error) {
	if serials {
		if serial, err := strconv.ParseFloat(raw, 64); err == nil {
			return ParseSerialMonth(serial)
		}
	}
	return ParseMonth(raw)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseMoney reads a monetary cell. Currency symbols, thousands separators and
// accounting-style parentheses are accepted.
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, errEmptyCell
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ',', '$', ' ':
			return -1
		default:
			return r
		}
	}, s)
	if len(clean) > maxMoneyChars {
		return decimal.Decimal{}, errMoneyRange
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, errInvalidMoney
	}
	if exp := d.Exponent(); exp > maxMoneyExponent || exp < minMoneyExponent || d.NumDigits() > maxMoneyDigits {
		return decimal.Decimal{}, errMoneyRange
	}
	if d.Exponent() < -moneyScale {
		d = d.Round(moneyScale)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
