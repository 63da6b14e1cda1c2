// Package ingest turns uploaded spreadsheet bytes into a validated
// kpi.RecordSet. A load either fully succeeds or returns an error; no partial
// dataset is produced.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/kpidash/internal/kpi"
)

// Format identifies the container of an uploaded file.
type Format string

const (
	FormatAuto Format = ""
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

var (
	// ErrUnsupportedFormat indicates bytes that are neither OOXML nor CSV text.
	ErrUnsupportedFormat = errors.New("ingest: unsupported file format")
	// ErrFileTooLarge indicates the upload exceeds Options.MaxBytes.
	ErrFileTooLarge = errors.New("ingest: file exceeds size limit")
	// ErrTooManyRecords indicates more data rows than Options.MaxRecords.
	ErrTooManyRecords = errors.New("ingest: too many records")
	// ErrEmptyFile indicates there is no header row to validate.
	ErrEmptyFile = errors.New("ingest: file has no header row")
	// ErrSheetNotFound indicates Options.Sheet is not in the workbook.
	ErrSheetNotFound = errors.New("ingest: sheet not found")
)

// Options bounds and steers a load. Zero values disable the limits.
type Options struct {
	Format     Format
	Sheet      string
	MaxBytes   int64
	MaxRecords int
}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// FormatFromName guesses a format from a file name extension.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatXLSX
	case ".csv":
		return FormatCSV
	}
	return FormatAuto
}

// Detect sniffs the container format from the leading bytes.
func Detect(data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX, nil
	case bytes.HasPrefix(data, oleMagic):
		return "", fmt.Errorf("%w: legacy .xls workbooks are not supported, re-save as .xlsx", ErrUnsupportedFormat)
	case bytes.IndexByte(data, 0) >= 0:
		return "", fmt.Errorf("%w: binary content", ErrUnsupportedFormat)
	}
	return FormatCSV, nil
}

// Load reads data into a raw table and validates it. Schema and parse
// failures surface as *kpi.SchemaError and *kpi.ParseError.
func Load(ctx context.Context, data []byte, opts Options) (kpi.RecordSet, error) {
	logger := zerolog.Ctx(ctx)

	if err := ctx.Err(); err != nil {
		return kpi.RecordSet{}, err
	}
	if len(data) == 0 {
		return kpi.RecordSet{}, ErrEmptyFile
	}
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return kpi.RecordSet{}, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(data), opts.MaxBytes)
	}

	format := opts.Format
	if format == FormatAuto {
		var err error
		if format, err = Detect(data); err != nil {
			return kpi.RecordSet{}, err
		}
	}

	var (
		tbl kpi.Table
		err error
	)
	switch format {
	case FormatXLSX:
		tbl, err = readWorkbook(data, opts.Sheet)
	case FormatCSV:
		tbl, err = readCSV(data)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return kpi.RecordSet{}, err
	}
	if opts.MaxRecords > 0 {
		if n := dataRows(tbl.Rows); n > opts.MaxRecords {
			return kpi.RecordSet{}, fmt.Errorf("%w: %d rows (max %d)", ErrTooManyRecords, n, opts.MaxRecords)
		}
	}

	rs, err := kpi.Validate(tbl)
	if err != nil {
		logger.Debug().Err(err).Str("format", string(format)).Msg("dataset rejected")
		return kpi.RecordSet{}, err
	}
	logger.Debug().Str("format", string(format)).Int("records", rs.Len()).Msg("dataset parsed")
	return rs, nil
}

// readWorkbook reads the first (or named) sheet with raw cell values so dates
// arrive as serial numbers rather than display strings.
func readWorkbook(data []byte, sheet string) (kpi.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return kpi.Table{}, fmt.Errorf("ingest: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return kpi.Table{}, ErrEmptyFile
	}
	name := strings.TrimSpace(sheet)
	if name == "" {
		name = sheets[0]
	} else if idx, _ := f.GetSheetIndex(name); idx < 0 {
		return kpi.Table{}, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return kpi.Table{}, fmt.Errorf("ingest: read sheet %q: %w", name, err)
	}
	tbl, err := toTable(rows)
	tbl.SerialDates = true
	return tbl, err
}

func readCSV(data []byte) (kpi.Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return kpi.Table{}, &kpi.ParseError{Row: pe.Line, Err: pe.Err}
			}
			return kpi.Table{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		rows = append(rows, rec)
	}
	return toTable(rows)
}

// toTable takes the first non-blank row as the header.
func toTable(rows [][]string) (kpi.Table, error) {
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		return kpi.Table{Header: row, Rows: rows[i+1:], FirstRow: i + 2}, nil
	}
	return kpi.Table{}, ErrEmptyFile
}

// dataRows counts the rows Validate will turn into records.
func dataRows(rows [][]string) int {
	n := 0
	for _, row := range rows {
		if !isBlank(row) {
			n++
		}
	}
	return n
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
