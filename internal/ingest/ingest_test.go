package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/kpidash/internal/kpi"
)

var header = []string{"Month", "Team", "Project", "Lead", "Actual Money", "Target Money"}

// workbookBytes builds an in-memory xlsx with the given header and rows.
func workbookBytes(t *testing.T, sheet string, hdr []string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	if sheet != "" && sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	} else {
		sheet = "Sheet1"
	}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &hdr))
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func TestLoad_WorkbookWithTextDates(t *testing.T) {
	data := workbookBytes(t, "Perf", header, [][]any{
		{"2024-01-01", "TeamA", "ProjX", "Lead1", 100, 200},
		{"2024-01-01", "TeamB", "ProjX", "Lead1", 50, 50},
		{"2024-02-01", "TeamA", "ProjY", "Lead2", 300, 100},
	})
	rs, err := Load(context.Background(), data, Options{})
	require.NoError(t, err)
	require.Equal(t, 3, rs.Len())

	tot := kpi.ComputeTotals(rs)
	require.True(t, tot.ActualSum.Equal(decimal.NewFromInt(450)))
	require.True(t, tot.TargetSum.Equal(decimal.NewFromInt(350)))
}

func TestLoad_WorkbookWithDateCells(t *testing.T) {
	data := workbookBytes(t, "", header, [][]any{
		{time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), "TeamA", "ProjX", "Lead1", 10.5, 20},
	})
	rs, err := Load(context.Background(), data, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	require.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), rs.At(0).Month)
	require.True(t, rs.At(0).Actual.Equal(decimal.RequireFromString("10.5")))
}

func TestLoad_WorkbookMissingColumn(t *testing.T) {
	data := workbookBytes(t, "", []string{"Month", "Team", "Project", "Actual Money", "Target Money"}, [][]any{
		{"2024-01-01", "TeamA", "ProjX", 1, 2},
	})
	_, err := Load(context.Background(), data, Options{})
	var se *kpi.SchemaError
	require.True(t, errors.As(err, &se))
	require.Equal(t, []string{"Lead"}, se.MissingColumns)
}

func TestLoad_NamedSheet(t *testing.T) {
	data := workbookBytes(t, "Data", header, [][]any{
		{"2024-01-01", "TeamA", "ProjX", "Lead1", 1, 1},
	})
	_, err := Load(context.Background(), data, Options{Sheet: "Data"})
	require.NoError(t, err)

	_, err = Load(context.Background(), data, Options{Sheet: "Missing"})
	require.ErrorIs(t, err, ErrSheetNotFound)
}

func TestLoad_CSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBFMonth,Team,Project,Lead,Actual Money,Target Money\n" +
		"2024-01-01,TeamA,ProjX,Lead1,\"$1,000.50\",2000\n" +
		"\n" +
		"2024-02-01,TeamB,ProjY,Lead2,0,0\n")
	rs, err := Load(context.Background(), data, Options{})
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	require.True(t, rs.At(0).Actual.Equal(decimal.RequireFromString("1000.5")))
}

func TestLoad_CSVParseErrorPosition(t *testing.T) {
	data := []byte("Month,Team,Project,Lead,Actual Money,Target Money\n" +
		"2024-01-01,TeamA,ProjX,Lead1,10,20\n" +
		"2024-01-01,TeamA,ProjX,Lead1,ten,20\n")
	_, err := Load(context.Background(), data, Options{})
	var pe *kpi.ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, 3, pe.Row)
	require.Equal(t, kpi.ColActual, pe.Column)
}

func TestLoad_Limits(t *testing.T) {
	data := []byte("Month,Team,Project,Lead,Actual Money,Target Money\n" +
		"2024-01-01,A,P,L,1,1\n2024-01-01,A,P,L,1,1\n")

	_, err := Load(context.Background(), data, Options{MaxBytes: 10})
	require.ErrorIs(t, err, ErrFileTooLarge)

	_, err = Load(context.Background(), data, Options{MaxRecords: 1})
	require.ErrorIs(t, err, ErrTooManyRecords)

	_, err = Load(context.Background(), nil, Options{})
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestLoad_MaxRecordsIgnoresBlankRows(t *testing.T) {
	data := []byte("Month,Team,Project,Lead,Actual Money,Target Money\n" +
		",,,,,\n" +
		"2024-01-01,A,P,L,1,1\n" +
		",,,,,\n,,,,,\n")
	rs, err := Load(context.Background(), data, Options{MaxRecords: 1})
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
}

func TestLoad_CSVQuotingErrorIsPositioned(t *testing.T) {
	data := []byte("Month,Team,Project,Lead,Actual Money,Target Money\n" +
		"2024-01-01,A,P,L,1,1\n" +
		"2024-01-01,Team \"A,P,L,1,1\n")
	_, err := Load(context.Background(), data, Options{})
	var pe *kpi.ParseError
	require.True(t, errors.As(err, &pe), "got %v", err)
	require.Equal(t, 3, pe.Row)
	require.ErrorIs(t, err, csv.ErrBareQuote)
	require.NotErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_CSVNumericMonthIsNotASerialDate(t *testing.T) {
	data := []byte("Month,Team,Project,Lead,Actual Money,Target Money\n" +
		"2024,A,P,L,1,1\n")
	_, err := Load(context.Background(), data, Options{})
	var pe *kpi.ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, kpi.ColMonth, pe.Column)
}

func TestLoad_RejectsLegacyAndBinary(t *testing.T) {
	legacy := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 32)...)
	_, err := Load(context.Background(), legacy, Options{})
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(context.Background(), []byte{'a', 0, 'b'}, Options{})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, []byte("x"), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFormatFromName(t *testing.T) {
	require.Equal(t, FormatXLSX, FormatFromName("q1.XLSX"))
	require.Equal(t, FormatCSV, FormatFromName("/tmp/q1.csv"))
	require.Equal(t, FormatAuto, FormatFromName("q1.xls"))
}
