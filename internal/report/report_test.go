package report

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/kpidash/internal/kpi"
)

func month(m time.Month) time.Time { return time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC) }

func rec(m time.Month, team, project, lead string, actual, target int64) kpi.Record {
	return kpi.Record{
		Month:   month(m),
		Team:    team,
		Project: project,
		Lead:    lead,
		Actual:  decimal.NewFromInt(actual),
		Target:  decimal.NewFromInt(target),
	}
}

func sample() kpi.RecordSet {
	return kpi.NewRecordSet([]kpi.Record{
		rec(time.February, "TeamA", "ProjY", "Lead2", 300, 100),
		rec(time.January, "TeamA", "ProjX", "Lead1", 100, 200),
		rec(time.January, "TeamB", "ProjX", "Lead1", 50, 50),
	})
}

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"0":                      "$0.00",
		"5":                      "$5.00",
		"999.999":                "$1,000.00",
		"1234.5":                 "$1,234.50",
		"1234567.89":             "$1,234,567.89",
		"-12.5":                  "-$12.50",
		"-0.001":                 "$0.00",
		"100000":                 "$100,000.00",
		"-1234567.891":           "-$1,234,567.89",
		"12345678901234567890.5": "$12,345,678,901,234,567,890.50",
	}
	for in, want := range cases {
		require.Equal(t, want, FormatMoney(decimal.RequireFromString(in)), in)
	}
}

func TestFormatPercent(t *testing.T) {
	require.Equal(t, "128.57%", FormatPercent(kpi.AchievementPct(decimal.NewFromInt(450), decimal.NewFromInt(350))))
	require.Equal(t, "0.00%", FormatPercent(decimal.Zero))
}

func TestBuild_Unfiltered(t *testing.T) {
	d := Build(sample(), kpi.Selection{})

	require.Equal(t, 3, d.Headline.Records)
	require.Equal(t, "$450.00", d.Headline.ActualDisplay)
	require.Equal(t, "$350.00", d.Headline.TargetDisplay)
	require.Equal(t, "128.57%", d.Headline.AchievementDisplay)
	require.InDelta(t, 128.57, d.Headline.AchievementPct, 1e-9)

	require.Len(t, d.Monthly, 2)
	require.Equal(t, "2024-01", d.Monthly[0].Key)
	require.Equal(t, "2024-02", d.Monthly[1].Key)
	require.Equal(t, "60.00%", d.Monthly[0].AchievementDisplay)

	require.Equal(t, []string{"TeamA", "TeamB"}, keys(d.Teams))
	require.Equal(t, []string{"ProjY", "ProjX"}, keys(d.Projects))
	require.Equal(t, []string{"Lead2", "Lead1"}, keys(d.Leads))

	require.InDelta(t, 66.67, d.Leads[0].SharePct, 1e-9)
	require.InDelta(t, 33.33, d.Leads[1].SharePct, 1e-9)
}

func TestBuild_FilteredAndZeroTarget(t *testing.T) {
	rs := kpi.NewRecordSet([]kpi.Record{
		rec(time.March, "TeamC", "ProjZ", "Lead3", 10, 0),
		rec(time.March, "TeamA", "ProjX", "Lead1", 5, 5),
	})
	d := Build(rs, kpi.Selection{Teams: []string{"TeamC"}})

	require.Equal(t, []string{"TeamC"}, d.Filters.Teams)
	require.Equal(t, 1, d.Headline.Records)
	require.True(t, d.Headline.NoTarget)
	require.Equal(t, "0.00%", d.Headline.AchievementDisplay)
	require.Len(t, d.Teams, 1)
	require.True(t, d.Teams[0].NoTarget)
	require.InDelta(t, 100, d.Teams[0].SharePct, 1e-9)
}

func TestBuild_EmptyView(t *testing.T) {
	d := Build(sample(), kpi.Selection{Teams: []string{"Nobody"}})
	require.Equal(t, 0, d.Headline.Records)
	require.Equal(t, "$0.00", d.Headline.ActualDisplay)
	require.Empty(t, d.Monthly)
	require.Empty(t, d.Leads)
	require.Contains(t, SummaryLines(d), "monthly: (none)")
}

func TestSummary(t *testing.T) {
	got := strings.Join(SummaryLines(Build(sample(), kpi.Selection{})), "\n")
	require.Contains(t, got, "records=3 actual=$450.00 target=$350.00 achievement=128.57%")
	require.Contains(t, got, "teams:\n- TeamA actual=$400.00 target=$300.00 achievement=133.33%\n- TeamB actual=$50.00")
	require.NotContains(t, got, "filters:")
}

func TestSummaryLines_OneLinePerGroup(t *testing.T) {
	lines := SummaryLines(Build(sample(), kpi.Selection{Teams: []string{"TeamA"}}))
	require.Equal(t, "filters: teams=[TeamA] projects=[] leads=[]", lines[1])
	// headline, filters, 4 section headers, 2 months + 1 team + 2 projects + 2 leads
	require.Len(t, lines, 13)
	require.Equal(t, "monthly:", lines[2])
	require.Equal(t, "- 2024-01 actual=$100.00 target=$200.00 achievement=50.00%", lines[3])
}

func keys(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}
