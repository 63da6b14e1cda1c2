package kpi

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func month(y int, m time.Month) time.Time { return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC) }

// sampleSet is the three-row dataset used across the scenario tests.
func sampleSet() RecordSet {
	return NewRecordSet([]Record{
		{Month: month(2024, time.January), Team: "TeamA", Project: "ProjX", Lead: "Lead1", Actual: d("100"), Target: d("200")},
		{Month: month(2024, time.January), Team: "TeamB", Project: "ProjX", Lead: "Lead1", Actual: d("50"), Target: d("50")},
		{Month: month(2024, time.February), Team: "TeamA", Project: "ProjY", Lead: "Lead2", Actual: d("300"), Target: d("100")},
	})
}

func TestAchievementPct(t *testing.T) {
	cases := []struct {
		actual, target, want string
	}{
		{"100", "200", "50"},
		{"0", "100", "0"},
		{"150", "100", "150"},
		{"-50", "100", "-50"},
		{"100", "-200", "-50"},
	}
	for _, c := range cases {
		got := AchievementPct(d(c.actual), d(c.target))
		require.True(t, got.Equal(d(c.want)), "achievement(%s, %s) = %s, want %s", c.actual, c.target, got, c.want)
	}
}

func TestAchievementPct_ZeroTarget(t *testing.T) {
	for _, a := range []string{"0", "1", "-1", "-987654321.55", "123456789012345678901234567890"} {
		require.True(t, AchievementPct(d(a), decimal.Zero).IsZero(), "actual %s", a)
	}
}

func TestComputeTotals_Scenario(t *testing.T) {
	tot := ComputeTotals(sampleSet())
	require.Equal(t, 3, tot.Records)
	require.True(t, tot.ActualSum.Equal(d("450")))
	require.True(t, tot.TargetSum.Equal(d("350")))
	require.Equal(t, "128.57", tot.AchievementPct.StringFixed(2))
	require.False(t, tot.NoTarget)
}

func TestComputeTotals_Empty(t *testing.T) {
	tot := ComputeTotals(RecordSet{})
	require.Equal(t, 0, tot.Records)
	require.True(t, tot.ActualSum.IsZero())
	require.True(t, tot.TargetSum.IsZero())
	require.True(t, tot.AchievementPct.IsZero())
	require.True(t, tot.NoTarget)
}

func TestGroupBy_Team(t *testing.T) {
	rows := GroupBy(sampleSet(), ByTeam)
	require.Len(t, rows, 2)

	require.Equal(t, "TeamA", rows[0].Key)
	require.True(t, rows[0].ActualSum.Equal(d("400")))
	require.True(t, rows[0].TargetSum.Equal(d("300")))
	require.Equal(t, "133.33", rows[0].AchievementPct.StringFixed(2))
	require.Equal(t, 2, rows[0].Records)

	require.Equal(t, "TeamB", rows[1].Key)
	require.True(t, rows[1].ActualSum.Equal(d("50")))
	require.True(t, rows[1].TargetSum.Equal(d("50")))
	require.Equal(t, "100.00", rows[1].AchievementPct.StringFixed(2))
}

func TestGroupBy_MonthIsChronological(t *testing.T) {
	rs := NewRecordSet([]Record{
		{Month: month(2024, time.March), Team: "A", Project: "P", Lead: "L", Actual: d("1"), Target: d("1")},
		{Month: month(2023, time.December), Team: "A", Project: "P", Lead: "L", Actual: d("2"), Target: d("0")},
		{Month: month(2024, time.January), Team: "A", Project: "P", Lead: "L", Actual: d("3"), Target: d("3")},
		{Month: month(2024, time.March), Team: "B", Project: "P", Lead: "L", Actual: d("4"), Target: d("4")},
	})
	rows := GroupBy(rs, ByMonth)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"2023-12", "2024-01", "2024-03"}, []string{rows[0].Key, rows[1].Key, rows[2].Key})
	require.True(t, rows[0].Month.Equal(month(2023, time.December)))
	require.True(t, rows[0].NoTarget)
	require.True(t, rows[0].AchievementPct.IsZero())
	require.True(t, rows[2].ActualSum.Equal(d("5")))
}

func TestGroupBy_FirstAppearanceOrder(t *testing.T) {
	rs := NewRecordSet([]Record{
		{Month: month(2024, 1), Team: "Zeta", Project: "P2", Lead: "Lx", Actual: d("1"), Target: d("1")},
		{Month: month(2024, 1), Team: "Alpha", Project: "P1", Lead: "Lb", Actual: d("1"), Target: d("1")},
		{Month: month(2024, 1), Team: "Zeta", Project: "P1", Lead: "La", Actual: d("1"), Target: d("1")},
	})
	keys := func(rows []AggregateRow) []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.Key
		}
		return out
	}
	require.Equal(t, []string{"Zeta", "Alpha"}, keys(GroupBy(rs, ByTeam)))
	require.Equal(t, []string{"P2", "P1"}, keys(GroupBy(rs, ByProject)))
	require.Equal(t, []string{"Lx", "Lb", "La"}, keys(GroupBy(rs, ByLead)))
	require.Empty(t, GroupBy(RecordSet{}, ByTeam))
}

func TestGroupBy_SumsDecomposeTotals(t *testing.T) {
	rs := sampleSet()
	tot := ComputeTotals(rs)
	for _, k := range GroupKeys {
		actual, target := decimal.Zero, decimal.Zero
		count := 0
		for _, row := range GroupBy(rs, k) {
			actual = actual.Add(row.ActualSum)
			target = target.Add(row.TargetSum)
			count += row.Records
		}
		require.True(t, actual.Equal(tot.ActualSum), "dimension %s", k)
		require.True(t, target.Equal(tot.TargetSum), "dimension %s", k)
		require.Equal(t, rs.Len(), count, "dimension %s: every record counted once", k)
	}
}

func TestApplyFilters_Identity(t *testing.T) {
	rs := sampleSet()
	out := ApplyFilters(rs, Selection{})
	require.True(t, out.Equal(rs))

	out = ApplyFilters(rs, Selection{Teams: []string{}, Leads: nil})
	require.True(t, out.Equal(rs))
}

func TestApplyFilters_TeamScenario(t *testing.T) {
	rs := sampleSet()
	out := ApplyFilters(rs, Selection{Teams: []string{"TeamA"}})
	require.Equal(t, 2, out.Len())
	for _, r := range out.Records() {
		require.Equal(t, "TeamA", r.Team)
	}
	tot := ComputeTotals(out)
	require.True(t, tot.ActualSum.Equal(d("400")))
	require.True(t, tot.TargetSum.Equal(d("300")))

	// Source set is untouched.
	require.Equal(t, 3, rs.Len())
}

func TestApplyFilters_ConjunctiveAndOrdered(t *testing.T) {
	rs := sampleSet()
	out := ApplyFilters(rs, Selection{Teams: []string{"TeamA", "TeamB"}, Leads: []string{"Lead1"}})
	require.Equal(t, 2, out.Len())
	require.Equal(t, "TeamA", out.At(0).Team)
	require.Equal(t, "TeamB", out.At(1).Team)

	none := ApplyFilters(rs, Selection{Teams: []string{"TeamB"}, Projects: []string{"ProjY"}})
	require.Equal(t, 0, none.Len())
	require.True(t, ComputeTotals(none).ActualSum.IsZero())

	// Matching is exact.
	require.Equal(t, 0, ApplyFilters(rs, Selection{Teams: []string{"teama"}}).Len())
}

func TestApplyFilters_Idempotent(t *testing.T) {
	rs := sampleSet()
	for _, sel := range []Selection{
		{},
		{Teams: []string{"TeamA"}},
		{Projects: []string{"ProjX"}, Leads: []string{"Lead1", "Lead2"}},
		{Leads: []string{"nobody"}},
	} {
		once := ApplyFilters(rs, sel)
		twice := ApplyFilters(once, sel)
		require.True(t, once.Equal(twice))
	}
}

func TestDistinctValues(t *testing.T) {
	rs := sampleSet()
	require.Equal(t, []string{"TeamA", "TeamB"}, DistinctValues(rs, ByTeam))
	require.Equal(t, []string{"ProjX", "ProjY"}, DistinctValues(rs, ByProject))
	require.Equal(t, []string{"2024-01", "2024-02"}, DistinctValues(rs, ByMonth))
	require.Empty(t, DistinctValues(RecordSet{}, ByLead))
}

func TestParseGroupKey(t *testing.T) {
	k, err := ParseGroupKey(" Team ")
	require.NoError(t, err)
	require.Equal(t, ByTeam, k)

	_, err = ParseGroupKey("region")
	require.Error(t, err)
}

func TestRecordSet_RecordsIsACopy(t *testing.T) {
	rs := sampleSet()
	recs := rs.Records()
	recs[0].Team = "mutated"
	require.Equal(t, "TeamA", rs.At(0).Team)
}
