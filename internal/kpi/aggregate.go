package kpi

import (
	"sort"

	"github.com/shopspring/decimal"
)

// GroupBy partitions rs by k and sums actual and target money per group.
// Team, project and lead groups keep first-appearance order; month groups are
// chronological. Groups with no records are never emitted.
func GroupBy(rs RecordSet, k GroupKey) []AggregateRow {
	index := make(map[string]int)
	rows := []AggregateRow{}

	for _, r := range rs.records {
		key := keyOf(r, k)
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			row := AggregateRow{Key: key, ActualSum: decimal.Zero, TargetSum: decimal.Zero}
			if k == ByMonth {
				row.Month = r.Month
			}
			rows = append(rows, row)
		}
		rows[i].Records++
		rows[i].ActualSum = rows[i].ActualSum.Add(r.Actual)
		rows[i].TargetSum = rows[i].TargetSum.Add(r.Target)
	}

	if k == ByMonth {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Month.Before(rows[j].Month) })
	}
	for i := range rows {
		rows[i].AchievementPct = AchievementPct(rows[i].ActualSum, rows[i].TargetSum)
		rows[i].NoTarget = rows[i].TargetSum.IsZero()
	}
	return rows
}

// ComputeTotals sums the whole set as a single group.
func ComputeTotals(rs RecordSet) Totals {
	t := Totals{Records: rs.Len(), ActualSum: decimal.Zero, TargetSum: decimal.Zero}
	for _, r := range rs.records {
		t.ActualSum = t.ActualSum.Add(r.Actual)
		t.TargetSum = t.TargetSum.Add(r.Target)
	}
	t.AchievementPct = AchievementPct(t.ActualSum, t.TargetSum)
	t.NoTarget = t.TargetSum.IsZero()
	return t
}
