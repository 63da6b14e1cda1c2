package kpi

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one validated performance row: a month/team/project/lead with its
// actual and target money.
type Record struct {
	Month   time.Time       `json:"month"`
	Team    string          `json:"team"`
	Project string          `json:"project"`
	Lead    string          `json:"lead"`
	Actual  decimal.Decimal `json:"actual_money"`
	Target  decimal.Decimal `json:"target_money"`
}

// RecordSet is an ordered, read-only collection of records. The zero value is
// an empty set. Operations that narrow a set return a new RecordSet.
type RecordSet struct {
	records []Record
}

// NewRecordSet copies records into a new set.
func NewRecordSet(records []Record) RecordSet {
	out := make([]Record, len(records))
	copy(out, records)
	return RecordSet{records: out}
}

// Len returns the number of records.
func (s RecordSet) Len() int { return len(s.records) }

// At returns the i-th record.
func (s RecordSet) At(i int) Record { return s.records[i] }

// Records returns a copy of the underlying records.
func (s RecordSet) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Equal reports whether both sets hold the same records in the same order.
func (s RecordSet) Equal(other RecordSet) bool {
	if len(s.records) != len(other.records) {
		return false
	}
	for i := range s.records {
		a, b := s.records[i], other.records[i]
		if !a.Month.Equal(b.Month) || a.Team != b.Team || a.Project != b.Project || a.Lead != b.Lead ||
			!a.Actual.Equal(b.Actual) || !a.Target.Equal(b.Target) {
			return false
		}
	}
	return true
}

// GroupKey names the dimension used to partition records.
type GroupKey string

const (
	ByMonth   GroupKey = "month"
	ByTeam    GroupKey = "team"
	ByProject GroupKey = "project"
	ByLead    GroupKey = "lead"
)

// GroupKeys lists every supported dimension in dashboard order.
var GroupKeys = []GroupKey{ByMonth, ByTeam, ByProject, ByLead}

// ParseGroupKey resolves a dimension name case-insensitively.
func ParseGroupKey(s string) (GroupKey, error) {
	k := GroupKey(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case ByMonth, ByTeam, ByProject, ByLead:
		return k, nil
	}
	return "", fmt.Errorf("kpi: unknown dimension %q (want month, team, project or lead)", s)
}

// MonthKeyLayout formats month group keys.
const MonthKeyLayout = "2006-01"

// keyOf returns the grouping value of r for k.
func keyOf(r Record, k GroupKey) string {
	switch k {
	case ByMonth:
		return r.Month.Format(MonthKeyLayout)
	case ByTeam:
		return r.Team
	case ByProject:
		return r.Project
	case ByLead:
		return r.Lead
	}
	return ""
}

// AggregateRow holds the sums for one group. AchievementPct is zero and
// NoTarget is set when TargetSum is zero.
type AggregateRow struct {
	Key            string          `json:"key"`
	Month          time.Time       `json:"month,omitzero"`
	Records        int             `json:"records"`
	ActualSum      decimal.Decimal `json:"actual_sum"`
	TargetSum      decimal.Decimal `json:"target_sum"`
	AchievementPct decimal.Decimal `json:"achievement_pct"`
	NoTarget       bool            `json:"no_target,omitempty"`
}

// Totals is the single-partition aggregate used for headline metrics.
type Totals struct {
	Records        int             `json:"records"`
	ActualSum      decimal.Decimal `json:"actual_sum"`
	TargetSum      decimal.Decimal `json:"target_sum"`
	AchievementPct decimal.Decimal `json:"achievement_pct"`
	NoTarget       bool            `json:"no_target,omitempty"`
}
