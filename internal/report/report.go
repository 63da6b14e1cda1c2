package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/vinodismyname/kpidash/internal/kpi"
)

// Headline carries the three top-line metrics of the dashboard.
type Headline struct {
	Records            int     `json:"records" jsonschema_description:"Records after filtering"`
	TotalActual        float64 `json:"total_actual" jsonschema_description:"Sum of Actual Money"`
	TotalTarget        float64 `json:"total_target" jsonschema_description:"Sum of Target Money"`
	AchievementPct     float64 `json:"achievement_pct" jsonschema_description:"Actual as a percentage of target, 2 decimals; 0 when target is 0"`
	NoTarget           bool    `json:"no_target,omitempty" jsonschema_description:"True when the target sum is zero"`
	ActualDisplay      string  `json:"actual_display" jsonschema_description:"Formatted actual, e.g. $1,234.56"`
	TargetDisplay      string  `json:"target_display" jsonschema_description:"Formatted target"`
	AchievementDisplay string  `json:"achievement_display" jsonschema_description:"Formatted achievement, e.g. 98.50%"`
}

// Row is one group of a dashboard section.
type Row struct {
	Key                string  `json:"key" jsonschema_description:"Group value; months as YYYY-MM"`
	Records            int     `json:"records"`
	Actual             float64 `json:"actual"`
	Target             float64 `json:"target"`
	AchievementPct     float64 `json:"achievement_pct"`
	NoTarget           bool    `json:"no_target,omitempty"`
	SharePct           float64 `json:"share_pct" jsonschema_description:"Share of total actual money across the section"`
	ActualDisplay      string  `json:"actual_display"`
	TargetDisplay      string  `json:"target_display"`
	AchievementDisplay string  `json:"achievement_display"`
}

// Dashboard bundles every section for one filtered view.
type Dashboard struct {
	Filters  kpi.Selection `json:"filters"`
	Headline Headline      `json:"headline"`
	Monthly  []Row         `json:"monthly" jsonschema_description:"Actual vs target by month, chronological"`
	Teams    []Row         `json:"teams"`
	Projects []Row         `json:"projects"`
	Leads    []Row         `json:"leads" jsonschema_description:"Includes each lead's share of actual money"`
}

// Build filters rs by sel and computes every section.
func Build(rs kpi.RecordSet, sel kpi.Selection) Dashboard {
	view := kpi.ApplyFilters(rs, sel)
	return Dashboard{
		Filters:  sel,
		Headline: NewHeadline(kpi.ComputeTotals(view)),
		Monthly:  Section(view, kpi.ByMonth),
		Teams:    Section(view, kpi.ByTeam),
		Projects: Section(view, kpi.ByProject),
		Leads:    Section(view, kpi.ByLead),
	}
}

// NewHeadline renders totals for display.
func NewHeadline(t kpi.Totals) Headline {
	return Headline{
		Records:            t.Records,
		TotalActual:        t.ActualSum.InexactFloat64(),
		TotalTarget:        t.TargetSum.InexactFloat64(),
		AchievementPct:     t.AchievementPct.Round(2).InexactFloat64(),
		NoTarget:           t.NoTarget,
		ActualDisplay:      FormatMoney(t.ActualSum),
		TargetDisplay:      FormatMoney(t.TargetSum),
		AchievementDisplay: FormatPercent(t.AchievementPct),
	}
}

// Section groups rs by k and renders the rows.
func Section(rs kpi.RecordSet, k kpi.GroupKey) []Row {
	return Rows(kpi.GroupBy(rs, k))
}

// Rows renders aggregate rows, adding each row's share of the summed actual.
func Rows(groups []kpi.AggregateRow) []Row {
	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(g.ActualSum)
	}
	out := make([]Row, 0, len(groups))
	for _, g := range groups {
		out = append(out, Row{
			Key:                g.Key,
			Records:            g.Records,
			Actual:             g.ActualSum.InexactFloat64(),
			Target:             g.TargetSum.InexactFloat64(),
			AchievementPct:     g.AchievementPct.Round(2).InexactFloat64(),
			NoTarget:           g.NoTarget,
			SharePct:           kpi.AchievementPct(g.ActualSum, total).Round(2).InexactFloat64(),
			ActualDisplay:      FormatMoney(g.ActualSum),
			TargetDisplay:      FormatMoney(g.TargetSum),
			AchievementDisplay: FormatPercent(g.AchievementPct),
		})
	}
	return out
}

// FormatMoney renders d as dollars with thousands separators and two
// decimals, e.g. $1,234.56 or -$12.50.
func FormatMoney(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.Sign() < 0 {
		sign = "-"
	}
	abs := d.Abs()
	_, frac, _ := strings.Cut(abs.StringFixed(2), ".")
	return sign + "$" + humanize.BigComma(abs.BigInt()) + "." + frac
}

// FormatPercent renders d with two decimals and a percent sign.
func FormatPercent(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}

// SummaryLines renders the dashboard as text, headline first and then one
// line per group. Callers trim it to their output budget.
func SummaryLines(d Dashboard) []string {
	h := d.Headline
	lines := []string{
		fmt.Sprintf("records=%d actual=%s target=%s achievement=%s",
			h.Records, h.ActualDisplay, h.TargetDisplay, h.AchievementDisplay),
	}
	if !d.Filters.IsEmpty() {
		lines = append(lines, fmt.Sprintf("filters: teams=%v projects=%v leads=%v",
			d.Filters.Teams, d.Filters.Projects, d.Filters.Leads))
	}
	sections := []struct {
		name string
		rows []Row
	}{
		{"monthly", d.Monthly},
		{"teams", d.Teams},
		{"projects", d.Projects},
		{"leads", d.Leads},
	}
	for _, s := range sections {
		if len(s.rows) == 0 {
			lines = append(lines, s.name+": (none)")
			continue
		}
		lines = append(lines, s.name+":")
		for _, r := range s.rows {
			lines = append(lines, RowLine(r))
		}
	}
	return lines
}

// RowLine renders one group as "- key actual=... target=... achievement=...".
func RowLine(r Row) string {
	return fmt.Sprintf("- %s actual=%s target=%s achievement=%s", r.Key, r.ActualDisplay, r.TargetDisplay, r.AchievementDisplay)
}
