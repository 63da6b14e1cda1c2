package kpi

import "sort"

// Selection lists the included values per dimension. An empty list leaves
// that dimension unrestricted; dimensions combine with AND.
type Selection struct {
	Teams    []string `json:"teams,omitempty" jsonschema_description:"Teams to include; empty means all"`
	Projects []string `json:"projects,omitempty" jsonschema_description:"Projects to include; empty means all"`
	Leads    []string `json:"leads,omitempty" jsonschema_description:"Leads to include; empty means all"`
}

// IsEmpty reports whether the selection restricts nothing.
func (s Selection) IsEmpty() bool {
	return len(s.Teams) == 0 && len(s.Projects) == 0 && len(s.Leads) == 0
}

// ApplyFilters returns the records matching every non-empty dimension of sel,
// in input order. The input set is left untouched.
func ApplyFilters(rs RecordSet, sel Selection) RecordSet {
	teams := toSet(sel.Teams)
	projects := toSet(sel.Projects)
	leads := toSet(sel.Leads)

	out := make([]Record, 0, rs.Len())
	for _, r := range rs.records {
		if !admits(teams, r.Team) || !admits(projects, r.Project) || !admits(leads, r.Lead) {
			continue
		}
		out = append(out, r)
	}
	return RecordSet{records: out}
}

// DistinctValues lists the values of k in first-appearance order; months come
// back chronologically as MonthKeyLayout strings.
func DistinctValues(rs RecordSet, k GroupKey) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range rs.records {
		v := keyOf(r, k)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if k == ByMonth {
		// MonthKeyLayout sorts lexically in time order.
		sort.Strings(out)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// admits treats a nil set as "no restriction".
func admits(set map[string]struct{}, v string) bool {
	if set == nil {
		return true
	}
	_, ok := set[v]
	return ok
}
