package aggregate

import (
	"cmp"
	"slices"

	id "fleetguard/pkg/domain"
)

// DriverPoints is one row of the driver ranking.
type DriverPoints struct {
	DriverID    id.DriverID `json:"driver_id"`
	Name        string      `json:"name"`
	Points      int         `json:"points"`
	Infractions int         `json:"infractions"`
}

// RulePoints is one row of the rule ranking. Label is truncated for display;
// FullLabel is the grouping key.
type RulePoints struct {
	Label       string `json:"label"`
	FullLabel   string `json:"full_label"`
	Points      int    `json:"points"`
	Infractions int    `json:"infractions"`
}

// ClassCount counts infractions by declared type.
type ClassCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// DriverPoints ranks drivers by summed resolved points, top TopN. Infractions
// whose report cannot be resolved do not count toward any driver. Ties break
// by driver id ascending.
func (e *Engine) DriverPoints(scope ScopeFilter) []DriverPoints {
	totals := make(map[id.DriverID]*DriverPoints)
	for _, inf := range e.infractions(scope) {
		driverID, ok := e.index.DriverOf(inf)
		if !ok {
			continue
		}
		row, ok := totals[driverID]
		if !ok {
			row = &DriverPoints{DriverID: driverID, Name: e.DriverName(driverID)}
			totals[driverID] = row
		}
		row.Points += e.index.Resolve(inf).Points
		row.Infractions++
	}

	rows := make([]DriverPoints, 0, len(totals))
	for _, row := range totals {
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, func(a, b DriverPoints) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.DriverID, b.DriverID)
	})
	return top(rows)
}

// RulePoints ranks violation labels by summed resolved points, top TopN. The
// label is the linked rule's title, or the declared type when the report has
// no known rule. Ties break by full label ascending.
func (e *Engine) RulePoints(scope ScopeFilter) []RulePoints {
	totals := make(map[string]*RulePoints)
	for _, inf := range e.infractions(scope) {
		label := e.ruleLabel(inf.ReportID, inf.Type)
		row, ok := totals[label]
		if !ok {
			row = &RulePoints{Label: TruncateLabel(label), FullLabel: label}
			totals[label] = row
		}
		row.Points += e.index.Resolve(inf).Points
		row.Infractions++
	}

	rows := make([]RulePoints, 0, len(totals))
	for _, row := range totals {
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, func(a, b RulePoints) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.FullLabel, b.FullLabel)
	})
	return top(rows)
}

func (e *Engine) ruleLabel(reportID id.ReportID, declared string) string {
	if r, ok := e.index.Report(reportID); ok && !r.RuleID.IsNil() {
		if rule, ok := e.index.Rule(r.RuleID); ok && rule.Title != "" {
			return rule.Title
		}
	}
	if declared == "" {
		return UnspecifiedType
	}
	return declared
}

// ClassificationDistribution counts every in-scope infraction by its raw
// declared type, including those with dangling reports. Sorted by count
// descending, then type ascending.
func (e *Engine) ClassificationDistribution(scope ScopeFilter) []ClassCount {
	counts := make(map[string]int)
	for _, inf := range e.infractions(scope) {
		t := inf.Type
		if t == "" {
			t = UnspecifiedType
		}
		counts[t]++
	}

	out := make([]ClassCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, ClassCount{Type: t, Count: n})
	}
	slices.SortFunc(out, func(a, b ClassCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
	return out
}

// TruncateLabel cuts labels longer than MaxLabelRunes and appends "...".
func TruncateLabel(label string) string {
	runes := []rune(label)
	if len(runes) <= MaxLabelRunes {
		return label
	}
	return string(runes[:MaxLabelRunes]) + "..."
}

func top[T any](rows []T) []T {
	if len(rows) > TopN {
		return rows[:TopN]
	}
	return rows
}
