// Package severity turns an infraction into a classified, point-weighted
// sanction.
//
// Resolution is a strict cascade and never fails:
//
//  1. classification is Alarm only for the exact declared type "Alarm";
//  2. without a linked report, or a report without a rule, the default
//     points apply (Alarm 3, Alert 1);
//  3. a config for (rule, classification, infraction partner) wins;
//  4. else a config for (rule, classification, "all");
//  5. else the default.
//
// When several configs share a key the one with the latest created_at wins;
// equal or missing timestamps keep the first in stored order.
package severity

import (
	"fleetguard/internal/compliance/models"
	id "fleetguard/pkg/domain"
)

// Default point costs.
const (
	DefaultAlarmPoints = 3
	DefaultAlertPoints = 1
)

// Source says which step of the cascade produced the points.
type Source string

const (
	SourceDefault Source = "default"
	SourcePartner Source = "partner"
	SourceGlobal  Source = "global"
)

// Result is a resolved severity.
type Result struct {
	Classification models.Classification `json:"classification"`
	Points         int                   `json:"points"`
	Source         Source                `json:"source"`
	ConfigID       id.ConfigID           `json:"config_id,omitempty"`
	Action         string                `json:"action,omitempty"`
}

// DefaultPoints returns the hard-coded cost of a classification.
func DefaultPoints(c models.Classification) int {
	if c == models.Alarm {
		return DefaultAlarmPoints
	}
	return DefaultAlertPoints
}

// Resolve builds a one-off index. Callers resolving many infractions against
// the same collections should build an Index once.
func Resolve(inf models.Infraction, reports []models.TripReport, rules []models.ComplianceRule, configs []models.SanctionConfig) Result {
	return NewIndex(reports, rules, configs).Resolve(inf)
}
