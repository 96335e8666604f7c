package severity

import (
	"fleetguard/internal/compliance/models"
	id "fleetguard/pkg/domain"
)

type configKey struct {
	rule    id.RuleID
	class   models.Classification
	partner id.PartnerID
}

// Duplicate records a config that lost the tie-break to Winner.
type Duplicate struct {
	RuleID         id.RuleID
	Classification models.Classification
	PartnerID      id.PartnerID
	Winner         id.ConfigID
	Shadowed       id.ConfigID
}

// Index holds the lookups one snapshot needs. It is read-only after
// NewIndex and safe for concurrent use.
type Index struct {
	reports    map[id.ReportID]models.TripReport
	rules      map[id.RuleID]models.ComplianceRule
	configs    map[configKey]models.SanctionConfig
	duplicates []Duplicate
}

// NewIndex builds the lookups. For duplicate report or rule ids the first in
// stored order is kept. Configs whose classification is not exactly Alert or
// Alarm can never match and are ignored. Negative config points count as 0.
func NewIndex(reports []models.TripReport, rules []models.ComplianceRule, configs []models.SanctionConfig) *Index {
	x := &Index{
		reports: make(map[id.ReportID]models.TripReport, len(reports)),
		rules:   make(map[id.RuleID]models.ComplianceRule, len(rules)),
		configs: make(map[configKey]models.SanctionConfig, len(configs)),
	}
	for _, r := range reports {
		if _, ok := x.reports[r.ID]; !ok {
			x.reports[r.ID] = r
		}
	}
	for _, r := range rules {
		if _, ok := x.rules[r.ID]; !ok {
			x.rules[r.ID] = r
		}
	}
	for _, c := range configs {
		class := models.Classification(c.Classification)
		if class != models.Alarm && class != models.Alert {
			continue
		}
		c.Points = max(c.Points, 0)
		key := configKey{rule: c.RuleID, class: class, partner: c.PartnerID}
		existing, ok := x.configs[key]
		if !ok {
			x.configs[key] = c
			continue
		}
		if c.CreatedAt.After(existing.CreatedAt) {
			x.configs[key] = c
			x.duplicates = append(x.duplicates, x.duplicate(key, c.ID, existing.ID))
		} else {
			x.duplicates = append(x.duplicates, x.duplicate(key, existing.ID, c.ID))
		}
	}
	return x
}

func (x *Index) duplicate(key configKey, winner, shadowed id.ConfigID) Duplicate {
	return Duplicate{
		RuleID:         key.rule,
		Classification: key.class,
		PartnerID:      key.partner,
		Winner:         winner,
		Shadowed:       shadowed,
	}
}

// Resolve runs the cascade for one infraction.
func (x *Index) Resolve(inf models.Infraction) Result {
	class := models.ClassificationOf(inf.Type)
	def := Result{Classification: class, Points: DefaultPoints(class), Source: SourceDefault}

	report, ok := x.reports[inf.ReportID]
	if !ok || report.RuleID.IsNil() {
		return def
	}

	if c, ok := x.configs[configKey{rule: report.RuleID, class: class, partner: inf.PartnerID}]; ok {
		return Result{Classification: class, Points: c.Points, Source: SourcePartner, ConfigID: c.ID, Action: c.Action}
	}
	if c, ok := x.configs[configKey{rule: report.RuleID, class: class, partner: id.AllPartners}]; ok {
		return Result{Classification: class, Points: c.Points, Source: SourceGlobal, ConfigID: c.ID, Action: c.Action}
	}
	return def
}

// Report looks up a report by id.
func (x *Index) Report(reportID id.ReportID) (models.TripReport, bool) {
	r, ok := x.reports[reportID]
	return r, ok
}

// Rule looks up a rule by id.
func (x *Index) Rule(ruleID id.RuleID) (models.ComplianceRule, bool) {
	r, ok := x.rules[ruleID]
	return r, ok
}

// DriverOf returns the driver an infraction is attributable to through its
// report. ok is false when the report or its driver is unknown.
func (x *Index) DriverOf(inf models.Infraction) (id.DriverID, bool) {
	r, ok := x.reports[inf.ReportID]
	if !ok || r.DriverID.IsNil() {
		return "", false
	}
	return r.DriverID, true
}

// Duplicates lists every shadowed config, in stored order of discovery.
func (x *Index) Duplicates() []Duplicate {
	return append([]Duplicate(nil), x.duplicates...)
}
