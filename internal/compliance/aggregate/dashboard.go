package aggregate

import (
	"fleetguard/internal/compliance/models"
	id "fleetguard/pkg/domain"
)

// Totals are scope-wide sums. Hours are rounded to one decimal.
type Totals struct {
	Reports      int     `json:"reports"`
	Infractions  int     `json:"infractions"`
	PointsLost   int     `json:"points_lost"`
	DrivingHours float64 `json:"driving_hours"`
	WorkingHours float64 `json:"working_hours"`
	RestingHours float64 `json:"resting_hours"`
	IdleHours    float64 `json:"idle_hours"`
	Distance     float64 `json:"distance"`
}

// Dashboard bundles every metric for one scope.
type Dashboard struct {
	Scope            ScopeView          `json:"scope"`
	Totals           Totals             `json:"totals"`
	Safety           Safety             `json:"safety"`
	Monthly          [12]MonthPoint     `json:"monthly"`
	DriverPoints     []DriverPoints     `json:"driver_points"`
	RulePoints       []RulePoints       `json:"rule_points"`
	Distribution     []ClassCount       `json:"distribution"`
	Recent           []RecentInfraction `json:"recent"`
	DuplicateConfigs int                `json:"duplicate_configs"`
}

// Dashboard computes every metric for scope.
func (e *Engine) Dashboard(scope ScopeFilter) Dashboard {
	safety := e.Safety(scope)
	d := Dashboard{
		Scope:            scope.View(),
		Safety:           safety,
		Monthly:          e.MonthlySeries(scope),
		DriverPoints:     e.DriverPoints(scope),
		RulePoints:       e.RulePoints(scope),
		Distribution:     e.ClassificationDistribution(scope),
		Recent:           e.RecentInfractions(scope),
		DuplicateConfigs: len(e.index.Duplicates()),
	}

	var driving, working, resting, idle float64
	for _, r := range e.reports(scope) {
		d.Totals.Reports++
		driving += r.Driving.Hours()
		working += r.Total.Hours()
		resting += r.Waiting.Hours()
		idle += r.Idle.Hours()
		d.Totals.Distance += r.Distance
	}
	d.Totals.Infractions = safety.Infractions
	d.Totals.PointsLost = safety.PointsLost
	d.Totals.DrivingHours = models.RoundTo(driving, 1)
	d.Totals.WorkingHours = models.RoundTo(working, 1)
	d.Totals.RestingHours = models.RoundTo(resting, 1)
	d.Totals.IdleHours = models.RoundTo(idle, 1)
	d.Totals.Distance = models.RoundTo(d.Totals.Distance, 1)
	return d
}

// DriverDetail is the driver detail view.
type DriverDetail struct {
	Driver  models.Driver      `json:"driver"`
	License LicenseBalance     `json:"license"`
	Safety  Safety             `json:"safety"`
	Monthly [12]MonthPoint     `json:"monthly"`
	Recent  []RecentInfraction `json:"recent"`
}

// DriverDetail returns the detail view for driver within scope's partner and
// year. ok is false when the driver is not in the snapshot.
func (e *Engine) DriverDetail(driver id.DriverID, scope ScopeFilter) (DriverDetail, bool) {
	d, ok := e.drivers[driver]
	if !ok {
		return DriverDetail{}, false
	}
	scoped := scope.WithDriver(driver)
	return DriverDetail{
		Driver:  d,
		License: e.LicenseBalance(driver, scope),
		Safety:  e.Safety(scoped),
		Monthly: e.MonthlySeries(scoped),
		Recent:  e.RecentInfractions(scoped),
	}, true
}
