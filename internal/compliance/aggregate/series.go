package aggregate

import (
	"math"

	"fleetguard/internal/compliance/models"
)

// MonthPoint is one month of activity. Hour fields are sums rounded to one
// decimal; the Display fields round those to integers for chart labels.
type MonthPoint struct {
	Month        int     `json:"month"`
	DrivingHours float64 `json:"driving_hours"`
	WorkingHours float64 `json:"working_hours"`
	RestingHours float64 `json:"resting_hours"`
	IdleHours    float64 `json:"idle_hours"`

	DrivingDisplay int `json:"driving_display"`
	WorkingDisplay int `json:"working_display"`
	RestingDisplay int `json:"resting_display"`
	IdleDisplay    int `json:"idle_display"`

	Reports     int `json:"reports"`
	Infractions int `json:"infractions"`
}

// MonthlySeries returns the twelve months of scope.Year(). Working time is
// the report total, driving is driving and resting is waiting. Malformed
// durations contribute zero.
func (e *Engine) MonthlySeries(scope ScopeFilter) [12]MonthPoint {
	var raw [12]struct{ driving, working, resting, idle float64 }
	var series [12]MonthPoint

	for _, r := range e.reports(scope) {
		m := int(r.Date.Month()) - 1
		raw[m].driving += r.Driving.Hours()
		raw[m].working += r.Total.Hours()
		raw[m].resting += r.Waiting.Hours()
		raw[m].idle += r.Idle.Hours()
		series[m].Reports++
	}
	for _, inf := range e.infractions(scope) {
		series[int(inf.Date.Month())-1].Infractions++
	}

	for m := range series {
		p := &series[m]
		p.Month = m + 1
		p.DrivingHours = models.RoundTo(raw[m].driving, 1)
		p.WorkingHours = models.RoundTo(raw[m].working, 1)
		p.RestingHours = models.RoundTo(raw[m].resting, 1)
		p.IdleHours = models.RoundTo(raw[m].idle, 1)
		p.DrivingDisplay = int(math.Round(p.DrivingHours))
		p.WorkingDisplay = int(math.Round(p.WorkingHours))
		p.RestingDisplay = int(math.Round(p.RestingHours))
		p.IdleDisplay = int(math.Round(p.IdleHours))
	}
	return series
}
