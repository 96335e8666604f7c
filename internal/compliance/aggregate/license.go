package aggregate

import (
	"cmp"
	"math"
	"slices"

	"fleetguard/internal/compliance/models"
	id "fleetguard/pkg/domain"
)

// SafetyScore is round(100 - (points*2 + count*0.5)) clamped to [0, 100]. It
// never increases as either argument grows.
func SafetyScore(pointsLost, infractionCount int) int {
	score := math.Round(100 - (float64(pointsLost)*2 + float64(infractionCount)*0.5))
	return int(min(max(score, 0), 100))
}

// Safety is the scope-wide safety summary.
type Safety struct {
	Score       int `json:"score"`
	PointsLost  int `json:"points_lost"`
	Infractions int `json:"infractions"`
}

// Safety applies SafetyScore to every in-scope infraction, including those
// whose report cannot be resolved.
func (e *Engine) Safety(scope ScopeFilter) Safety {
	var s Safety
	for _, inf := range e.infractions(scope) {
		s.PointsLost += e.index.Resolve(inf).Points
		s.Infractions++
	}
	s.Score = SafetyScore(s.PointsLost, s.Infractions)
	return s
}

// LicenseBalance is a driver's point budget for one year. PointsLost is not
// clamped and may exceed the allotment; Balance stays within [0, Allotment].
type LicenseBalance struct {
	DriverID    id.DriverID `json:"driver_id"`
	Name        string      `json:"name"`
	Allotment   int         `json:"allotment"`
	PointsLost  int         `json:"points_lost"`
	Balance     int         `json:"balance"`
	Infractions int         `json:"infractions"`
}

// LicenseBalance sums the resolved points of the driver's infractions in
// scope.Year(). A license follows the driver across partners, so the scope's
// partner and driver filters are ignored.
func (e *Engine) LicenseBalance(driver id.DriverID, scope ScopeFilter) LicenseBalance {
	lb := LicenseBalance{DriverID: driver, Name: e.DriverName(driver), Allotment: LicenseAllotment}
	yearScope := NewScope(id.AllPartners, scope.Year()).WithDriver(driver)
	for _, inf := range e.infractions(yearScope) {
		lb.PointsLost += e.index.Resolve(inf).Points
		lb.Infractions++
	}
	lb.Balance = LicenseAllotment - min(max(lb.PointsLost, 0), LicenseAllotment)
	return lb
}

// Sanctions returns the balance of every driver linked to the scope partner
// (every driver for "all"), or only the scope driver when one is set. Sorted
// by balance ascending, then driver id.
func (e *Engine) Sanctions(scope ScopeFilter) []LicenseBalance {
	var out []LicenseBalance
	seen := make(map[id.DriverID]struct{})
	only, filtered := scope.Driver()
	for _, d := range e.snap.Drivers {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		if filtered && d.ID != only {
			continue
		}
		if !e.LinkedToPartner(d, scope.Partner()) {
			continue
		}
		out = append(out, e.LicenseBalance(d.ID, scope))
	}
	slices.SortFunc(out, func(a, b LicenseBalance) int {
		if c := cmp.Compare(a.Balance, b.Balance); c != 0 {
			return c
		}
		return cmp.Compare(a.DriverID, b.DriverID)
	})
	return out
}

// RecentInfraction is one row of the recent list.
type RecentInfraction struct {
	ID             id.InfractionID       `json:"id"`
	Date           models.Date           `json:"date"`
	PartnerID      id.PartnerID          `json:"partner_id"`
	ReportID       id.ReportID           `json:"report_id"`
	Type           string                `json:"type"`
	Classification models.Classification `json:"classification"`
	Points         int                   `json:"points"`
	Action         string                `json:"action"`
	Reviewed       bool                  `json:"reviewed"`
	DriverID       id.DriverID           `json:"driver_id,omitempty"`
	DriverName     string                `json:"driver_name"`
}

// RecentInfractions lists the TopN latest in-scope infractions, newest first.
// Same-day ties break by id ascending.
func (e *Engine) RecentInfractions(scope ScopeFilter) []RecentInfraction {
	infs := e.infractions(scope)
	slices.SortFunc(infs, func(a, b models.Infraction) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	infs = top(infs)

	out := make([]RecentInfraction, 0, len(infs))
	for _, inf := range infs {
		res := e.index.Resolve(inf)
		row := RecentInfraction{
			ID:             inf.ID,
			Date:           inf.Date,
			PartnerID:      inf.PartnerID,
			ReportID:       inf.ReportID,
			Type:           inf.Type,
			Classification: res.Classification,
			Points:         res.Points,
			Action:         inf.Action,
			Reviewed:       inf.Reviewed,
			DriverName:     UnknownDriver,
		}
		if driverID, ok := e.index.DriverOf(inf); ok {
			row.DriverID = driverID
			row.DriverName = e.DriverName(driverID)
		}
		out = append(out, row)
	}
	return out
}
