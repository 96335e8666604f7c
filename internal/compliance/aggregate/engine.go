// Package aggregate derives dashboard metrics from a compliance snapshot.
//
// An Engine is built once per snapshot and precomputes the lookups every
// metric needs. All operations are pure: they never mutate the snapshot and
// the same snapshot and scope always yield the same result.
package aggregate

import (
	"fleetguard/internal/compliance/models"
	"fleetguard/internal/compliance/severity"
	id "fleetguard/pkg/domain"
)

const (
	// TopN bounds ranked lists.
	TopN = 5
	// LicenseAllotment is the starting point balance of every license.
	LicenseAllotment = 12
	// MaxLabelRunes bounds rule labels before truncation.
	MaxLabelRunes = 25
	// UnknownDriver labels infractions whose driver cannot be resolved.
	UnknownDriver = "Unknown"
	// UnspecifiedType labels infractions without a declared type.
	UnspecifiedType = "Unspecified"
)

// Engine computes metrics over one snapshot. Safe for concurrent use.
type Engine struct {
	snap       Snapshot
	index      *severity.Index
	drivers    map[id.DriverID]models.Driver
	keyPartner map[id.OBCKeyID]id.PartnerID
}

// NewEngine indexes snap. The engine keeps snap; callers must not mutate it
// afterwards.
func NewEngine(snap Snapshot) *Engine {
	e := &Engine{
		snap:       snap,
		index:      severity.NewIndex(snap.Reports, snap.Rules, snap.Configs),
		drivers:    make(map[id.DriverID]models.Driver, len(snap.Drivers)),
		keyPartner: make(map[id.OBCKeyID]id.PartnerID, len(snap.OBCKeys)),
	}
	for _, d := range snap.Drivers {
		if _, ok := e.drivers[d.ID]; !ok {
			e.drivers[d.ID] = d
		}
	}
	for _, k := range snap.OBCKeys {
		if _, ok := e.keyPartner[k.ID]; !ok {
			e.keyPartner[k.ID] = k.PartnerID
		}
	}
	return e
}

// Index exposes the severity lookups built for this snapshot.
func (e *Engine) Index() *severity.Index { return e.index }

// Resolve returns the severity of one infraction.
func (e *Engine) Resolve(inf models.Infraction) severity.Result {
	return e.index.Resolve(inf)
}

// Infraction finds an infraction by id.
func (e *Engine) Infraction(infID id.InfractionID) (models.Infraction, bool) {
	for _, inf := range e.snap.Infractions {
		if inf.ID == infID {
			return inf, true
		}
	}
	return models.Infraction{}, false
}

// Driver finds a driver by id.
func (e *Engine) Driver(driverID id.DriverID) (models.Driver, bool) {
	d, ok := e.drivers[driverID]
	return d, ok
}

// DriverName is the display name, or UnknownDriver.
func (e *Engine) DriverName(driverID id.DriverID) string {
	if d, ok := e.drivers[driverID]; ok {
		return d.DisplayName()
	}
	return UnknownDriver
}

// LinkedToPartner reports whether one of the driver's OBC keys is bound to
// partner. Every driver is linked to the wildcard partner.
func (e *Engine) LinkedToPartner(d models.Driver, partner id.PartnerID) bool {
	if partner == "" || partner.IsAll() {
		return true
	}
	for _, k := range d.OBCKeyIDs {
		if e.keyPartner[k] == partner {
			return true
		}
	}
	return false
}

func (e *Engine) reportInScope(r models.TripReport, scope ScopeFilter) bool {
	if !r.Date.InYear(scope.year) || !scope.matchesPartner(r.PartnerID) {
		return false
	}
	if driver, ok := scope.Driver(); ok {
		return r.DriverID == driver
	}
	return true
}

// infractionInScope filters on the infraction's own partner and date, and on
// the driver of its linked report.
func (e *Engine) infractionInScope(inf models.Infraction, scope ScopeFilter) bool {
	if !inf.Date.InYear(scope.year) || !scope.matchesPartner(inf.PartnerID) {
		return false
	}
	if driver, ok := scope.Driver(); ok {
		d, known := e.index.DriverOf(inf)
		return known && d == driver
	}
	return true
}

func (e *Engine) reports(scope ScopeFilter) []models.TripReport {
	var out []models.TripReport
	for _, r := range e.snap.Reports {
		if e.reportInScope(r, scope) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) infractions(scope ScopeFilter) []models.Infraction {
	var out []models.Infraction
	for _, inf := range e.snap.Infractions {
		if e.infractionInScope(inf, scope) {
			out = append(out, inf)
		}
	}
	return out
}
