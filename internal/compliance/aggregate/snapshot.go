package aggregate

import (
	"slices"

	"fleetguard/internal/compliance/models"
)

// Snapshot is one consistent-enough set of collections. Cross-collection
// references may dangle; the engine treats them as unknown.
type Snapshot struct {
	Partners    []models.Partner
	Drivers     []models.Driver
	Vehicles    []models.Vehicle
	OBCKeys     []models.OBCKey
	Reports     []models.TripReport
	Infractions []models.Infraction
	Rules       []models.ComplianceRule
	Configs     []models.SanctionConfig
}

// Clone copies every collection so the result shares no backing arrays.
func (s Snapshot) Clone() Snapshot {
	drivers := slices.Clone(s.Drivers)
	for i := range drivers {
		drivers[i].OBCKeyIDs = slices.Clone(drivers[i].OBCKeyIDs)
	}
	return Snapshot{
		Partners:    slices.Clone(s.Partners),
		Drivers:     drivers,
		Vehicles:    slices.Clone(s.Vehicles),
		OBCKeys:     slices.Clone(s.OBCKeys),
		Reports:     slices.Clone(s.Reports),
		Infractions: slices.Clone(s.Infractions),
		Rules:       slices.Clone(s.Rules),
		Configs:     slices.Clone(s.Configs),
	}
}
