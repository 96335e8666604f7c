package aggregate

import (
	"strconv"
	"strings"

	id "fleetguard/pkg/domain"
	dErrors "fleetguard/pkg/domain-errors"
)

// ScopeFilter selects the partner ("all" or one id), an optional driver and
// the target year. It is a value: the With methods return modified copies.
type ScopeFilter struct {
	partner id.PartnerID
	driver  id.DriverID
	year    int
}

// NewScope builds a scope for partner and year. An empty partner means all.
func NewScope(partner id.PartnerID, year int) ScopeFilter {
	if partner == "" {
		partner = id.AllPartners
	}
	return ScopeFilter{partner: partner, year: year}
}

// ParseScope validates raw query values. An empty year falls back to
// defaultYear.
func ParseScope(partner, driver, year string, defaultYear int) (ScopeFilter, error) {
	scope := NewScope("", defaultYear)

	if p := strings.TrimSpace(partner); p != "" && p != string(id.AllPartners) {
		pid, err := id.ParsePartnerID(p)
		if err != nil {
			return ScopeFilter{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid partner")
		}
		scope.partner = pid
	}
	if d := strings.TrimSpace(driver); d != "" {
		did, err := id.ParseDriverID(d)
		if err != nil {
			return ScopeFilter{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid driver")
		}
		scope.driver = did
	}
	if y := strings.TrimSpace(year); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil || n < 1970 || n > 9999 {
			return ScopeFilter{}, dErrors.New(dErrors.CodeValidation, "year must be a four digit number")
		}
		scope.year = n
	}
	return scope, nil
}

func (s ScopeFilter) Partner() id.PartnerID { return s.partner }
func (s ScopeFilter) Year() int             { return s.year }

// Driver returns the driver filter; ok is false when none is active.
func (s ScopeFilter) Driver() (id.DriverID, bool) {
	return s.driver, !s.driver.IsNil()
}

// AllPartners reports whether the partner filter is inactive.
func (s ScopeFilter) AllPartners() bool {
	return s.partner == "" || s.partner.IsAll()
}

func (s ScopeFilter) WithDriver(driver id.DriverID) ScopeFilter {
	s.driver = driver
	return s
}

func (s ScopeFilter) WithoutDriver() ScopeFilter {
	s.driver = ""
	return s
}

func (s ScopeFilter) WithYear(year int) ScopeFilter {
	s.year = year
	return s
}

// Key is a stable cache key.
func (s ScopeFilter) Key() string {
	return string(s.partner) + "|" + string(s.driver) + "|" + strconv.Itoa(s.year)
}

func (s ScopeFilter) matchesPartner(p id.PartnerID) bool {
	return s.AllPartners() || p == s.partner
}

// ScopeView is the wire form of a scope.
type ScopeView struct {
	Partner id.PartnerID `json:"partner"`
	Driver  id.DriverID  `json:"driver,omitempty"`
	Year    int          `json:"year"`
}

func (s ScopeFilter) View() ScopeView {
	return ScopeView{Partner: s.partner, Driver: s.driver, Year: s.year}
}
