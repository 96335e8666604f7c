package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "fleetguard/pkg/domain-errors"
)

// Document-store identifiers. They are opaque strings; distinct types keep a
// driver id from being passed where a report id is expected.
type (
	PartnerID    string
	DriverID     string
	VehicleID    string
	ReportID     string
	InfractionID string
	RuleID       string
	ConfigID     string
	OBCKeyID     string
	UserID       string
)

// AllPartners is the wildcard partner used by scope filters and by sanction
// configs that apply to every partner.
const AllPartners PartnerID = "all"

const maxIDLength = 128

// IsAll reports whether p is the wildcard partner.
func (p PartnerID) IsAll() bool { return p == AllPartners }

func (p PartnerID) String() string    { return string(p) }
func (d DriverID) String() string     { return string(d) }
func (v VehicleID) String() string    { return string(v) }
func (r ReportID) String() string     { return string(r) }
func (i InfractionID) String() string { return string(i) }
func (r RuleID) String() string       { return string(r) }
func (c ConfigID) String() string     { return string(c) }
func (k OBCKeyID) String() string     { return string(k) }
func (u UserID) String() string       { return string(u) }

// IsNil reports whether the identifier is empty.
func (d DriverID) IsNil() bool { return d == "" }

// IsNil reports whether the identifier is empty.
func (r ReportID) IsNil() bool { return r == "" }

// IsNil reports whether the identifier is empty.
func (r RuleID) IsNil() bool { return r == "" }

// IsNil reports whether the identifier is empty.
func (u UserID) IsNil() bool { return u == "" }

func ParsePartnerID(s string) (PartnerID, error) { return parseID[PartnerID]("partner_id", s) }

func ParseDriverID(s string) (DriverID, error) { return parseID[DriverID]("driver_id", s) }

func ParseReportID(s string) (ReportID, error) { return parseID[ReportID]("report_id", s) }

func ParseInfractionID(s string) (InfractionID, error) {
	return parseID[InfractionID]("infraction_id", s)
}

func ParseRuleID(s string) (RuleID, error) { return parseID[RuleID]("rule_id", s) }

func ParseUserID(s string) (UserID, error) { return parseID[UserID]("user_id", s) }

// parseID validates an identifier at a trust boundary: trimmed, non-empty,
// valid UTF-8, bounded, and free of control characters.
func parseID[T ~string](field, s string) (T, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" must be valid UTF-8")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, field+" contains invalid characters")
		}
	}
	return T(s), nil
}
