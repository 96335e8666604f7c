// Package models holds the compliance entities decoded from feed documents.
// Field names follow the stored snake_case JSON.
package models

import (
	"strings"
	"time"

	id "fleetguard/pkg/domain"
)

type Partner struct {
	ID     id.PartnerID `json:"id"`
	Name   string       `json:"name"`
	Active bool         `json:"active"`
}

// ComplianceRule is a policy a trip can violate.
type ComplianceRule struct {
	ID          id.RuleID    `json:"id"`
	PartnerID   id.PartnerID `json:"partner_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
}

// SanctionConfig prices a (rule, classification, partner) combination.
// PartnerID may be id.AllPartners.
type SanctionConfig struct {
	ID             id.ConfigID  `json:"id"`
	PartnerID      id.PartnerID `json:"partner_id"`
	RuleID         id.RuleID    `json:"rule_id"`
	Classification string       `json:"classification"`
	Action         string       `json:"action"`
	Points         int          `json:"points"`
	CreatedAt      time.Time    `json:"created_at,omitzero"`
}

type TripReport struct {
	ID        id.ReportID   `json:"id"`
	Date      Date          `json:"date"`
	PartnerID id.PartnerID  `json:"partner_id"`
	DriverID  id.DriverID   `json:"driver_id"`
	VehicleID id.VehicleID  `json:"vehicle_id,omitempty"`
	RuleID    id.RuleID     `json:"rule_id,omitempty"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	Driving   ClockDuration `json:"driving"`
	Waiting   ClockDuration `json:"waiting"`
	Total     ClockDuration `json:"total"`
	Idle      ClockDuration `json:"idle"`
	Distance  float64       `json:"distance"`
	AvgSpeed  float64       `json:"avg_speed"`
	MaxSpeed  float64       `json:"max_speed"`
}

// Infraction is a recorded violation. Type is the declared classification
// string as entered; see ClassificationOf.
type Infraction struct {
	ID              id.InfractionID `json:"id"`
	PartnerID       id.PartnerID    `json:"partner_id"`
	Date            Date            `json:"date"`
	ReportID        id.ReportID     `json:"report_id"`
	Type            string          `json:"type"`
	Count           int             `json:"count"`
	Action          string          `json:"action"`
	SecondaryAction string          `json:"secondary_action,omitempty"`
	Reviewed        bool            `json:"reviewed"`
	Improved        bool            `json:"improved"`
	ReviewDate      Date            `json:"review_date,omitzero"`
}

type Driver struct {
	ID              id.DriverID   `json:"id"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	LicenseNumber   string        `json:"license_number"`
	LicenseCategory string        `json:"license_category"`
	LicenseExpiry   Date          `json:"license_expiry,omitzero"`
	OBCKeyIDs       []id.OBCKeyID `json:"obc_key_ids"`
}

// DisplayName joins the name fields, falling back to the id.
func (d Driver) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(d.FirstName) + " " + strings.TrimSpace(d.LastName))
	if name == "" {
		return d.ID.String()
	}
	return name
}

// OBCKey binds a driver to exactly one partner.
type OBCKey struct {
	ID        id.OBCKeyID  `json:"id"`
	PartnerID id.PartnerID `json:"partner_id"`
	Label     string       `json:"label"`
}

type Vehicle struct {
	ID        id.VehicleID `json:"id"`
	PartnerID id.PartnerID `json:"partner_id"`
	Plate     string       `json:"plate"`
	Brand     string       `json:"brand"`
	Model     string       `json:"model"`
}

// Message is a direct message between console users.
type Message struct {
	ID          string    `json:"id"`
	RecipientID id.UserID `json:"recipient_id"`
	SenderID    id.UserID `json:"sender_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}
