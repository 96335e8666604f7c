package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Classification is the severity class of an infraction.
type Classification string

const (
	Alert Classification = "Alert"
	Alarm Classification = "Alarm"
)

// ClassificationOf maps a declared type to a classification. Only the exact
// string "Alarm" is an alarm; anything else, including empty, is an alert.
func ClassificationOf(declared string) Classification {
	if declared == string(Alarm) {
		return Alarm
	}
	return Alert
}

const dateLayout = "2006-01-02"

// Date is a calendar date decoded from YYYY-MM-DD or RFC 3339. Anything else
// decodes to the zero Date, which belongs to no year.
type Date struct {
	time.Time
}

// NewDate builds a UTC date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate never fails; unparseable input yields the zero Date.
func ParseDate(s string) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Date{Time: t}
	}
	return Date{}
}

// InYear reports whether d falls in year. The zero Date is in no year.
func (d Date) InYear(year int) bool {
	return !d.IsZero() && d.Year() == year
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*d = Date{}
		return nil
	}
	*d = ParseDate(s)
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// ClockDuration is an HH:MM:SS duration string as recorded by the on-board
// computer. Hours may exceed 23.
type ClockDuration string

// Seconds returns the duration in seconds, or 0 when malformed.
func (c ClockDuration) Seconds() int {
	parts := strings.Split(strings.TrimSpace(string(c)), ":")
	if len(parts) != 3 {
		return 0
	}
	var vals [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		vals[i] = n
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0
	}
	return vals[0]*3600 + vals[1]*60 + vals[2]
}

// Hours returns H + M/60 + S/3600, or 0 when malformed.
func (c ClockDuration) Hours() float64 {
	return float64(c.Seconds()) / 3600
}

// Valid reports whether c parses.
func (c ClockDuration) Valid() bool {
	return c.Seconds() > 0 || strings.TrimSpace(string(c)) == "00:00:00"
}

// RoundTo rounds v half away from zero to the given decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
