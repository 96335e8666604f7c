package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassificationOf(t *testing.T) {
	assert.Equal(t, Alarm, ClassificationOf("Alarm"))
	for _, declared := range []string{"", "alarm", "ALARM", "Alert", "Speeding", " Alarm"} {
		assert.Equal(t, Alert, ClassificationOf(declared), "declared %q", declared)
	}
}

func TestClockDuration(t *testing.T) {
	tests := []struct {
		in      ClockDuration
		seconds int
	}{
		{"08:15:00", 8*3600 + 15*60},
		{"00:00:30", 30},
		{"26:00:00", 26 * 3600},
		{"8:5:7", 8*3600 + 5*60 + 7},
		{"", 0},
		{"08:15", 0},
		{"aa:bb:cc", 0},
		{"01:60:00", 0},
		{"-1:00:00", 0},
		{"01:00:00:00", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.seconds, tt.in.Seconds())
		})
	}

	assert.InDelta(t, 8.25, ClockDuration("08:15:00").Hours(), 1e-9)
	assert.True(t, ClockDuration("00:00:00").Valid())
	assert.False(t, ClockDuration("junk").Valid())
}

func TestDate(t *testing.T) {
	t.Run("parses both layouts", func(t *testing.T) {
		assert.Equal(t, NewDate(2024, time.March, 5), ParseDate("2024-03-05"))
		d := ParseDate("2024-03-05T10:00:00Z")
		assert.Equal(t, 2024, d.Year())
		assert.Equal(t, time.March, d.Month())
	})

	t.Run("garbage decodes to zero", func(t *testing.T) {
		var r struct {
			Date Date `json:"date"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"date":"05/03/2024"}`), &r))
		assert.True(t, r.Date.IsZero())
		require.NoError(t, json.Unmarshal([]byte(`{"date":12345}`), &r))
		assert.True(t, r.Date.IsZero())
		assert.False(t, r.Date.InYear(1))
	})

	t.Run("marshals as calendar date", func(t *testing.T) {
		b, err := json.Marshal(NewDate(2024, time.January, 2))
		require.NoError(t, err)
		assert.Equal(t, `"2024-01-02"`, string(b))
	})
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 8.3, RoundTo(8.25, 1))
	assert.Equal(t, 8.0, RoundTo(7.96, 1))
	assert.Equal(t, 3.0, RoundTo(2.5, 0))
}

func TestDriverDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", Driver{ID: "d1", FirstName: "Ada", LastName: "Lovelace"}.DisplayName())
	assert.Equal(t, "Ada", Driver{ID: "d1", FirstName: " Ada "}.DisplayName())
	assert.Equal(t, "d1", Driver{ID: "d1"}.DisplayName())
}
