package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetguard/internal/feed"
	"fleetguard/internal/livesync"
	id "fleetguard/pkg/domain"
)

func TestDecode(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	cols := livesync.Collections{
		feed.TopicInfractions: {
			{ID: "I1", Data: json.RawMessage(`{"report_id":"R1","type":"Alarm"}`)},
			{ID: "I2", Data: json.RawMessage(`{"id":"kept","type":"Alert"}`)},
			{ID: "I3", Data: json.RawMessage(`[not an object`)},
		},
		feed.TopicDrivers: {
			{ID: "D1", Data: json.RawMessage(`{"first_name":"Ada"}`)},
		},
		feed.TopicMessages: {
			{ID: "M1", Data: json.RawMessage(`{}`)},
		},
	}

	snap := Decode(context.Background(), logger, cols)

	require.Len(t, snap.Infractions, 2)
	assert.Equal(t, id.InfractionID("I1"), snap.Infractions[0].ID, "document id fills an empty body id")
	assert.Equal(t, id.InfractionID("kept"), snap.Infractions[1].ID, "body id wins")
	require.Len(t, snap.Drivers, 1)
	assert.Equal(t, "Ada", snap.Drivers[0].DisplayName())
	assert.Empty(t, snap.Reports)
	assert.Contains(t, logs.String(), "skipping malformed document")
	assert.Contains(t, logs.String(), "doc_id=I3")
}
