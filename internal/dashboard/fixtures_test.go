package dashboard

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"fleetguard/internal/feed"
)

type fixture struct {
	topic feed.Topic
	id    string
	body  string
}

// referenceFleet is partner P1 with driver D1 on key K1, one Speed report
// and two 2024 infractions: I1 priced at 6 by config C1 and I2 whose report
// is missing (default Alarm, 3).
var referenceFleet = []fixture{
	{feed.TopicPartners, "P1", `{"name":"Acme","active":true}`},
	{feed.TopicDrivers, "D1", `{"first_name":"Ada","last_name":"Lovelace","obc_key_ids":["K1"]}`},
	{feed.TopicDrivers, "D2", `{"first_name":"Alan","last_name":"Turing","obc_key_ids":["K1"]}`},
	{feed.TopicOBCKeys, "K1", `{"partner_id":"P1"}`},
	{feed.TopicReports, "R1", `{"date":"2024-03-04","partner_id":"P1","driver_id":"D1","rule_id":"Speed","driving":"08:15:00","total":"10:00:00","waiting":"01:30:00","idle":"00:15:00","distance":420.5}`},
	{feed.TopicRules, "Speed", `{"partner_id":"P1","title":"Speed limit"}`},
	{feed.TopicSanctionConfigs, "C1", `{"partner_id":"P1","rule_id":"Speed","classification":"Alarm","points":6}`},
	{feed.TopicInfractions, "I1", `{"partner_id":"P1","date":"2024-03-04","report_id":"R1","type":"Alarm"}`},
	{feed.TopicInfractions, "I2", `{"partner_id":"P1","date":"2024-04-01","report_id":"ghost","type":"Alarm"}`},
}

func seed(t *testing.T, ctx context.Context, w feed.Writer, fixtures []fixture) {
	t.Helper()
	for _, f := range fixtures {
		_, err := w.Create(ctx, f.topic, feed.Document{ID: f.id, Data: json.RawMessage(f.body)})
		require.NoError(t, err)
	}
}
