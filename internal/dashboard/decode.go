// Package dashboard serves compliance aggregates over HTTP, both as one-shot
// reads and from a live board that recomputes on every feed delivery.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"

	"fleetguard/internal/compliance/aggregate"
	"fleetguard/internal/compliance/models"
	"fleetguard/internal/feed"
	"fleetguard/internal/livesync"
)

// EngineTopics are the collections the aggregation engine reads.
var EngineTopics = []feed.Topic{
	feed.TopicPartners,
	feed.TopicDrivers,
	feed.TopicVehicles,
	feed.TopicOBCKeys,
	feed.TopicReports,
	feed.TopicInfractions,
	feed.TopicRules,
	feed.TopicSanctionConfigs,
}

// Decode turns raw collections into an engine snapshot. Documents that fail
// to decode are logged and skipped; a body without an id takes the document
// id.
func Decode(ctx context.Context, logger *slog.Logger, cols livesync.Collections) aggregate.Snapshot {
	return aggregate.Snapshot{
		Partners: decodeAll(ctx, logger, feed.TopicPartners, cols[feed.TopicPartners],
			func(v *models.Partner, docID string) { fillID(&v.ID, docID) }),
		Drivers: decodeAll(ctx, logger, feed.TopicDrivers, cols[feed.TopicDrivers],
			func(v *models.Driver, docID string) { fillID(&v.ID, docID) }),
		Vehicles: decodeAll(ctx, logger, feed.TopicVehicles, cols[feed.TopicVehicles],
			func(v *models.Vehicle, docID string) { fillID(&v.ID, docID) }),
		OBCKeys: decodeAll(ctx, logger, feed.TopicOBCKeys, cols[feed.TopicOBCKeys],
			func(v *models.OBCKey, docID string) { fillID(&v.ID, docID) }),
		Reports: decodeAll(ctx, logger, feed.TopicReports, cols[feed.TopicReports],
			func(v *models.TripReport, docID string) { fillID(&v.ID, docID) }),
		Infractions: decodeAll(ctx, logger, feed.TopicInfractions, cols[feed.TopicInfractions],
			func(v *models.Infraction, docID string) { fillID(&v.ID, docID) }),
		Rules: decodeAll(ctx, logger, feed.TopicRules, cols[feed.TopicRules],
			func(v *models.ComplianceRule, docID string) { fillID(&v.ID, docID) }),
		Configs: decodeAll(ctx, logger, feed.TopicSanctionConfigs, cols[feed.TopicSanctionConfigs],
			func(v *models.SanctionConfig, docID string) { fillID(&v.ID, docID) }),
	}
}

func decodeAll[T any](ctx context.Context, logger *slog.Logger, topic feed.Topic, docs []feed.Document, setID func(*T, string)) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Data, &v); err != nil {
			logger.WarnContext(ctx, "skipping malformed document",
				"topic", topic,
				"doc_id", d.ID,
				"error", err,
			)
			continue
		}
		setID(&v, d.ID)
		out = append(out, v)
	}
	return out
}

func fillID[S ~string](dst *S, docID string) {
	if *dst == "" {
		*dst = S(docID)
	}
}
