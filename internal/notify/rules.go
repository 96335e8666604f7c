package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"fleetguard/internal/compliance/models"
	"fleetguard/internal/feed"
	id "fleetguard/pkg/domain"
)

// Rule decides whether a newly added document raises an alert and how it
// reads. Predicate may be nil, meaning every added document qualifies.
type Rule struct {
	Predicate func(ctx context.Context, doc feed.Document) bool
	Severity  func(doc feed.Document) Severity
	Message   func(doc feed.Document) string
}

// Rules maps topics to their alert rule. Topics without a rule never alert.
type Rules map[feed.Topic]Rule

// ViewerFunc returns the user the console is rendered for.
type ViewerFunc func(ctx context.Context) id.UserID

// DefaultRules alerts on every new infraction and report, and on new
// messages addressed to the viewer. Malformed bodies are logged at debug and
// read as their zero value.
func DefaultRules(viewer ViewerFunc, logger *slog.Logger) Rules {
	if logger == nil {
		logger = slog.Default()
	}
	return Rules{
		feed.TopicInfractions: {
			Severity: func(doc feed.Document) Severity {
				inf := decodeBody[models.Infraction](context.Background(), logger, feed.TopicInfractions, doc)
				if models.ClassificationOf(inf.Type) == models.Alarm {
					return SeverityError
				}
				return SeverityWarning
			},
			Message: func(doc feed.Document) string {
				inf := decodeBody[models.Infraction](context.Background(), logger, feed.TopicInfractions, doc)
				return fmt.Sprintf("New %s infraction recorded", models.ClassificationOf(inf.Type))
			},
		},
		feed.TopicReports: {
			Severity: func(feed.Document) Severity { return SeverityInfo },
			Message: func(doc feed.Document) string {
				r := decodeBody[models.TripReport](context.Background(), logger, feed.TopicReports, doc)
				if r.DriverID.IsNil() {
					return "New trip report received"
				}
				return fmt.Sprintf("New trip report received for driver %s", r.DriverID)
			},
		},
		feed.TopicMessages: {
			Predicate: func(ctx context.Context, doc feed.Document) bool {
				if viewer == nil {
					return false
				}
				me := viewer(ctx)
				if me.IsNil() {
					return false
				}
				m := decodeBody[models.Message](ctx, logger, feed.TopicMessages, doc)
				return !m.RecipientID.IsNil() && m.RecipientID == me
			},
			Severity: func(feed.Document) Severity { return SeverityInfo },
			Message:  func(feed.Document) string { return "You have a new message" },
		},
	}
}

func decodeBody[T any](ctx context.Context, logger *slog.Logger, topic feed.Topic, doc feed.Document) T {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		logger.DebugContext(ctx, "malformed document in alert rule",
			"topic", topic,
			"doc_id", doc.ID,
			"error", err,
		)
	}
	return v
}
