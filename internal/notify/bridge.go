package notify

import (
	"context"
	"log/slog"

	"fleetguard/internal/feed"
)

// Bridge routes live document changes through Rules into a Queue.
type Bridge struct {
	rules   Rules
	queue   *Queue
	logger  *slog.Logger
	metrics *Metrics
}

// NewBridge builds a bridge. A nil logger uses slog.Default.
func NewBridge(rules Rules, queue *Queue, logger *slog.Logger, metrics *Metrics) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{rules: rules, queue: queue, logger: logger, metrics: metrics}
}

// OnChange pushes a notification when an added document matches its topic
// rule. It reports whether one was pushed.
func (b *Bridge) OnChange(ctx context.Context, topic feed.Topic, changeType feed.ChangeType, doc feed.Document) bool {
	if changeType != feed.ChangeAdded {
		return false
	}
	rule, ok := b.rules[topic]
	if !ok {
		return false
	}
	if rule.Predicate != nil && !rule.Predicate(ctx, doc) {
		b.metrics.IncFiltered(topic.String())
		return false
	}

	n := Notification{Topic: topic, DocID: doc.ID, Severity: SeverityInfo}
	if rule.Severity != nil {
		n.Severity = rule.Severity(doc)
	}
	if rule.Message != nil {
		n.Message = rule.Message(doc)
	}
	n = b.queue.Push(n)

	b.logger.DebugContext(ctx, "notification queued",
		"topic", topic,
		"doc_id", doc.ID,
		"notification_id", n.ID,
		"severity", n.Severity,
	)
	return true
}

// Observe feeds one live delivery through OnChange. The first delivery of a
// subscription describes existing state, not news, and is skipped.
func (b *Bridge) Observe(ctx context.Context, snap feed.Snapshot) int {
	if snap.Initial {
		return 0
	}
	pushed := 0
	for _, c := range snap.Changes {
		if b.OnChange(ctx, snap.Topic, c.Type, c.Document) {
			pushed++
		}
	}
	return pushed
}

// Queue returns the backing queue.
func (b *Bridge) Queue() *Queue {
	return b.queue
}
