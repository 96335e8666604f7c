package livesync

import (
	"context"
	"log/slog"
	"sync"

	"fleetguard/internal/feed"
)

// Collections maps each topic to its latest documents.
type Collections map[feed.Topic][]feed.Document

// UpdateFunc observes one applied snapshot together with the view's full
// state after applying it. Calls are serialized and must not call back into
// the view.
type UpdateFunc func(update feed.Snapshot, all Collections)

// View owns one screen's subscription set. Activate establishes a generation
// of subscriptions, Deactivate tears it down; deliveries from any earlier
// generation are dropped.
type View struct {
	name     string
	src      feed.Subscriber
	topics   []feed.Topic
	onUpdate UpdateFunc
	logger   *slog.Logger
	metrics  *Metrics

	lifecycle sync.Mutex

	mu         sync.Mutex
	generation uint64
	active     bool
	dispose    Dispose
	snapshots  map[feed.Topic]feed.Snapshot
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithOnUpdate sets the update observer.
func WithOnUpdate(fn UpdateFunc) ViewOption {
	return func(v *View) { v.onUpdate = fn }
}

// WithLogger sets the view logger.
func WithLogger(logger *slog.Logger) ViewOption {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) ViewOption {
	return func(v *View) { v.metrics = m }
}

// NewView builds an inactive view over topics.
func NewView(name string, src feed.Subscriber, topics []feed.Topic, opts ...ViewOption) *View {
	v := &View{
		name:      name,
		src:       src,
		topics:    append([]feed.Topic(nil), topics...),
		logger:    slog.Default(),
		snapshots: make(map[feed.Topic]feed.Snapshot),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Activate tears down any previous generation, then subscribes to every
// topic. If any subscription fails the partial set is disposed, the view is
// left inactive and the error is returned.
func (v *View) Activate(ctx context.Context) error {
	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()

	v.teardown()

	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.active = true
	v.snapshots = make(map[feed.Topic]feed.Snapshot)
	v.mu.Unlock()

	dispose, err := openSubscriptions(ctx, v.src, v.topics, v.apply(gen), v.metrics)
	if err != nil {
		dispose()
		v.mu.Lock()
		v.active = false
		v.generation++
		v.snapshots = make(map[feed.Topic]feed.Snapshot)
		v.mu.Unlock()
		v.logger.WarnContext(ctx, "view activation failed",
			"view", v.name,
			"error", err,
		)
		return err
	}

	v.mu.Lock()
	v.dispose = dispose
	v.mu.Unlock()

	v.logger.InfoContext(ctx, "view activated",
		"view", v.name,
		"generation", gen,
		"topics", len(v.topics),
	)
	return nil
}

// Deactivate tears the current generation down. Safe to call repeatedly.
func (v *View) Deactivate() {
	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()
	v.teardown()
}

func (v *View) teardown() {
	v.mu.Lock()
	dispose := v.dispose
	v.dispose = nil
	if v.active {
		v.generation++
	}
	v.active = false
	v.snapshots = make(map[feed.Topic]feed.Snapshot)
	v.mu.Unlock()

	if dispose != nil {
		dispose()
	}
}

func (v *View) apply(gen uint64) feed.SnapshotFunc {
	return func(s feed.Snapshot) {
		v.mu.Lock()
		defer v.mu.Unlock()
		if !v.active || v.generation != gen {
			v.metrics.IncStale(v.name)
			return
		}
		v.snapshots[s.Topic] = s.Clone()
		v.metrics.IncViewUpdate(v.name, s.Topic.String())
		if v.onUpdate != nil {
			v.onUpdate(s.Clone(), v.collectionsLocked())
		}
	}
}

// Active reports whether a generation is live.
func (v *View) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// Generation increases on every activation and teardown.
func (v *View) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generation
}

// Ready reports whether every topic has delivered at least once.
func (v *View) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active {
		return false
	}
	for _, t := range v.topics {
		if _, ok := v.snapshots[t]; !ok {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the latest snapshot of topic.
func (v *View) Snapshot(topic feed.Topic) (feed.Snapshot, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.snapshots[topic]
	if !ok {
		return feed.Snapshot{}, false
	}
	return s.Clone(), true
}

// Collections returns a copy of every topic's latest documents.
func (v *View) Collections() Collections {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.collectionsLocked()
}

func (v *View) collectionsLocked() Collections {
	out := make(Collections, len(v.snapshots))
	for t, s := range v.snapshots {
		out[t] = s.Clone().Documents
	}
	return out
}
