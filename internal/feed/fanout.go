package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"fleetguard/pkg/platform/sentinel"
)

// LoadFunc reads the current state of a topic.
type LoadFunc func(ctx context.Context, topic Topic) ([]Document, error)

// Fanout turns "topic changed" signals into full-snapshot deliveries. Adapters
// call Notify from their change stream (LISTEN/NOTIFY, pub/sub, in-process
// mutation) and Fanout reloads and diffs per subscription.
type Fanout struct {
	load   LoadFunc
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[Topic]map[uint64]*subscription
	nextID uint64
	closed bool
}

type subscription struct {
	topic  Topic
	fn     SnapshotFunc
	active atomic.Bool

	mu      sync.Mutex
	last    []Document
	started bool
}

// NewFanout builds a Fanout reading through load.
func NewFanout(load LoadFunc, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		load:   load,
		logger: logger,
		subs:   make(map[Topic]map[uint64]*subscription),
	}
}

// Subscribe registers fn and delivers the initial snapshot before returning.
// A failed initial load unregisters the subscription and returns the error.
func (f *Fanout) Subscribe(ctx context.Context, topic Topic, fn SnapshotFunc) (Unsubscribe, error) {
	if !topic.Valid() {
		return nil, fmt.Errorf("subscribe %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	sub := &subscription{topic: topic, fn: fn}
	sub.active.Store(true)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, fmt.Errorf("subscribe %q: %w", topic, sentinel.ErrUnavailable)
	}
	f.nextID++
	key := f.nextID
	if f.subs[topic] == nil {
		f.subs[topic] = make(map[uint64]*subscription)
	}
	f.subs[topic][key] = sub
	f.mu.Unlock()

	unsubscribe := func() {
		sub.active.Store(false)
		f.mu.Lock()
		delete(f.subs[topic], key)
		if len(f.subs[topic]) == 0 {
			delete(f.subs, topic)
		}
		f.mu.Unlock()
	}

	if err := f.refresh(ctx, sub); err != nil {
		unsubscribe()
		return nil, fmt.Errorf("subscribe %q: %w", topic, err)
	}
	return unsubscribe, nil
}

// Notify reloads topic for every live subscription on it.
func (f *Fanout) Notify(ctx context.Context, topic Topic) {
	for _, sub := range f.snapshotSubs(topic) {
		if err := f.refresh(ctx, sub); err != nil {
			f.logger.WarnContext(ctx, "feed reload failed",
				"topic", topic,
				"error", err,
			)
		}
	}
}

// NotifyAll reloads every subscribed topic, used after a transport reconnect
// when individual change signals may have been lost.
func (f *Fanout) NotifyAll(ctx context.Context) {
	for _, topic := range f.Topics() {
		f.Notify(ctx, topic)
	}
}

// Topics lists topics with at least one live subscription.
func (f *Fanout) Topics() []Topic {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Topic, 0, len(f.subs))
	for t := range f.subs {
		out = append(out, t)
	}
	return out
}

// Len is the number of live subscriptions across topics.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, subs := range f.subs {
		n += len(subs)
	}
	return n
}

// Close drops every subscription and rejects new ones.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for _, subs := range f.subs {
		for _, sub := range subs {
			sub.active.Store(false)
		}
	}
	f.subs = make(map[Topic]map[uint64]*subscription)
}

func (f *Fanout) snapshotSubs(topic Topic) []*subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*subscription, 0, len(f.subs[topic]))
	for _, sub := range f.subs[topic] {
		out = append(out, sub)
	}
	return out
}

// refresh loads under the subscription lock so deliveries stay ordered and a
// slow load can never overwrite a newer one.
func (f *Fanout) refresh(ctx context.Context, sub *subscription) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.active.Load() {
		return nil
	}

	docs, err := f.load(ctx, sub.topic)
	if err != nil {
		return err
	}

	snap := Snapshot{Topic: sub.topic, Documents: docs, Initial: !sub.started}
	snap.Changes = Diff(sub.last, docs)
	if sub.started && len(snap.Changes) == 0 {
		return nil
	}
	sub.started = true
	sub.last = docs

	if sub.active.Load() {
		sub.fn(snap.Clone())
	}
	return nil
}
