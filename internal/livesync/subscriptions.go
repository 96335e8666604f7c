// Package livesync combines independent live feed subscriptions into view
// state without leaking subscriptions or applying stale deliveries.
package livesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"fleetguard/internal/feed"
	"fleetguard/pkg/platform/sentinel"
	"fleetguard/pkg/platform/strings"
)

// Dispose tears down a subscription set. It calls every underlying
// unsubscribe exactly once and is safe to call repeatedly.
type Dispose func()

type handle struct {
	topic  feed.Topic
	active atomic.Bool
	once   sync.Once
	unsub  feed.Unsubscribe
}

func (h *handle) close() {
	h.active.Store(false)
	h.once.Do(func() {
		if h.unsub != nil {
			h.unsub()
		}
	})
}

// OpenSubscriptions subscribes to every distinct topic and forwards each full
// snapshot to onEachUpdate until disposed. Once Dispose runs, no further
// delivery reaches onEachUpdate, even one already in flight in the transport.
//
// On failure it stops at the failing topic and returns the error together
// with a Dispose covering the subscriptions that did succeed. The returned
// Dispose is never nil.
func OpenSubscriptions(ctx context.Context, src feed.Subscriber, topics []feed.Topic, onEachUpdate feed.SnapshotFunc) (Dispose, error) {
	return openSubscriptions(ctx, src, topics, onEachUpdate, nil)
}

func openSubscriptions(ctx context.Context, src feed.Subscriber, topics []feed.Topic, onEachUpdate feed.SnapshotFunc, m *Metrics) (Dispose, error) {
	var handles []*handle
	var once sync.Once
	dispose := func() {
		once.Do(func() {
			for _, h := range handles {
				h.close()
			}
		})
	}

	for _, topic := range strings.DedupeAndTrim(topics) {
		h := &handle{topic: topic}
		h.active.Store(true)
		unsub, err := src.Subscribe(ctx, topic, func(s feed.Snapshot) {
			if h.active.Load() {
				onEachUpdate(s)
			}
		})
		if err != nil {
			h.active.Store(false)
			m.IncError(topic.String())
			if !errors.Is(err, sentinel.ErrUnavailable) {
				err = fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
			}
			return dispose, fmt.Errorf("subscribe %q: %w", topic, err)
		}
		h.unsub = unsub
		handles = append(handles, h)
		m.IncOpened(topic.String())
	}
	return dispose, nil
}
