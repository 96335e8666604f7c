package livesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"fleetguard/internal/feed"
	"fleetguard/pkg/platform/sentinel"
)

// Manager shares one upstream subscription per topic among any number of
// listeners. It implements feed.Subscriber, so views can use it in place of
// the raw feed. A late joiner receives the last snapshot immediately, marked
// Initial; the upstream subscription closes when the last listener leaves.
type Manager struct {
	upstream feed.Subscriber
	logger   *slog.Logger
	metrics  *Metrics

	mu     sync.Mutex
	topics map[feed.Topic]*shared
	nextID uint64
	closed bool
}

type shared struct {
	topic feed.Topic
	ready chan struct{}
	err   error

	// deliverMu orders upstream deliveries against late-joiner replays.
	deliverMu sync.Mutex

	mu        sync.Mutex
	listeners map[uint64]*listener
	last      *feed.Snapshot
	unsub     feed.Unsubscribe
	closed    bool
}

type listener struct {
	fn     feed.SnapshotFunc
	active atomic.Bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerMetrics sets the metrics sink.
func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

func NewManager(upstream feed.Subscriber, opts ...ManagerOption) *Manager {
	m := &Manager{
		upstream: upstream,
		logger:   slog.Default(),
		topics:   make(map[feed.Topic]*shared),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe attaches fn to the shared subscription for topic, opening it
// upstream when this is the first listener.
func (m *Manager) Subscribe(ctx context.Context, topic feed.Topic, fn feed.SnapshotFunc) (feed.Unsubscribe, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, fmt.Errorf("subscribe %q: %w", topic, sentinel.ErrDisposed)
		}
		sh, exists := m.topics[topic]
		if !exists {
			sh = &shared{topic: topic, ready: make(chan struct{}), listeners: make(map[uint64]*listener)}
			m.topics[topic] = sh
		}
		m.nextID++
		key := m.nextID
		m.mu.Unlock()

		l := &listener{fn: fn}
		l.active.Store(true)

		if !exists {
			return m.open(ctx, sh, key, l)
		}

		select {
		case <-sh.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if sh.err != nil {
			return nil, sh.err
		}
		unsub, ok := m.join(sh, key, l)
		if !ok {
			// The shared subscription closed between lookup and join; retry
			// with a fresh one.
			continue
		}
		return unsub, nil
	}
}

// open registers the first listener before subscribing upstream, so a
// transport that delivers synchronously reaches it.
func (m *Manager) open(ctx context.Context, sh *shared, key uint64, l *listener) (feed.Unsubscribe, error) {
	sh.mu.Lock()
	sh.listeners[key] = l
	sh.mu.Unlock()

	unsub, err := m.upstream.Subscribe(ctx, sh.topic, m.fanout(sh))
	if err != nil {
		m.mu.Lock()
		if m.topics[sh.topic] == sh {
			delete(m.topics, sh.topic)
		}
		m.mu.Unlock()
		sh.mu.Lock()
		sh.closed = true
		sh.listeners = nil
		sh.mu.Unlock()
		sh.err = fmt.Errorf("shared subscribe %q: %w", sh.topic, err)
		close(sh.ready)
		m.metrics.IncError(sh.topic.String())
		return nil, sh.err
	}

	sh.mu.Lock()
	sh.unsub = unsub
	n := len(sh.listeners)
	sh.mu.Unlock()
	close(sh.ready)

	m.metrics.IncOpened(sh.topic.String())
	m.metrics.SetUpstream(sh.topic.String(), true)
	m.metrics.SetListeners(sh.topic.String(), n)
	m.logger.Debug("shared subscription opened", "topic", sh.topic)
	return m.leave(sh, key, l), nil
}

func (m *Manager) join(sh *shared, key uint64, l *listener) (feed.Unsubscribe, bool) {
	sh.deliverMu.Lock()
	defer sh.deliverMu.Unlock()

	sh.mu.Lock()
	if sh.closed {
		sh.mu.Unlock()
		return nil, false
	}
	sh.listeners[key] = l
	n := len(sh.listeners)
	var replay *feed.Snapshot
	if sh.last != nil {
		r := sh.last.Clone()
		r.Initial = true
		r.Changes = feed.Diff(nil, r.Documents)
		replay = &r
	}
	sh.mu.Unlock()

	m.metrics.SetListeners(sh.topic.String(), n)
	if replay != nil {
		l.fn(*replay)
	}
	return m.leave(sh, key, l), true
}

func (m *Manager) fanout(sh *shared) feed.SnapshotFunc {
	return func(s feed.Snapshot) {
		sh.deliverMu.Lock()
		defer sh.deliverMu.Unlock()

		sh.mu.Lock()
		last := s.Clone()
		sh.last = &last
		ls := make([]*listener, 0, len(sh.listeners))
		for _, l := range sh.listeners {
			ls = append(ls, l)
		}
		sh.mu.Unlock()

		for _, l := range ls {
			if l.active.Load() {
				l.fn(s.Clone())
			}
		}
	}
}

func (m *Manager) leave(sh *shared, key uint64, l *listener) feed.Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Store(false)

			m.mu.Lock()
			sh.mu.Lock()
			delete(sh.listeners, key)
			n := len(sh.listeners)
			var unsub feed.Unsubscribe
			if n == 0 && !sh.closed {
				sh.closed = true
				unsub = sh.unsub
				if m.topics[sh.topic] == sh {
					delete(m.topics, sh.topic)
				}
			}
			sh.mu.Unlock()
			m.mu.Unlock()

			m.metrics.SetListeners(sh.topic.String(), n)
			if unsub != nil {
				unsub()
				m.metrics.SetUpstream(sh.topic.String(), false)
				m.logger.Debug("shared subscription closed", "topic", sh.topic)
			}
		})
	}
}

// RefCount is the number of listeners on topic.
func (m *Manager) RefCount(topic feed.Topic) int {
	m.mu.Lock()
	sh, ok := m.topics[topic]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.listeners)
}

// Close drops every shared subscription and rejects new listeners.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	all := m.topics
	m.topics = make(map[feed.Topic]*shared)
	m.mu.Unlock()

	for _, sh := range all {
		<-sh.ready
		sh.mu.Lock()
		for _, l := range sh.listeners {
			l.active.Store(false)
		}
		unsub := sh.unsub
		already := sh.closed
		sh.closed = true
		sh.listeners = nil
		sh.mu.Unlock()
		if unsub != nil && !already {
			unsub()
			m.metrics.SetUpstream(sh.topic.String(), false)
		}
	}
}
