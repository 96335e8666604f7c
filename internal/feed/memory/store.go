// Package memory is the in-process feed store used for development, seeding
// and tests. Mutations notify subscribers synchronously.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"fleetguard/internal/feed"
	"fleetguard/pkg/platform/sentinel"
)

// Store keeps documents per topic in insertion order.
type Store struct {
	mu     sync.RWMutex
	topics map[feed.Topic][]feed.Document
	fanout *feed.Fanout
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for reload warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func New(opts ...Option) *Store {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{topics: make(map[feed.Topic][]feed.Document)}
	s.fanout = feed.NewFanout(s.GetAll, o.logger)
	return s
}

// Subscribe delivers the current snapshot before returning and again after
// every mutation of topic. Callbacks must not mutate the store.
func (s *Store) Subscribe(ctx context.Context, topic feed.Topic, fn feed.SnapshotFunc) (feed.Unsubscribe, error) {
	return s.fanout.Subscribe(ctx, topic, fn)
}

// GetAll returns a copy of topic's documents in insertion order.
func (s *Store) GetAll(_ context.Context, topic feed.Topic) ([]feed.Document, error) {
	if !topic.Valid() {
		return nil, fmt.Errorf("get all %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.topics[topic]
	out := make([]feed.Document, len(docs))
	for i, d := range docs {
		out[i] = feed.Document{ID: d.ID, Data: slices.Clone(d.Data)}
	}
	return out, nil
}

// Create appends doc, minting an id when empty.
func (s *Store) Create(ctx context.Context, topic feed.Topic, doc feed.Document) (feed.Document, error) {
	if !topic.Valid() {
		return feed.Document{}, fmt.Errorf("create in %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Data = slices.Clone(doc.Data)

	s.mu.Lock()
	if s.indexOf(topic, doc.ID) >= 0 {
		s.mu.Unlock()
		return feed.Document{}, fmt.Errorf("create %s/%s: %w", topic, doc.ID, sentinel.ErrConflict)
	}
	s.topics[topic] = append(s.topics[topic], doc)
	s.mu.Unlock()

	s.fanout.Notify(ctx, topic)
	return doc, nil
}

// Update replaces the body of an existing document in place.
func (s *Store) Update(ctx context.Context, topic feed.Topic, doc feed.Document) error {
	if !topic.Valid() {
		return fmt.Errorf("update in %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	s.mu.Lock()
	i := s.indexOf(topic, doc.ID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", topic, doc.ID, sentinel.ErrNotFound)
	}
	s.topics[topic][i] = feed.Document{ID: doc.ID, Data: slices.Clone(doc.Data)}
	s.mu.Unlock()

	s.fanout.Notify(ctx, topic)
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, topic feed.Topic, id string) error {
	if !topic.Valid() {
		return fmt.Errorf("delete in %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	s.mu.Lock()
	i := s.indexOf(topic, id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("delete %s/%s: %w", topic, id, sentinel.ErrNotFound)
	}
	s.topics[topic] = slices.Delete(s.topics[topic], i, i+1)
	s.mu.Unlock()

	s.fanout.Notify(ctx, topic)
	return nil
}

// Close detaches every subscriber.
func (s *Store) Close() error {
	s.fanout.Close()
	return nil
}

func (s *Store) indexOf(topic feed.Topic, id string) int {
	return slices.IndexFunc(s.topics[topic], func(d feed.Document) bool { return d.ID == id })
}
