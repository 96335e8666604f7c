// Package redis is the feed store backed by Redis: one hash of documents and
// one sorted set of insertion positions per topic, with change signals on a
// pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fleetguard/internal/feed"
	"fleetguard/pkg/platform/sentinel"
)

const (
	keyPrefix = "fleetguard:feed:"
	seqKey    = keyPrefix + "seq"
	// Channel carries change signals.
	Channel = keyPrefix + "changes"
)

func docsKey(topic feed.Topic) string  { return keyPrefix + string(topic) + ":docs" }
func orderKey(topic feed.Topic) string { return keyPrefix + string(topic) + ":order" }

type signal struct {
	Topic feed.Topic      `json:"topic"`
	ID    string          `json:"id"`
	Type  feed.ChangeType `json:"type"`
}

// Store implements feed.Store on Redis.
type Store struct {
	client *redis.Client
	logger *slog.Logger
	fanout *feed.Fanout

	startOnce sync.Once
	startErr  error
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a store. The client lifecycle is managed by the caller.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.fanout = feed.NewFanout(s.GetAll, s.logger)
	return s
}

// GetAll returns topic's documents in insertion order.
func (s *Store) GetAll(ctx context.Context, topic feed.Topic) ([]feed.Document, error) {
	if !topic.Valid() {
		return nil, fmt.Errorf("get all %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	ids, err := s.client.ZRange(ctx, orderKey(topic), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get all %q: %w: %w", topic, sentinel.ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vals, err := s.client.HMGet(ctx, docsKey(topic), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("get all %q: %w: %w", topic, sentinel.ErrUnavailable, err)
	}
	docs := make([]feed.Document, 0, len(ids))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Position without body: a delete raced the read.
			continue
		}
		docs = append(docs, feed.Document{ID: ids[i], Data: json.RawMessage(str)})
	}
	return docs, nil
}

// maxTxRetries bounds optimistic retries when a concurrent write touches the
// watched topic hash.
const maxTxRetries = 10

// Create stores doc and publishes the change. The body, its position and the
// signal are written in one MULTI under WATCH, so a failure leaves nothing
// behind.
func (s *Store) Create(ctx context.Context, topic feed.Topic, doc feed.Document) (feed.Document, error) {
	if !topic.Valid() {
		return feed.Document{}, fmt.Errorf("create in %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	// A sequence value lost to a failed create only leaves a gap.
	seq, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return feed.Document{}, fmt.Errorf("create %s/%s: %w", topic, doc.ID, err)
	}
	key := docsKey(topic)
	txf := func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, key, doc.ID).Result()
		if err != nil {
			return err
		}
		if exists {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, doc.ID, string(doc.Data))
			pipe.ZAdd(ctx, orderKey(topic), redis.Z{Score: float64(seq), Member: doc.ID})
			s.publish(ctx, pipe, signal{Topic: topic, ID: doc.ID, Type: feed.ChangeAdded})
			return nil
		})
		return err
	}
	for range maxTxRetries {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return feed.Document{}, fmt.Errorf("create %s/%s: %w", topic, doc.ID, err)
	}
	return doc, nil
}

// Update replaces an existing document body.
func (s *Store) Update(ctx context.Context, topic feed.Topic, doc feed.Document) error {
	if !topic.Valid() {
		return fmt.Errorf("update in %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	exists, err := s.client.HExists(ctx, docsKey(topic), doc.ID).Result()
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", topic, doc.ID, err)
	}
	if !exists {
		return fmt.Errorf("update %s/%s: %w", topic, doc.ID, sentinel.ErrNotFound)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, docsKey(topic), doc.ID, string(doc.Data))
	s.publish(ctx, pipe, signal{Topic: topic, ID: doc.ID, Type: feed.ChangeModified})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update %s/%s: %w", topic, doc.ID, err)
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, topic feed.Topic, id string) error {
	if !topic.Valid() {
		return fmt.Errorf("delete in %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	pipe := s.client.TxPipeline()
	removed := pipe.HDel(ctx, docsKey(topic), id)
	pipe.ZRem(ctx, orderKey(topic), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete %s/%s: %w", topic, id, err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("delete %s/%s: %w", topic, id, sentinel.ErrNotFound)
	}
	payload, _ := json.Marshal(signal{Topic: topic, ID: id, Type: feed.ChangeRemoved})
	if err := s.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish delete %s/%s: %w", topic, id, err)
	}
	return nil
}

func (s *Store) publish(ctx context.Context, pipe redis.Pipeliner, sig signal) {
	payload, _ := json.Marshal(sig)
	pipe.Publish(ctx, Channel, payload)
}

// Subscribe starts the shared pub/sub reader on first use, then registers fn.
func (s *Store) Subscribe(ctx context.Context, topic feed.Topic, fn feed.SnapshotFunc) (feed.Unsubscribe, error) {
	if err := s.start(ctx); err != nil {
		return nil, fmt.Errorf("subscribe %q: %w: %w", topic, sentinel.ErrUnavailable, err)
	}
	return s.fanout.Subscribe(ctx, topic, fn)
}

func (s *Store) start(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.pubsub = s.client.Subscribe(ctx, Channel)
		// Receive blocks until the subscription is confirmed so no signal
		// published after Subscribe returns can be missed.
		if _, err := s.pubsub.Receive(ctx); err != nil {
			_ = s.pubsub.Close()
			s.startErr = fmt.Errorf("subscribe %s: %w", Channel, err)
			close(s.done)
			return
		}
		runCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.dispatch(runCtx, s.pubsub.Channel())
	})
	return s.startErr
}

func (s *Store) dispatch(ctx context.Context, ch <-chan *redis.Message) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var sig signal
			if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
				s.logger.WarnContext(ctx, "malformed feed signal", "payload", msg.Payload, "error", err)
				continue
			}
			s.fanout.Notify(ctx, sig.Topic)
		}
	}
}

// Close stops the pub/sub reader and detaches every subscriber.
func (s *Store) Close() error {
	s.fanout.Close()
	s.startOnce.Do(func() { close(s.done) })
	if s.cancel == nil {
		<-s.done
		return nil
	}
	s.cancel()
	err := s.pubsub.Close()
	<-s.done
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
