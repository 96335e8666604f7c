// Package postgres is the feed store backed by a jsonb documents table.
// Mutations emit pg_notify in the same transaction; subscriptions are driven by
// a single pq.Listener per store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"fleetguard/internal/feed"
	"fleetguard/pkg/platform/sentinel"
	txcontext "fleetguard/pkg/platform/tx"
)

// Channel is the LISTEN/NOTIFY channel carrying change signals.
const Channel = "fleetguard_feed"

const schema = `
CREATE TABLE IF NOT EXISTS feed_documents (
	topic      TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	position   BIGSERIAL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (topic, id)
);
CREATE INDEX IF NOT EXISTS feed_documents_topic_position ON feed_documents (topic, position);
`

// signal is the NOTIFY payload.
type signal struct {
	Topic feed.Topic      `json:"topic"`
	ID    string          `json:"id"`
	Type  feed.ChangeType `json:"type"`
}

// Store implements feed.Store on PostgreSQL.
type Store struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger

	minReconnect time.Duration
	maxReconnect time.Duration
	pingEvery    time.Duration

	fanout *feed.Fanout
	listen listenFunc

	listenMu sync.Mutex
	listener *pq.Listener
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
}

// listenFunc opens the dedicated LISTEN connection.
type listenFunc func(s *Store) (*pq.Listener, error)

func openListener(s *Store) (*pq.Listener, error) {
	l := pq.NewListener(s.dsn, s.minReconnect, s.maxReconnect, s.onListenerEvent)
	if err := l.Listen(Channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", Channel, err)
	}
	return l, nil
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

// WithReconnect bounds pq.Listener reconnect backoff.
func WithReconnect(minInterval, maxInterval time.Duration) Option {
	return func(s *Store) {
		if minInterval > 0 {
			s.minReconnect = minInterval
		}
		if maxInterval > 0 {
			s.maxReconnect = maxInterval
		}
	}
}

// New builds a store. dsn is needed again for the dedicated listener
// connection, which cannot come from the pool.
func New(db *sql.DB, dsn string, opts ...Option) *Store {
	s := &Store{
		db:           db,
		dsn:          dsn,
		logger:       slog.Default(),
		minReconnect: 10 * time.Second,
		maxReconnect: time.Minute,
		pingEvery:    90 * time.Second,
		listen:       openListener,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.fanout = feed.NewFanout(s.GetAll, s.logger)
	return s
}

// Migrate creates the documents table.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate feed schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// GetAll returns topic's documents in insertion order.
func (s *Store) GetAll(ctx context.Context, topic feed.Topic) ([]feed.Document, error) {
	if !topic.Valid() {
		return nil, fmt.Errorf("get all %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT id, data FROM feed_documents WHERE topic = $1 ORDER BY position`, string(topic))
	if err != nil {
		return nil, fmt.Errorf("get all %q: %w: %w", topic, sentinel.ErrUnavailable, err)
	}
	return scanDocuments(rows)
}

// GetMany returns the listed documents in insertion order, skipping unknown ids.
func (s *Store) GetMany(ctx context.Context, topic feed.Topic, ids []string) ([]feed.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT id, data FROM feed_documents WHERE topic = $1 AND id = ANY($2) ORDER BY position`,
		string(topic), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get many %q: %w: %w", topic, sentinel.ErrUnavailable, err)
	}
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]feed.Document, error) {
	defer rows.Close()
	var docs []feed.Document
	for rows.Next() {
		var d feed.Document
		var data []byte
		if err := rows.Scan(&d.ID, &data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Data = json.RawMessage(data)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// Create inserts doc and signals the change in one transaction.
func (s *Store) Create(ctx context.Context, topic feed.Topic, doc feed.Document) (feed.Document, error) {
	if !topic.Valid() {
		return feed.Document{}, fmt.Errorf("create in %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		_, err := s.execer(ctx).ExecContext(ctx,
			`INSERT INTO feed_documents (topic, id, data) VALUES ($1, $2, $3)`,
			string(topic), doc.ID, []byte(doc.Data))
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return fmt.Errorf("create %s/%s: %w", topic, doc.ID, sentinel.ErrConflict)
			}
			return fmt.Errorf("create %s/%s: %w", topic, doc.ID, err)
		}
		return s.notify(ctx, signal{Topic: topic, ID: doc.ID, Type: feed.ChangeAdded})
	})
	if err != nil {
		return feed.Document{}, err
	}
	return doc, nil
}

// Update replaces an existing document body.
func (s *Store) Update(ctx context.Context, topic feed.Topic, doc feed.Document) error {
	if !topic.Valid() {
		return fmt.Errorf("update in %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx,
			`UPDATE feed_documents SET data = $3, updated_at = now() WHERE topic = $1 AND id = $2`,
			string(topic), doc.ID, []byte(doc.Data))
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", topic, doc.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update %s/%s: %w", topic, doc.ID, sentinel.ErrNotFound)
		}
		return s.notify(ctx, signal{Topic: topic, ID: doc.ID, Type: feed.ChangeModified})
	})
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, topic feed.Topic, id string) error {
	if !topic.Valid() {
		return fmt.Errorf("delete in %q: %w", topic, sentinel.ErrUnknownTopic)
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx,
			`DELETE FROM feed_documents WHERE topic = $1 AND id = $2`, string(topic), id)
		if err != nil {
			return fmt.Errorf("delete %s/%s: %w", topic, id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("delete %s/%s: %w", topic, id, sentinel.ErrNotFound)
		}
		return s.notify(ctx, signal{Topic: topic, ID: id, Type: feed.ChangeRemoved})
	})
}

func (s *Store) notify(ctx context.Context, sig signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal change signal: %w", err)
	}
	if _, err := s.execer(ctx).ExecContext(ctx, `SELECT pg_notify($1, $2)`, Channel, string(payload)); err != nil {
		return fmt.Errorf("notify change: %w", err)
	}
	return nil
}

// Subscribe starts the shared listener on first use, then registers fn.
func (s *Store) Subscribe(ctx context.Context, topic feed.Topic, fn feed.SnapshotFunc) (feed.Unsubscribe, error) {
	if err := s.startListener(); err != nil {
		return nil, fmt.Errorf("subscribe %q: %w: %w", topic, sentinel.ErrUnavailable, err)
	}
	return s.fanout.Subscribe(ctx, topic, fn)
}

// startListener is a no-op once a listener runs. A failed attempt leaves
// nothing behind, so the next Subscribe tries again.
func (s *Store) startListener() error {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.closed {
		return sentinel.ErrDisposed
	}
	if s.listener != nil {
		return nil
	}
	l, err := s.listen(s)
	if err != nil {
		s.logger.Warn("feed listener failed to start", "error", err)
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.listener, s.cancel, s.done = l, cancel, make(chan struct{})
	go s.dispatch(ctx, l, s.done)
	return nil
}

func (s *Store) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected:
		s.logger.Warn("feed listener disconnected", "error", err)
	case pq.ListenerEventReconnected:
		s.logger.Info("feed listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		s.logger.Warn("feed listener connection attempt failed", "error", err)
	}
}

// dispatch turns notifications into reloads. A nil notification means the
// connection was re-established and signals may have been lost, so every
// subscribed topic is reloaded.
func (s *Store) dispatch(ctx context.Context, l *pq.Listener, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-l.Notify:
			if !ok {
				return
			}
			if n == nil {
				s.fanout.NotifyAll(ctx)
				continue
			}
			var sig signal
			if err := json.Unmarshal([]byte(n.Extra), &sig); err != nil {
				s.logger.WarnContext(ctx, "malformed feed signal", "payload", n.Extra, "error", err)
				continue
			}
			s.fanout.Notify(ctx, sig.Topic)
		case <-time.After(s.pingEvery):
			go func() { _ = l.Ping() }()
		}
	}
}

// Close stops the listener and detaches every subscriber. The pool is owned
// by the caller.
func (s *Store) Close() error {
	s.fanout.Close()

	s.listenMu.Lock()
	s.closed = true
	l, cancel, done := s.listener, s.cancel, s.done
	s.listener = nil
	s.listenMu.Unlock()

	if l == nil {
		return nil
	}
	cancel()
	<-done
	return l.Close()
}
