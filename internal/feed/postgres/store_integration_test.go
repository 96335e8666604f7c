//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"fleetguard/internal/feed"
	"fleetguard/pkg/platform/sentinel"
	"fleetguard/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.store = New(s.pg.DB, s.pg.DSN, WithReconnect(100*time.Millisecond, time.Second))
	s.Require().NoError(s.store.Migrate(s.ctx))
	_, err := s.pg.DB.ExecContext(s.ctx, `TRUNCATE feed_documents`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *PostgresStoreSuite) TestCRUD() {
	created, err := s.store.Create(s.ctx, feed.TopicSanctionConfigs, feed.Document{Data: json.RawMessage(`{"points":6}`)})
	s.Require().NoError(err)
	_, err = s.store.Create(s.ctx, feed.TopicSanctionConfigs, feed.Document{ID: "c2", Data: json.RawMessage(`{"points":4}`)})
	s.Require().NoError(err)

	s.Run("insertion order", func() {
		docs, err := s.store.GetAll(s.ctx, feed.TopicSanctionConfigs)
		s.Require().NoError(err)
		s.Require().Len(docs, 2)
		s.Equal(created.ID, docs[0].ID)
		s.JSONEq(`{"points":6}`, string(docs[0].Data))
	})

	s.Run("conflict", func() {
		_, err := s.store.Create(s.ctx, feed.TopicSanctionConfigs, feed.Document{ID: "c2", Data: json.RawMessage(`{}`)})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("batch read", func() {
		docs, err := s.store.GetMany(s.ctx, feed.TopicSanctionConfigs, []string{"c2", "missing"})
		s.Require().NoError(err)
		s.Require().Len(docs, 1)
		s.Equal("c2", docs[0].ID)
	})

	s.Run("update and delete", func() {
		s.Require().NoError(s.store.Update(s.ctx, feed.TopicSanctionConfigs, feed.Document{ID: "c2", Data: json.RawMessage(`{"points":5}`)}))
		s.Require().NoError(s.store.Delete(s.ctx, feed.TopicSanctionConfigs, created.ID))
		s.ErrorIs(s.store.Delete(s.ctx, feed.TopicSanctionConfigs, created.ID), sentinel.ErrNotFound)

		docs, err := s.store.GetAll(s.ctx, feed.TopicSanctionConfigs)
		s.Require().NoError(err)
		s.Require().Len(docs, 1)
		s.JSONEq(`{"points":5}`, string(docs[0].Data))
	})
}

func (s *PostgresStoreSuite) TestSubscribeReceivesNotifications() {
	var mu sync.Mutex
	var got []feed.Snapshot
	unsub, err := s.store.Subscribe(s.ctx, feed.TopicInfractions, func(snap feed.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, snap)
	})
	s.Require().NoError(err)
	defer unsub()

	_, err = s.store.Create(s.ctx, feed.TopicInfractions, feed.Document{ID: "i1", Data: json.RawMessage(`{"type":"Alarm"}`)})
	s.Require().NoError(err)

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.True(got[0].Initial)
	s.Equal([]feed.Change{{Type: feed.ChangeAdded, Document: got[1].Documents[0]}}, got[1].Changes)
	s.Equal("i1", got[1].Documents[0].ID)
}

func (s *PostgresStoreSuite) TestListenerRetriesAfterFailedStart() {
	attempts := 0
	s.store.listen = func(st *Store) (*pq.Listener, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return openListener(st)
	}
	noop := func(feed.Snapshot) {}

	_, err := s.store.Subscribe(s.ctx, feed.TopicReports, noop)
	s.Require().ErrorIs(err, sentinel.ErrUnavailable)

	unsub, err := s.store.Subscribe(s.ctx, feed.TopicReports, noop)
	s.Require().NoError(err)
	unsub()
	s.Equal(2, attempts)
}
