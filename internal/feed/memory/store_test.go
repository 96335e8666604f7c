package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"fleetguard/internal/feed"
	"fleetguard/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func (s *StoreSuite) TestCRUD() {
	s.Run("create mints id and keeps insertion order", func() {
		a, err := s.store.Create(s.ctx, feed.TopicReports, feed.Document{Data: json.RawMessage(`{"n":1}`)})
		s.Require().NoError(err)
		s.NotEmpty(a.ID)
		_, err = s.store.Create(s.ctx, feed.TopicReports, feed.Document{ID: "r2", Data: json.RawMessage(`{"n":2}`)})
		s.Require().NoError(err)

		docs, err := s.store.GetAll(s.ctx, feed.TopicReports)
		s.Require().NoError(err)
		s.Require().Len(docs, 2)
		s.Equal(a.ID, docs[0].ID)
		s.Equal("r2", docs[1].ID)
	})

	s.Run("duplicate id conflicts", func() {
		_, err := s.store.Create(s.ctx, feed.TopicReports, feed.Document{ID: "r2", Data: json.RawMessage(`{}`)})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("update replaces body", func() {
		s.Require().NoError(s.store.Update(s.ctx, feed.TopicReports, feed.Document{ID: "r2", Data: json.RawMessage(`{"n":3}`)}))
		docs, _ := s.store.GetAll(s.ctx, feed.TopicReports)
		s.JSONEq(`{"n":3}`, string(docs[1].Data))
	})

	s.Run("missing documents", func() {
		s.ErrorIs(s.store.Update(s.ctx, feed.TopicReports, feed.Document{ID: "nope"}), sentinel.ErrNotFound)
		s.ErrorIs(s.store.Delete(s.ctx, feed.TopicReports, "nope"), sentinel.ErrNotFound)
	})

	s.Run("delete removes", func() {
		s.Require().NoError(s.store.Delete(s.ctx, feed.TopicReports, "r2"))
		docs, _ := s.store.GetAll(s.ctx, feed.TopicReports)
		s.Len(docs, 1)
	})

	s.Run("unknown topic", func() {
		_, err := s.store.GetAll(s.ctx, feed.Topic("payroll"))
		s.ErrorIs(err, sentinel.ErrUnknownTopic)
	})
}

func (s *StoreSuite) TestGetAllReturnsCopies() {
	_, err := s.store.Create(s.ctx, feed.TopicRules, feed.Document{ID: "speed", Data: json.RawMessage(`{"title":"Speed"}`)})
	s.Require().NoError(err)

	docs, _ := s.store.GetAll(s.ctx, feed.TopicRules)
	docs[0].Data[2] = 'X'

	again, _ := s.store.GetAll(s.ctx, feed.TopicRules)
	s.JSONEq(`{"title":"Speed"}`, string(again[0].Data))
}

func (s *StoreSuite) TestSubscribeSeesMutations() {
	var got []feed.Snapshot
	unsub, err := s.store.Subscribe(s.ctx, feed.TopicInfractions, func(snap feed.Snapshot) {
		got = append(got, snap)
	})
	s.Require().NoError(err)

	_, err = s.store.Create(s.ctx, feed.TopicInfractions, feed.Document{ID: "i1", Data: json.RawMessage(`{"type":"Alarm"}`)})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Delete(s.ctx, feed.TopicInfractions, "i1"))

	s.Require().Len(got, 3)
	s.True(got[0].Initial)
	s.Empty(got[0].Documents)
	s.Equal(feed.ChangeAdded, got[1].Changes[0].Type)
	s.Equal(feed.ChangeRemoved, got[2].Changes[0].Type)

	unsub()
	_, err = s.store.Create(s.ctx, feed.TopicInfractions, feed.Document{ID: "i2", Data: json.RawMessage(`{}`)})
	s.Require().NoError(err)
	s.Len(got, 3)
}

func (s *StoreSuite) TestClose() {
	s.Require().NoError(s.store.Close())
	_, err := s.store.Subscribe(s.ctx, feed.TopicDrivers, func(feed.Snapshot) {})
	s.ErrorIs(err, sentinel.ErrUnavailable)
}
