package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"fleetguard/internal/feed"
	"fleetguard/internal/feed/memory"
	"fleetguard/internal/feed/mocks"
	"fleetguard/pkg/platform/sentinel"
)

type ManagerSuite struct {
	suite.Suite
	store   *memory.Store
	metrics *Metrics
	mgr     *Manager
	ctx     context.Context
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.store = memory.New()
	s.metrics = NewWithRegistry(prometheus.NewRegistry())
	s.mgr = NewManager(s.store, WithManagerMetrics(s.metrics))
	s.ctx = context.Background()
}

func (s *ManagerSuite) TearDownTest() {
	s.mgr.Close()
	_ = s.store.Close()
}

func (s *ManagerSuite) create(topic feed.Topic, id string) {
	_, err := s.store.Create(s.ctx, topic, feed.Document{ID: id, Data: json.RawMessage(`{}`)})
	s.Require().NoError(err)
}

func (s *ManagerSuite) TestSharesOneUpstream() {
	s.create(feed.TopicReports, "r1")

	var first, second []feed.Snapshot
	unsubA, err := s.mgr.Subscribe(s.ctx, feed.TopicReports, func(snap feed.Snapshot) { first = append(first, snap) })
	s.Require().NoError(err)
	unsubB, err := s.mgr.Subscribe(s.ctx, feed.TopicReports, func(snap feed.Snapshot) { second = append(second, snap) })
	s.Require().NoError(err)

	s.Equal(2, s.mgr.RefCount(feed.TopicReports))
	s.InDelta(1, testutil.ToFloat64(s.metrics.SubscriptionsOpened.WithLabelValues("reports")), 0)
	s.InDelta(2, testutil.ToFloat64(s.metrics.SharedListeners.WithLabelValues("reports")), 0)

	s.Run("late joiner receives the last snapshot as initial", func() {
		s.Require().Len(second, 1)
		s.True(second[0].Initial)
		s.Require().Len(second[0].Documents, 1)
		s.Require().Len(second[0].Changes, 1)
		s.Equal(feed.ChangeAdded, second[0].Changes[0].Type)
	})

	s.Run("changes reach every listener", func() {
		s.create(feed.TopicReports, "r2")
		s.Len(first, 2)
		s.Len(second, 2)
		s.False(second[1].Initial)
	})

	s.Run("upstream closes with the last listener", func() {
		unsubA()
		unsubA()
		s.Equal(1, s.mgr.RefCount(feed.TopicReports))
		s.InDelta(1, testutil.ToFloat64(s.metrics.UpstreamActive.WithLabelValues("reports")), 0)

		unsubB()
		s.Zero(s.mgr.RefCount(feed.TopicReports))
		s.InDelta(0, testutil.ToFloat64(s.metrics.UpstreamActive.WithLabelValues("reports")), 0)

		s.create(feed.TopicReports, "r3")
		s.Len(first, 2)
		s.Len(second, 2)
	})
}

func (s *ManagerSuite) TestResubscribeAfterRelease() {
	unsub, err := s.mgr.Subscribe(s.ctx, feed.TopicRules, func(feed.Snapshot) {})
	s.Require().NoError(err)
	unsub()

	var got []feed.Snapshot
	unsub, err = s.mgr.Subscribe(s.ctx, feed.TopicRules, func(snap feed.Snapshot) { got = append(got, snap) })
	s.Require().NoError(err)
	defer unsub()
	s.Require().Len(got, 1)
	s.True(got[0].Initial)
	s.InDelta(2, testutil.ToFloat64(s.metrics.SubscriptionsOpened.WithLabelValues("rules")), 0)
}

func (s *ManagerSuite) TestViewsOverManager() {
	s.create(feed.TopicInfractions, "i1")

	a := NewView("a", s.mgr, []feed.Topic{feed.TopicInfractions, feed.TopicReports})
	b := NewView("b", s.mgr, []feed.Topic{feed.TopicInfractions})
	s.Require().NoError(a.Activate(s.ctx))
	s.Require().NoError(b.Activate(s.ctx))

	s.True(a.Ready())
	s.True(b.Ready())
	s.Equal(2, s.mgr.RefCount(feed.TopicInfractions))
	s.Equal(1, s.mgr.RefCount(feed.TopicReports))

	a.Deactivate()
	s.Equal(1, s.mgr.RefCount(feed.TopicInfractions))
	s.Zero(s.mgr.RefCount(feed.TopicReports))

	s.create(feed.TopicInfractions, "i2")
	snap, ok := b.Snapshot(feed.TopicInfractions)
	s.Require().True(ok)
	s.Len(snap.Documents, 2)
}

func (s *ManagerSuite) TestUpstreamFailure() {
	ctrl := gomock.NewController(s.T())
	src := mocks.NewMockSubscriber(ctrl)
	src.EXPECT().Subscribe(gomock.Any(), feed.TopicReports, gomock.Any()).
		Return(nil, errors.New("offline"))
	src.EXPECT().Subscribe(gomock.Any(), feed.TopicReports, gomock.Any()).
		Return(feed.Unsubscribe(func() {}), nil)

	mgr := NewManager(src, WithManagerMetrics(s.metrics))
	defer mgr.Close()

	_, err := mgr.Subscribe(s.ctx, feed.TopicReports, func(feed.Snapshot) {})
	s.Require().Error(err)
	s.Contains(err.Error(), "offline")
	s.Zero(mgr.RefCount(feed.TopicReports))
	s.InDelta(1, testutil.ToFloat64(s.metrics.SubscriptionErrors.WithLabelValues("reports")), 0)

	unsub, err := mgr.Subscribe(s.ctx, feed.TopicReports, func(feed.Snapshot) {})
	s.Require().NoError(err, "a failed open does not poison later subscribers")
	unsub()
}

func (s *ManagerSuite) TestClosedManagerRejects() {
	s.mgr.Close()
	_, err := s.mgr.Subscribe(s.ctx, feed.TopicReports, func(feed.Snapshot) {})
	s.ErrorIs(err, sentinel.ErrDisposed)

	v := NewView("late", s.mgr, []feed.Topic{feed.TopicReports})
	err = v.Activate(s.ctx)
	s.ErrorIs(err, sentinel.ErrDisposed)
	s.ErrorIs(err, sentinel.ErrUnavailable, "views report a disposed source as unavailable")
}
