package dashboard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"fleetguard/internal/compliance/aggregate"
	"fleetguard/internal/compliance/severity"
	"fleetguard/internal/feed"
	"fleetguard/internal/feed/memory"
	"fleetguard/internal/feed/mocks"
	id "fleetguard/pkg/domain"
	dErrors "fleetguard/pkg/domain-errors"
	"fleetguard/pkg/platform/sentinel"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	cache   *MemoryCache
	metrics *Metrics
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	seed(s.T(), s.ctx, s.store, referenceFleet)
	s.cache = NewMemoryCache()
	s.metrics = NewWithRegistry(prometheus.NewRegistry())
	s.service = NewService(s.store, WithCache(s.cache, time.Minute), WithMetrics(s.metrics))
}

func (s *ServiceSuite) TearDownTest() {
	_ = s.store.Close()
}

func (s *ServiceSuite) TestDashboard() {
	scope := aggregate.NewScope("P1", 2024)

	d, err := s.service.Dashboard(s.ctx, scope)
	s.Require().NoError(err)
	s.Equal(2, d.Totals.Infractions)
	s.Equal(9, d.Totals.PointsLost)
	s.Equal(1, d.Totals.Reports)
	s.Require().NotEmpty(d.DriverPoints)
	s.Equal(id.DriverID("D1"), d.DriverPoints[0].DriverID)
	s.InDelta(1, testutil.ToFloat64(s.metrics.CacheMisses), 0)

	s.Run("second read is served from cache", func() {
		_, err := s.store.Create(s.ctx, feed.TopicInfractions, feed.Document{ID: "I9",
			Data: []byte(`{"partner_id":"P1","date":"2024-05-01","type":"Alert"}`)})
		s.Require().NoError(err)

		cached, err := s.service.Dashboard(s.ctx, scope)
		s.Require().NoError(err)
		s.Equal(2, cached.Totals.Infractions)
		s.Equal(d.Monthly, cached.Monthly)
		s.InDelta(1, testutil.ToFloat64(s.metrics.CacheHits), 0)
	})

	s.Run("other scopes are computed fresh", func() {
		all, err := s.service.Dashboard(s.ctx, aggregate.NewScope(id.AllPartners, 2024))
		s.Require().NoError(err)
		s.Equal(3, all.Totals.Infractions)
	})
}

func (s *ServiceSuite) TestSeverity() {
	view, err := s.service.Severity(s.ctx, "I1")
	s.Require().NoError(err)
	s.Equal(6, view.Points)
	s.Equal(severity.SourcePartner, view.Source)
	s.Equal(id.DriverID("D1"), view.DriverID)

	view, err = s.service.Severity(s.ctx, "I2")
	s.Require().NoError(err)
	s.Equal(severity.DefaultAlarmPoints, view.Points)
	s.Equal(severity.SourceDefault, view.Source)
	s.True(view.DriverID.IsNil())

	_, err = s.service.Severity(s.ctx, "nope")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestSanctionsAndDriverDetail() {
	scope := aggregate.NewScope("P1", 2024)

	sanctions, err := s.service.Sanctions(s.ctx, scope)
	s.Require().NoError(err)
	s.Require().Len(sanctions, 2)
	s.Equal(id.DriverID("D1"), sanctions[0].DriverID)
	s.Equal(6, sanctions[0].Balance)
	s.Equal(id.DriverID("D2"), sanctions[1].DriverID)
	s.Equal(aggregate.LicenseAllotment, sanctions[1].Balance)

	detail, err := s.service.DriverDetail(s.ctx, "D1", scope)
	s.Require().NoError(err)
	s.Equal("Ada Lovelace", detail.License.Name)
	s.Equal(1, detail.Safety.Infractions)

	_, err = s.service.DriverDetail(s.ctx, "D404", scope)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestReadFailure() {
	ctrl := gomock.NewController(s.T())
	reader := mocks.NewMockReader(ctrl)
	reader.EXPECT().GetAll(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, topic feed.Topic) ([]feed.Document, error) {
			if topic == feed.TopicRules {
				return nil, fmt.Errorf("read %s: %w", topic, sentinel.ErrUnavailable)
			}
			return nil, nil
		}).AnyTimes()

	svc := NewService(reader)
	_, err := svc.Dashboard(s.ctx, aggregate.NewScope(id.AllPartners, 2024))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.ErrorIs(err, sentinel.ErrUnavailable)

	reader2 := mocks.NewMockReader(ctrl)
	reader2.EXPECT().GetAll(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom")).AnyTimes()
	_, err = NewService(reader2).Sanctions(s.ctx, aggregate.NewScope(id.AllPartners, 2024))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
