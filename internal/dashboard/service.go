package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetguard/internal/compliance/aggregate"
	"fleetguard/internal/compliance/severity"
	"fleetguard/internal/feed"
	"fleetguard/internal/livesync"
	id "fleetguard/pkg/domain"
	dErrors "fleetguard/pkg/domain-errors"
	"fleetguard/pkg/platform/sentinel"
)

// Service computes aggregates from one-shot reads of every collection.
type Service struct {
	reader   feed.Reader
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache enables dashboard caching. A nil cache disables it.
func WithCache(cache Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(reader feed.Reader, opts ...ServiceOption) *Service {
	s := &Service{
		reader:   reader,
		cacheTTL: 30 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads every engine collection in parallel.
func (s *Service) Load(ctx context.Context) (aggregate.Snapshot, error) {
	start := time.Now()
	results := make([][]feed.Document, len(EngineTopics))

	g, gctx := errgroup.WithContext(ctx)
	for i, topic := range EngineTopics {
		g.Go(func() error {
			docs, err := s.reader.GetAll(gctx, topic)
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		code := dErrors.CodeInternal
		if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			code = dErrors.CodeUnavailable
		}
		return aggregate.Snapshot{}, dErrors.Wrap(err, code, "failed to read collections")
	}

	cols := make(livesync.Collections, len(EngineTopics))
	for i, topic := range EngineTopics {
		cols[topic] = results[i]
	}
	s.metrics.ObserveLoad(time.Since(start))
	return Decode(ctx, s.logger, cols), nil
}

// Engine loads the collections and indexes them.
func (s *Service) Engine(ctx context.Context) (*aggregate.Engine, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.NewEngine(snap), nil
}

// Dashboard returns the dashboard for scope, through the cache when one is
// configured. Cache failures never fail the request.
func (s *Service) Dashboard(ctx context.Context, scope aggregate.ScopeFilter) (aggregate.Dashboard, error) {
	key := scope.Key()
	if s.cache != nil {
		b, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var d aggregate.Dashboard
			if jsonErr := json.Unmarshal(b, &d); jsonErr == nil {
				s.metrics.IncCacheHit()
				return d, nil
			}
			s.logger.WarnContext(ctx, "discarding unreadable cached dashboard", "key", key)
		case errors.Is(err, sentinel.ErrNotFound):
		default:
			s.logger.WarnContext(ctx, "dashboard cache read failed",
				"key", key,
				"error", err,
			)
		}
		s.metrics.IncCacheMiss()
	}

	engine, err := s.Engine(ctx)
	if err != nil {
		return aggregate.Dashboard{}, err
	}
	d := engine.Dashboard(scope)

	if s.cache != nil {
		if b, err := json.Marshal(d); err == nil {
			if err := s.cache.Set(ctx, key, b, s.cacheTTL); err != nil {
				s.logger.WarnContext(ctx, "dashboard cache write failed",
					"key", key,
					"error", err,
				)
			}
		}
	}
	return d, nil
}

func (s *Service) Sanctions(ctx context.Context, scope aggregate.ScopeFilter) ([]aggregate.LicenseBalance, error) {
	engine, err := s.Engine(ctx)
	if err != nil {
		return nil, err
	}
	return engine.Sanctions(scope), nil
}

func (s *Service) DriverDetail(ctx context.Context, driver id.DriverID, scope aggregate.ScopeFilter) (aggregate.DriverDetail, error) {
	engine, err := s.Engine(ctx)
	if err != nil {
		return aggregate.DriverDetail{}, err
	}
	return driverDetail(engine, driver, scope)
}

func (s *Service) Severity(ctx context.Context, infID id.InfractionID) (SeverityView, error) {
	engine, err := s.Engine(ctx)
	if err != nil {
		return SeverityView{}, err
	}
	return severityOf(engine, infID)
}

// SeverityView is the resolved severity of one infraction.
type SeverityView struct {
	InfractionID id.InfractionID `json:"infraction_id"`
	DriverID     id.DriverID     `json:"driver_id,omitempty"`
	severity.Result
}

func severityOf(engine *aggregate.Engine, infID id.InfractionID) (SeverityView, error) {
	inf, ok := engine.Infraction(infID)
	if !ok {
		return SeverityView{}, dErrors.New(dErrors.CodeNotFound, "infraction not found")
	}
	driver, _ := engine.Index().DriverOf(inf)
	return SeverityView{InfractionID: infID, DriverID: driver, Result: engine.Resolve(inf)}, nil
}

func driverDetail(engine *aggregate.Engine, driver id.DriverID, scope aggregate.ScopeFilter) (aggregate.DriverDetail, error) {
	detail, ok := engine.DriverDetail(driver, scope)
	if !ok {
		return aggregate.DriverDetail{}, dErrors.New(dErrors.CodeNotFound, "driver not found")
	}
	return detail, nil
}
