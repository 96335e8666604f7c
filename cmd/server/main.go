package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetguard/internal/dashboard"
	"fleetguard/internal/feed"
	"fleetguard/internal/feed/memory"
	feedpostgres "fleetguard/internal/feed/postgres"
	feedredis "fleetguard/internal/feed/redis"
	"fleetguard/internal/feed/seed"
	"fleetguard/internal/livesync"
	"fleetguard/internal/notify"
	"fleetguard/internal/platform/config"
	"fleetguard/internal/platform/httpserver"
	"fleetguard/internal/platform/logger"
	"fleetguard/internal/platform/metrics"
	"fleetguard/internal/platform/postgres"
	"fleetguard/internal/platform/redis"
	httptransport "fleetguard/internal/transport/http"
	id "fleetguard/pkg/domain"
	"fleetguard/pkg/platform/circuit"
	"fleetguard/pkg/requestcontext"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	store  feed.Store
	db     *sql.DB
	redis  *redis.Client
	health map[string]httptransport.HealthCheck
}

func (i *infra) close(log *slog.Logger) {
	if i.store != nil {
		if err := i.store.Close(); err != nil {
			log.Warn("closing feed store", "error", err)
		}
	}
	if i.db != nil {
		_ = i.db.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inf, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer inf.close(log)

	if cfg.SeedFile != "" {
		if _, err := seed.LoadFile(ctx, inf.store, cfg.SeedFile, log); err != nil {
			return fmt.Errorf("seed feed store: %w", err)
		}
	}

	topics, err := liveTopics(cfg.Feed.LiveTopics)
	if err != nil {
		return err
	}

	syncMetrics := livesync.New()
	manager := livesync.NewManager(inf.store,
		livesync.WithManagerLogger(log.With("component", "livesync")),
		livesync.WithManagerMetrics(syncMetrics))
	defer manager.Close()

	notifyMetrics := notify.New()
	queue := notify.NewQueue(
		notify.WithDuration(cfg.Notifications.Duration),
		notify.WithMaxQueued(cfg.Notifications.MaxQueued),
		notify.WithQueueMetrics(notifyMetrics))
	defer queue.Close()
	bridge := notify.NewBridge(notify.DefaultRules(viewerFunc(cfg.Notifications.Viewer), log.With("component", "notify")), queue,
		log.With("component", "notify"), notifyMetrics)

	dashMetrics := dashboard.New()
	service := dashboard.NewService(inf.store,
		dashboard.WithCache(dashboardCache(cfg, inf.redis, log, dashMetrics), cfg.Dashboard.CacheTTL),
		dashboard.WithLogger(log.With("component", "dashboard")),
		dashboard.WithMetrics(dashMetrics))

	board := dashboard.NewBoard(manager, topics, bridge, log.With("component", "live_board"), dashMetrics, syncMetrics)
	// One-shot endpoints keep working while the live dashboard answers 503.
	boardCtx, cancelBoard := context.WithCancel(ctx)
	boardDone := make(chan struct{})
	go func() {
		defer close(boardDone)
		_ = board.StartWithRetry(boardCtx, time.Second, 30*time.Second)
	}()
	defer func() {
		cancelBoard()
		<-boardDone
		board.Stop()
	}()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:  log,
		Metrics: metrics.New(),
		Health:  inf.health,
		Handlers: []httptransport.Registrar{
			dashboard.NewHandler(service, board, log.With("component", "dashboard")),
			notify.NewHandler(queue, log.With("component", "notify")),
		},
	})
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting fleetguard", "addr", cfg.Addr, "feed", cfg.Feed.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	inf := &infra{health: make(map[string]httptransport.HealthCheck)}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client != nil {
		inf.redis = client
		inf.health["redis"] = client.Health
	}

	switch cfg.Feed.Backend {
	case config.FeedPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			inf.close(log)
			return nil, err
		}
		inf.db = db
		inf.health["postgres"] = db.PingContext
		store := feedpostgres.New(db, cfg.Postgres.DSN,
			feedpostgres.WithLogger(log.With("component", "feed")),
			feedpostgres.WithReconnect(cfg.Postgres.ListenerMinReconnect, cfg.Postgres.ListenerMaxReconnect))
		if err := store.Migrate(ctx); err != nil {
			inf.close(log)
			return nil, err
		}
		inf.store = store
	case config.FeedRedis:
		inf.store = feedredis.New(client.Client, feedredis.WithLogger(log.With("component", "feed")))
	default:
		inf.store = memory.New(memory.WithLogger(log.With("component", "feed")))
	}
	return inf, nil
}

func dashboardCache(cfg config.Server, client *redis.Client, log *slog.Logger, m *dashboard.Metrics) dashboard.Cache {
	if client == nil {
		return dashboard.NewMemoryCache()
	}
	breaker := circuit.New("dashboard-cache", circuit.WithFailureThreshold(cfg.Dashboard.BreakerFailures))
	return dashboard.NewGuardedCache(dashboard.NewRedisCache(client.Client), dashboard.NewMemoryCache(),
		breaker, log.With("component", "dashboard_cache"), m)
}

func liveTopics(raw []string) ([]feed.Topic, error) {
	topics := make([]feed.Topic, 0, len(raw))
	for _, r := range raw {
		t := feed.Topic(r)
		if !t.Valid() {
			return nil, fmt.Errorf("FLEETGUARD_LIVE_TOPICS: unknown topic %q", r)
		}
		topics = append(topics, t)
	}
	return topics, nil
}

// viewerFunc prefers the request viewer and falls back to the configured one
// for deliveries that arrive outside a request.
func viewerFunc(configured string) notify.ViewerFunc {
	fallback, _ := id.ParseUserID(configured)
	return func(ctx context.Context) id.UserID {
		if u := requestcontext.UserID(ctx); !u.IsNil() {
			return u
		}
		return fallback
	}
}
