package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"fleetguard/pkg/platform/strings"
)

// Feed backends understood by FromEnv.
const (
	FeedMemory   = "memory"
	FeedPostgres = "postgres"
	FeedRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	LogLevel string
	// LogFormat is "json" or "text".
	LogFormat string

	Feed     FeedConfig
	Postgres PostgresConfig
	Redis    RedisConfig

	Notifications NotificationConfig
	Dashboard     DashboardConfig

	// SeedFile is an optional JSON document {topic: [documents]} written into
	// the feed store at startup.
	SeedFile string
}

// FeedConfig selects the document transport.
type FeedConfig struct {
	Backend string
	// LiveTopics are subscribed by the live board.
	LiveTopics []string
}

// PostgresConfig configures the Postgres feed store.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ListenerMinReconnect and ListenerMaxReconnect bound pq.Listener backoff.
	ListenerMinReconnect time.Duration
	ListenerMaxReconnect time.Duration
}

// RedisConfig configures the shared Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NotificationConfig configures the transient alert queue.
type NotificationConfig struct {
	Duration time.Duration
	// MaxQueued caps the queue; zero means unbounded.
	MaxQueued int
	// Viewer receives message alerts raised outside a request.
	Viewer string
}

// DashboardConfig configures the one-shot dashboard cache.
type DashboardConfig struct {
	CacheTTL time.Duration
	// BreakerFailures consecutive cache errors open the circuit.
	BreakerFailures int
}

// DefaultLiveTopics are every topic the live board needs.
var DefaultLiveTopics = []string{
	"partners", "drivers", "vehicles", "obc_keys", "reports",
	"infractions", "rules", "sanction_configs", "messages",
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:      getEnv("FLEETGUARD_ADDR", ":8080"),
		LogLevel:  getEnv("FLEETGUARD_LOG_LEVEL", "info"),
		LogFormat: getEnv("FLEETGUARD_LOG_FORMAT", "json"),
		Feed: FeedConfig{
			Backend:    getEnv("FLEETGUARD_FEED_BACKEND", FeedMemory),
			LiveTopics: DefaultLiveTopics,
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("FLEETGUARD_POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("FLEETGUARD_REDIS_URL"),
		},
		Notifications: NotificationConfig{
			Viewer: os.Getenv("FLEETGUARD_NOTIFY_VIEWER"),
		},
		SeedFile: os.Getenv("FLEETGUARD_SEED_FILE"),
	}
	if topics := os.Getenv("FLEETGUARD_LIVE_TOPICS"); topics != "" {
		cfg.Feed.LiveTopics = strings.SplitList(topics)
	}

	var err error
	if cfg.Postgres.MaxOpenConns, err = getInt("FLEETGUARD_POSTGRES_MAX_OPEN_CONNS", 10); err != nil {
		return Server{}, err
	}
	if cfg.Postgres.MaxIdleConns, err = getInt("FLEETGUARD_POSTGRES_MAX_IDLE_CONNS", 5); err != nil {
		return Server{}, err
	}
	if cfg.Postgres.ConnMaxLifetime, err = getDuration("FLEETGUARD_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Postgres.ListenerMinReconnect, err = getDuration("FLEETGUARD_POSTGRES_LISTENER_MIN_RECONNECT", 10*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Postgres.ListenerMaxReconnect, err = getDuration("FLEETGUARD_POSTGRES_LISTENER_MAX_RECONNECT", time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Redis.PoolSize, err = getInt("FLEETGUARD_REDIS_POOL_SIZE", 10); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = getInt("FLEETGUARD_REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Server{}, err
	}
	if cfg.Redis.DialTimeout, err = getDuration("FLEETGUARD_REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.ReadTimeout, err = getDuration("FLEETGUARD_REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.WriteTimeout, err = getDuration("FLEETGUARD_REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Notifications.Duration, err = getDuration("FLEETGUARD_NOTIFICATION_DURATION", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Notifications.MaxQueued, err = getInt("FLEETGUARD_NOTIFICATION_MAX_QUEUED", 50); err != nil {
		return Server{}, err
	}
	if cfg.Dashboard.CacheTTL, err = getDuration("FLEETGUARD_DASHBOARD_CACHE_TTL", 30*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Dashboard.BreakerFailures, err = getInt("FLEETGUARD_DASHBOARD_BREAKER_FAILURES", 3); err != nil {
		return Server{}, err
	}

	switch cfg.Feed.Backend {
	case FeedMemory:
	case FeedPostgres:
		if cfg.Postgres.DSN == "" {
			return Server{}, fmt.Errorf("FLEETGUARD_POSTGRES_DSN is required for the postgres feed backend")
		}
	case FeedRedis:
		if cfg.Redis.URL == "" {
			return Server{}, fmt.Errorf("FLEETGUARD_REDIS_URL is required for the redis feed backend")
		}
	default:
		return Server{}, fmt.Errorf("unknown feed backend %q", cfg.Feed.Backend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
