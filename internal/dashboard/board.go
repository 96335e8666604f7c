package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fleetguard/internal/compliance/aggregate"
	"fleetguard/internal/feed"
	"fleetguard/internal/livesync"
	"fleetguard/internal/notify"
)

// Board is the process-wide live dashboard. It owns one livesync.View,
// rebuilds the engine on every delivery and forwards changes to the
// notification bridge.
type Board struct {
	view    *livesync.View
	bridge  *notify.Bridge
	logger  *slog.Logger
	metrics *Metrics

	ctx context.Context

	mu      sync.RWMutex
	engine  *aggregate.Engine
	updated time.Time
}

// NewBoard builds an inactive board over topics. Topics must include every
// EngineTopics entry for the board to become ready; bridge may be nil.
func NewBoard(src feed.Subscriber, topics []feed.Topic, bridge *notify.Bridge, logger *slog.Logger, metrics *Metrics, syncMetrics *livesync.Metrics) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Board{
		bridge:  bridge,
		logger:  logger,
		metrics: metrics,
		ctx:     context.Background(),
	}
	b.view = livesync.NewView("live_board", src, topics,
		livesync.WithOnUpdate(b.onUpdate),
		livesync.WithLogger(logger),
		livesync.WithMetrics(syncMetrics))
	return b
}

// Start activates the board. Notifications raised by later deliveries carry
// ctx values but not its cancellation.
func (b *Board) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = context.WithoutCancel(ctx)
	b.engine = nil
	b.mu.Unlock()
	return b.view.Activate(ctx)
}

// StartWithRetry calls Start until it succeeds, backing off from minWait up
// to maxWait between attempts. It returns ctx.Err() if ctx ends first.
func (b *Board) StartWithRetry(ctx context.Context, minWait, maxWait time.Duration) error {
	wait := minWait
	for attempt := 1; ; attempt++ {
		err := b.Start(ctx)
		if err == nil {
			if attempt > 1 {
				b.logger.InfoContext(ctx, "live board started", "attempts", attempt)
			}
			return nil
		}
		b.logger.WarnContext(ctx, "live board unavailable, retrying",
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, maxWait)
	}
}

// Stop tears the board down. The last engine is discarded.
func (b *Board) Stop() {
	b.view.Deactivate()
	b.mu.Lock()
	b.engine = nil
	b.mu.Unlock()
}

// Engine returns the latest engine once every engine topic has delivered.
func (b *Board) Engine() (*aggregate.Engine, time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.engine == nil {
		return nil, time.Time{}, false
	}
	return b.engine, b.updated, true
}

func (b *Board) onUpdate(update feed.Snapshot, all livesync.Collections) {
	b.mu.RLock()
	ctx := b.ctx
	b.mu.RUnlock()

	if b.bridge != nil {
		b.bridge.Observe(ctx, update)
	}

	for _, t := range EngineTopics {
		if _, ok := all[t]; !ok {
			return
		}
	}

	start := time.Now()
	engine := aggregate.NewEngine(Decode(ctx, b.logger, all))
	b.metrics.ObserveRebuild(time.Since(start))

	b.mu.Lock()
	b.engine = engine
	b.updated = start
	b.mu.Unlock()
}
