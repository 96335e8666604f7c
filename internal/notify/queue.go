package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultDuration  = 5 * time.Second
	DefaultMaxQueued = 50
)

// TimerFunc schedules fn after d and returns a stop function. fn must run
// asynchronously.
type TimerFunc func(d time.Duration, fn func()) (stop func() bool)

func realTimer(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Queue holds visible notifications until they expire or are dismissed.
// When the cap is reached the oldest entry is dropped.
type Queue struct {
	duration  time.Duration
	maxQueued int
	now       func() time.Time
	after     TimerFunc
	metrics   *Metrics

	mu      sync.Mutex
	entries []entry
}

type entry struct {
	n    Notification
	stop func() bool
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithDuration sets how long a notification stays visible.
func WithDuration(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.duration = d
		}
	}
}

// WithMaxQueued caps the queue length. Zero or less means unbounded.
func WithMaxQueued(n int) QueueOption {
	return func(q *Queue) { q.maxQueued = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// WithTimer overrides time.AfterFunc.
func WithTimer(after TimerFunc) QueueOption {
	return func(q *Queue) { q.after = after }
}

// WithQueueMetrics sets the metrics sink.
func WithQueueMetrics(m *Metrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		duration:  DefaultDuration,
		maxQueued: DefaultMaxQueued,
		now:       time.Now,
		after:     realTimer,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push enqueues a notification, filling in id and timestamps, and schedules
// its automatic dismissal.
func (q *Queue) Push(n Notification) Notification {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = q.now()
	n.ExpiresAt = n.CreatedAt.Add(q.duration)

	notificationID := n.ID

	q.mu.Lock()
	var dropped []entry
	if q.maxQueued > 0 {
		for len(q.entries) >= q.maxQueued {
			dropped = append(dropped, q.entries[0])
			q.entries = q.entries[1:]
		}
	}
	// Scheduled under the lock so an expiry can never run before the entry
	// it removes is queued.
	stop := q.after(q.duration, func() {
		if q.remove(notificationID) {
			q.metrics.IncExpired()
		}
	})
	q.entries = append(q.entries, entry{n: n, stop: stop})
	size := len(q.entries)
	q.mu.Unlock()

	for _, e := range dropped {
		e.stop()
		q.metrics.IncDropped()
	}
	q.metrics.IncPushed(string(n.Severity))
	q.metrics.SetQueued(size)
	return n
}

// Dismiss removes a notification early. It reports whether it was queued.
func (q *Queue) Dismiss(notificationID uuid.UUID) bool {
	return q.remove(notificationID)
}

func (q *Queue) remove(notificationID uuid.UUID) bool {
	q.mu.Lock()
	idx := -1
	for i, e := range q.entries {
		if e.n.ID == notificationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	e := q.entries[idx]
	q.entries = append(q.entries[:idx:idx], q.entries[idx+1:]...)
	size := len(q.entries)
	q.mu.Unlock()

	e.stop()
	q.metrics.SetQueued(size)
	return true
}

// Active lists visible notifications in push order.
func (q *Queue) Active() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Notification, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.n
	}
	return out
}

// Len is the number of visible notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close cancels every pending expiry and empties the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()
	for _, e := range entries {
		e.stop()
	}
	q.metrics.SetQueued(0)
}
