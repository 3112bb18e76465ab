package arbiter

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ParcMagScene/Exo/internal/metrics"
	"github.com/ParcMagScene/Exo/internal/session"
)

// DefaultCapacity bounds the waiting list when no capacity is configured.
const DefaultCapacity = 64

// Arbiter is the single hand-off point between connection handlers and the
// pipeline. Submit never blocks; Next suspends the single consumer until an
// utterance is available.
type Arbiter struct {
	queue    []*session.PendingUtterance
	capacity int
	mu       sync.Mutex
	notify   chan struct{}

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an arbiter with the given queue capacity.
func New(logger *slog.Logger, m *metrics.Metrics, capacity int) *Arbiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Arbiter{
		queue:    make([]*session.PendingUtterance, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		logger:   logger,
		metrics:  m,
	}
}

// Submit enqueues an utterance for processing. An utterance from a room
// that already has a queued entry supersedes it: the stale entry is removed
// and the new one takes the current arrival position, so it is processed
// exactly once and never before utterances that arrived earlier from other
// rooms. When the queue is full the utterance is dropped, never blocked on.
func (a *Arbiter) Submit(u *session.PendingUtterance) {
	a.mu.Lock()

	superseded := false
	for i, queued := range a.queue {
		if queued.RoomID == u.RoomID {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			superseded = true
			break
		}
	}

	if !superseded && len(a.queue) >= a.capacity {
		depth := len(a.queue)
		a.mu.Unlock()

		a.metrics.RecordUtteranceDropped()
		a.logger.Warn("Utterance queue full, dropping utterance",
			slog.String("room_id", u.RoomID),
			slog.String("session_id", u.SessionID),
			slog.Int("queue_depth", depth),
		)
		return
	}

	a.queue = append(a.queue, u)
	depth := len(a.queue)
	a.mu.Unlock()

	a.metrics.RecordUtteranceEnqueued()
	a.metrics.SetQueueDepth(depth)
	if superseded {
		a.metrics.RecordUtteranceSuperseded()
		a.logger.Info("Queued utterance superseded by newer capture",
			slog.String("room_id", u.RoomID),
			slog.String("session_id", u.SessionID),
		)
	}

	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// Next returns the next utterance in arrival order, blocking until one is
// available or ctx is done. It must only be called from a single consumer.
func (a *Arbiter) Next(ctx context.Context) (*session.PendingUtterance, error) {
	for {
		a.mu.Lock()
		if len(a.queue) > 0 {
			u := a.queue[0]
			a.queue = a.queue[1:]
			depth := len(a.queue)
			a.mu.Unlock()

			a.metrics.SetQueueDepth(depth)
			if depth > 0 {
				// Coalesced notifications: make sure the consumer wakes
				// again for the remaining entries.
				select {
				case a.notify <- struct{}{}:
				default:
				}
			}
			return u, nil
		}
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-a.notify:
		}
	}
}

// Depth returns the current number of queued utterances.
func (a *Arbiter) Depth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}
