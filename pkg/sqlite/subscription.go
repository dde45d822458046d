// Live query subscriptions with race-free initial delivery.
// See docs/ARCHITECTURE.md § Change Notifier & Subscriptions.
package sqlite

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Subscription binds a fetch function to a table's write stream. Results
// arrive on C; the channel coalesces, so a slow consumer always sees the
// latest state rather than a backlog. Between creation and the first
// delivered result no write to the table is lost: the notifier registration
// happens before the initial fetch, so a write racing with setup leaves a
// pending signal and forces a re-fetch.
type Subscription[T any] struct {
	C <-chan T

	results chan T
	stop    chan struct{}
	once    sync.Once
	unsub   func()
	logger  *zap.Logger
}

// newSubscription registers with the notifier FIRST, then starts the worker
// that performs the initial fetch. This ordering is the system's central
// race-avoidance rule; do not reorder it.
func newSubscription[T any](ctx context.Context, n *notifier, table string,
	fetch func(context.Context) (T, error), logger *zap.Logger) *Subscription[T] {

	signal, unsub := n.subscribe(table)

	s := &Subscription[T]{
		results: make(chan T, 1),
		stop:    make(chan struct{}),
		unsub:   unsub,
		logger:  logger,
	}
	s.C = s.results

	go s.run(ctx, signal, fetch)
	return s
}

// Cancel stops delivery and releases the notifier registration. In-flight
// refreshes may still complete but their results are discarded. Idempotent.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		close(s.stop)
		s.unsub()
	})
}

func (s *Subscription[T]) run(ctx context.Context, signal <-chan struct{}, fetch func(context.Context) (T, error)) {
	s.refresh(ctx, fetch)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			s.Cancel()
			return
		case <-signal:
			s.refresh(ctx, fetch)
		}
	}
}

func (s *Subscription[T]) refresh(ctx context.Context, fetch func(context.Context) (T, error)) {
	result, err := fetch(ctx)
	if err != nil {
		s.logger.Warn("subscription refresh failed", zap.Error(err))
		return
	}
	s.deliver(result)
}

// deliver places a result on the channel, displacing a stale undelivered one.
func (s *Subscription[T]) deliver(result T) {
	for {
		select {
		case <-s.stop:
			return
		case s.results <- result:
			return
		default:
		}
		// Channel full: drop the stale result and retry with the fresh one.
		select {
		case <-s.results:
		default:
		}
	}
}
