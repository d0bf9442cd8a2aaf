package fanout

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/mailer"
	"github.com/notifyhub/broadcast/internal/queue"
	"github.com/notifyhub/broadcast/internal/ratelimiter"
	"github.com/notifyhub/broadcast/internal/repository"
	"github.com/notifyhub/broadcast/internal/suppression"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnSent       func(latency time.Duration)
	OnFailed     func()
	OnSuppressed func()
}

// Pool manages the lifecycle of all send workers.
// All workers share the same dispatch queue and the same send limiter, so
// the provider rate cap holds across the whole pool.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

func NewPool(
	size int,
	q *queue.DispatchQueue,
	notifications repository.NotificationRepository,
	deliveries repository.DeliveryRepository,
	mail mailer.Mailer,
	suppressions suppression.Store,
	limiter *ratelimiter.SendLimiter,
	maxAttempts int,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = NewWorker(
			i, q, notifications, deliveries, mail, suppressions, limiter,
			maxAttempts,
			logger.With(zap.Int("worker_id", i)),
			hooks.OnSent,
			hooks.OnFailed,
			hooks.OnSuppressed,
		)
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines.
// The provided ctx is forwarded to every worker; cancelling it
// triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context to ensure in-flight sends finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
