package fanout

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/repository"
)

// DueSweeper polls the database for scheduled notifications whose send_at
// has passed and runs fan-out for them.
//
// In production the external scheduler fires the trigger endpoint directly
// and this sweep only catches entries that service lost; in offline mode it
// is the sole firing mechanism.
type DueSweeper struct {
	notifications repository.NotificationRepository
	runner        *Runner
	interval      time.Duration
	logger        *zap.Logger

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

func NewDueSweeper(
	notifications repository.NotificationRepository,
	runner *Runner,
	interval time.Duration,
	logger *zap.Logger,
) *DueSweeper {
	return &DueSweeper{
		notifications: notifications,
		runner:        runner,
		interval:      interval,
		logger:        logger,
		active:        make(map[string]struct{}),
	}
}

// Run ticks every interval and fires fan-out for any due notifications.
// Stops cleanly when ctx is cancelled.
func (s *DueSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("due sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("due sweeper stopping")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *DueSweeper) poll(ctx context.Context) {
	due, err := s.notifications.FindDue(ctx, 100)
	if err != nil {
		s.logger.Error("due scan failed", zap.Error(err))
		return
	}

	for _, n := range due {
		// One fan-out per notification at a time; Process itself is
		// idempotent, this just avoids pointless duplicate goroutines.
		s.mu.Lock()
		if _, running := s.active[n.ID]; running {
			s.mu.Unlock()
			continue
		}
		s.active[n.ID] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func(id string) {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.active, id)
				s.mu.Unlock()
			}()
			if err := s.runner.Process(ctx, id); err != nil && ctx.Err() == nil {
				s.logger.Error("fan-out failed", zap.String("notification_id", id), zap.Error(err))
			}
		}(n.ID)
	}

	if len(due) > 0 {
		s.logger.Info("fired due notifications", zap.Int("count", len(due)))
	}
}
