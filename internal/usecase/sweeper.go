package usecase

import (
	"context"
	"fmt"
	"time"

	"telehealth-core/internal/data/repository"
	"telehealth-core/pkg/metrics"

	"go.uber.org/zap"
)

const sweepBatchSize = 100

// Sweeper auto-completes bookings whose patient never confirmed within ConfirmationWindow.
type Sweeper struct {
	repo     *repository.Repository
	bookings BookingService
	metrics  *metrics.Metrics
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func NewSweeper(repo *repository.Repository, bookings BookingService, m *metrics.Metrics, interval time.Duration, now func() time.Time, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		repo:     repo,
		bookings: bookings,
		metrics:  m,
		interval: interval,
		now:      now,
		log:      log.With(zap.String("worker", "sweeper")),
	}
}

// Start sweeps once immediately and then on every tick. Blocks until ctx is cancelled.
func (w *Sweeper) Start(ctx context.Context) {
	w.log.Info("Starting stale confirmation sweeper", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Sweeper shutting down")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.log.Error("Sweep failed", zap.Error(err))
	}
}

// RunOnce completes every booking whose consultant finished strictly more than
// ConfirmationWindow before now. It returns how many it completed.
func (w *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := w.now().UTC().Add(-ConfirmationWindow)
	completed := 0
	failed := 0

	for {
		ids, err := w.repo.Booking.FindStalePendingConfirmation(ctx, cutoff, sweepBatchSize)
		if err != nil {
			w.metrics.ObserveSweep(completed)
			return completed, fmt.Errorf("find stale confirmations: %w", err)
		}

		for _, id := range ids {
			ok, err := w.bookings.AutoComplete(ctx, id, cutoff)
			if err != nil {
				failed++
				w.log.Error("Failed to auto-complete booking",
					zap.Error(err),
					zap.String("booking_id", id.String()),
				)
				continue
			}
			if ok {
				completed++
			}
		}

		// A failing row would be returned again; leave it for the next tick.
		if len(ids) < sweepBatchSize || failed > 0 {
			break
		}
	}

	w.metrics.ObserveSweep(completed)
	if completed > 0 || failed > 0 {
		w.log.Info("Sweep finished",
			zap.Int("completed", completed),
			zap.Int("failed", failed),
			zap.Time("cutoff", cutoff),
		)
	}
	return completed, nil
}
