package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RelayConfig tunes the polling loop.
type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Relay moves events from the outbox table to the broker. Delivery is
// at-least-once: a crash between Publish and MarkSent re-sends the batch.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batch     int
}

// NewRelay creates a Relay with defaults of one second and 100 events.
func NewRelay(store Store, publisher Publisher, cfg RelayConfig) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		interval:  cfg.Interval,
		batch:     cfg.BatchSize,
	}
}

// Run polls until ctx is cancelled. Iteration errors are logged and retried
// on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx).Named("outbox")
	lg.Info("Outbox relay started", zap.Duration("interval", r.interval), zap.Int("batch", r.batch))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			lg.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
		}

		// Drain full batches without waiting for the next tick.
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				lg.Warn("Outbox flush failed", zap.Error(err))
				break
			}
			if n < r.batch {
				break
			}
		}
	}
}

// Flush publishes one batch of pending events and marks them sent. It returns
// the number of events published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, errors.Wrap(err, "fetch pending")
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := r.publisher.Publish(ctx, events); err != nil {
		return 0, errors.Wrapf(err, "publish %d events", len(events))
	}

	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := r.store.MarkSent(ctx, ids); err != nil {
		return 0, errors.Wrap(err, "mark sent")
	}
	zctx.From(ctx).Debug("Outbox batch published", zap.Int("count", len(events)))
	return len(events), nil
}
