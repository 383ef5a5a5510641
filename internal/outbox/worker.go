// Package outbox delivers queued chat messages with retries.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
	"github.com/capitalize-ai/rail-support-bot/pkg/metrics"
)

// ErrEmpty is returned by RunOnce when no item is due.
var ErrEmpty = errors.New("outbox empty")

// Backoff between delivery attempts doubles from initialBackoff up to
// maxBackoff.
const (
	initialBackoff = 5 * time.Second
	maxBackoff     = 5 * time.Minute
)

// Queue is the persisted outbox.
type Queue interface {
	ClaimOutbox(ctx context.Context, now time.Time) (*model.OutboxItem, error)
	MarkOutboxSent(ctx context.Context, id string, at time.Time) error
	RetryOutbox(ctx context.Context, id, lastErr string, next time.Time) error
	FailOutbox(ctx context.Context, id, lastErr string) error
}

// Sender delivers one message to a chat.
type Sender interface {
	Send(ctx context.Context, item *model.OutboxItem) error
}

// Worker drains the outbox through a Sender.
type Worker struct {
	queue       Queue
	sender      Sender
	logger      *logger.Logger
	maxAttempts int
	interval    time.Duration
	now         func() time.Time
}

// NewWorker creates a delivery worker. Items are failed for good after
// maxAttempts sends; interval is the idle poll period of Run.
func NewWorker(queue Queue, sender Sender, maxAttempts int, interval time.Duration, log *logger.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{
		queue:       queue,
		sender:      sender,
		logger:      log.Component("outbox"),
		maxAttempts: maxAttempts,
		interval:    interval,
		now:         time.Now,
	}
}

// Backoff returns the delay before the next attempt after attempts
// failed sends.
func Backoff(attempts int) time.Duration {
	d := initialBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// RunOnce claims and delivers one due item. It returns ErrEmpty when there
// is nothing to do. A failed send is not an error of RunOnce; the item is
// rescheduled or failed.
func (w *Worker) RunOnce(ctx context.Context) error {
	item, err := w.queue.ClaimOutbox(ctx, w.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to claim outbox item: %w", err)
	}
	if item == nil {
		return ErrEmpty
	}

	log := w.logger.With(
		zap.String("outbox_id", item.ID),
		zap.String("kind", string(item.Kind)),
		zap.Int("attempt", item.Attempts),
	)

	sendErr := w.sender.Send(ctx, item)
	if sendErr == nil {
		metrics.OutboxDeliveries.WithLabelValues(string(item.Kind), string(model.OutboxSent)).Inc()
		if err := w.queue.MarkOutboxSent(ctx, item.ID, w.now().UTC()); err != nil {
			return fmt.Errorf("failed to mark outbox item sent: %w", err)
		}
		log.Debug("outbox item sent")
		return nil
	}

	if item.Attempts >= w.maxAttempts {
		metrics.OutboxDeliveries.WithLabelValues(string(item.Kind), string(model.OutboxFailed)).Inc()
		log.Error("outbox item failed", zap.Error(sendErr))
		if err := w.queue.FailOutbox(ctx, item.ID, sendErr.Error()); err != nil {
			return fmt.Errorf("failed to mark outbox item failed: %w", err)
		}
		return nil
	}

	next := w.now().UTC().Add(Backoff(item.Attempts))
	metrics.OutboxDeliveries.WithLabelValues(string(item.Kind), "retry").Inc()
	log.Warn("outbox send failed, will retry", zap.Error(sendErr), zap.Time("next_attempt_at", next))
	if err := w.queue.RetryOutbox(ctx, item.ID, sendErr.Error(), next); err != nil {
		return fmt.Errorf("failed to reschedule outbox item: %w", err)
	}
	return nil
}

// Drain delivers due items until the queue is empty and returns how many
// were processed.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		err := w.RunOnce(ctx)
		if errors.Is(err, ErrEmpty) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Run drains the outbox every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started", zap.Duration("interval", w.interval))
	for {
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("outbox drain failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}
