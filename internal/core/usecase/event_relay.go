package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
)

const (
	maxRelayAttempts     = 5
	firstRedeliveryDelay = 2 * time.Second
	maxRedeliveryDelay   = 5 * time.Minute
)

// EventRelay moves queued passport and DAO events from the outbox to the
// webhook fan-out. An event that keeps failing is abandoned after
// maxRelayAttempts and reported on the portal notification feed.
type EventRelay struct {
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	notifier  ports.Notifier
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	relayed   atomic.Int64
	retried   atomic.Int64
	abandoned atomic.Int64
}

type EventRelayMetrics struct {
	Relayed   int64
	Retried   int64
	Abandoned int64
}

// NewEventRelay builds a relay. notifier may be nil.
func NewEventRelay(outbox ports.OutboxRepository, publisher ports.EventPublisher, notifier ports.Notifier, interval time.Duration, batchSize int, logger zerolog.Logger) *EventRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &EventRelay{
		outbox:    outbox,
		publisher: publisher,
		notifier:  notifier,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *EventRelay) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	go r.run(ctx)
}

func (r *EventRelay) Close() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *EventRelay) run(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.relayPending(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("relay pending events")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// relayPending publishes one batch of due events. Only outbox bookkeeping
// errors abort the batch; publish failures are recorded per event.
func (r *EventRelay) relayPending(ctx context.Context) error {
	pending, err := r.outbox.FetchPending(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("fetch pending events: %w", err)
	}

	for _, queued := range pending {
		var envelope domain.EventEnvelope
		if err := json.Unmarshal(queued.PayloadJSON, &envelope); err != nil {
			envelope = domain.EventEnvelope{EventID: queued.EventID, EventType: queued.Topic}
			if err := r.recordFailure(ctx, queued, envelope, fmt.Sprintf("decode payload: %v", err)); err != nil {
				return err
			}
			continue
		}

		if err := r.publisher.Publish(ctx, queued.Topic, envelope); err != nil {
			r.logger.Warn().Err(err).
				Int64("outbox_id", queued.ID).
				Str("event_type", envelope.EventType).
				Str("aggregate_id", envelope.AggregateID).
				Int("attempt", queued.Attempts+1).
				Msg("relay event")
			if err := r.recordFailure(ctx, queued, envelope, err.Error()); err != nil {
				return err
			}
			continue
		}

		if err := r.outbox.MarkDispatched(ctx, queued.ID); err != nil {
			return fmt.Errorf("mark event %d relayed: %w", queued.ID, err)
		}
		r.relayed.Add(1)
	}
	return nil
}

func (r *EventRelay) recordFailure(ctx context.Context, queued domain.OutboxEvent, envelope domain.EventEnvelope, errMsg string) error {
	attempts := queued.Attempts + 1
	if attempts < maxRelayAttempts {
		next := r.now().UTC().Add(redeliveryDelay(attempts)).Format(time.RFC3339Nano)
		if err := r.outbox.MarkFailed(ctx, queued.ID, attempts, next, errMsg); err != nil {
			return fmt.Errorf("reschedule event %d: %w", queued.ID, err)
		}
		r.retried.Add(1)
		return nil
	}

	if err := r.outbox.MarkDead(ctx, queued.ID, attempts, errMsg); err != nil {
		return fmt.Errorf("abandon event %d: %w", queued.ID, err)
	}
	r.abandoned.Add(1)
	r.logger.Error().Int64("outbox_id", queued.ID).Str("event_type", envelope.EventType).Str("error", errMsg).Msg("event abandoned")
	if r.notifier != nil {
		subject := envelope.EventType
		if envelope.AggregateID != "" {
			subject += " for " + envelope.AggregateID
		}
		r.notifier.Notify(ctx, domain.Notification{
			Level:   domain.NotifyError,
			Title:   "Webhook delivery abandoned",
			Message: fmt.Sprintf("%s gave up after %d attempts: %s", subject, attempts, errMsg),
			At:      r.now(),
		})
	}
	return nil
}

func (r *EventRelay) Metrics() EventRelayMetrics {
	return EventRelayMetrics{
		Relayed:   r.relayed.Load(),
		Retried:   r.retried.Load(),
		Abandoned: r.abandoned.Load(),
	}
}

// redeliveryDelay doubles from two seconds per failed attempt, capped at five
// minutes.
func redeliveryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	schedule := retry.WithCappedDuration(maxRedeliveryDelay, retry.NewExponential(firstRedeliveryDelay))
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay, _ = schedule.Next()
	}
	return delay
}
