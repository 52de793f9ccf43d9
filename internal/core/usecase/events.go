package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
)

// EventRecorder builds event envelopes and queues them in the outbox. A nil
// recorder drops events.
type EventRecorder struct {
	outbox  ports.OutboxRepository
	entropy *Entropy
	env     domain.Environment
	logger  zerolog.Logger
}

func NewEventRecorder(outbox ports.OutboxRepository, entropy *Entropy, env domain.Environment, logger zerolog.Logger) *EventRecorder {
	return &EventRecorder{outbox: outbox, entropy: entropy, env: env, logger: logger}
}

// Record never fails the caller; an enqueue error is logged and the event is
// lost.
func (r *EventRecorder) Record(ctx context.Context, eventType, aggregateType, aggregateID string, payload any) {
	if r == nil || r.outbox == nil {
		return
	}
	event := domain.EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: domain.CurrentEventSchemaVersion,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    r.entropy.Now(),
		Actor:         actorFromContext(ctx),
		Environment:   r.env,
		Payload:       payloadJSON(payload),
	}
	if err := r.outbox.Enqueue(ctx, eventType, event); err != nil {
		r.logger.Error().Err(err).Str("event_type", eventType).Str("aggregate_id", aggregateID).Msg("enqueue outbox event")
	}
}

type actorKey struct{}

// WithActor attaches the id of the API key acting on the mock API.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "portal"
}
