package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
)

type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.log.Info().
		Str("topic", topic).
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("aggregate", event.AggregateType+"/"+event.AggregateID).
		Str("actor", event.Actor).
		Msg("outbox publish")
	return nil
}

// Fanout publishes to every publisher in order and returns the first error
// after all of them ran.
type Fanout []ports.EventPublisher

func (f Fanout) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	var firstErr error
	for _, p := range f {
		if err := p.Publish(ctx, topic, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
