package ports

import (
	"context"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

type OutboxRepository interface {
	Enqueue(ctx context.Context, topic string, event domain.EventEnvelope) error
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
	// History returns the envelopes recorded for one aggregate, oldest first,
	// whatever their delivery status.
	History(ctx context.Context, aggregateType, aggregateID string, limit int) ([]domain.EventEnvelope, error)
}
