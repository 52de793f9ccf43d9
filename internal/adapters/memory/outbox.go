package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

type outboxEntry struct {
	event     domain.OutboxEvent
	aggregate string
}

type OutboxRepository struct {
	mu     sync.Mutex
	nextID int64
	events []outboxEntry
	now    func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{now: time.Now}
}

func (r *OutboxRepository) Enqueue(_ context.Context, topic string, event domain.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := r.now().UTC()
	r.events = append(r.events, outboxEntry{
		aggregate: event.AggregateType + "/" + event.AggregateID,
		event: domain.OutboxEvent{
			ID:            r.nextID,
			EventID:       event.EventID,
			Topic:         topic,
			PayloadJSON:   payload,
			Status:        domain.OutboxPending,
			NextAttemptAt: now,
			CreatedAt:     now,
		},
	})
	return nil
}

func (r *OutboxRepository) FetchPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	var out []domain.OutboxEvent
	for _, e := range r.events {
		if e.event.Status != domain.OutboxPending || e.event.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, e.event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkDispatched(_ context.Context, id int64) error {
	return r.modify(id, func(e *domain.OutboxEvent) {
		now := r.now().UTC()
		e.Status = domain.OutboxDispatched
		e.DispatchedAt = &now
		e.LastError = ""
	})
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error {
	parsed, err := time.Parse(time.RFC3339Nano, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("parse next attempt: %w", err)
	}
	return r.modify(id, func(e *domain.OutboxEvent) {
		e.Attempts = attempts
		e.NextAttemptAt = parsed
		e.LastError = errMsg
	})
}

func (r *OutboxRepository) MarkDead(_ context.Context, id int64, attempts int, errMsg string) error {
	return r.modify(id, func(e *domain.OutboxEvent) {
		e.Status = domain.OutboxDead
		e.Attempts = attempts
		e.LastError = errMsg
	})
}

func (r *OutboxRepository) History(_ context.Context, aggregateType, aggregateID string, limit int) ([]domain.EventEnvelope, error) {
	if limit <= 0 {
		limit = 100
	}
	key := aggregateType + "/" + aggregateID
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.EventEnvelope{}
	for _, e := range r.events {
		if e.aggregate != key {
			continue
		}
		var env domain.EventEnvelope
		if err := json.Unmarshal(e.event.PayloadJSON, &env); err != nil {
			return nil, fmt.Errorf("decode outbox event %d: %w", e.event.ID, err)
		}
		out = append(out, env)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) modify(id int64, fn func(*domain.OutboxEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].event.ID == id {
			fn(&r.events[i].event)
			return nil
		}
	}
	return fmt.Errorf("outbox event %d: %w", id, domain.ErrNotFound)
}
