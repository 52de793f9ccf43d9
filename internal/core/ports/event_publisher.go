package ports

import (
	"context"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event domain.EventEnvelope) error
}

// Notifier delivers user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// WebhookDeliverer sends one event to one webhook endpoint.
type WebhookDeliverer interface {
	Deliver(ctx context.Context, hook domain.Webhook, event domain.EventEnvelope) error
}
