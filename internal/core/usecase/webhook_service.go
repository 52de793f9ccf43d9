package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
)

// WebhookService manages webhook registrations and fans published events out
// to the subscribed, enabled webhooks. It implements ports.EventPublisher.
type WebhookService struct {
	repo      ports.WebhookRepository
	deliverer ports.WebhookDeliverer
	entropy   *Entropy
	logger    zerolog.Logger
}

func NewWebhookService(repo ports.WebhookRepository, deliverer ports.WebhookDeliverer, entropy *Entropy, logger zerolog.Logger) *WebhookService {
	return &WebhookService{repo: repo, deliverer: deliverer, entropy: entropy, logger: logger}
}

func (s *WebhookService) Create(ctx context.Context, url string, events []string) (domain.Webhook, error) {
	hook := domain.Webhook{
		ID:        s.entropy.NewID("wh"),
		URL:       strings.TrimSpace(url),
		Events:    domain.NormalizeEvents(events),
		Status:    domain.WebhookStatusActive,
		Secret:    "whsec_" + s.entropy.Suffix(32),
		CreatedAt: s.entropy.Now(),
	}
	if err := hook.Validate(); err != nil {
		return domain.Webhook{}, err
	}
	return s.repo.Create(ctx, hook)
}

func (s *WebhookService) List(ctx context.Context) ([]domain.Webhook, error) {
	return s.repo.List(ctx)
}

func (s *WebhookService) Delete(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}

// SetEnabled toggles between Active and Disabled. Enabling a webhook in Error
// clears the error.
func (s *WebhookService) SetEnabled(ctx context.Context, id string, enabled bool) (domain.Webhook, error) {
	return retryOnConflict(ctx, func() (domain.Webhook, error) {
		hook, err := s.repo.Get(ctx, id)
		if err != nil {
			return domain.Webhook{}, err
		}
		if enabled {
			hook.Status = domain.WebhookStatusActive
			hook.LastError = ""
		} else {
			hook.Status = domain.WebhookStatusDisabled
		}
		return s.repo.Update(ctx, hook)
	})
}

// SendTest delivers a webhook.test event to one webhook regardless of its
// status and records the outcome.
func (s *WebhookService) SendTest(ctx context.Context, id string) (domain.Webhook, error) {
	hook, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Webhook{}, err
	}
	payload, err := json.Marshal(map[string]any{"webhookId": hook.ID, "message": "test delivery from the DPP developer portal"})
	if err != nil {
		return domain.Webhook{}, fmt.Errorf("encode test payload: %w", err)
	}
	event := domain.EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     domain.EventWebhookTest,
		SchemaVersion: domain.CurrentEventSchemaVersion,
		AggregateType: "webhook",
		AggregateID:   hook.ID,
		OccurredAt:    s.entropy.Now(),
		Actor:         "portal",
		Payload:       payload,
	}
	deliverErr := s.deliverer.Deliver(ctx, hook, event)
	updated, err := s.recordDelivery(ctx, hook.ID, deliverErr)
	if err != nil {
		return domain.Webhook{}, err
	}
	if deliverErr != nil {
		return updated, fmt.Errorf("deliver test event: %w", deliverErr)
	}
	return updated, nil
}

// Publish delivers event to every Active webhook subscribed to its type. The
// first delivery error is returned after all webhooks were attempted, so the
// outbox retries the event.
func (s *WebhookService) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	hooks, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}

	var firstErr error
	for _, hook := range hooks {
		if hook.Status != domain.WebhookStatusActive || !hook.Subscribed(event.EventType) {
			continue
		}
		deliverErr := s.deliverer.Deliver(ctx, hook, event)
		if deliverErr != nil {
			s.logger.Warn().Err(deliverErr).Str("webhook_id", hook.ID).Str("topic", topic).Msg("webhook delivery failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("webhook %s: %w", hook.ID, deliverErr)
			}
			if _, err := s.recordDelivery(ctx, hook.ID, deliverErr); err != nil && !errors.Is(err, domain.ErrNotFound) {
				s.logger.Error().Err(err).Str("webhook_id", hook.ID).Msg("record webhook failure")
			}
		}
	}
	return firstErr
}

func (s *WebhookService) recordDelivery(ctx context.Context, id string, deliverErr error) (domain.Webhook, error) {
	return retryOnConflict(ctx, func() (domain.Webhook, error) {
		hook, err := s.repo.Get(ctx, id)
		if err != nil {
			return domain.Webhook{}, err
		}
		switch {
		case deliverErr != nil:
			hook.Status = domain.WebhookStatusError
			hook.LastError = deliverErr.Error()
		case hook.Status == domain.WebhookStatusError:
			hook.Status = domain.WebhookStatusActive
			hook.LastError = ""
		default:
			return hook, nil
		}
		return s.repo.Update(ctx, hook)
	})
}
