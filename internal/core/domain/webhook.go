package domain

import (
	"fmt"
	"net/url"
	"sort"
	"time"
)

type WebhookStatus string

const (
	WebhookStatusActive   WebhookStatus = "Active"
	WebhookStatusDisabled WebhookStatus = "Disabled"
	WebhookStatusError    WebhookStatus = "Error"
)

// Event names a webhook can subscribe to.
const (
	EventProductCreated       = "product.created"
	EventProductUpdated       = "product.updated"
	EventProductDeleted       = "product.deleted"
	EventLifecycleEventAdded  = "lifecycle.event_added"
	EventProductAnchored      = "product.anchored"
	EventOwnershipTransferred = "ownership.transferred"
	EventTokenMinted          = "token.minted"
	EventProposalCreated      = "dao.proposal_created"
	EventVoteCast             = "dao.vote_cast"
	EventWebhookTest          = "webhook.test"
)

var knownEvents = map[string]struct{}{
	EventProductCreated:       {},
	EventProductUpdated:       {},
	EventProductDeleted:       {},
	EventLifecycleEventAdded:  {},
	EventProductAnchored:      {},
	EventOwnershipTransferred: {},
	EventTokenMinted:          {},
	EventProposalCreated:      {},
	EventVoteCast:             {},
}

// KnownEvents returns the subscribable event names in sorted order.
func KnownEvents() []string {
	out := make([]string, 0, len(knownEvents))
	for name := range knownEvents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type Webhook struct {
	ID        string
	URL       string
	Events    []string
	Status    WebhookStatus
	Secret    string
	LastError string
	CreatedAt time.Time
	Version   int64
}

func (w Webhook) Validate() error {
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: webhook url must be an absolute http(s) url", ErrValidation)
	}
	if len(w.Events) == 0 {
		return fmt.Errorf("%w: at least one event is required", ErrValidation)
	}
	for _, ev := range w.Events {
		if _, ok := knownEvents[ev]; !ok {
			return fmt.Errorf("%w: unknown event %q", ErrValidation, ev)
		}
	}
	return nil
}

// Subscribed reports whether the webhook should receive eventType. Test events
// go to every webhook regardless of its subscription set.
func (w Webhook) Subscribed(eventType string) bool {
	if eventType == EventWebhookTest {
		return true
	}
	for _, ev := range w.Events {
		if ev == eventType {
			return true
		}
	}
	return false
}

// NormalizeEvents removes duplicates and sorts, so events behave as a set.
func NormalizeEvents(events []string) []string {
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if _, ok := seen[ev]; ok || ev == "" {
			continue
		}
		seen[ev] = struct{}{}
		out = append(out, ev)
	}
	sort.Strings(out)
	return out
}
