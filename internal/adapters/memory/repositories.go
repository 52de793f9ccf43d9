package memory

import (
	"context"
	"slices"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

type APIKeyRepository struct {
	keys versionedList[domain.APIKey]
}

func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{keys: versionedList[domain.APIKey]{
		kind:       "api key",
		id:         func(k domain.APIKey) string { return k.ID },
		version:    func(k domain.APIKey) int64 { return k.Version },
		setVersion: func(k *domain.APIKey, v int64) { k.Version = v },
		clone: func(k domain.APIKey) domain.APIKey {
			if k.LastUsed != nil {
				t := *k.LastUsed
				k.LastUsed = &t
			}
			return k
		},
	}}
}

func (r *APIKeyRepository) List(context.Context) ([]domain.APIKey, error) {
	return r.keys.list(), nil
}

func (r *APIKeyRepository) Get(_ context.Context, id string) (domain.APIKey, error) {
	return r.keys.get(id)
}

func (r *APIKeyRepository) FindByTokenHash(_ context.Context, tokenHash string) (domain.APIKey, error) {
	return r.keys.find(func(k domain.APIKey) bool { return k.TokenHash == tokenHash })
}

func (r *APIKeyRepository) Create(_ context.Context, key domain.APIKey) (domain.APIKey, error) {
	return r.keys.create(key)
}

func (r *APIKeyRepository) Update(_ context.Context, key domain.APIKey) (domain.APIKey, error) {
	return r.keys.update(key)
}

func (r *APIKeyRepository) Delete(_ context.Context, id string) (bool, error) {
	return r.keys.delete(id), nil
}

type WebhookRepository struct {
	hooks versionedList[domain.Webhook]
}

func NewWebhookRepository() *WebhookRepository {
	return &WebhookRepository{hooks: versionedList[domain.Webhook]{
		kind:       "webhook",
		id:         func(w domain.Webhook) string { return w.ID },
		version:    func(w domain.Webhook) int64 { return w.Version },
		setVersion: func(w *domain.Webhook, v int64) { w.Version = v },
		clone: func(w domain.Webhook) domain.Webhook {
			w.Events = slices.Clone(w.Events)
			return w
		},
	}}
}

func (r *WebhookRepository) List(context.Context) ([]domain.Webhook, error) {
	return r.hooks.list(), nil
}

func (r *WebhookRepository) Get(_ context.Context, id string) (domain.Webhook, error) {
	return r.hooks.get(id)
}

func (r *WebhookRepository) Create(_ context.Context, hook domain.Webhook) (domain.Webhook, error) {
	return r.hooks.create(hook)
}

func (r *WebhookRepository) Update(_ context.Context, hook domain.Webhook) (domain.Webhook, error) {
	return r.hooks.update(hook)
}

func (r *WebhookRepository) Delete(_ context.Context, id string) (bool, error) {
	return r.hooks.delete(id), nil
}

type ProposalRepository struct {
	proposals versionedList[domain.Proposal]
}

func NewProposalRepository() *ProposalRepository {
	return &ProposalRepository{proposals: versionedList[domain.Proposal]{
		kind:       "proposal",
		id:         func(p domain.Proposal) string { return p.ID },
		version:    func(p domain.Proposal) int64 { return p.Version },
		setVersion: func(p *domain.Proposal, v int64) { p.Version = v },
		clone:      func(p domain.Proposal) domain.Proposal { return p },
	}}
}

func (r *ProposalRepository) List(context.Context) ([]domain.Proposal, error) {
	return r.proposals.list(), nil
}

func (r *ProposalRepository) Get(_ context.Context, id string) (domain.Proposal, error) {
	return r.proposals.get(id)
}

func (r *ProposalRepository) Create(_ context.Context, p domain.Proposal) (domain.Proposal, error) {
	return r.proposals.create(p)
}

func (r *ProposalRepository) Update(_ context.Context, p domain.Proposal) (domain.Proposal, error) {
	return r.proposals.update(p)
}

func (r *ProposalRepository) Delete(_ context.Context, id string) (bool, error) {
	return r.proposals.delete(id), nil
}
