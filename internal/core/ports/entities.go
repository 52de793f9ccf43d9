package ports

import (
	"context"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

// WebhookRepository follows the same ordering and versioning rules as
// APIKeyRepository.
type WebhookRepository interface {
	List(ctx context.Context) ([]domain.Webhook, error)
	Get(ctx context.Context, id string) (domain.Webhook, error)
	Create(ctx context.Context, hook domain.Webhook) (domain.Webhook, error)
	Update(ctx context.Context, hook domain.Webhook) (domain.Webhook, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type ProposalRepository interface {
	List(ctx context.Context) ([]domain.Proposal, error)
	Get(ctx context.Context, id string) (domain.Proposal, error)
	Create(ctx context.Context, p domain.Proposal) (domain.Proposal, error)
	Update(ctx context.Context, p domain.Proposal) (domain.Proposal, error)
	Delete(ctx context.Context, id string) (bool, error)
}
