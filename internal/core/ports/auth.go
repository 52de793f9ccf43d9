package ports

import (
	"context"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

// APIKeyRepository stores mock API keys, most recent first.
type APIKeyRepository interface {
	List(ctx context.Context) ([]domain.APIKey, error)
	Get(ctx context.Context, id string) (domain.APIKey, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error)
	Create(ctx context.Context, key domain.APIKey) (domain.APIKey, error)
	// Update replaces the key if its stored version equals key.Version and
	// returns the stored copy with the version incremented.
	Update(ctx context.Context, key domain.APIKey) (domain.APIKey, error)
	Delete(ctx context.Context, id string) (bool, error)
}
