package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

// FallbackSandboxKey is sent by the dispatcher when no Active key matches the
// environment. The mock API accepts it as a sandbox key that is never stored.
const (
	FallbackSandboxKey   = "sk_sandbox_fallback_key"
	FallbackSandboxKeyID = "key_sandbox_fallback"
)

const keySecretLength = 24

// APIKeyService manages mock API keys and authenticates mock API requests.
type APIKeyService struct {
	repo    ports.APIKeyRepository
	entropy *Entropy
	logger  zerolog.Logger
}

func NewAPIKeyService(repo ports.APIKeyRepository, entropy *Entropy, logger zerolog.Logger) *APIKeyService {
	return &APIKeyService{repo: repo, entropy: entropy, logger: logger}
}

// Generate creates a key of the given type. Sandbox keys are usable at once;
// production keys wait for approval.
func (s *APIKeyService) Generate(ctx context.Context, keyType domain.KeyType) (domain.APIKey, error) {
	if _, err := domain.ParseKeyType(string(keyType)); err != nil {
		return domain.APIKey{}, err
	}

	prefix, status := "sk_sandbox_", domain.KeyStatusActive
	if keyType == domain.KeyTypeProduction {
		prefix, status = "sk_live_", domain.KeyStatusPendingApproval
	}
	secret := prefix + s.entropy.Suffix(keySecretLength)

	return s.repo.Create(ctx, domain.APIKey{
		ID:        s.entropy.NewID("key"),
		Key:       secret,
		TokenHash: HashToken(secret),
		Type:      keyType,
		Status:    status,
		CreatedAt: s.entropy.Now(),
	})
}

// Import stores a caller-provided secret, used for bootstrap keys.
func (s *APIKeyService) Import(ctx context.Context, secret string, keyType domain.KeyType) (domain.APIKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return domain.APIKey{}, fmt.Errorf("%w: api key secret is required", domain.ErrValidation)
	}
	if existing, err := s.repo.FindByTokenHash(ctx, HashToken(secret)); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.APIKey{}, err
	}
	return s.repo.Create(ctx, domain.APIKey{
		ID:        s.entropy.NewID("key"),
		Key:       secret,
		TokenHash: HashToken(secret),
		Type:      keyType,
		Status:    domain.KeyStatusActive,
		CreatedAt: s.entropy.Now(),
	})
}

func (s *APIKeyService) List(ctx context.Context) ([]domain.APIKey, error) {
	return s.repo.List(ctx)
}

func (s *APIKeyService) Delete(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}

func (s *APIKeyService) Approve(ctx context.Context, id string) (domain.APIKey, error) {
	return s.setStatus(ctx, id, domain.KeyStatusActive)
}

func (s *APIKeyService) Revoke(ctx context.Context, id string) (domain.APIKey, error) {
	return s.setStatus(ctx, id, domain.KeyStatusRevoked)
}

func (s *APIKeyService) setStatus(ctx context.Context, id string, status domain.KeyStatus) (domain.APIKey, error) {
	return retryOnConflict(ctx, func() (domain.APIKey, error) {
		key, err := s.repo.Get(ctx, id)
		if err != nil {
			return domain.APIKey{}, err
		}
		if key.Status == domain.KeyStatusRevoked && status != domain.KeyStatusRevoked {
			return domain.APIKey{}, fmt.Errorf("%w: revoked keys cannot be reactivated", domain.ErrValidation)
		}
		key.Status = status
		return s.repo.Update(ctx, key)
	})
}

// BearerFor picks the first Active key of env's type in repository order. It
// never fails: an empty or unreadable key list yields FallbackSandboxKey.
func (s *APIKeyService) BearerFor(ctx context.Context, env domain.Environment) string {
	keys, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("list api keys for bearer lookup")
		return FallbackSandboxKey
	}
	for _, key := range keys {
		if key.Usable(env) {
			return key.Key
		}
	}
	return FallbackSandboxKey
}

// Authenticate resolves a bearer token to an Active key and stamps LastUsed.
func (s *APIKeyService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	if token == FallbackSandboxKey {
		return fallbackSandboxKey(), nil
	}

	apiKey, err := s.repo.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if apiKey.Status != domain.KeyStatusActive {
		return domain.APIKey{}, ErrUnauthorized
	}

	now := s.entropy.Now()
	apiKey.LastUsed = &now
	updated, err := s.repo.Update(ctx, apiKey)
	if err != nil {
		// Lost the race with a concurrent request that stamped the key first.
		s.logger.Debug().Err(err).Str("key_id", apiKey.ID).Msg("stamp last used")
		return apiKey, nil
	}
	return updated, nil
}

func fallbackSandboxKey() domain.APIKey {
	return domain.APIKey{
		ID:        FallbackSandboxKeyID,
		Key:       FallbackSandboxKey,
		TokenHash: HashToken(FallbackSandboxKey),
		Type:      domain.KeyTypeSandbox,
		Status:    domain.KeyStatusActive,
	}
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// MaskKey hides all but the prefix and last four characters of a secret.
func MaskKey(secret string) string {
	if len(secret) <= 12 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:8] + strings.Repeat("*", len(secret)-12) + secret[len(secret)-4:]
}

const (
	maxUpdateAttempts = 3
	conflictPause     = 5 * time.Millisecond
)

// retryOnConflict reruns a read-modify-write while the repository reports a
// version conflict, up to maxUpdateAttempts in total.
func retryOnConflict[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var out T
	backoff := retry.WithMaxRetries(maxUpdateAttempts-1, retry.NewConstant(conflictPause))
	err := retry.Do(ctx, backoff, func(context.Context) error {
		var err error
		out, err = fn()
		if errors.Is(err, domain.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	return out, err
}
