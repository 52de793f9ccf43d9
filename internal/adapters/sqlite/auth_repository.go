package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/dppportal/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"gorm.io/gorm"
)

type apiKeyModel struct {
	ID        string     `gorm:"column:id;primaryKey"`
	Secret    string     `gorm:"column:secret;not null"`
	TokenHash string     `gorm:"column:token_hash;not null"`
	KeyType   string     `gorm:"column:key_type;not null"`
	Status    string     `gorm:"column:status;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
	LastUsed  *time.Time `gorm:"column:last_used"`
	Version   int64      `gorm:"column:version;not null"`
}

func (apiKeyModel) TableName() string {
	return "api_keys"
}

type APIKeyRepository struct {
	db *gormsqlite.DB
}

func NewAPIKeyRepository(db *gormsqlite.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) List(ctx context.Context) ([]domain.APIKey, error) {
	var models []apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Order(newestFirst).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	keys := make([]domain.APIKey, 0, len(models))
	for _, m := range models {
		keys = append(keys, m.toDomain())
	}
	return keys, nil
}

func (r *APIKeyRepository) Get(ctx context.Context, id string) (domain.APIKey, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *APIKeyRepository) FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error) {
	return r.first(ctx, "token_hash = ?", tokenHash)
}

func (r *APIKeyRepository) first(ctx context.Context, where string, arg any) (domain.APIKey, error) {
	var model apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where(where, arg).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.APIKey{}, domain.ErrNotFound
		}
		return domain.APIKey{}, fmt.Errorf("find api key: %w", err)
	}
	return model.toDomain(), nil
}

func (r *APIKeyRepository) Create(ctx context.Context, key domain.APIKey) (domain.APIKey, error) {
	model := apiKeyModel{
		ID:        key.ID,
		Secret:    key.Key,
		TokenHash: key.TokenHash,
		KeyType:   string(key.Type),
		Status:    string(key.Status),
		CreatedAt: key.CreatedAt.UTC(),
		LastUsed:  key.LastUsed,
		Version:   1,
	}
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.APIKey{}, fmt.Errorf("api key %s: %w", key.ID, domain.ErrAlreadyExists)
		}
		return domain.APIKey{}, fmt.Errorf("create api key: %w", err)
	}
	return model.toDomain(), nil
}

func (r *APIKeyRepository) Update(ctx context.Context, key domain.APIKey) (domain.APIKey, error) {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return compareAndSwap(tx, &apiKeyModel{}, key.ID, key.Version, map[string]any{
			"status":    string(key.Status),
			"last_used": key.LastUsed,
		})
	})
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("update api key: %w", err)
	}
	return r.Get(ctx, key.ID)
}

func (r *APIKeyRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("id = ?", id).Delete(&apiKeyModel{})
		deleted = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete api key: %w", err)
	}
	return deleted, nil
}

func (m apiKeyModel) toDomain() domain.APIKey {
	return domain.APIKey{
		ID:        m.ID,
		Key:       m.Secret,
		TokenHash: m.TokenHash,
		Type:      domain.KeyType(m.KeyType),
		Status:    domain.KeyStatus(m.Status),
		CreatedAt: m.CreatedAt,
		LastUsed:  m.LastUsed,
		Version:   m.Version,
	}
}
