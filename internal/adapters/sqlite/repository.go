package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/dppportal/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"gorm.io/gorm"
)

// passportModel keeps the full passport as a JSON document next to the
// columns used for filtering and lookups.
type passportModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Status       string    `gorm:"column:status;not null"`
	Category     string    `gorm:"column:category;not null"`
	TokenID      *string   `gorm:"column:token_id"`
	DocumentJSON string    `gorm:"column:document_json;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
	Version      int64     `gorm:"column:version;not null"`
}

func (passportModel) TableName() string {
	return "passports"
}

type PassportRepository struct {
	db *gormsqlite.DB
}

func NewPassportRepository(db *gormsqlite.DB) *PassportRepository {
	return &PassportRepository{db: db}
}

func (r *PassportRepository) Create(ctx context.Context, p domain.Passport) (domain.Passport, error) {
	p.Version = 1
	model, err := toPassportModel(p)
	if err != nil {
		return domain.Passport{}, err
	}
	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Passport{}, fmt.Errorf("passport %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return domain.Passport{}, fmt.Errorf("create passport: %w", err)
	}
	return p, nil
}

func (r *PassportRepository) Get(ctx context.Context, id string) (domain.Passport, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *PassportRepository) FindByTokenID(ctx context.Context, tokenID string) (domain.Passport, error) {
	return r.first(ctx, "token_id = ?", tokenID)
}

func (r *PassportRepository) first(ctx context.Context, where string, arg any) (domain.Passport, error) {
	var model passportModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where(where, arg).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Passport{}, domain.ErrNotFound
		}
		return domain.Passport{}, fmt.Errorf("get passport: %w", err)
	}
	return model.toDomain()
}

func (r *PassportRepository) Update(ctx context.Context, p domain.Passport) (domain.Passport, error) {
	expected := p.Version
	p.Version++
	model, err := toPassportModel(p)
	if err != nil {
		return domain.Passport{}, err
	}
	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return compareAndSwap(tx, &passportModel{}, p.ID, expected, map[string]any{
			"status":        model.Status,
			"category":      model.Category,
			"token_id":      model.TokenID,
			"document_json": model.DocumentJSON,
			"updated_at":    model.UpdatedAt,
		})
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Passport{}, fmt.Errorf("token of passport %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return domain.Passport{}, fmt.Errorf("update passport: %w", err)
	}
	return p, nil
}

func (r *PassportRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("id = ?", id).Delete(&passportModel{})
		deleted = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete passport: %w", err)
	}
	return deleted, nil
}

func (r *PassportRepository) List(ctx context.Context, filter domain.PassportFilter) ([]domain.Passport, error) {
	var models []passportModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&passportModel{})
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.Category != "" {
			query = query.Where("category = ?", filter.Category)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		return query.Order(newestFirst).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list passports: %w", err)
	}

	out := make([]domain.Passport, 0, len(models))
	for _, m := range models {
		p, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func toPassportModel(p domain.Passport) (passportModel, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return passportModel{}, fmt.Errorf("encode passport: %w", err)
	}
	model := passportModel{
		ID:           p.ID,
		Status:       string(p.Status),
		Category:     p.Category,
		DocumentJSON: string(doc),
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
		Version:      p.Version,
	}
	if p.Token != nil {
		tokenID := p.Token.TokenID
		model.TokenID = &tokenID
	}
	return model, nil
}

func (m passportModel) toDomain() (domain.Passport, error) {
	var p domain.Passport
	if err := json.Unmarshal([]byte(m.DocumentJSON), &p); err != nil {
		return domain.Passport{}, fmt.Errorf("decode passport %s: %w", m.ID, err)
	}
	p.Version = m.Version
	return p, nil
}
