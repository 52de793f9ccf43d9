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

type webhookModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	URL        string    `gorm:"column:url;not null"`
	EventsJSON string    `gorm:"column:events_json;not null"`
	Status     string    `gorm:"column:status;not null"`
	Secret     string    `gorm:"column:secret;not null"`
	LastError  string    `gorm:"column:last_error;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	Version    int64     `gorm:"column:version;not null"`
}

func (webhookModel) TableName() string {
	return "webhooks"
}

type WebhookRepository struct {
	db *gormsqlite.DB
}

func NewWebhookRepository(db *gormsqlite.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) List(ctx context.Context) ([]domain.Webhook, error) {
	var models []webhookModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Order(newestFirst).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	hooks := make([]domain.Webhook, 0, len(models))
	for _, m := range models {
		hook, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, hook)
	}
	return hooks, nil
}

func (r *WebhookRepository) Get(ctx context.Context, id string) (domain.Webhook, error) {
	var model webhookModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Webhook{}, domain.ErrNotFound
		}
		return domain.Webhook{}, fmt.Errorf("get webhook: %w", err)
	}
	return model.toDomain()
}

func (r *WebhookRepository) Create(ctx context.Context, hook domain.Webhook) (domain.Webhook, error) {
	events, err := json.Marshal(hook.Events)
	if err != nil {
		return domain.Webhook{}, fmt.Errorf("encode webhook events: %w", err)
	}
	model := webhookModel{
		ID:         hook.ID,
		URL:        hook.URL,
		EventsJSON: string(events),
		Status:     string(hook.Status),
		Secret:     hook.Secret,
		LastError:  hook.LastError,
		CreatedAt:  hook.CreatedAt.UTC(),
		Version:    1,
	}
	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Webhook{}, fmt.Errorf("webhook %s: %w", hook.ID, domain.ErrAlreadyExists)
		}
		return domain.Webhook{}, fmt.Errorf("create webhook: %w", err)
	}
	return model.toDomain()
}

func (r *WebhookRepository) Update(ctx context.Context, hook domain.Webhook) (domain.Webhook, error) {
	events, err := json.Marshal(hook.Events)
	if err != nil {
		return domain.Webhook{}, fmt.Errorf("encode webhook events: %w", err)
	}
	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return compareAndSwap(tx, &webhookModel{}, hook.ID, hook.Version, map[string]any{
			"url":         hook.URL,
			"events_json": string(events),
			"status":      string(hook.Status),
			"last_error":  hook.LastError,
		})
	})
	if err != nil {
		return domain.Webhook{}, fmt.Errorf("update webhook: %w", err)
	}
	return r.Get(ctx, hook.ID)
}

func (r *WebhookRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("id = ?", id).Delete(&webhookModel{})
		deleted = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete webhook: %w", err)
	}
	return deleted, nil
}

func (m webhookModel) toDomain() (domain.Webhook, error) {
	var events []string
	if err := json.Unmarshal([]byte(m.EventsJSON), &events); err != nil {
		return domain.Webhook{}, fmt.Errorf("decode events of webhook %s: %w", m.ID, err)
	}
	return domain.Webhook{
		ID:        m.ID,
		URL:       m.URL,
		Events:    events,
		Status:    domain.WebhookStatus(m.Status),
		Secret:    m.Secret,
		LastError: m.LastError,
		CreatedAt: m.CreatedAt,
		Version:   m.Version,
	}, nil
}

type proposalModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Title        string    `gorm:"column:title;not null"`
	Description  string    `gorm:"column:description;not null"`
	Status       string    `gorm:"column:status;not null"`
	VotesFor     int64     `gorm:"column:votes_for;not null"`
	VotesAgainst int64     `gorm:"column:votes_against;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	Version      int64     `gorm:"column:version;not null"`
}

func (proposalModel) TableName() string {
	return "dao_proposals"
}

type ProposalRepository struct {
	db *gormsqlite.DB
}

func NewProposalRepository(db *gormsqlite.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func (r *ProposalRepository) List(ctx context.Context) ([]domain.Proposal, error) {
	var models []proposalModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Order(newestFirst).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	out := make([]domain.Proposal, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *ProposalRepository) Get(ctx context.Context, id string) (domain.Proposal, error) {
	var model proposalModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Proposal{}, domain.ErrNotFound
		}
		return domain.Proposal{}, fmt.Errorf("get proposal: %w", err)
	}
	return model.toDomain(), nil
}

func (r *ProposalRepository) Create(ctx context.Context, p domain.Proposal) (domain.Proposal, error) {
	model := proposalModel{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Status:       string(p.Status),
		VotesFor:     p.VotesFor,
		VotesAgainst: p.VotesAgainst,
		CreatedAt:    p.CreatedAt.UTC(),
		Version:      1,
	}
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Proposal{}, fmt.Errorf("proposal %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return domain.Proposal{}, fmt.Errorf("create proposal: %w", err)
	}
	return model.toDomain(), nil
}

func (r *ProposalRepository) Update(ctx context.Context, p domain.Proposal) (domain.Proposal, error) {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return compareAndSwap(tx, &proposalModel{}, p.ID, p.Version, map[string]any{
			"title":         p.Title,
			"description":   p.Description,
			"status":        string(p.Status),
			"votes_for":     p.VotesFor,
			"votes_against": p.VotesAgainst,
		})
	})
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("update proposal: %w", err)
	}
	return r.Get(ctx, p.ID)
}

func (r *ProposalRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("id = ?", id).Delete(&proposalModel{})
		deleted = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete proposal: %w", err)
	}
	return deleted, nil
}

func (m proposalModel) toDomain() domain.Proposal {
	return domain.Proposal{
		ID:           m.ID,
		Title:        m.Title,
		Description:  m.Description,
		Status:       domain.ProposalStatus(m.Status),
		VotesFor:     m.VotesFor,
		VotesAgainst: m.VotesAgainst,
		CreatedAt:    m.CreatedAt,
		Version:      m.Version,
	}
}
