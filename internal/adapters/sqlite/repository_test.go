package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/dppportal/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/migrations"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *gormsqlite.DB {
	t.Helper()
	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "portal.sqlite"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if err := migrations.Up(context.Background(), sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestPassportRepositoryCreateGetAndFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewPassportRepository(openTestDB(t))
	now := time.Now().UTC()

	seed := []domain.Passport{
		{ID: "DPP001", ProductName: "Battery", Category: "battery", Status: domain.PassportActive, CreatedAt: now, UpdatedAt: now},
		{ID: "DPP002", ProductName: "Shirt", Category: "textile", Status: domain.PassportDraft, CreatedAt: now.Add(time.Second), UpdatedAt: now},
		{ID: "DPP003", ProductName: "Cell", Category: "battery", Status: domain.PassportDraft, CreatedAt: now.Add(2 * time.Second), UpdatedAt: now,
			Attributes: json.RawMessage(`{"chemistry":"LFP"}`)},
	}
	for _, p := range seed {
		if _, err := repo.Create(ctx, p); err != nil {
			t.Fatalf("seed %s: %v", p.ID, err)
		}
	}

	got, err := repo.Get(ctx, "DPP003")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 || string(got.Attributes) != `{"chemistry":"LFP"}` {
		t.Fatalf("unexpected passport: %+v", got)
	}

	batteries, err := repo.List(ctx, domain.PassportFilter{Category: "battery"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(batteries) != 2 || batteries[0].ID != "DPP003" || batteries[1].ID != "DPP001" {
		t.Fatalf("expected newest battery first, got %+v", batteries)
	}

	drafts, err := repo.List(ctx, domain.PassportFilter{Status: string(domain.PassportDraft), Limit: 1})
	if err != nil {
		t.Fatalf("list drafts: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(drafts))
	}

	if _, err := repo.Create(ctx, seed[0]); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestPassportRepositoryUpdateDetectsVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewPassportRepository(openTestDB(t))
	now := time.Now().UTC()

	created, err := repo.Create(ctx, domain.Passport{ID: "DPP001", ProductName: "Battery", Status: domain.PassportDraft, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first := created
	first.Token = &domain.Token{TokenID: "abc123", Status: "active"}
	updated, err := repo.Update(ctx, first)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	stale := created
	stale.ProductName = "Stale"
	if _, err := repo.Update(ctx, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	byToken, err := repo.FindByTokenID(ctx, "abc123")
	if err != nil {
		t.Fatalf("find by token: %v", err)
	}
	if byToken.ID != "DPP001" || byToken.Version != 2 {
		t.Fatalf("unexpected passport by token: %+v", byToken)
	}

	missing := created
	missing.ID = "DPP404"
	if _, err := repo.Update(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAPIKeyRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewAPIKeyRepository(openTestDB(t))
	now := time.Now().UTC()

	for i, id := range []string{"key_a", "key_b"} {
		_, err := repo.Create(ctx, domain.APIKey{
			ID:        id,
			Key:       "sk_sandbox_" + id,
			TokenHash: "hash-" + id,
			Type:      domain.KeyTypeSandbox,
			Status:    domain.KeyStatusActive,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	keys, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0].ID != "key_b" {
		t.Fatalf("expected newest first, got %+v", keys)
	}

	found, err := repo.FindByTokenHash(ctx, "hash-key_a")
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	found.Status = domain.KeyStatusRevoked
	revoked, err := repo.Update(ctx, found)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if revoked.Status != domain.KeyStatusRevoked || revoked.Version != 2 {
		t.Fatalf("unexpected updated key: %+v", revoked)
	}

	deleted, err := repo.Delete(ctx, "key_a")
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = repo.Delete(ctx, "key_a")
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}

func TestWebhookAndProposalRepositories(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	hooks := NewWebhookRepository(db)
	proposals := NewProposalRepository(db)
	now := time.Now().UTC()

	hook, err := hooks.Create(ctx, domain.Webhook{
		ID:        "wh_1",
		URL:       "https://example.com/hook",
		Events:    []string{domain.EventProductCreated, domain.EventTokenMinted},
		Status:    domain.WebhookStatusActive,
		Secret:    "whsec_x",
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	hook.Status = domain.WebhookStatusError
	hook.LastError = "connection refused"
	hook, err = hooks.Update(ctx, hook)
	if err != nil {
		t.Fatalf("update webhook: %v", err)
	}
	if len(hook.Events) != 2 || hook.LastError != "connection refused" || hook.Version != 2 {
		t.Fatalf("unexpected webhook: %+v", hook)
	}

	p, err := proposals.Create(ctx, domain.Proposal{ID: "prop_1", Title: "T", Status: domain.ProposalVotingActive, CreatedAt: now})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	p.VotesFor = 42
	p, err = proposals.Update(ctx, p)
	if err != nil {
		t.Fatalf("update proposal: %v", err)
	}
	if p.VotesFor != 42 || p.Version != 2 {
		t.Fatalf("unexpected proposal: %+v", p)
	}
	p.Version = 1
	if _, err := proposals.Update(ctx, p); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestOutboxRepositoryLifecycleAndHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository(openTestDB(t))

	for i, typ := range []string{domain.EventProductCreated, domain.EventProductAnchored} {
		err := repo.Enqueue(ctx, typ, domain.EventEnvelope{
			EventID:       "evt-" + typ,
			EventType:     typ,
			SchemaVersion: domain.CurrentEventSchemaVersion,
			AggregateType: "passport",
			AggregateID:   "DPP001",
			OccurredAt:    time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("enqueue %s: %v", typ, err)
		}
	}

	pending, err := repo.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	if err := repo.MarkDispatched(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark dispatched: %v", err)
	}
	next := time.Now().UTC().Add(time.Hour).Format(time.RFC3339Nano)
	if err := repo.MarkFailed(ctx, pending[1].ID, 1, next, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, err = repo.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("fetch pending after marks: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected nothing due, got %d", len(pending))
	}

	history, err := repo.History(ctx, "passport", "DPP001", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].EventType != domain.EventProductCreated {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "migrate.sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		_ = os.Remove(dbPath)
	})

	if err := migrations.Up(ctx, db); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
