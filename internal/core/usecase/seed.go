package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
)

// Seeder loads the demo data the portal starts with. Seeding is idempotent:
// records that already exist are left alone.
type Seeder struct {
	Keys      ports.APIKeyRepository
	Webhooks  ports.WebhookRepository
	Proposals ports.ProposalRepository
	Passports ports.PassportRepository
	Entropy   *Entropy
}

func (s Seeder) Seed(ctx context.Context) error {
	if err := s.seedKeys(ctx); err != nil {
		return fmt.Errorf("seed api keys: %w", err)
	}
	if err := s.seedWebhooks(ctx); err != nil {
		return fmt.Errorf("seed webhooks: %w", err)
	}
	if err := s.seedProposals(ctx); err != nil {
		return fmt.Errorf("seed proposals: %w", err)
	}
	if err := s.seedPassports(ctx); err != nil {
		return fmt.Errorf("seed passports: %w", err)
	}
	return nil
}

func (s Seeder) seedKeys(ctx context.Context) error {
	existing, err := s.Keys.List(ctx)
	if err != nil || len(existing) > 0 {
		return err
	}
	created := s.Entropy.Now().Add(-72 * time.Hour)
	for _, key := range []domain.APIKey{
		{ID: "key_demo_prod", Key: "sk_live_demo" + s.Entropy.Suffix(keySecretLength-4), Type: domain.KeyTypeProduction, Status: domain.KeyStatusPendingApproval, CreatedAt: created},
		{ID: "key_demo_sandbox", Key: "sk_sandbox_demo" + s.Entropy.Suffix(keySecretLength-4), Type: domain.KeyTypeSandbox, Status: domain.KeyStatusActive, CreatedAt: created.Add(time.Hour)},
	} {
		key.TokenHash = HashToken(key.Key)
		if _, err := s.Keys.Create(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s Seeder) seedWebhooks(ctx context.Context) error {
	existing, err := s.Webhooks.List(ctx)
	if err != nil || len(existing) > 0 {
		return err
	}
	_, err = s.Webhooks.Create(ctx, domain.Webhook{
		ID:        "wh_demo",
		URL:       "https://example.com/hooks/dpp",
		Events:    domain.NormalizeEvents([]string{domain.EventProductCreated, domain.EventProductUpdated}),
		Status:    domain.WebhookStatusDisabled,
		Secret:    "whsec_" + s.Entropy.Suffix(32),
		CreatedAt: s.Entropy.Now().Add(-48 * time.Hour),
	})
	return err
}

func (s Seeder) seedProposals(ctx context.Context) error {
	existing, err := s.Proposals.List(ctx)
	if err != nil || len(existing) > 0 {
		return err
	}
	base := s.Entropy.Now().Add(-30 * 24 * time.Hour)
	// Created oldest first so the repository lists the newest first.
	for i, p := range []domain.Proposal{
		{ID: "prop_001", Title: "Adopt ESPR battery passport schema v1.2", Description: "Align battery passports with the delegated act data model.", Status: domain.ProposalExecuted, VotesFor: 128400, VotesAgainst: 12050},
		{ID: "prop_002", Title: "Lower anchoring fee for SMEs", Description: "Halve the anchoring fee for manufacturers below 250 employees.", Status: domain.ProposalDefeated, VotesFor: 40210, VotesAgainst: 91800},
		{ID: "prop_003", Title: "Require repairability score on electronics", Description: "Make the repairability score a required attribute for the electronics category.", Status: domain.ProposalVotingActive, VotesFor: 65300, VotesAgainst: 21400},
	} {
		p.CreatedAt = base.Add(time.Duration(i) * 7 * 24 * time.Hour)
		if _, err := s.Proposals.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s Seeder) seedPassports(ctx context.Context) error {
	now := s.Entropy.Now()
	samples := []domain.Passport{
		{
			ID: "BAT-CELL-7", ProductName: "Li-ion cell 21700", Manufacturer: "VoltCell GmbH", Category: "battery",
			Status: domain.PassportActive, BatchNumber: "VC-2024-118", Owner: "VoltCell GmbH",
			Attributes: json.RawMessage(`{"chemistry":"NMC811","capacityMah":5000,"recycledContentPct":12}`),
		},
		{
			ID: "DPP001", ProductName: "EcoCharge Battery Pack", Manufacturer: "GreenTech Industries", Category: "battery",
			Status: domain.PassportActive, BatchNumber: "GT-2024-001", Owner: "GreenTech Industries",
			Attributes: json.RawMessage(`{"capacityKwh":75,"carbonFootprintKgCo2e":4200,"recycledContentPct":18,"supplier":"VoltCell GmbH"}`),
			Components: []string{"BAT-CELL-7"},
			Compliance: []domain.ComplianceCheck{
				{Regulation: "EU Battery Regulation 2023/1542", Status: domain.ComplianceCompliant, CheckedAt: now},
				{Regulation: "REACH", Status: domain.ComplianceCompliant, CheckedAt: now},
				{Regulation: "RoHS", Status: domain.ComplianceCompliant, CheckedAt: now},
			},
		},
		{
			ID: "DPP002", ProductName: "Organic Cotton T-Shirt", Manufacturer: "Fairwear Textiles", Category: "textile",
			Status: domain.PassportDraft, Owner: "Fairwear Textiles",
			Attributes: json.RawMessage(`{"fibre":"100% organic cotton","countryOfOrigin":"PT"}`),
		},
	}
	for _, p := range samples {
		if _, err := s.Passports.Get(ctx, p.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		p.CreatedAt, p.UpdatedAt = now, now
		if p.Compliance == nil {
			p.Compliance = defaultCompliance(now)
		}
		p.Custody = []domain.CustodyEntry{{To: p.Owner, Reason: "initial registration", TransferredAt: now}}
		if _, err := s.Passports.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
