package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/dppportal/internal/adapters/memory"
	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

func TestSeederIsIdempotent(t *testing.T) {
	s := Seeder{
		Keys:      memory.NewAPIKeyRepository(),
		Webhooks:  memory.NewWebhookRepository(),
		Proposals: memory.NewProposalRepository(),
		Passports: memory.NewPassportRepository(),
		Entropy:   newTestEntropy(8),
	}
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))
	require.NoError(t, s.Seed(ctx))

	keys, err := s.Keys.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "key_demo_sandbox", keys[0].ID)
	assert.Equal(t, domain.KeyStatusActive, keys[0].Status)
	assert.Equal(t, domain.KeyStatusPendingApproval, keys[1].Status)
	assert.Equal(t, HashToken(keys[0].Key), keys[0].TokenHash)

	hooks, err := s.Webhooks.List(ctx)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, domain.WebhookStatusDisabled, hooks[0].Status)

	proposals, err := s.Proposals.List(ctx)
	require.NoError(t, err)
	assert.Len(t, proposals, 3)

	passports, err := s.Passports.List(ctx, domain.PassportFilter{})
	require.NoError(t, err)
	assert.Len(t, passports, 3)
}

func TestSeederSkipsPopulatedCollections(t *testing.T) {
	keys := memory.NewAPIKeyRepository()
	ctx := context.Background()
	_, err := keys.Create(ctx, domain.APIKey{ID: "key_mine", Key: "sk_sandbox_mine", TokenHash: HashToken("sk_sandbox_mine"), Type: domain.KeyTypeSandbox, Status: domain.KeyStatusActive})
	require.NoError(t, err)

	s := Seeder{
		Keys:      keys,
		Webhooks:  memory.NewWebhookRepository(),
		Proposals: memory.NewProposalRepository(),
		Passports: memory.NewPassportRepository(),
		Entropy:   newTestEntropy(8),
	}
	require.NoError(t, s.Seed(ctx))

	list, err := keys.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "key_mine", list[0].ID)
}

func TestEventRecorderStampsActorAndEnvironment(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	rec := NewEventRecorder(outbox, newTestEntropy(1), domain.EnvironmentProduction, nopLogger())
	ctx := context.Background()

	rec.Record(ctx, domain.EventProductCreated, "passport", "DPP001", map[string]any{"productName": "X"})
	rec.Record(WithActor(ctx, "key_abc"), domain.EventProductUpdated, "passport", "DPP001", nil)

	history, err := outbox.History(ctx, "passport", "DPP001", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "portal", history[0].Actor)
	assert.Equal(t, "key_abc", history[1].Actor)
	assert.Equal(t, domain.EnvironmentProduction, history[0].Environment)
	assert.Equal(t, domain.CurrentEventSchemaVersion, history[0].SchemaVersion)
	assert.JSONEq(t, `{"productName":"X"}`, string(history[0].Payload))
	assert.NotEqual(t, history[0].EventID, history[1].EventID)

	var nilRecorder *EventRecorder
	assert.NotPanics(t, func() { nilRecorder.Record(ctx, "x", "y", "z", nil) })
}

type failingOutbox struct {
	*memory.OutboxRepository
}

func (failingOutbox) Enqueue(context.Context, string, domain.EventEnvelope) error {
	return errors.New("disk full")
}

func TestEventRecorderSwallowsEnqueueErrors(t *testing.T) {
	outbox := failingOutbox{memory.NewOutboxRepository()}
	entropy := newTestEntropy(1)
	svc := NewProposalService(memory.NewProposalRepository(), NewEventRecorder(outbox, entropy, domain.EnvironmentSandbox, nopLogger()), entropy)

	p, err := svc.Create(context.Background(), "Still created", "")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
}
