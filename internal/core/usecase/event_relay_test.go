package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/dppportal/internal/adapters/memory"
	"github.com/atvirokodosprendimai/dppportal/internal/adapters/notify"
	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

type rescheduled struct {
	id       int64
	attempts int
	next     time.Time
	errMsg   string
}

// trackingOutbox records relay bookkeeping on top of the memory outbox.
type trackingOutbox struct {
	*memory.OutboxRepository
	corrupt     map[int64]bool
	relayed     []int64
	rescheduled []rescheduled
	abandoned   []int64
}

func (o *trackingOutbox) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	pending, err := o.OutboxRepository.FetchPending(ctx, limit)
	for i := range pending {
		if o.corrupt[pending[i].ID] {
			pending[i].PayloadJSON = json.RawMessage(`{not json`)
		}
	}
	return pending, err
}

func (o *trackingOutbox) MarkDispatched(ctx context.Context, id int64) error {
	o.relayed = append(o.relayed, id)
	return o.OutboxRepository.MarkDispatched(ctx, id)
}

func (o *trackingOutbox) MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error {
	next, err := time.Parse(time.RFC3339Nano, nextAttemptAt)
	if err != nil {
		return err
	}
	o.rescheduled = append(o.rescheduled, rescheduled{id: id, attempts: attempts, next: next, errMsg: errMsg})
	return o.OutboxRepository.MarkFailed(ctx, id, attempts, nextAttemptAt, errMsg)
}

func (o *trackingOutbox) MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error {
	o.abandoned = append(o.abandoned, id)
	return o.OutboxRepository.MarkDead(ctx, id, attempts, errMsg)
}

type topicPublisher struct {
	failures  map[string]error
	published []domain.EventEnvelope
}

func (p *topicPublisher) Publish(_ context.Context, _ string, event domain.EventEnvelope) error {
	p.published = append(p.published, event)
	return p.failures[event.AggregateID]
}

type relayFixture struct {
	relay     *EventRelay
	outbox    *trackingOutbox
	publisher *topicPublisher
	feed      *notify.Feed
}

func newRelayFixture(t *testing.T) relayFixture {
	t.Helper()
	outbox := &trackingOutbox{OutboxRepository: memory.NewOutboxRepository()}
	publisher := &topicPublisher{failures: map[string]error{}}
	feed := notify.NewFeed(10, zerolog.Nop())
	relay := NewEventRelay(outbox, publisher, feed, time.Second, 10, zerolog.Nop())
	relay.now = func() time.Time { return testClock }
	return relayFixture{relay: relay, outbox: outbox, publisher: publisher, feed: feed}
}

func (f relayFixture) enqueue(t *testing.T, eventType, passportID string) {
	t.Helper()
	require.NoError(t, f.outbox.Enqueue(context.Background(), eventType, domain.EventEnvelope{
		EventID:       "evt-" + passportID + "-" + eventType,
		EventType:     eventType,
		SchemaVersion: domain.CurrentEventSchemaVersion,
		AggregateType: "passport",
		AggregateID:   passportID,
	}))
}

func TestEventRelayPublishesPendingPassportEvents(t *testing.T) {
	f := newRelayFixture(t)
	f.enqueue(t, domain.EventProductCreated, "DPP001")
	f.enqueue(t, domain.EventTokenMinted, "DPP001")

	require.NoError(t, f.relay.relayPending(context.Background()))

	require.Len(t, f.publisher.published, 2)
	assert.Equal(t, domain.EventProductCreated, f.publisher.published[0].EventType)
	assert.Equal(t, domain.EventTokenMinted, f.publisher.published[1].EventType)
	assert.Equal(t, []int64{1, 2}, f.outbox.relayed)
	assert.Equal(t, EventRelayMetrics{Relayed: 2}, f.relay.Metrics())

	// Relayed events are not fetched again.
	require.NoError(t, f.relay.relayPending(context.Background()))
	assert.Len(t, f.publisher.published, 2)
}

func TestEventRelayReschedulesFailedDelivery(t *testing.T) {
	f := newRelayFixture(t)
	f.enqueue(t, domain.EventProductUpdated, "DPP002")
	f.enqueue(t, domain.EventProductCreated, "DPP003")
	f.publisher.failures["DPP002"] = errors.New("webhook returned status 503")

	require.NoError(t, f.relay.relayPending(context.Background()))

	require.Len(t, f.outbox.rescheduled, 1)
	r := f.outbox.rescheduled[0]
	assert.Equal(t, int64(1), r.id)
	assert.Equal(t, 1, r.attempts)
	assert.Equal(t, "webhook returned status 503", r.errMsg)
	assert.True(t, testClock.Add(firstRedeliveryDelay).Equal(r.next))
	assert.Equal(t, []int64{2}, f.outbox.relayed, "one failing webhook does not hold back other events")
	assert.Empty(t, f.feed.Recent(10))
	assert.Equal(t, EventRelayMetrics{Relayed: 1, Retried: 1}, f.relay.Metrics())
}

func TestEventRelayAbandonsAfterLastAttempt(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	f.enqueue(t, domain.EventOwnershipTransferred, "DPP004")
	past := testClock.Add(-time.Hour).Format(time.RFC3339Nano)
	require.NoError(t, f.outbox.OutboxRepository.MarkFailed(ctx, 1, maxRelayAttempts-1, past, "earlier failure"))
	f.publisher.failures["DPP004"] = errors.New("connection refused")

	require.NoError(t, f.relay.relayPending(ctx))

	assert.Equal(t, []int64{1}, f.outbox.abandoned)
	assert.Empty(t, f.outbox.rescheduled)
	assert.Equal(t, int64(1), f.relay.Metrics().Abandoned)

	notes := f.feed.Recent(10)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotifyError, notes[0].Level)
	assert.Equal(t, "Webhook delivery abandoned", notes[0].Title)
	assert.Contains(t, notes[0].Message, "DPP004")
	assert.Contains(t, notes[0].Message, "connection refused")

	require.NoError(t, f.relay.relayPending(ctx))
	assert.Len(t, f.publisher.published, 1, "abandoned events are not retried")
}

func TestEventRelayUndecodablePayloadIsRescheduled(t *testing.T) {
	f := newRelayFixture(t)
	f.enqueue(t, domain.EventProductCreated, "DPP005")
	f.outbox.corrupt = map[int64]bool{1: true}

	require.NoError(t, f.relay.relayPending(context.Background()))

	assert.Empty(t, f.publisher.published)
	require.Len(t, f.outbox.rescheduled, 1)
	assert.Contains(t, f.outbox.rescheduled[0].errMsg, "decode payload")
	assert.Equal(t, int64(1), f.relay.Metrics().Retried)
}

func TestRedeliveryDelaySchedule(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 2 * time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 4, want: 16 * time.Second},
		{attempt: 8, want: 256 * time.Second},
		{attempt: 9, want: maxRedeliveryDelay},
		{attempt: 20, want: maxRedeliveryDelay},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redeliveryDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestEventRelayStartAndClose(t *testing.T) {
	f := newRelayFixture(t)
	f.enqueue(t, domain.EventVoteCast, "prop_1")

	f.relay.Start(context.Background())
	f.relay.Start(context.Background())
	require.Eventually(t, func() bool { return f.relay.Metrics().Relayed == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, f.relay.Close())
	require.NoError(t, f.relay.Close())
}
