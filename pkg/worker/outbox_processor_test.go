package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
	"github.com/cmw1990/connect-and-care-api/pkg/messaging"
)

type fakeOutboxRepo struct {
	mu       sync.Mutex
	pending  []*model.OutboxEvent
	statuses map[uuid.UUID]model.OutboxStatus
	errs     map[uuid.UUID]string
}

func newFakeOutboxRepo(pending ...*model.OutboxEvent) *fakeOutboxRepo {
	return &fakeOutboxRepo{
		pending:  pending,
		statuses: make(map[uuid.UUID]model.OutboxStatus),
		errs:     make(map[uuid.UUID]string),
	}
}

func (r *fakeOutboxRepo) Create(_ context.Context, _ *model.OutboxEvent) error { return nil }

func (r *fakeOutboxRepo) GetPendingWithLock(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) > limit {
		return r.pending[:limit], nil
	}
	out := r.pending
	r.pending = nil
	return out, nil
}

func (r *fakeOutboxRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.OutboxStatus, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	if lastError != nil {
		r.errs[id] = *lastError
	}
	return nil
}

func (r *fakeOutboxRepo) DeleteProcessedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type flakyBroker struct {
	*fakeBroker
	failures int
	attempts int
}

func (b *flakyBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.attempts++
	if b.attempts <= b.failures {
		return errors.New("broker unavailable")
	}
	return b.fakeBroker.Publish(ctx, channel, message)
}

func outboxEvent(t *testing.T, channel string) *model.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(model.ChangeEvent{Table: channel, Op: model.ChangeOpInsert})
	require.NoError(t, err)
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: channel,
		Payload:   payload,
		Status:    model.OutboxStatusPending,
	}
}

func newProcessor(repo *fakeOutboxRepo, broker messaging.Broker) *OutboxProcessor {
	return NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}, logger.NewLogger(nil), testMetrics)
}

func TestProcessEventsPublishesOnEventTypeChannel(t *testing.T) {
	first := outboxEvent(t, model.ChannelMedications)
	second := outboxEvent(t, model.ChannelCareAlerts)
	repo := newFakeOutboxRepo(first, second)
	broker := newFakeBroker()

	p := newProcessor(repo, broker)
	require.NoError(t, p.processEvents(context.Background()))

	assert.Len(t, broker.published[model.ChannelMedications], 1)
	assert.Len(t, broker.published[model.ChannelCareAlerts], 1)
	assert.Equal(t, model.OutboxStatusProcessed, repo.statuses[first.ID])
	assert.Equal(t, model.OutboxStatusProcessed, repo.statuses[second.ID])
}

func TestProcessEventRetriesTransientFailures(t *testing.T) {
	event := outboxEvent(t, model.ChannelMedicationLogs)
	repo := newFakeOutboxRepo(event)
	broker := &flakyBroker{fakeBroker: newFakeBroker(), failures: 2}

	p := newProcessor(repo, broker)
	require.NoError(t, p.processEvents(context.Background()))

	assert.Equal(t, 3, broker.attempts)
	assert.Len(t, broker.published[model.ChannelMedicationLogs], 1)
	assert.Equal(t, model.OutboxStatusProcessed, repo.statuses[event.ID])
}

func TestProcessEventMarksFailedAfterRetriesExhausted(t *testing.T) {
	event := outboxEvent(t, model.ChannelMedications)
	repo := newFakeOutboxRepo(event)
	broker := &flakyBroker{fakeBroker: newFakeBroker(), failures: 10}

	p := newProcessor(repo, broker)
	require.NoError(t, p.processEvents(context.Background()))

	assert.Equal(t, 3, broker.attempts)
	assert.Equal(t, model.OutboxStatusFailed, repo.statuses[event.ID])
	assert.Equal(t, "broker unavailable", repo.errs[event.ID])
}

func TestProcessEventFailureDoesNotBlockBatch(t *testing.T) {
	// The failing event exhausts the broker's failures, so the second succeeds.
	failing := outboxEvent(t, model.ChannelMedications)
	ok := outboxEvent(t, model.ChannelCareAlerts)
	repo := newFakeOutboxRepo(failing, ok)
	broker := &flakyBroker{fakeBroker: newFakeBroker(), failures: 3}

	p := newProcessor(repo, broker)
	require.NoError(t, p.processEvents(context.Background()))

	assert.Equal(t, model.OutboxStatusFailed, repo.statuses[failing.ID])
	assert.Equal(t, model.OutboxStatusProcessed, repo.statuses[ok.ID])
	assert.Len(t, broker.published[model.ChannelCareAlerts], 1)
}
