package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/pkg/logger"
	"github.com/jwalitptl/clinic-desk/pkg/messaging"
	"github.com/jwalitptl/clinic-desk/pkg/metrics"
)

type mockOutboxRepo struct {
	mock.Mock
	events  []*model.OutboxEvent
	results map[uuid.UUID]error
}

func (m *mockOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockOutboxRepo) ProcessPending(ctx context.Context, limit int, retryDelay time.Duration, handle func(*model.OutboxEvent) error) (int, int, error) {
	m.results = make(map[uuid.UUID]error)
	processed, failed := 0, 0
	for i, evt := range m.events {
		if i >= limit {
			break
		}
		err := handle(evt)
		m.results[evt.ID] = err
		if err != nil {
			failed++
		} else {
			processed++
		}
	}
	return processed, failed, nil
}

func (m *mockOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type flakyBroker struct {
	*messaging.MemoryBroker
	failures int
	calls    int
}

func (b *flakyBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.calls++
	if b.calls <= b.failures {
		return errors.New("connection refused")
	}
	return b.MemoryBroker.Publish(ctx, channel, payload)
}

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		Channel:       "clinic.queue",
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

func TestProcessOncePublishesEnvelope(t *testing.T) {
	evt := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: model.EventQueueStatusChanged,
		Payload:   json.RawMessage(`{"to":"dispensary"}`),
		CreatedAt: time.Now(),
	}
	repo := &mockOutboxRepo{events: []*model.OutboxEvent{evt}}
	broker := &flakyBroker{MemoryBroker: messaging.NewMemoryBroker(), failures: 1}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := broker.Subscribe(ctx, "clinic.queue")
	require.NoError(t, err)

	p, err := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), metrics.New("test"))
	require.NoError(t, err)

	n, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, broker.calls)
	assert.NoError(t, repo.results[evt.ID])

	var env model.Envelope
	require.NoError(t, json.Unmarshal(<-sub, &env))
	assert.Equal(t, evt.ID, env.ID)
	assert.Equal(t, model.EventQueueStatusChanged, env.Type)
	assert.JSONEq(t, `{"to":"dispensary"}`, string(env.Payload))
}

func TestProcessOnceReportsFailures(t *testing.T) {
	evt := &model.OutboxEvent{ID: uuid.New(), EventType: model.EventPaymentRecorded, Payload: json.RawMessage(`{}`)}
	repo := &mockOutboxRepo{events: []*model.OutboxEvent{evt}}
	broker := &flakyBroker{MemoryBroker: messaging.NewMemoryBroker(), failures: 10}

	p, err := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), metrics.New("test"))
	require.NoError(t, err)

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, broker.calls)
	assert.Error(t, repo.results[evt.ID])
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	_, err := NewOutboxProcessor(&mockOutboxRepo{}, messaging.NewMemoryBroker(), cfg, logger.Nop(), metrics.New("test"))
	assert.Error(t, err)
}
