package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerDeliversToSubscribers(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "clinic.queue")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "clinic.queue", []byte(`{"type":"QUEUE_STATUS_CHANGED"}`)))
	require.NoError(t, b.Publish(ctx, "other", []byte(`ignored`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"QUEUE_STATUS_CHANGED"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}
