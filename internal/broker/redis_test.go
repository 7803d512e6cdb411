package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := NewRedisBroker(client)
	c, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := b.Subscribe(c, "order-status-updated")
	require.NoError(t, err)
	second, err := b.Subscribe(c, "order-status-updated")
	require.NoError(t, err)

	require.NoError(t, b.Publish(c, "order-status-updated", []byte(`{"to":"CONFIRMED"}`)))

	for _, messages := range []<-chan Message{first, second} {
		select {
		case msg := <-messages:
			assert.Equal(t, "order-status-updated", msg.Topic)
			assert.JSONEq(t, `{"to":"CONFIRMED"}`, string(msg.Payload))
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-first
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestValidateKind(t *testing.T) {
	assert.NoError(t, ValidateKind(KindRedis))
	assert.NoError(t, ValidateKind(KindAMQP))
	assert.Error(t, ValidateKind("kafka"))
}
