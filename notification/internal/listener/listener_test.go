package listener

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/foodorder/internal/broker"
	"github.com/Alturino/foodorder/internal/constants"
	"github.com/Alturino/foodorder/order/pkg/domain"
	"github.com/Alturino/foodorder/order/pkg/event"
)

type hub struct {
	payloads chan []byte
}

func (h hub) Broadcast(payload []byte) int {
	h.payloads <- payload
	return 1
}

func TestForwardsStatusChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	redisBroker := broker.NewRedisBroker(client)
	h := hub{payloads: make(chan []byte, 2)}
	l := NewStatusListener(redisBroker, constants.ChannelOrderStatusUpdated, h)

	c, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := l.Subscribe(c)
	require.NoError(t, err)
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go l.Start(c, wg, messages)

	changed := event.StatusChanged{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-1",
		From:        domain.StatusPending,
		To:          domain.StatusConfirmed,
		ChangedAt:   time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, redisBroker.Publish(c, constants.ChannelOrderStatusUpdated, []byte("not json")))
	payload, err := json.Marshal(changed)
	require.NoError(t, err)
	require.NoError(t, redisBroker.Publish(c, constants.ChannelOrderStatusUpdated, payload))

	select {
	case got := <-h.payloads:
		var decoded event.StatusChanged
		require.NoError(t, json.Unmarshal(got, &decoded))
		assert.Equal(t, changed, decoded)
	case <-time.After(2 * time.Second):
		t.Fatal("status change was not forwarded")
	}
	assert.Empty(t, h.payloads)

	cancel()
	wg.Wait()
}
