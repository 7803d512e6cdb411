package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

func setup(t *testing.T) (*OrderCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewOrderCache(client, time.Hour), mr
}

func countingLoader(order domain.Order, calls *atomic.Int32) Loader {
	return func(c context.Context, id uuid.UUID) (domain.Order, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		if id != order.ID {
			return domain.Order{}, inErrors.ErrOrderNotFound
		}
		return order, nil
	}
}

func TestReadThrough(t *testing.T) {
	oc, mr := setup(t)
	order := domain.Order{ID: uuid.New(), OrderNumber: "ORD-1", Status: domain.StatusPending}
	var calls atomic.Int32
	load := countingLoader(order, &calls)

	got, err := oc.Get(context.Background(), order.ID, load)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", got.OrderNumber)
	assert.True(t, mr.Exists(Key(order.ID)))
	assert.Equal(t, time.Hour, mr.TTL(Key(order.ID)))

	_, err = oc.Get(context.Background(), order.ID, load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = oc.Get(context.Background(), uuid.New(), load)
	assert.ErrorIs(t, err, inErrors.ErrOrderNotFound)
}

func TestConcurrentMissesLoadOnce(t *testing.T) {
	oc, _ := setup(t)
	order := domain.Order{ID: uuid.New(), OrderNumber: "ORD-1"}
	var calls atomic.Int32
	load := countingLoader(order, &calls)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := oc.Get(context.Background(), order.ID, load)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestInvalidate(t *testing.T) {
	oc, mr := setup(t)
	order := domain.Order{ID: uuid.New(), OrderNumber: "ORD-1", Status: domain.StatusPending}
	var calls atomic.Int32
	load := countingLoader(order, &calls)

	_, err := oc.Get(context.Background(), order.ID, load)
	require.NoError(t, err)
	require.True(t, mr.Exists(Key(order.ID)))

	require.NoError(t, oc.Invalidate(context.Background(), order.ID))
	assert.False(t, mr.Exists(Key(order.ID)))
	version, err := mr.Get(VersionKey(order.ID))
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	_, err = oc.Get(context.Background(), order.ID, load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, mr.Exists(Key(order.ID)))
}

func TestLoadRacingInvalidationIsNotCached(t *testing.T) {
	oc, mr := setup(t)
	pending := domain.Order{ID: uuid.New(), OrderNumber: "ORD-1", Status: domain.StatusPending}
	confirmed := pending
	confirmed.Status = domain.StatusConfirmed

	current := pending
	var calls atomic.Int32
	load := func(c context.Context, id uuid.UUID) (domain.Order, error) {
		loaded := current
		if calls.Add(1) == 1 {
			current = confirmed
			require.NoError(t, oc.Invalidate(c, id))
		}
		return loaded, nil
	}

	got, err := oc.Get(context.Background(), pending.ID, load)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.False(t, mr.Exists(Key(pending.ID)))

	got, err = oc.Get(context.Background(), pending.ID, load)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)

	got, err = oc.Get(context.Background(), pending.ID, load)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRedisDownFallsBackToLoader(t *testing.T) {
	oc, mr := setup(t)
	mr.Close()
	order := domain.Order{ID: uuid.New(), OrderNumber: "ORD-1"}
	var calls atomic.Int32

	got, err := oc.Get(context.Background(), order.ID, countingLoader(order, &calls))

	require.NoError(t, err)
	assert.Equal(t, "ORD-1", got.OrderNumber)
	assert.Equal(t, int32(1), calls.Load())
}
