package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/foodorder/cart/internal/store"
	"github.com/Alturino/foodorder/cart/pkg/domain"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/keylock"
	"github.com/Alturino/foodorder/internal/metrics"
	"github.com/Alturino/foodorder/internal/money"
	"github.com/Alturino/foodorder/internal/pricing"
)

type fakeCatalog map[int64]domain.MenuItemRef

func (f fakeCatalog) GetMenuItem(c context.Context, itemID int64) (domain.MenuItemRef, error) {
	if itemID == 500 {
		return domain.MenuItemRef{}, inErrors.DependencyUnavailable(fmt.Errorf("catalog is down"), "catalog")
	}
	ref, ok := f[itemID]
	if !ok {
		return domain.MenuItemRef{}, inErrors.New(inErrors.CodeItemNotFound, "menu item does not exist")
	}
	return ref, nil
}

var menu = fakeCatalog{
	1: {ItemID: 1, Name: "Margherita", UnitPrice: money.FromMinor(1299), Available: true},
	2: {ItemID: 2, Name: "Garlic Bread", UnitPrice: money.FromMinor(499), Available: true},
	3: {ItemID: 3, Name: "Tiramisu", UnitPrice: money.FromMinor(650), Available: false},
}

func setup(t *testing.T) (*CartService, *metrics.CartMetrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cartMetrics := metrics.NewCartMetrics(prometheus.NewRegistry())
	svc := NewCartService(
		store.NewCartStore(client, 24*time.Hour),
		menu,
		keylock.New(),
		pricing.NewEngine(pricing.DefaultConfig()),
		cartMetrics,
	)
	return svc, cartMetrics
}

func TestAddItem(t *testing.T) {
	testCases := []struct {
		desc    string
		itemIDs []int64
		total   int64
		count   int
		wantErr error
	}{
		{desc: "adding twice increments the line", itemIDs: []int64{1, 1}, total: 2598, count: 2},
		{desc: "two different items", itemIDs: []int64{1, 2}, total: 1798, count: 2},
		{desc: "unavailable item", itemIDs: []int64{3}, wantErr: inErrors.ErrItemUnavailable},
		{desc: "unknown item", itemIDs: []int64{42}, wantErr: inErrors.ErrItemNotFound},
		{desc: "catalog down", itemIDs: []int64{500}, wantErr: inErrors.ErrDependencyUnavailable},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			svc, _ := setup(t)
			c := context.Background()

			var (
				snapshot domain.Snapshot
				err      error
			)
			for _, id := range tC.itemIDs {
				snapshot, err = svc.AddItem(c, "session-1", id)
			}
			if tC.wantErr != nil {
				assert.ErrorIs(t, err, tC.wantErr)
				current, err := svc.Get(c, "session-1")
				require.NoError(t, err)
				assert.True(t, current.IsEmpty())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, money.FromMinor(tC.total), snapshot.Total)
			assert.Equal(t, tC.count, snapshot.ItemCount)
		})
	}
}

func TestUpdateRemoveAndClear(t *testing.T) {
	svc, cartMetrics := setup(t)
	c := context.Background()

	_, err := svc.AddItem(c, "session-1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(c, "session-1", 2)
	require.NoError(t, err)

	snapshot, err := svc.UpdateQuantity(c, "session-1", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(3*1299+499), snapshot.Total)

	_, err = svc.UpdateQuantity(c, "session-1", 9, 2)
	assert.ErrorIs(t, err, inErrors.ErrItemNotFound)

	snapshot, err = svc.UpdateQuantity(c, "session-1", 2, 0)
	require.NoError(t, err)
	assert.Len(t, snapshot.Lines, 1)

	snapshot, err = svc.RemoveItem(c, "session-1", 2)
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(3*1299), snapshot.Total)

	snapshot, err = svc.Clear(c, "session-1")
	require.NoError(t, err)
	assert.True(t, snapshot.IsEmpty())
	assert.True(t, snapshot.Total.IsZero())

	assert.Equal(t, 1.0, testutil.ToFloat64(cartMetrics.Mutations.WithLabelValues("update", string(inErrors.CodeItemNotFound))))
	assert.Equal(t, 2.0, testutil.ToFloat64(cartMetrics.Mutations.WithLabelValues("add", "ok")))
}

func TestSessionsAreIsolated(t *testing.T) {
	svc, _ := setup(t)
	c := context.Background()

	_, err := svc.AddItem(c, "session-1", 1)
	require.NoError(t, err)

	other, err := svc.Get(c, "session-2")
	require.NoError(t, err)
	assert.True(t, other.IsEmpty())
}

func TestQuote(t *testing.T) {
	svc, _ := setup(t)
	c := context.Background()

	_, err := svc.AddItem(c, "session-1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(c, "session-1", 1)
	require.NoError(t, err)

	snapshot, breakdown, err := svc.Quote(c, "session-1")
	require.NoError(t, err)
	assert.Equal(t, snapshot.Total, breakdown.Subtotal)
	assert.Equal(t, money.FromMinor(2598), breakdown.Subtotal)
	assert.Equal(t, money.FromMinor(399), breakdown.DeliveryFee)
	assert.Equal(t, money.FromMinor(260), breakdown.Tax)
	assert.Equal(t, money.FromMinor(3257), breakdown.GrandTotal)
}

func TestClearCheckedOut(t *testing.T) {
	svc, _ := setup(t)
	c := context.Background()

	snapshot, err := svc.AddItem(c, "session-1", 1)
	require.NoError(t, err)

	require.NoError(t, svc.ClearCheckedOut(c, "session-1", snapshot.ID, snapshot.Revision-1))
	kept, err := svc.Get(c, "session-1")
	require.NoError(t, err)
	assert.False(t, kept.IsEmpty())

	require.NoError(t, svc.ClearCheckedOut(c, "session-1", uuid.New(), snapshot.Revision))
	kept, err = svc.Get(c, "session-1")
	require.NoError(t, err)
	assert.False(t, kept.IsEmpty())

	require.NoError(t, svc.ClearCheckedOut(c, "session-1", snapshot.ID, snapshot.Revision))
	cleared, err := svc.Get(c, "session-1")
	require.NoError(t, err)
	assert.True(t, cleared.IsEmpty())
}

func TestConcurrentAddsKeepInvariant(t *testing.T) {
	svc, _ := setup(t)
	c := context.Background()

	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(c, "session-1", int64(i%2+1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snapshot, err := svc.Get(c, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 30, snapshot.ItemCount)
	assert.Equal(t, money.FromMinor(15*1299+15*499), snapshot.Total)
	assert.Equal(t, int64(30), snapshot.Revision)
}

func TestLockRespectsContext(t *testing.T) {
	svc, _ := setup(t)

	unlock, err := svc.Lock(context.Background(), "session-1")
	require.NoError(t, err)
	defer unlock()

	c, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.AddItem(c, "session-1", 1)
	assert.ErrorIs(t, err, inErrors.ErrInternal)
}
