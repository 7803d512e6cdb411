package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartDomain "github.com/Alturino/foodorder/cart/pkg/domain"
	"github.com/Alturino/foodorder/internal/broker"
	"github.com/Alturino/foodorder/internal/constants"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/metrics"
	"github.com/Alturino/foodorder/internal/money"
	"github.com/Alturino/foodorder/order/internal/cache"
	"github.com/Alturino/foodorder/order/internal/repository"
	"github.com/Alturino/foodorder/order/pkg/domain"
	"github.com/Alturino/foodorder/order/pkg/event"
)

var customerID = uuid.MustParse("0b5c9a4e-6a8e-4f43-9d43-0c1a3f6f2a11")

func TestCreate(t *testing.T) {
	orderMetrics := metrics.NewOrderMetrics(prometheus.NewRegistry())
	svc := NewOrderService(repository.NewMemoryStore(), nil, nil, testEngine, 0, orderMetrics)
	c := context.Background()

	order, err := svc.Create(c, newOrderRequest(customerID, "session-1:3"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Regexp(t, `^ORD-\d+$`, order.OrderNumber)
	assert.Equal(t, order.CreatedAt.Add(DefaultEstimatedDelivery), order.EstimatedDeliveryAt)
	assert.Equal(t, order.CreatedAt, order.StatusChangedAt)

	again, err := svc.Create(c, newOrderRequest(customerID, "session-1:3"))
	require.NoError(t, err)
	assert.Equal(t, order.ID, again.ID)
	assert.Equal(t, order.OrderNumber, again.OrderNumber)

	other, err := svc.Create(c, newOrderRequest(customerID, "session-1:4"))
	require.NoError(t, err)
	assert.NotEqual(t, order.OrderNumber, other.OrderNumber)

	assert.Equal(t, 2.0, testutil.ToFloat64(orderMetrics.Created))
}

func TestCreateRejectsIncompleteOrder(t *testing.T) {
	svc := NewOrderService(repository.NewMemoryStore(), nil, nil, testEngine, 0, nil)

	req := newOrderRequest(customerID, "session-1:1")
	req.Lines = nil
	req.ContactInfo.Phone = ""

	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, inErrors.ErrValidationFailed)
	details := inErrors.As(err).Details().(inErrors.ValidationDetails)
	assert.ElementsMatch(t, []string{"lines", "phone"}, details.Fields)
}

func TestCreateRejectsChargesItCannotDerive(t *testing.T) {
	margherita := func(quantity int, price int64) cartDomain.LineItem {
		return cartDomain.LineItem{ItemID: 1, Name: "Margherita", UnitPrice: money.FromMinor(price), Quantity: quantity}
	}
	testCases := []struct {
		desc       string
		modify     func(req *domain.NewOrder)
		wantFields []string
	}{
		{
			desc: "line with zero quantity",
			modify: func(req *domain.NewOrder) {
				req.Lines = []cartDomain.LineItem{margherita(0, 1299)}
			},
			wantFields: []string{"quantity"},
		},
		{
			desc: "line without item",
			modify: func(req *domain.NewOrder) {
				req.Lines[0].ItemID = 0
			},
			wantFields: []string{"itemId"},
		},
		{
			desc: "lowered subtotal and grand total",
			modify: func(req *domain.NewOrder) {
				req.Subtotal = money.FromMinor(100)
				req.GrandTotal = money.FromMinor(759)
			},
			wantFields: []string{"subtotal", "grandTotal"},
		},
		{
			desc: "waived delivery fee",
			modify: func(req *domain.NewOrder) {
				req.DeliveryFee = money.Zero()
				req.GrandTotal = money.FromMinor(2858)
			},
			wantFields: []string{"deliveryFee", "grandTotal"},
		},
		{
			desc: "other currency",
			modify: func(req *domain.NewOrder) {
				req.Currency = "USD"
			},
			wantFields: []string{"currency"},
		},
		{
			desc: "same item on two lines",
			modify: func(req *domain.NewOrder) {
				req.Lines = []cartDomain.LineItem{margherita(1, 1299), margherita(1, 1299)}
			},
			wantFields: []string{"itemId"},
		},
		{
			desc: "negative price",
			modify: func(req *domain.NewOrder) {
				req.Lines = []cartDomain.LineItem{margherita(1, -100)}
			},
			wantFields: []string{"unitPrice"},
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			store := repository.NewMemoryStore()
			svc := NewOrderService(store, nil, nil, testEngine, 0, nil)
			c := context.Background()

			req := newOrderRequest(customerID, "cart-1:1")
			tC.modify(&req)
			_, err := svc.Create(c, req)
			require.ErrorIs(t, err, inErrors.ErrValidationFailed)
			details := inErrors.As(err).Details().(inErrors.ValidationDetails)
			assert.ElementsMatch(t, tC.wantFields, details.Fields)

			orders, err := svc.ListAll(c, domain.SortDescending)
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestCreateRejectsCheckoutKeyReuseWithOtherRequest(t *testing.T) {
	testCases := []struct {
		desc   string
		modify func(req *domain.NewOrder)
	}{
		{
			desc: "other customer",
			modify: func(req *domain.NewOrder) {
				req.UserID = uuid.New()
			},
		},
		{
			desc: "other lines",
			modify: func(req *domain.NewOrder) {
				req.Lines = []cartDomain.LineItem{
					{ItemID: 2, Name: "Farmhouse", UnitPrice: money.FromMinor(1299), Quantity: 2},
				}
			},
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			svc := NewOrderService(repository.NewMemoryStore(), nil, nil, testEngine, 0, nil)
			c := context.Background()

			first, err := svc.Create(c, newOrderRequest(customerID, "cart-1:1"))
			require.NoError(t, err)

			req := newOrderRequest(customerID, "cart-1:1")
			tC.modify(&req)
			_, err = svc.Create(c, req)
			require.ErrorIs(t, err, inErrors.ErrValidationFailed)
			details := inErrors.As(err).Details().(inErrors.ValidationDetails)
			assert.Equal(t, []string{"checkoutKey"}, details.Fields)

			orders, err := svc.ListAll(c, domain.SortDescending)
			require.NoError(t, err)
			require.Len(t, orders, 1)
			assert.Equal(t, first.ID, orders[0].ID)
		})
	}
}

func TestCreateDrawsAnotherNumberWhenTaken(t *testing.T) {
	fixed := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	store := repository.NewMemoryStore()
	c := context.Background()

	// another replica already issued the number this clock yields first
	taken := fmt.Sprintf("ORD-%d", fixed.UnixMilli())
	_, created, err := store.Create(c, newOrderRequest(uuid.New(), "cart-0:1").Build(uuid.New(), taken, fixed, time.Hour))
	require.NoError(t, err)
	require.True(t, created)

	svc := NewOrderService(store, nil, nil, testEngine, 0, nil)
	svc.numbers = domain.NewNumberGenerator(func() time.Time { return fixed })

	order, err := svc.Create(c, newOrderRequest(customerID, "cart-1:1"))
	require.NoError(t, err)
	assert.NotEqual(t, taken, order.OrderNumber)
	assert.Equal(t, fmt.Sprintf("ORD-%d", fixed.UnixMilli()+1), order.OrderNumber)

	got, err := svc.Get(c, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)
}

func TestSameStatusUpdateIsRejectedWithCurrentStatus(t *testing.T) {
	svc := NewOrderService(repository.NewMemoryStore(), nil, nil, testEngine, 0, nil)
	c := context.Background()

	order, err := svc.Create(c, newOrderRequest(customerID, "session-1:1"))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(c, order.ID, domain.StatusPending)
	require.ErrorIs(t, err, inErrors.ErrInvalidTransition)
	details := inErrors.As(err).Details().(inErrors.TransitionDetails)
	assert.Equal(t, "PENDING", details.CurrentStatus)
	assert.Equal(t, "PENDING", details.RequestedStatus)

	got, err := svc.Get(c, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, order.StatusChangedAt.Equal(got.StatusChangedAt))
}

func TestUpdateStatus(t *testing.T) {
	testCases := []struct {
		desc       string
		policy     domain.TransitionPolicy
		path       []domain.OrderStatus
		target     domain.OrderStatus
		wantErr    error
		wantStatus domain.OrderStatus
	}{
		{
			desc:       "permissive allows skipping ahead",
			target:     domain.StatusDelivered,
			wantStatus: domain.StatusDelivered,
		},
		{
			desc:       "permissive allows moving back",
			path:       []domain.OrderStatus{domain.StatusPreparing},
			target:     domain.StatusConfirmed,
			wantStatus: domain.StatusConfirmed,
		},
		{
			desc:       "delivered is terminal",
			path:       []domain.OrderStatus{domain.StatusDelivered},
			target:     domain.StatusPreparing,
			wantErr:    inErrors.ErrInvalidTransition,
			wantStatus: domain.StatusDelivered,
		},
		{
			desc:       "cancelled is terminal",
			path:       []domain.OrderStatus{domain.StatusCancelled},
			target:     domain.StatusConfirmed,
			wantErr:    inErrors.ErrInvalidTransition,
			wantStatus: domain.StatusCancelled,
		},
		{
			desc:       "forward only rejects skipping ahead",
			policy:     domain.ForwardOnlyPolicy(),
			target:     domain.StatusDelivered,
			wantErr:    inErrors.ErrInvalidTransition,
			wantStatus: domain.StatusPending,
		},
		{
			desc:       "forward only walks the table",
			policy:     domain.ForwardOnlyPolicy(),
			path:       []domain.OrderStatus{domain.StatusConfirmed, domain.StatusPreparing, domain.StatusOutForDelivery},
			target:     domain.StatusDelivered,
			wantStatus: domain.StatusDelivered,
		},
		{
			desc:       "unknown status literal",
			target:     domain.OrderStatus("shipped"),
			wantErr:    inErrors.ErrValidationFailed,
			wantStatus: domain.StatusPending,
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			svc := NewOrderService(repository.NewMemoryStore(), nil, tC.policy, testEngine, 0, nil)
			c := context.Background()
			order, err := svc.Create(c, newOrderRequest(customerID, "session-1:1"))
			require.NoError(t, err)
			for _, status := range tC.path {
				_, err := svc.UpdateStatus(c, order.ID, status)
				require.NoError(t, err)
			}

			_, err = svc.UpdateStatus(c, order.ID, tC.target)
			if tC.wantErr != nil {
				require.ErrorIs(t, err, tC.wantErr)
			} else {
				require.NoError(t, err)
			}

			got, err := svc.Get(c, order.ID)
			require.NoError(t, err)
			assert.Equal(t, tC.wantStatus, got.Status)
		})
	}
}

func TestUpdateUnknownOrder(t *testing.T) {
	svc := NewOrderService(repository.NewMemoryStore(), nil, nil, testEngine, 0, nil)

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), domain.StatusConfirmed)
	assert.ErrorIs(t, err, inErrors.ErrOrderNotFound)
}

func TestConcurrentStaffUpdates(t *testing.T) {
	for round := 0; round < 20; round++ {
		events := newRecorder(4)
		svc := NewOrderService(repository.NewMemoryStore(), nil, nil, testEngine, 0, nil, events)
		c := context.Background()
		order, err := svc.Create(c, newOrderRequest(customerID, "session-1:1"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for _, status := range []domain.OrderStatus{domain.StatusConfirmed, domain.StatusCancelled} {
			wg.Add(1)
			go func(status domain.OrderStatus) {
				defer wg.Done()
				_, err := svc.UpdateStatus(c, order.ID, status)
				if err != nil {
					assert.ErrorIs(t, err, inErrors.ErrInvalidTransition)
				}
			}(status)
		}
		wg.Wait()

		got, err := svc.Get(c, order.ID)
		require.NoError(t, err)
		assert.Contains(t, []domain.OrderStatus{domain.StatusConfirmed, domain.StatusCancelled}, got.Status)

		fromPending := 0
		for _, e := range events.drain() {
			if e.from == domain.StatusPending {
				fromPending++
			}
		}
		assert.Equal(t, 1, fromPending)
	}
}

func TestObserverFailureKeepsTransition(t *testing.T) {
	failing := StatusObserverFunc(func(context.Context, domain.Order, domain.OrderStatus) error {
		return errors.New("dashboard unreachable")
	})
	events := newRecorder(1)
	svc := NewOrderService(repository.NewMemoryStore(), nil, nil, testEngine, 0, nil, failing, events)
	c := context.Background()
	order, err := svc.Create(c, newOrderRequest(customerID, "session-1:1"))
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(c, order.ID, domain.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, updated.Status)

	got, err := svc.Get(c, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Equal(t, []recorded{{from: domain.StatusPending, to: domain.StatusConfirmed}}, events.drain())
}

func TestObserversInvalidateCachePublishAndCount(t *testing.T) {
	client := setupMiniredis(t)
	orderCache := cache.NewOrderCache(client, time.Hour)
	orderMetrics := metrics.NewOrderMetrics(prometheus.NewRegistry())
	redisBroker := broker.NewRedisBroker(client)
	svc := NewOrderService(
		repository.NewMemoryStore(),
		orderCache,
		nil,
		testEngine,
		0,
		orderMetrics,
		CacheInvalidator(orderCache),
		NewEventPublisher(redisBroker, constants.ChannelOrderStatusUpdated),
		TransitionCounter(orderMetrics),
	)

	c, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := redisBroker.Subscribe(c, constants.ChannelOrderStatusUpdated)
	require.NoError(t, err)

	order, err := svc.Create(c, newOrderRequest(customerID, "session-1:1"))
	require.NoError(t, err)
	// warm the cache with the PENDING copy
	_, err = svc.Get(c, order.ID)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(c, order.ID, domain.StatusPreparing)
	require.NoError(t, err)

	got, err := svc.Get(c, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPreparing, got.Status)

	select {
	case msg := <-messages:
		var changed event.StatusChanged
		require.NoError(t, json.Unmarshal(msg.Payload, &changed))
		assert.Equal(t, order.ID, changed.OrderID)
		assert.Equal(t, order.OrderNumber, changed.OrderNumber)
		assert.Equal(t, domain.StatusPending, changed.From)
		assert.Equal(t, domain.StatusPreparing, changed.To)
	case <-time.After(2 * time.Second):
		t.Fatal("no status changed event was published")
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(orderMetrics.Transitions.WithLabelValues("PENDING", "PREPARING")))
}

// staleStore returns a copy read before a concurrent status update, once.
type staleStore struct {
	repository.Store
	once   sync.Once
	during func(c context.Context, id uuid.UUID)
}

func (s *staleStore) Get(c context.Context, id uuid.UUID) (domain.Order, error) {
	order, err := s.Store.Get(c, id)
	s.once.Do(func() { s.during(c, id) })
	return order, err
}

func TestCacheLoadRacingStatusUpdateServesNewStatus(t *testing.T) {
	client := setupMiniredis(t)
	orderCache := cache.NewOrderCache(client, time.Hour)
	store := &staleStore{Store: repository.NewMemoryStore()}
	svc := NewOrderService(store, orderCache, nil, testEngine, 0, nil, CacheInvalidator(orderCache))
	c := context.Background()

	order, err := svc.Create(c, newOrderRequest(customerID, "cart-1:1"))
	require.NoError(t, err)
	store.during = func(c context.Context, id uuid.UUID) {
		_, err := svc.UpdateStatus(c, id, domain.StatusConfirmed)
		assert.NoError(t, err)
	}

	raced, err := svc.Get(c, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, raced.Status)

	for i := 0; i < 2; i++ {
		got, err := svc.Get(c, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, got.Status)
	}
}

func TestLists(t *testing.T) {
	svc := NewOrderService(repository.NewMemoryStore(), nil, nil, testEngine, 0, nil)
	c := context.Background()
	otherID := uuid.New()

	first, err := svc.Create(c, newOrderRequest(customerID, "a:1"))
	require.NoError(t, err)
	second, err := svc.Create(c, newOrderRequest(otherID, "b:1"))
	require.NoError(t, err)
	third, err := svc.Create(c, newOrderRequest(customerID, "a:2"))
	require.NoError(t, err)

	all, err := svc.ListAll(c, domain.SortDescending)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uuid.UUID{third.ID, second.ID, first.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

	all, err = svc.ListAll(c, domain.SortAscending)
	require.NoError(t, err)
	assert.Equal(t, first.ID, all[0].ID)

	mine, err := svc.ListByUser(c, customerID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, third.ID, mine[0].ID)
}

func TestOrderLifecycleOnPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	c := context.Background()
	pool, client := setupContainers(t, c)
	orderCache := cache.NewOrderCache(client, time.Hour)
	events := newRecorder(4)
	svc := NewOrderService(
		repository.NewPostgresStore(pool),
		orderCache,
		domain.ForwardOnlyPolicy(),
		testEngine,
		30*time.Minute,
		nil,
		CacheInvalidator(orderCache),
		events,
	)

	order, err := svc.Create(c, newOrderRequest(customerID, "session-9:2"))
	require.NoError(t, err)
	assert.True(t, order.CreatedAt.Add(30*time.Minute).Equal(order.EstimatedDeliveryAt))

	again, err := svc.Create(c, newOrderRequest(customerID, "session-9:2"))
	require.NoError(t, err)
	assert.Equal(t, order.ID, again.ID)

	_, err = svc.UpdateStatus(c, order.ID, domain.StatusPending)
	require.ErrorIs(t, err, inErrors.ErrInvalidTransition)

	_, err = svc.UpdateStatus(c, order.ID, domain.StatusConfirmed)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(c, order.ID, domain.StatusCancelled)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(c, order.ID, domain.StatusPreparing)
	require.ErrorIs(t, err, inErrors.ErrInvalidTransition)

	got, err := svc.Get(c, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, order.Lines, got.Lines)
	assert.Len(t, events.drain(), 2)
}
