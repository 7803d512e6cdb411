package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	cartDomain "github.com/Alturino/foodorder/cart/pkg/domain"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/metrics"
	"github.com/Alturino/foodorder/internal/money"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/internal/pricing"
	"github.com/Alturino/foodorder/internal/validate"
	"github.com/Alturino/foodorder/order/internal/cache"
	"github.com/Alturino/foodorder/order/internal/repository"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

const (
	DefaultEstimatedDelivery = 45 * time.Minute
	maxNumberAttempts        = 5
)

// OrderService owns the order lifecycle. Orders enter as PENDING and afterwards only their
// status changes, through UpdateStatus.
type OrderService struct {
	store     repository.Store
	cache     *cache.OrderCache
	policy    domain.TransitionPolicy
	pricing   pricing.Engine
	numbers   *domain.NumberGenerator
	eta       time.Duration
	now       func() time.Time
	metrics   *metrics.OrderMetrics
	observers []StatusObserver
}

// NewOrderService wires the lifecycle. orderCache and orderMetrics may be nil. engine must be
// configured like the cart's, since every order is priced again on creation.
func NewOrderService(
	store repository.Store,
	orderCache *cache.OrderCache,
	policy domain.TransitionPolicy,
	engine pricing.Engine,
	eta time.Duration,
	orderMetrics *metrics.OrderMetrics,
	observers ...StatusObserver,
) *OrderService {
	if policy == nil {
		policy = domain.PermissivePolicy{}
	}
	if eta <= 0 {
		eta = DefaultEstimatedDelivery
	}
	now := func() time.Time {
		// postgres keeps microseconds
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return &OrderService{
		store:     store,
		cache:     orderCache,
		policy:    policy,
		pricing:   engine,
		numbers:   domain.NewNumberGenerator(now),
		eta:       eta,
		now:       now,
		metrics:   orderMetrics,
		observers: observers,
	}
}

func (s *OrderService) Policy() domain.TransitionPolicy {
	return s.policy
}

// Create prices and stores a PENDING order. Calling it again with the same checkout key returns
// the order created the first time, as long as the request is the same one.
func (s *OrderService) Create(c context.Context, newOrder domain.NewOrder) (domain.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderService Create")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderService Create").
		Str(log.KeyCheckoutKey, newOrder.CheckoutKey).
		Str(log.KeyUserID, newOrder.UserID.String()).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating order").Logger()
	logger.Trace().Msg("validating order")
	if err := validate.Struct(newOrder); err != nil {
		err = fmt.Errorf("failed validating order with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return domain.Order{}, err
	}
	logger.Trace().Msg("validated order")

	logger = logger.With().Str(log.KeyProcess, "pricing order").Logger()
	if err := s.checkCharges(newOrder); err != nil {
		err = fmt.Errorf("failed pricing order with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return domain.Order{}, err
	}

	var (
		stored  domain.Order
		created bool
		err     error
	)
	for attempt := 1; ; attempt++ {
		order := newOrder.Build(uuid.New(), s.numbers.Next(), s.now(), s.eta)
		logger = logger.With().
			Str(log.KeyProcess, "storing order").
			Str(log.KeyOrderID, order.ID.String()).
			Str(log.KeyOrderNumber, order.OrderNumber).
			Logger()
		logger.Trace().Msg("storing order")
		stored, created, err = s.store.Create(logger.WithContext(c), order)
		if errors.Is(err, repository.ErrDuplicateOrderNumber) && attempt < maxNumberAttempts {
			logger.Warn().Int("attempt", attempt).Msg("order number taken, drawing another")
			continue
		}
		break
	}
	if err != nil {
		err = fmt.Errorf("failed storing order with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return domain.Order{}, err
	}
	if !created {
		if !stored.Matches(newOrder) {
			err = fmt.Errorf(
				"failed reusing checkout key of order=%s with error=%w",
				stored.OrderNumber,
				inErrors.ValidationFailed("checkoutKey"),
			)
			otel.RecordError(err, span)
			logger.Warn().Err(err).Msg(err.Error())
			return domain.Order{}, err
		}
		logger.Info().
			Str("existingOrderNumber", stored.OrderNumber).
			Msg("returning order already created for checkout key")
		return stored, nil
	}
	logger.Info().Msg("created order")

	if s.metrics != nil {
		s.metrics.Created.Inc()
	}
	return stored, nil
}

// checkCharges prices the order's lines again. Every line must be distinct and the totals the
// caller sent must be the ones the engine derives.
func (s *OrderService) checkCharges(newOrder domain.NewOrder) error {
	seen := make(map[int64]struct{}, len(newOrder.Lines))
	subtotal := money.Zero()
	for _, line := range newOrder.Lines {
		if _, dup := seen[line.ItemID]; dup {
			return inErrors.ValidationFailed("itemId")
		}
		seen[line.ItemID] = struct{}{}
		if line.UnitPrice.IsNegative() {
			return inErrors.ValidationFailed("unitPrice")
		}
		subtotal = subtotal.Add(line.LineTotal())
	}

	want := s.pricing.Quote(cartDomain.Snapshot{Lines: newOrder.Lines, Total: subtotal})
	fields := []string{}
	if newOrder.Subtotal != want.Subtotal {
		fields = append(fields, "subtotal")
	}
	if newOrder.DeliveryFee != want.DeliveryFee {
		fields = append(fields, "deliveryFee")
	}
	if newOrder.Tax != want.Tax {
		fields = append(fields, "tax")
	}
	if newOrder.GrandTotal != want.GrandTotal {
		fields = append(fields, "grandTotal")
	}
	if newOrder.Currency != want.Currency {
		fields = append(fields, "currency")
	}
	if len(fields) > 0 {
		return inErrors.ValidationFailed(fields...)
	}
	return nil
}

func (s *OrderService) Get(c context.Context, id uuid.UUID) (domain.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderService Get")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderService Get").
		Str(log.KeyOrderID, id.String()).
		Logger()

	var (
		order domain.Order
		err   error
	)
	if s.cache != nil {
		order, err = s.cache.Get(c, id, s.store.Get)
	} else {
		order, err = s.store.Get(c, id)
	}
	if err != nil {
		err = fmt.Errorf("failed getting order with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return domain.Order{}, err
	}
	return order, nil
}

func (s *OrderService) ListAll(c context.Context, direction domain.SortDirection) ([]domain.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderService ListAll")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderService ListAll").
		Str("direction", string(direction)).
		Logger()

	logger.Trace().Msg("listing orders")
	orders, err := s.store.List(c, direction)
	if err != nil {
		err = fmt.Errorf("failed listing orders with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Trace().Int("count", len(orders)).Msg("listed orders")
	return orders, nil
}

func (s *OrderService) ListByUser(c context.Context, userID uuid.UUID) ([]domain.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderService ListByUser")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderService ListByUser").
		Str(log.KeyUserID, userID.String()).
		Logger()

	orders, err := s.store.ListByUser(c, userID)
	if err != nil {
		err = fmt.Errorf("failed listing orders of user with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	return orders, nil
}

// UpdateStatus moves an order to status. The check against the current status and the write
// happen inside the store's per-order critical section. Observers run after the commit and
// cannot undo it.
func (s *OrderService) UpdateStatus(
	c context.Context,
	id uuid.UUID,
	status domain.OrderStatus,
) (domain.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderService UpdateStatus")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderService UpdateStatus").
		Str(log.KeyOrderID, id.String()).
		Str(log.KeyOrderStatusTarget, status.String()).
		Logger()

	if !status.IsValid() {
		err := fmt.Errorf("failed updating order status with error=%w", inErrors.ValidationFailed("status"))
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return domain.Order{}, err
	}

	logger = logger.With().Str(log.KeyProcess, "updating order status").Logger()
	logger.Trace().Msg("updating order status")
	c = logger.WithContext(c)
	var from domain.OrderStatus
	updated, err := s.store.UpdateStatus(c, id, func(order *domain.Order) error {
		if err := domain.CheckTransition(s.policy, order.ID.String(), order.Status, status); err != nil {
			return err
		}
		now := s.now()
		from = order.Status
		order.Status = status
		order.UpdatedAt = now
		order.StatusChangedAt = now
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed updating order status with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return domain.Order{}, err
	}
	logger = logger.With().
		Str(log.KeyOrderNumber, updated.OrderNumber).
		Str(log.KeyOrderStatus, from.String()).
		Logger()
	logger.Info().Msg("updated order status")

	s.notify(logger.WithContext(c), updated, from)
	return updated, nil
}

func (s *OrderService) notify(c context.Context, order domain.Order, from domain.OrderStatus) {
	c, span := otel.Tracer.Start(c, "OrderService notify")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyProcess, "notifying observers").Logger()

	for _, observer := range s.observers {
		if err := observer.OrderStatusChanged(c, order.Clone(), from); err != nil {
			err = fmt.Errorf("failed notifying observer with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
		}
	}
}
