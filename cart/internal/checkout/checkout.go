// Package checkout turns a session's cart into an order.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/cart/pkg/domain"
	"github.com/Alturino/foodorder/internal/auth"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/metrics"
	"github.com/Alturino/foodorder/internal/money"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/internal/pricing"
	"github.com/Alturino/foodorder/internal/validate"
	orderDomain "github.com/Alturino/foodorder/order/pkg/domain"
)

type Carts interface {
	Lock(c context.Context, session string) (func(), error)
	Snapshot(c context.Context, session string) (domain.Snapshot, error)
	ClearCheckedOut(c context.Context, session string, cartID uuid.UUID, revision int64) error
}

// OrderCreator must be idempotent on NewOrder.CheckoutKey.
type OrderCreator interface {
	Create(c context.Context, newOrder orderDomain.NewOrder) (orderDomain.Order, error)
}

type Receipt struct {
	OrderID               uuid.UUID   `json:"orderId"`
	OrderNumber           string      `json:"orderNumber"`
	GrandTotal            money.Money `json:"grandTotal"`
	EstimatedDeliveryTime time.Time   `json:"estimatedDeliveryTime"`
}

type form struct {
	DeliveryAddress orderDomain.DeliveryAddress `json:"deliveryAddress"`
	ContactInfo     orderDomain.ContactInfo     `json:"contactInfo"`
}

type Orchestrator struct {
	auth    auth.Authenticator
	carts   Carts
	orders  OrderCreator
	pricing pricing.Engine
	metrics *metrics.CartMetrics
}

func NewOrchestrator(
	authenticator auth.Authenticator,
	carts Carts,
	orders OrderCreator,
	engine pricing.Engine,
	cartMetrics *metrics.CartMetrics,
) *Orchestrator {
	return &Orchestrator{
		auth:    authenticator,
		carts:   carts,
		orders:  orders,
		pricing: engine,
		metrics: cartMetrics,
	}
}

// CheckoutKey names one state of one cart. Cart ids are never reused, so the key stays unique
// after the stored cart expires or the session id is shared.
func CheckoutKey(cartID uuid.UUID, revision int64) string {
	return fmt.Sprintf("%s:%d", cartID, revision)
}

// Submit creates an order from the session's cart and empties the cart. The cart stays locked
// for the whole call, and a failure before the order exists leaves it untouched. A retry after
// a failed clear finds the same order through the checkout key.
func (o *Orchestrator) Submit(
	c context.Context,
	session string,
	address orderDomain.DeliveryAddress,
	contact orderDomain.ContactInfo,
) (receipt Receipt, err error) {
	c, span := otel.Tracer.Start(c, "Orchestrator Submit")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator Submit").
		Str(log.KeySessionID, session).
		Logger()

	defer func() {
		if o.metrics == nil {
			return
		}
		result := "ok"
		if err != nil {
			result = string(inErrors.CodeOf(err))
		}
		o.metrics.Checkouts.WithLabelValues(result).Inc()
	}()

	logger = logger.With().Str(log.KeyProcess, "authenticating").Logger()
	user, err := o.auth.Authenticate(c)
	if err != nil {
		err = fmt.Errorf("failed authenticating checkout with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return Receipt{}, err
	}
	logger = logger.With().Str(log.KeyUserID, user.UserID.String()).Logger()
	c = logger.WithContext(c)

	logger = logger.With().Str(log.KeyProcess, "locking cart").Logger()
	logger.Trace().Msg("locking cart")
	unlock, err := o.carts.Lock(c, session)
	if err != nil {
		err = fmt.Errorf("failed locking cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Receipt{}, err
	}
	defer unlock()
	logger.Trace().Msg("locked cart")

	snapshot, err := o.carts.Snapshot(c, session)
	if err != nil {
		err = fmt.Errorf("failed reading cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Receipt{}, err
	}
	if snapshot.IsEmpty() {
		err = fmt.Errorf("failed submitting checkout with error=%w", inErrors.ErrEmptyCart)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return Receipt{}, err
	}
	logger = logger.With().
		Str(log.KeyCartID, snapshot.ID.String()).
		Int64(log.KeyCartRevision, snapshot.Revision).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating checkout form").Logger()
	if err = validate.Struct(form{DeliveryAddress: address, ContactInfo: contact}); err != nil {
		err = fmt.Errorf("failed validating checkout form with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return Receipt{}, err
	}

	breakdown := o.pricing.Quote(snapshot)
	newOrder := orderDomain.NewOrder{
		CheckoutKey:     CheckoutKey(snapshot.ID, snapshot.Revision),
		UserID:          user.UserID,
		Lines:           snapshot.Lines,
		DeliveryAddress: address,
		ContactInfo:     contact,
		Subtotal:        breakdown.Subtotal,
		DeliveryFee:     breakdown.DeliveryFee,
		Tax:             breakdown.Tax,
		GrandTotal:      breakdown.GrandTotal,
		Currency:        breakdown.Currency,
	}

	logger = logger.With().
		Str(log.KeyProcess, "creating order").
		Str(log.KeyCheckoutKey, newOrder.CheckoutKey).
		Logger()
	logger.Debug().Msg("creating order")
	order, err := o.orders.Create(c, newOrder)
	if err != nil {
		err = fmt.Errorf("failed creating order with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Receipt{}, err
	}
	logger = logger.With().
		Str(log.KeyOrderID, order.ID.String()).
		Str(log.KeyOrderNumber, order.OrderNumber).
		Logger()
	logger.Info().Msg("created order")

	logger = logger.With().Str(log.KeyProcess, "clearing cart").Logger()
	if err = o.carts.ClearCheckedOut(c, session, snapshot.ID, snapshot.Revision); err != nil {
		err = fmt.Errorf("failed clearing cart of order=%s with error=%w", order.OrderNumber, err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Receipt{}, err
	}
	logger.Info().Msg("submitted checkout")

	return Receipt{
		OrderID:               order.ID,
		OrderNumber:           order.OrderNumber,
		GrandTotal:            order.GrandTotal,
		EstimatedDeliveryTime: order.EstimatedDeliveryAt,
	}, nil
}
