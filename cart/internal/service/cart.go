package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/cart/pkg/domain"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/keylock"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/metrics"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/internal/pricing"
)

type Catalog interface {
	GetMenuItem(c context.Context, itemID int64) (domain.MenuItemRef, error)
}

type Store interface {
	Get(c context.Context, session string) (*domain.Cart, error)
	Update(c context.Context, session string, fn func(cart *domain.Cart) error) (*domain.Cart, error)
}

// CartService is the session-scoped handle on carts. Mutations of one session run one at a
// time in this process; the store guards against other replicas.
type CartService struct {
	store   Store
	catalog Catalog
	locks   *keylock.KeyLock
	pricing pricing.Engine
	metrics *metrics.CartMetrics
}

func NewCartService(
	store Store,
	catalog Catalog,
	locks *keylock.KeyLock,
	engine pricing.Engine,
	cartMetrics *metrics.CartMetrics,
) *CartService {
	return &CartService{
		store:   store,
		catalog: catalog,
		locks:   locks,
		pricing: engine,
		metrics: cartMetrics,
	}
}

func (svc *CartService) observe(operation string, err error) {
	if svc.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(inErrors.CodeOf(err))
	}
	svc.metrics.Mutations.WithLabelValues(operation, result).Inc()
}

// Lock holds the session's cart until the returned func is called.
func (svc *CartService) Lock(c context.Context, session string) (func(), error) {
	unlock, err := svc.locks.Lock(c, session)
	if err != nil {
		return nil, inErrors.Wrap(inErrors.CodeInternal, err, "failed acquiring cart lock")
	}
	return unlock, nil
}

func (svc *CartService) mutate(
	c context.Context,
	session string,
	operation string,
	fn func(cart *domain.Cart) error,
) (domain.Snapshot, error) {
	unlock, err := svc.Lock(c, session)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer unlock()

	cart, err := svc.store.Update(c, session, fn)
	svc.observe(operation, err)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return cart.Snapshot(), nil
}

func (svc *CartService) Get(c context.Context, session string) (domain.Snapshot, error) {
	c, span := otel.Tracer.Start(c, "CartService Get")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService Get").
		Str(log.KeySessionID, session).
		Logger()

	cart, err := svc.store.Get(c, session)
	if err != nil {
		err = fmt.Errorf("failed getting cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return domain.Snapshot{}, err
	}
	return cart.Snapshot(), nil
}

// Snapshot reads the cart without taking the session lock; callers holding Lock use it.
func (svc *CartService) Snapshot(c context.Context, session string) (domain.Snapshot, error) {
	return svc.Get(c, session)
}

func (svc *CartService) AddItem(c context.Context, session string, itemID int64) (domain.Snapshot, error) {
	c, span := otel.Tracer.Start(c, "CartService AddItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService AddItem").
		Str(log.KeySessionID, session).
		Int64(log.KeyItemID, itemID).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "resolving menu item").Logger()
	logger.Trace().Msg("resolving menu item")
	c = logger.WithContext(c)
	ref, err := svc.catalog.GetMenuItem(c, itemID)
	if err != nil {
		svc.observe("add", err)
		err = fmt.Errorf("failed resolving menu item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return domain.Snapshot{}, err
	}
	logger.Trace().Msg("resolved menu item")

	logger = logger.With().Str(log.KeyProcess, "adding item").Logger()
	logger.Trace().Msg("adding item")
	snapshot, err := svc.mutate(c, session, "add", func(cart *domain.Cart) error {
		return cart.AddItem(ref)
	})
	if err != nil {
		err = fmt.Errorf("failed adding item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return domain.Snapshot{}, err
	}
	logger.Info().Int64(log.KeyCartRevision, snapshot.Revision).Msg("added item")
	return snapshot, nil
}

func (svc *CartService) UpdateQuantity(
	c context.Context,
	session string,
	itemID int64,
	quantity int,
) (domain.Snapshot, error) {
	c, span := otel.Tracer.Start(c, "CartService UpdateQuantity")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService UpdateQuantity").
		Str(log.KeySessionID, session).
		Int64(log.KeyItemID, itemID).
		Int(log.KeyQuantity, quantity).
		Logger()

	snapshot, err := svc.mutate(c, session, "update", func(cart *domain.Cart) error {
		return cart.UpdateQuantity(itemID, quantity)
	})
	if err != nil {
		err = fmt.Errorf("failed updating quantity with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return domain.Snapshot{}, err
	}
	logger.Info().Int64(log.KeyCartRevision, snapshot.Revision).Msg("updated quantity")
	return snapshot, nil
}

func (svc *CartService) RemoveItem(c context.Context, session string, itemID int64) (domain.Snapshot, error) {
	c, span := otel.Tracer.Start(c, "CartService RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService RemoveItem").
		Str(log.KeySessionID, session).
		Int64(log.KeyItemID, itemID).
		Logger()

	snapshot, err := svc.mutate(c, session, "remove", func(cart *domain.Cart) error {
		return cart.RemoveItem(itemID)
	})
	if err != nil {
		err = fmt.Errorf("failed removing item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return domain.Snapshot{}, err
	}
	logger.Info().Int64(log.KeyCartRevision, snapshot.Revision).Msg("removed item")
	return snapshot, nil
}

func (svc *CartService) Clear(c context.Context, session string) (domain.Snapshot, error) {
	c, span := otel.Tracer.Start(c, "CartService Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService Clear").
		Str(log.KeySessionID, session).
		Logger()

	snapshot, err := svc.mutate(c, session, "clear", func(cart *domain.Cart) error {
		cart.Clear()
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed clearing cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return domain.Snapshot{}, err
	}
	logger.Info().Msg("cleared cart")
	return snapshot, nil
}

// ClearCheckedOut empties the cart only if it is still the cart checkout saw: same id, same
// revision. It does not take the session lock; checkout calls it while already holding it.
func (svc *CartService) ClearCheckedOut(
	c context.Context,
	session string,
	cartID uuid.UUID,
	revision int64,
) error {
	c, span := otel.Tracer.Start(c, "CartService ClearCheckedOut")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService ClearCheckedOut").
		Str(log.KeySessionID, session).
		Str(log.KeyCartID, cartID.String()).
		Int64(log.KeyCartRevision, revision).
		Logger()

	_, err := svc.store.Update(c, session, func(cart *domain.Cart) error {
		if cart.ID() != cartID || cart.Revision() != revision {
			logger.Warn().
				Str("currentCartId", cart.ID().String()).
				Int64("currentRevision", cart.Revision()).
				Msg("cart changed since it was checked out, keeping it")
			return nil
		}
		cart.Clear()
		return nil
	})
	svc.observe("clear", err)
	if err != nil {
		err = fmt.Errorf("failed clearing checked out cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("cleared checked out cart")
	return nil
}

// Quote prices the current cart so every surface shows the same numbers.
func (svc *CartService) Quote(c context.Context, session string) (domain.Snapshot, pricing.Breakdown, error) {
	c, span := otel.Tracer.Start(c, "CartService Quote")
	defer span.End()

	snapshot, err := svc.Get(c, session)
	if err != nil {
		otel.RecordError(err, span)
		return domain.Snapshot{}, pricing.Breakdown{}, err
	}
	return snapshot, svc.pricing.Quote(snapshot), nil
}
