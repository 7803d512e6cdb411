package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/cart/pkg/domain"
	"github.com/Alturino/foodorder/internal/constants"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/otel"
)

const defaultMaxRetries = 5

var ErrConcurrentUpdate = errors.New("cart changed while it was being updated")

// CartStore keeps one JSON cart per session. Writes use WATCH/MULTI so replicas never lose each
// other's updates; every write refreshes the key's TTL.
type CartStore struct {
	client     *redis.Client
	ttl        time.Duration
	maxRetries int
}

func NewCartStore(client *redis.Client, ttl time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl, maxRetries: defaultMaxRetries}
}

func key(session string) string {
	return fmt.Sprintf(constants.CacheKeyCart, session)
}

func load(c context.Context, cmd redis.Cmdable, session string) (*domain.Cart, error) {
	data, err := cmd.Get(c, key(session)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewCart(), nil
	}
	if err != nil {
		return nil, inErrors.DependencyUnavailable(err, "cart store")
	}
	cart := domain.NewCart()
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, inErrors.Wrap(inErrors.CodeInternal, err, "stored cart is corrupted")
	}
	return cart, nil
}

// Get returns the session's cart, or an empty one when the session has none.
func (s *CartStore) Get(c context.Context, session string) (*domain.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartStore Get")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartStore Get").
		Str(log.KeySessionID, session).
		Logger()

	logger.Trace().Msg("loading cart")
	cart, err := load(c, s.client, session)
	if err != nil {
		err = fmt.Errorf("failed loading cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Trace().Int64(log.KeyCartRevision, cart.Revision()).Msg("loaded cart")
	return cart, nil
}

// Update loads the cart, applies fn and writes the result back in one optimistic transaction.
// When fn returns an error nothing is written.
func (s *CartStore) Update(
	c context.Context,
	session string,
	fn func(cart *domain.Cart) error,
) (*domain.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartStore Update")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartStore Update").
		Str(log.KeySessionID, session).
		Logger()

	var updated *domain.Cart
	txf := func(tx *redis.Tx) error {
		cart, err := load(c, tx, session)
		if err != nil {
			return err
		}
		if err := fn(cart); err != nil {
			return err
		}
		data, err := json.Marshal(cart)
		if err != nil {
			return inErrors.Wrap(inErrors.CodeInternal, err, "failed encoding cart")
		}
		_, err = tx.TxPipelined(c, func(pipe redis.Pipeliner) error {
			pipe.Set(c, key(session), data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = cart
		return nil
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.client.Watch(c, txf, key(session))
		if err == nil {
			logger.Trace().Int64(log.KeyCartRevision, updated.Revision()).Msg("updated cart")
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			logger.Debug().Int("attempt", attempt).Msg("cart changed concurrently, retrying")
			continue
		}
		if inErrors.As(err) == nil {
			err = inErrors.DependencyUnavailable(err, "cart store")
		}
		err = fmt.Errorf("failed updating cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}

	err := fmt.Errorf(
		"failed updating cart after %d attempts with error=%w",
		s.maxRetries,
		inErrors.DependencyUnavailable(ErrConcurrentUpdate, "cart store"),
	)
	otel.RecordError(err, span)
	logger.Error().Err(err).Msg(err.Error())
	return nil, err
}
