// Package cache is a read-through redis cache in front of the order store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Alturino/foodorder/internal/constants"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

type Loader func(c context.Context, id uuid.UUID) (domain.Order, error)

// storeIfUnchanged writes the entry only while the version key still holds the value read
// before the order was loaded.
var storeIfUnchanged = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// OrderCache never fails a read because redis is down; it falls back to the loader.
//
// Every invalidation bumps a per-order version. A loaded order is written back only if the
// version did not move while it was loading, so a snapshot taken before a status change can
// never replace the entry after it.
type OrderCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

func NewOrderCache(client *redis.Client, ttl time.Duration) *OrderCache {
	return &OrderCache{client: client, ttl: ttl}
}

func Key(id uuid.UUID) string {
	return fmt.Sprintf(constants.CacheKeyOrder, id.String())
}

func VersionKey(id uuid.UUID) string {
	return fmt.Sprintf(constants.CacheKeyOrderVersion, id.String())
}

func (oc *OrderCache) Get(c context.Context, id uuid.UUID, load Loader) (domain.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderCache Get")
	defer span.End()

	key := Key(id)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderCache Get").
		Str(log.KeyCacheKey, key).
		Logger()

	data, err := oc.client.Get(c, key).Bytes()
	switch {
	case err == nil:
		var order domain.Order
		if err := json.Unmarshal(data, &order); err == nil {
			logger.Trace().Msg("cache hit")
			return order, nil
		}
		logger.Warn().Msg("dropping undecodable cached order")
	case errors.Is(err, redis.Nil):
		logger.Trace().Msg("cache miss")
	default:
		err = fmt.Errorf("failed reading order cache with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
	}

	v, err, shared := oc.group.Do(key, func() (any, error) {
		version, versionErr := oc.version(c, id)
		order, err := load(c, id)
		if err != nil {
			return domain.Order{}, err
		}
		if versionErr != nil {
			logger.Warn().Err(versionErr).Msg(versionErr.Error())
			return order, nil
		}
		stored, err := oc.storeIfUnchanged(c, order, version)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg(err.Error())
		case !stored:
			logger.Debug().Str("version", version).Msg("order changed while loading, not caching it")
		}
		return order, nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	logger.Trace().Bool("shared", shared).Msg("loaded order")
	return v.(domain.Order).Clone(), nil
}

func (oc *OrderCache) version(c context.Context, id uuid.UUID) (string, error) {
	version, err := oc.client.Get(c, VersionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed reading order cache version with error=%w", err)
	}
	return version, nil
}

func (oc *OrderCache) storeIfUnchanged(c context.Context, order domain.Order, version string) (bool, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return false, fmt.Errorf("failed encoding order with error=%w", err)
	}
	stored, err := storeIfUnchanged.Run(
		c,
		oc.client,
		[]string{Key(order.ID), VersionKey(order.ID)},
		version,
		data,
		oc.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed writing order cache with error=%w", err)
	}
	return stored == 1, nil
}

// Invalidate drops the entry and bumps the version, which also voids any load in flight.
func (oc *OrderCache) Invalidate(c context.Context, id uuid.UUID) error {
	_, err := oc.client.TxPipelined(c, func(pipe redis.Pipeliner) error {
		pipe.Incr(c, VersionKey(id))
		if oc.ttl > 0 {
			pipe.Expire(c, VersionKey(id), 2*oc.ttl)
		}
		pipe.Del(c, Key(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed invalidating order cache with error=%w", err)
	}
	return nil
}
