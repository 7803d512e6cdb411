package infra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/internal/broker"
	"github.com/Alturino/foodorder/internal/config"
	"github.com/Alturino/foodorder/internal/constants"
	"github.com/Alturino/foodorder/internal/log"
)

// NewBroker picks the event transport from config and returns it with the topic status events
// travel on: a Pub/Sub channel for redis, a fanout exchange for amqp.
func NewBroker(c context.Context, cfg config.Broker, cache *redis.Client) (broker.Broker, string, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "main NewBroker").
		Str(log.KeyBroker, cfg.Kind).
		Logger()

	if err := broker.ValidateKind(cfg.Kind); err != nil {
		return nil, "", err
	}

	if cfg.Kind == broker.KindAMQP {
		topic := cfg.Exchange
		if topic == "" {
			topic = constants.ExchangeOrderStatusFanout
		}
		logger.Info().Msg("dialing amqp broker")
		b, err := broker.DialAMQP(c, cfg.AmqpURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed dialing amqp broker with error=%w", err)
		}
		logger.Info().Msg("dialed amqp broker")
		return b, topic, nil
	}

	topic := cfg.Channel
	if topic == "" {
		topic = constants.ChannelOrderStatusUpdated
	}
	logger.Info().Msg("using redis broker")
	return broker.NewRedisBroker(cache), topic, nil
}
