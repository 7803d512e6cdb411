package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/otel"
)

type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(c context.Context, topic string, payload []byte) error {
	c, span := otel.Tracer.Start(c, "RedisBroker Publish")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RedisBroker Publish").
		Str(log.KeyBroker, topic).
		Logger()

	logger.Trace().Msg("publishing message")
	receivers, err := b.client.Publish(c, topic, payload).Result()
	if err != nil {
		err = fmt.Errorf("failed publishing to channel=%s with error=%w", topic, err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Int64(log.KeySubscribers, receivers).Msg("published message")
	return nil
}

func (b *RedisBroker) Subscribe(c context.Context, topic string) (<-chan Message, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RedisBroker Subscribe").
		Str(log.KeyBroker, topic).
		Logger()

	logger.Info().Msg("subscribing to channel")
	pubsub := b.client.Subscribe(c, topic)
	// wait for the subscription to be confirmed so no message published afterwards is missed
	if _, err := pubsub.Receive(c); err != nil {
		_ = pubsub.Close()
		err = fmt.Errorf("failed subscribing to channel=%s with error=%w", topic, err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("subscribed to channel")

	out := make(chan Message)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-c.Done():
				logger.Info().Msg("unsubscribing from channel")
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-c.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the redis client belongs to the caller.
func (b *RedisBroker) Close() error {
	return nil
}
