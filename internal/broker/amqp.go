package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/otel"
)

// AMQPBroker publishes to fanout exchanges named after the topic. Every subscriber gets its own
// exclusive queue, so each connected process sees every message.
type AMQPBroker struct {
	conn *amqp.Connection

	mu   sync.Mutex
	ch   *amqp.Channel
	acks <-chan amqp.Confirmation

	declared sync.Map
}

func DialAMQP(c context.Context, url string) (*AMQPBroker, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "broker DialAMQP").
		Str(log.KeyProcess, "dialing rabbitmq").
		Logger()

	logger.Info().Msg("dialing rabbitmq")
	conn, err := amqp.Dial(url)
	if err != nil {
		err = fmt.Errorf("failed dialing rabbitmq with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("dialed rabbitmq")

	logger = logger.With().Str(log.KeyProcess, "opening publish channel").Logger()
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		err = fmt.Errorf("failed opening channel with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		err = fmt.Errorf("failed enabling publisher confirms with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	logger.Info().Msg("opened publish channel")

	return &AMQPBroker{conn: conn, ch: ch, acks: acks}, nil
}

func (b *AMQPBroker) declare(ch *amqp.Channel, exchange string) error {
	if _, ok := b.declared.Load(exchange); ok {
		return nil
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return err
	}
	b.declared.Store(exchange, struct{}{})
	return nil
}

// Publish waits for the broker to confirm the message.
func (b *AMQPBroker) Publish(c context.Context, topic string, payload []byte) error {
	c, span := otel.Tracer.Start(c, "AMQPBroker Publish")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "AMQPBroker Publish").
		Str(log.KeyBroker, topic).
		Logger()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.declare(b.ch, topic); err != nil {
		err = fmt.Errorf("failed declaring exchange=%s with error=%w", topic, err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger.Trace().Msg("publishing message")
	err := b.ch.PublishWithContext(c, topic, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		err = fmt.Errorf("failed publishing to exchange=%s with error=%w", topic, err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	select {
	case confirmation, ok := <-b.acks:
		if !ok || !confirmation.Ack {
			err = fmt.Errorf("failed publishing to exchange=%s with error=%w", topic, errors.New("broker nacked message"))
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
	case <-c.Done():
		err = fmt.Errorf("failed waiting for publish confirm with error=%w", c.Err())
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Msg("published message")
	return nil
}

func (b *AMQPBroker) Subscribe(c context.Context, topic string) (<-chan Message, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "AMQPBroker Subscribe").
		Str(log.KeyBroker, topic).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "opening consume channel").Logger()
	logger.Info().Msg("opening consume channel")
	ch, err := b.conn.Channel()
	if err != nil {
		err = fmt.Errorf("failed opening channel with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if err := b.declare(ch, topic); err != nil {
		_ = ch.Close()
		err = fmt.Errorf("failed declaring exchange=%s with error=%w", topic, err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		err = fmt.Errorf("failed declaring queue with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if err := ch.QueueBind(queue.Name, "", topic, false, nil); err != nil {
		_ = ch.Close()
		err = fmt.Errorf("failed binding queue=%s with error=%w", queue.Name, err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		err = fmt.Errorf("failed consuming queue=%s with error=%w", queue.Name, err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Str("queue", queue.Name).Msg("consuming")

	out := make(chan Message)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-c.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- Message{Topic: delivery.Exchange, Payload: delivery.Body}:
				case <-c.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.ch.Close(), b.conn.Close())
}
