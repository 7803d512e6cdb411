// Package listener forwards order status events from the broker to the dashboard hub.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/internal/broker"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/order/pkg/event"
)

type Broadcaster interface {
	Broadcast(payload []byte) int
}

type StatusListener struct {
	subscriber broker.Subscriber
	topic      string
	hub        Broadcaster
}

func NewStatusListener(subscriber broker.Subscriber, topic string, hub Broadcaster) *StatusListener {
	return &StatusListener{subscriber: subscriber, topic: topic, hub: hub}
}

// Subscribe returns once the subscription is live so nothing published afterwards is missed.
// The returned channel is drained by Start.
func (l *StatusListener) Subscribe(c context.Context) (<-chan broker.Message, error) {
	messages, err := l.subscriber.Subscribe(c, l.topic)
	if err != nil {
		return nil, fmt.Errorf("failed subscribing to topic=%s with error=%w", l.topic, err)
	}
	return messages, nil
}

// Start forwards messages until c is cancelled or the subscription ends.
func (l *StatusListener) Start(c context.Context, wg *sync.WaitGroup, messages <-chan broker.Message) {
	defer wg.Done()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "StatusListener Start").
		Str(log.KeyBroker, l.topic).
		Logger()

	logger.Info().Msg("listening for status changes")
	for {
		select {
		case <-c.Done():
			logger.Info().Msg("stopped listening for status changes")
			return
		case msg, ok := <-messages:
			if !ok {
				logger.Warn().Msg("subscription closed")
				return
			}
			l.forward(c, msg)
		}
	}
}

func (l *StatusListener) forward(c context.Context, msg broker.Message) {
	c, span := otel.Tracer.Start(c, "StatusListener forward")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyRequestID, uuid.NewString()).
		Str(log.KeyProcess, "forwarding status change").
		Logger()

	var changed event.StatusChanged
	if err := json.Unmarshal(msg.Payload, &changed); err != nil {
		err = fmt.Errorf("failed decoding status change with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger = logger.With().Any(log.KeyEvent, changed).Logger()

	// re-encode so dashboards only ever see the event's own fields
	payload, err := json.Marshal(changed)
	if err != nil {
		err = fmt.Errorf("failed encoding status change with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	delivered := l.hub.Broadcast(payload)
	logger.Debug().Int(log.KeySubscribers, delivered).Msg("forwarded status change")
}
