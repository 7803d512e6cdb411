package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/internal/broker"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/metrics"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/order/internal/cache"
	"github.com/Alturino/foodorder/order/pkg/domain"
	"github.com/Alturino/foodorder/order/pkg/event"
)

// StatusObserver is told about every committed status change. Its error is logged, the change
// stands.
type StatusObserver interface {
	OrderStatusChanged(c context.Context, order domain.Order, from domain.OrderStatus) error
}

type StatusObserverFunc func(c context.Context, order domain.Order, from domain.OrderStatus) error

func (f StatusObserverFunc) OrderStatusChanged(c context.Context, order domain.Order, from domain.OrderStatus) error {
	return f(c, order, from)
}

// CacheInvalidator drops the cached order so the next read loads the new status.
func CacheInvalidator(orderCache *cache.OrderCache) StatusObserver {
	return StatusObserverFunc(func(c context.Context, order domain.Order, _ domain.OrderStatus) error {
		return orderCache.Invalidate(c, order.ID)
	})
}

func TransitionCounter(orderMetrics *metrics.OrderMetrics) StatusObserver {
	return StatusObserverFunc(func(_ context.Context, order domain.Order, from domain.OrderStatus) error {
		orderMetrics.Transitions.WithLabelValues(from.String(), order.Status.String()).Inc()
		return nil
	})
}

type EventPublisher struct {
	publisher broker.Publisher
	topic     string
}

func NewEventPublisher(publisher broker.Publisher, topic string) *EventPublisher {
	return &EventPublisher{publisher: publisher, topic: topic}
}

func (p *EventPublisher) OrderStatusChanged(c context.Context, order domain.Order, from domain.OrderStatus) error {
	c, span := otel.Tracer.Start(c, "EventPublisher OrderStatusChanged")
	defer span.End()

	changed := event.NewStatusChanged(order, from)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "EventPublisher OrderStatusChanged").
		Str(log.KeyBroker, p.topic).
		Any(log.KeyEvent, changed).
		Logger()

	logger.Trace().Msg("marshalling event")
	payload, err := json.Marshal(changed)
	if err != nil {
		err = fmt.Errorf("failed marshalling status changed event with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger.Trace().Msg("publishing event")
	if err = p.publisher.Publish(c, p.topic, payload); err != nil {
		err = fmt.Errorf("failed publishing status changed event with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Debug().Msg("published event")
	return nil
}
