// Package broker moves opaque event payloads between processes over Redis Pub/Sub or a RabbitMQ
// fanout exchange.
package broker

import (
	"context"
	"fmt"
)

const (
	KindRedis = "redis"
	KindAMQP  = "amqp"
)

type Message struct {
	Topic   string
	Payload []byte
}

type Publisher interface {
	Publish(c context.Context, topic string, payload []byte) error
}

// Subscriber delivers messages until c is cancelled, then closes the channel.
type Subscriber interface {
	Subscribe(c context.Context, topic string) (<-chan Message, error)
}

type Broker interface {
	Publisher
	Subscriber
	Close() error
}

func ValidateKind(kind string) error {
	switch kind {
	case KindRedis, KindAMQP:
		return nil
	}
	return fmt.Errorf("unknown broker kind=%s", kind)
}
