package messaging

import (
	"context"
	"fmt"
	"time"
)

// AttemptHeader carries the 1-based delivery attempt across retry hops.
const AttemptHeader = "x-attempt"

type Message struct {
	Key     string // partitioning / correlation key, usually the order id
	Body    []byte
	Attempt int
}

// Delivery is one received message. Exactly one of Ack or Nack must be called.
type Delivery interface {
	Body() []byte
	Key() string
	Attempt() int
	Ack() error
	Nack(requeue bool) error
}

type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
}

type Subscriber interface {
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
}

// Topology describes a work queue together with its delayed-retry queue and
// dead-letter queue. Messages published to RetryQueue reappear on Queue after
// RetryDelay.
type Topology struct {
	Queue           string
	RetryQueue      string
	DeadLetterQueue string
	RetryDelay      time.Duration
}

type Broker interface {
	Publisher
	Subscriber
	DeclareTopology(ctx context.Context, t Topology) error
	Close() error
}

type Options struct {
	RabbitMQURL  string
	Prefetch     int
	KafkaBrokers []string
	KafkaGroup   string
}

// Open connects to the broker named by kind ("rabbitmq" or "kafka").
func Open(kind string, opts Options) (Broker, error) {
	switch kind {
	case "rabbitmq":
		return NewRabbitMQ(opts.RabbitMQURL, opts.Prefetch)
	case "kafka":
		return NewKafka(opts.KafkaBrokers, opts.KafkaGroup), nil
	default:
		return nil, fmt.Errorf("unsupported broker %q", kind)
	}
}

func attemptOrFirst(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
