package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel // publishing, in confirm mode
	mu       sync.Mutex
	prefetch int
}

func NewRabbitMQ(url string, prefetch int) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	log.Println("✅ Connected to RabbitMQ")

	return &RabbitMQ{
		conn:     conn,
		channel:  channel,
		prefetch: prefetch,
	}, nil
}

// DeclareQueue creates a durable queue if it doesn't exist
func (r *RabbitMQ) DeclareQueue(name string, args amqp.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.channel.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,  // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}

	log.Printf("✅ Queue declared: %s", name)
	return nil
}

// DeclareTopology declares the work queue, a retry queue that dead-letters
// expired messages back into the work queue, and the dead-letter queue.
func (r *RabbitMQ) DeclareTopology(_ context.Context, t Topology) error {
	if err := r.DeclareQueue(t.Queue, nil); err != nil {
		return err
	}

	if t.RetryQueue != "" {
		args := amqp.Table{
			"x-message-ttl":             t.RetryDelay.Milliseconds(),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": t.Queue,
		}
		if err := r.DeclareQueue(t.RetryQueue, args); err != nil {
			return err
		}
	}

	if t.DeadLetterQueue != "" {
		if err := r.DeclareQueue(t.DeadLetterQueue, nil); err != nil {
			return err
		}
	}

	return nil
}

// Publish sends a persistent message and waits for the broker to confirm it
func (r *RabbitMQ) Publish(ctx context.Context, queue string, msg Message) error {
	r.mu.Lock()
	confirm, err := r.channel.PublishWithDeferredConfirmWithContext(ctx,
		"",    // exchange
		queue, // routing key (queue name)
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: msg.Key,
			Timestamp:     time.Now().UTC(),
			Headers:       amqp.Table{AttemptHeader: int32(attemptOrFirst(msg.Attempt))},
			Body:          msg.Body,
		},
	)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm message: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker rejected message for queue %s", queue)
	}

	log.Printf("📤 Message published to queue: %s", queue)
	return nil
}

// Consume receives messages from a queue on a dedicated channel with manual ack
func (r *RabbitMQ) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if r.prefetch > 0 {
		if err := ch.Qos(r.prefetch, 0, false); err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	messages, err := ch.Consume(
		queue, // queue name
		"",    // consumer tag
		false, // auto-ack (false = manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	log.Printf("👂 Listening on queue: %s", queue)

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-messages:
				if !ok {
					log.Printf("⚠️ Delivery channel closed for queue: %s", queue)
					return
				}
				select {
				case out <- rabbitDelivery{d: d}:
				case <-ctx.Done():
					// Unacked deliveries return to the queue when the channel closes.
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the connection
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

type rabbitDelivery struct {
	d amqp.Delivery
}

func (r rabbitDelivery) Body() []byte { return r.d.Body }
func (r rabbitDelivery) Key() string  { return r.d.CorrelationId }

func (r rabbitDelivery) Attempt() int {
	return attemptOrFirst(headerInt(r.d.Headers[AttemptHeader]))
}

func (r rabbitDelivery) Ack() error {
	return r.d.Ack(false)
}

func (r rabbitDelivery) Nack(requeue bool) error {
	return r.d.Nack(false, requeue)
}

func headerInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	default:
		return 0
	}
}
