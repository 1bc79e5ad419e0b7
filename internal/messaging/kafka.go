package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka maps each queue onto a topic. A consumer group reads the topic, so
// each message is handled by one member of the group.
type Kafka struct {
	brokers []string
	group   string
	w       *kafka.Writer

	mu         sync.Mutex
	topologies map[string]Topology
}

func NewKafka(brokers []string, group string) *Kafka {
	log.Printf("✅ Kafka writer ready: %v", brokers)
	return &Kafka{
		brokers: brokers,
		group:   group,
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		topologies: make(map[string]Topology),
	}
}

// DeclareTopology records the topology; topics are created on first write.
// The retry forwarder runs inside Consume of the work queue.
func (k *Kafka) DeclareTopology(_ context.Context, t Topology) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.topologies[t.Queue] = t
	return nil
}

func (k *Kafka) Publish(ctx context.Context, queue string, msg Message) error {
	err := k.w.WriteMessages(ctx, kafka.Message{
		Topic: queue,
		Key:   []byte(msg.Key),
		Value: msg.Body,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: AttemptHeader, Value: []byte(strconv.Itoa(attemptOrFirst(msg.Attempt)))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	log.Printf("📤 Message published to topic: %s", queue)
	return nil
}

// Consume hands out one message at a time and fetches the next only after the
// previous one is settled, so a committed offset never skips an unsettled message.
func (k *Kafka) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.brokers,
		GroupID:        k.group,
		Topic:          queue,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // synchronous commits
	})

	k.mu.Lock()
	t, ok := k.topologies[queue]
	k.mu.Unlock()
	if ok && t.RetryQueue != "" {
		go k.forwardRetries(ctx, t)
	}

	log.Printf("👂 Listening on topic: %s (group %s)", queue, k.group)

	out := make(chan Delivery)
	go k.deliver(ctx, queue, r, out)
	return out, nil
}

// messageReader is the part of *kafka.Reader a consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// settleTimeout bounds how long shutdown waits for a handed-out message.
const settleTimeout = 10 * time.Second

// deliver feeds out from r until ctx is done. The reader is closed only after
// the message handed out last has been settled, so its commit still succeeds
// during shutdown.
func (k *Kafka) deliver(ctx context.Context, queue string, r messageReader, out chan<- Delivery) {
	defer close(out)
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("❌ Kafka fetch failed on %s: %v", queue, err)
			}
			return
		}

		d := &kafkaDelivery{k: k, r: r, m: m, done: make(chan struct{})}
		select {
		case out <- d:
		case <-ctx.Done():
			return
		}

		select {
		case <-d.done:
		case <-ctx.Done():
			select {
			case <-d.done:
			case <-time.After(settleTimeout):
				log.Printf("⚠️ Closing %s reader with an unsettled message", queue)
			}
			return
		}
	}
}

// forwardRetries moves messages from the retry topic back to the work topic
// once they are RetryDelay old.
func (k *Kafka) forwardRetries(ctx context.Context, t Topology) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		GroupID:  k.group + "-retry",
		Topic:    t.RetryQueue,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			return
		}

		if wait := time.Until(m.Time.Add(t.RetryDelay)); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}

		msg := Message{Key: string(m.Key), Body: m.Value, Attempt: kafkaAttempt(m)}
		for {
			err := k.Publish(ctx, t.Queue, msg)
			if err == nil {
				break
			}
			log.Printf("❌ Failed to forward retry for %s: %v", t.Queue, err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Printf("⚠️ Failed to commit retry offset: %v", err)
			return
		}
	}
}

func (k *Kafka) Close() error {
	return k.w.Close()
}

type kafkaDelivery struct {
	k    *Kafka
	r    messageReader
	m    kafka.Message
	once sync.Once
	done chan struct{}
}

func (d *kafkaDelivery) Body() []byte { return d.m.Value }
func (d *kafkaDelivery) Key() string  { return string(d.m.Key) }
func (d *kafkaDelivery) Attempt() int { return kafkaAttempt(d.m) }

func (d *kafkaDelivery) Ack() error {
	defer d.settle()
	return d.r.CommitMessages(context.Background(), d.m)
}

// Nack with requeue appends the message to the end of its topic before
// committing, since Kafka cannot return a message to the head of a partition.
func (d *kafkaDelivery) Nack(requeue bool) error {
	defer d.settle()
	if requeue {
		msg := Message{Key: d.Key(), Body: d.m.Value, Attempt: d.Attempt()}
		if err := d.k.Publish(context.Background(), d.m.Topic, msg); err != nil {
			return err
		}
	}
	return d.r.CommitMessages(context.Background(), d.m)
}

func (d *kafkaDelivery) settle() {
	d.once.Do(func() { close(d.done) })
}

func kafkaAttempt(m kafka.Message) int {
	for _, h := range m.Headers {
		if h.Key == AttemptHeader {
			n, _ := strconv.Atoi(string(h.Value))
			return attemptOrFirst(n)
		}
	}
	return 1
}
