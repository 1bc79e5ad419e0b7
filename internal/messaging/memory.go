package messaging

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("broker closed")

// Memory is an in-process Broker with the same retry and dead-letter
// semantics as the RabbitMQ topology. Published messages are kept per queue
// for inspection.
type Memory struct {
	mu         sync.Mutex
	queues     map[string]chan Message
	published  map[string][]Message
	retryOf    map[string]Topology // keyed by retry queue
	acked      map[string]int
	nacked     map[string]int
	closed     bool
	publishErr error
}

func NewMemory() *Memory {
	return &Memory{
		queues:    make(map[string]chan Message),
		published: make(map[string][]Message),
		retryOf:   make(map[string]Topology),
		acked:     make(map[string]int),
		nacked:    make(map[string]int),
	}
}

func (m *Memory) queue(name string) chan Message {
	q, ok := m.queues[name]
	if !ok {
		q = make(chan Message, 1024)
		m.queues[name] = q
	}
	return q
}

func (m *Memory) DeclareTopology(_ context.Context, t Topology) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue(t.Queue)
	if t.RetryQueue != "" {
		m.retryOf[t.RetryQueue] = t
	}
	if t.DeadLetterQueue != "" {
		m.queue(t.DeadLetterQueue)
	}
	return nil
}

// FailPublish makes every following Publish return err until called with nil.
func (m *Memory) FailPublish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

func (m *Memory) Publish(ctx context.Context, queue string, msg Message) error {
	msg.Attempt = attemptOrFirst(msg.Attempt)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.publishErr != nil {
		err := m.publishErr
		m.mu.Unlock()
		return err
	}
	m.published[queue] = append(m.published[queue], msg)

	if t, ok := m.retryOf[queue]; ok {
		target := m.queue(t.Queue)
		m.mu.Unlock()
		time.AfterFunc(t.RetryDelay, func() { target <- msg })
		return nil
	}

	q := m.queue(queue)
	m.mu.Unlock()

	select {
	case q <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	q := m.queue(queue)
	m.mu.Unlock()

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-q:
				d := &memoryDelivery{m: m, queue: queue, msg: msg}
				select {
				case out <- d:
				case <-ctx.Done():
					q <- msg
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Published returns every message published to queue so far.
func (m *Memory) Published(queue string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.published[queue]...)
}

// Acked and Nacked count settled deliveries received from queue.
func (m *Memory) Acked(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked[queue]
}

func (m *Memory) Nacked(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nacked[queue]
}

type memoryDelivery struct {
	m     *Memory
	queue string
	msg   Message
}

func (d *memoryDelivery) Body() []byte { return d.msg.Body }
func (d *memoryDelivery) Key() string  { return d.msg.Key }
func (d *memoryDelivery) Attempt() int { return d.msg.Attempt }

func (d *memoryDelivery) Ack() error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	d.m.acked[d.queue]++
	return nil
}

func (d *memoryDelivery) Nack(requeue bool) error {
	d.m.mu.Lock()
	d.m.nacked[d.queue]++
	q := d.m.queue(d.queue)
	d.m.mu.Unlock()
	if requeue {
		go func() { q <- d.msg }()
	}
	return nil
}
