package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
	"golang.org/x/sync/errgroup"
)

// Correlator applies a shipped order to its invoice.
type Correlator interface {
	Correlate(ctx context.Context, orderID string) (*models.Invoice, error)
}

type Broker interface {
	messaging.Publisher
	messaging.Subscriber
}

// ShippedConsumer acknowledges a delivery only after the correlator succeeds.
// Failed correlations are retried through the delayed retry queue up to
// MaxAttempts and then dead-lettered.
type ShippedConsumer struct {
	broker      Broker
	correlator  Correlator
	topology    messaging.Topology
	workers     int
	maxAttempts int
	backoff     time.Duration
}

type Options struct {
	Workers     int
	MaxAttempts int
}

func NewShippedConsumer(broker Broker, correlator Correlator, topology messaging.Topology, opts Options) *ShippedConsumer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &ShippedConsumer{
		broker:      broker,
		correlator:  correlator,
		topology:    topology,
		workers:     opts.Workers,
		maxAttempts: opts.MaxAttempts,
		backoff:     200 * time.Millisecond,
	}
}

// Run consumes until ctx is cancelled or a delivery cannot be settled.
func (c *ShippedConsumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Consuming under the group context closes deliveries when any worker fails.
	deliveries, err := c.broker.Consume(ctx, c.topology.Queue)
	if err != nil {
		return err
	}

	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			for d := range deliveries {
				if err := c.Handle(ctx, d); err != nil {
					return err
				}
			}
			return nil
		})
	}

	log.Printf("👂 Shipped consumer running: queue=%s workers=%d maxAttempts=%d",
		c.topology.Queue, c.workers, c.maxAttempts)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Handle processes one delivery and settles it. The returned error is non-nil
// only when the delivery could not be acked, nacked or rerouted.
func (c *ShippedConsumer) Handle(ctx context.Context, d messaging.Delivery) error {
	log.Printf("📥 Received shipped event (attempt %d)", d.Attempt())

	var event models.ShippedEvent
	if err := json.Unmarshal(d.Body(), &event); err != nil {
		log.Printf("❌ Failed to parse event: %v", err)
		return c.deadLetter(ctx, d, "malformed payload")
	}
	if event.OrderID == "" {
		log.Printf("❌ Shipped event without orderId")
		return c.deadLetter(ctx, d, "missing orderId")
	}

	invoice, err := c.correlator.Correlate(ctx, event.OrderID)
	switch {
	case err == nil:
		log.Printf("✅ Invoice %s marked sent for order %s", invoice.InvoiceID, event.OrderID)
		return d.Ack()
	case ctx.Err() != nil:
		log.Printf("⚠️ Shutting down while handling order %s, requeueing", event.OrderID)
		return d.Nack(true)
	case apperr.IsCorrelationMiss(err):
		log.Printf("⚠️ No invoice yet for order %s", event.OrderID)
	default:
		log.Printf("❌ Failed to correlate order %s: %v", event.OrderID, err)
	}

	return c.retry(ctx, d, event.OrderID)
}

func (c *ShippedConsumer) retry(ctx context.Context, d messaging.Delivery, orderID string) error {
	if d.Attempt() >= c.maxAttempts {
		return c.deadLetter(ctx, d, fmt.Sprintf("gave up after %d attempts", d.Attempt()))
	}
	if c.topology.RetryQueue == "" {
		return c.requeue(ctx, d)
	}

	msg := messaging.Message{Key: orderID, Body: d.Body(), Attempt: d.Attempt() + 1}
	if err := c.broker.Publish(ctx, c.topology.RetryQueue, msg); err != nil {
		log.Printf("❌ Failed to schedule retry for order %s: %v", orderID, err)
		return c.requeue(ctx, d)
	}

	log.Printf("🔁 Order %s scheduled for attempt %d in %s", orderID, msg.Attempt, c.topology.RetryDelay)
	return d.Ack()
}

func (c *ShippedConsumer) deadLetter(ctx context.Context, d messaging.Delivery, reason string) error {
	if c.topology.DeadLetterQueue == "" {
		log.Printf("⚠️ Dropping message (%s): no dead-letter queue configured", reason)
		return d.Nack(false)
	}

	msg := messaging.Message{Key: d.Key(), Body: d.Body(), Attempt: d.Attempt()}
	if err := c.broker.Publish(ctx, c.topology.DeadLetterQueue, msg); err != nil {
		log.Printf("❌ Failed to dead-letter message: %v", err)
		return c.requeue(ctx, d)
	}

	log.Printf("☠️ Message dead-lettered to %s: %s", c.topology.DeadLetterQueue, reason)
	return d.Ack()
}

// requeue returns the delivery to the broker after a short pause so a broker
// outage does not turn into a hot redelivery loop.
func (c *ShippedConsumer) requeue(ctx context.Context, d messaging.Delivery) error {
	select {
	case <-time.After(c.backoff):
	case <-ctx.Done():
	}
	return d.Nack(true)
}
