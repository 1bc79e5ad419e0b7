package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
)

type ShippedPublisher struct {
	broker messaging.Publisher
	queue  string
}

// NewShippedPublisher declares the shipped-event topology so the queue exists
// before the first publish.
func NewShippedPublisher(ctx context.Context, broker messaging.Broker, topology messaging.Topology) (*ShippedPublisher, error) {
	if err := broker.DeclareTopology(ctx, topology); err != nil {
		return nil, err
	}

	return &ShippedPublisher{broker: broker, queue: topology.Queue}, nil
}

// PublishShipped publishes a ShippedEvent for orderID
func (p *ShippedPublisher) PublishShipped(ctx context.Context, orderID string) error {
	data, err := json.Marshal(models.ShippedEvent{OrderID: orderID})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.broker.Publish(ctx, p.queue, messaging.Message{Key: orderID, Body: data, Attempt: 1}); err != nil {
		return err
	}

	log.Printf("📤 Published shipped event for order %s", orderID)
	return nil
}
