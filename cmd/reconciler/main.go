// Command reconciler republishes shipped events for every SHIPPED order,
// either once or on a fixed interval. Invoices that are already stamped are
// left untouched by the consumer, so repeated runs are harmless.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/db"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/service"
)

func main() {
	interval := flag.Duration("interval", 0, "repeat the sweep on this interval; 0 runs once")
	flag.Parse()

	cfg, err := config.Load("reconciler")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.NewPostgresDB(ctx, cfg.OrdersDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	broker, err := messaging.Open(cfg.Broker, messaging.Options{
		RabbitMQURL:  cfg.RabbitMQURL,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaGroup:   cfg.KafkaGroup,
	})
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.Broker, err)
	}
	defer broker.Close()

	shippedPublisher, err := publisher.NewShippedPublisher(ctx, broker, messaging.Topology{
		Queue:           cfg.ShippedQueue,
		RetryQueue:      cfg.RetryQueue(),
		DeadLetterQueue: cfg.DeadLetterQueue(),
		RetryDelay:      cfg.RetryDelay,
	})
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}

	orderService := service.NewOrderService(db.NewOrderRepository(database), shippedPublisher)

	sweep := func() {
		if _, err := orderService.ReconcileShipped(ctx); err != nil {
			log.Printf("❌ Reconciliation incomplete: %v", err)
		}
	}

	sweep()
	if *interval <= 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Reconciler stopped")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
