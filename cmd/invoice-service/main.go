package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/client"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/db"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/server"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load("invoice-service")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("Failed to create upload dir: %v", err)
	}

	// Connect to PostgreSQL
	database, err := db.NewPostgresDB(ctx, cfg.InvoicesDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx, db.InvoicesSchema...); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Connect to Redis
	redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.CacheTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	// Connect to the broker
	broker, err := messaging.Open(cfg.Broker, messaging.Options{
		RabbitMQURL:  cfg.RabbitMQURL,
		Prefetch:     cfg.ConsumerPrefetch,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaGroup:   cfg.KafkaGroup,
	})
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.Broker, err)
	}
	defer broker.Close()

	topology := messaging.Topology{
		Queue:           cfg.ShippedQueue,
		RetryQueue:      cfg.RetryQueue(),
		DeadLetterQueue: cfg.DeadLetterQueue(),
		RetryDelay:      cfg.RetryDelay,
	}
	if err := broker.DeclareTopology(ctx, topology); err != nil {
		log.Fatalf("Failed to declare queues: %v", err)
	}

	// Connect to Consul; the order client falls back to the configured URL without it
	var resolver client.URLResolver
	if cfg.ConsulEnabled {
		consul, err := discovery.NewConsulClient(cfg.ConsulAddr)
		if err != nil {
			log.Printf("⚠️ Consul unavailable, using %s: %v", cfg.OrderServiceURL, err)
		} else {
			resolver = consul
			if err := consul.Register(discovery.ServiceConfig{
				Name: cfg.ServiceName,
				ID:   cfg.ServiceID,
				Port: cfg.HTTPPort,
				Tags: []string{"api", "invoices"},
			}); err != nil {
				log.Printf("⚠️ Failed to register service: %v", err)
			} else {
				defer consul.Deregister(cfg.ServiceID)
			}
		}
	}

	orderClient := client.NewOrderClient("order-service", cfg.OrderServiceURL, resolver)
	invoiceRepo := db.NewCachedInvoiceRepository(db.NewInvoiceRepository(database), redisCache)
	invoiceService := service.NewInvoiceService(invoiceRepo, orderClient)

	shippedConsumer := consumer.NewShippedConsumer(broker, invoiceService, topology, consumer.Options{
		Workers:     cfg.ConsumerWorkers,
		MaxAttempts: cfg.ConsumerMaxAttempts,
	})

	router := gin.Default()
	handlers.NewInvoiceHandler(invoiceService, cfg.UploadDir).Register(router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := shippedConsumer.Run(gctx); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errors.New("shipped consumer stopped: delivery channel closed")
		}
		return nil
	})
	g.Go(func() error {
		return server.Serve(gctx, &http.Server{Addr: cfg.HTTPAddr(), Handler: router})
	})

	if err := g.Wait(); err != nil {
		log.Printf("❌ Invoice service stopped: %v", err)
	}
}
