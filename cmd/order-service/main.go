package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/db"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/server"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/service"
)

func main() {
	cfg, err := config.Load("order-service")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	database, err := db.NewPostgresDB(ctx, cfg.OrdersDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx, db.OrdersSchema...); err != nil {
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

	shippedPublisher, err := publisher.NewShippedPublisher(ctx, broker, messaging.Topology{
		Queue:           cfg.ShippedQueue,
		RetryQueue:      cfg.RetryQueue(),
		DeadLetterQueue: cfg.DeadLetterQueue(),
		RetryDelay:      cfg.RetryDelay,
	})
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}

	orderRepo := db.NewCachedOrderRepository(db.NewOrderRepository(database), redisCache)
	orderService := service.NewOrderService(orderRepo, shippedPublisher,
		service.WithStrictTransitions(cfg.StrictTransitions))

	if cfg.ConsulEnabled {
		consul, err := discovery.NewConsulClient(cfg.ConsulAddr)
		if err != nil {
			log.Printf("⚠️ Consul unavailable, skipping registration: %v", err)
		} else if err := consul.Register(discovery.ServiceConfig{
			Name: cfg.ServiceName,
			ID:   cfg.ServiceID,
			Port: cfg.HTTPPort,
			Tags: []string{"api", "orders"},
		}); err != nil {
			log.Printf("⚠️ Failed to register service: %v", err)
		} else {
			defer consul.Deregister(cfg.ServiceID)
		}
	}

	router := gin.Default()
	handlers.NewOrderHandler(orderService).Register(router)

	log.Printf("   Publishing shipped events to %s queue %s", cfg.Broker, cfg.ShippedQueue)
	if err := server.Serve(ctx, &http.Server{Addr: cfg.HTTPAddr(), Handler: router}); err != nil {
		log.Printf("❌ Order service stopped: %v", err)
	}
}
