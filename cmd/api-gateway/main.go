package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/gateway"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/server"
)

func main() {
	cfg, err := config.Load("api-gateway")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var resolver gateway.Resolver
	if cfg.ConsulEnabled {
		consul, err := discovery.NewConsulClient(cfg.ConsulAddr)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Consul, using configured URLs: %v", err)
		} else {
			resolver = consul
		}
	}

	gw := gateway.New(resolver, map[string]string{
		"order-service":   cfg.OrderServiceURL,
		"invoice-service": cfg.InvoiceServiceURL,
	})
	if resolver != nil {
		go gw.Watch(ctx, 10*time.Second)
	}

	router := gin.Default()
	gw.Register(router)

	if err := server.Serve(ctx, &http.Server{Addr: cfg.HTTPAddr(), Handler: router}); err != nil {
		log.Printf("❌ API gateway stopped: %v", err)
	}
}
