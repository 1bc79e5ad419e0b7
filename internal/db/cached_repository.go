package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
	"github.com/redis/go-redis/v9"
)

// Cache key helpers
func orderKey(orderID string) string {
	return fmt.Sprintf("order:%s", orderID)
}

func invoiceKey(invoiceID string) string {
	return fmt.Sprintf("invoice:%s", invoiceID)
}

// CachedOrderRepository serves single-order reads from Redis. Writes go to
// Postgres first and then refresh the cache entry, so a cached order is never
// older than the last committed status change made through this repository.
type CachedOrderRepository struct {
	*OrderRepository
	cache *cache.RedisCache
}

func NewCachedOrderRepository(repo *OrderRepository, cache *cache.RedisCache) *CachedOrderRepository {
	return &CachedOrderRepository{
		OrderRepository: repo,
		cache:           cache,
	}
}

// GetByOrderID returns a single order (with caching)
func (r *CachedOrderRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	cacheKey := orderKey(orderID)

	var order models.Order
	err := r.cache.Get(ctx, cacheKey, &order)
	if err == nil {
		log.Printf("📦 Cache HIT: order %s", orderID)
		return &order, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Printf("⚠️ Cache error: %v", err)
	}

	log.Printf("💾 Cache MISS: order %s - fetching from DB", orderID)
	o, err := r.OrderRepository.GetByOrderID(ctx, orderID)
	if err != nil || o == nil {
		return o, err
	}

	if err := r.cache.Set(ctx, cacheKey, o); err != nil {
		log.Printf("⚠️ Failed to cache order: %v", err)
	}

	return o, nil
}

// Create inserts the order and primes the cache
func (r *CachedOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.OrderRepository.Create(ctx, order); err != nil {
		return err
	}
	refresh(ctx, r.cache, orderKey(order.OrderID), order)
	return nil
}

// UpdateStatus writes through to the cache after the database commit
func (r *CachedOrderRepository) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	order, err := r.OrderRepository.UpdateStatus(ctx, orderID, status)
	if err != nil || order == nil {
		return order, err
	}
	refresh(ctx, r.cache, orderKey(orderID), order)
	return order, nil
}

// CachedInvoiceRepository caches invoice detail reads. Correlation lookups by
// order id always go to Postgres.
type CachedInvoiceRepository struct {
	*InvoiceRepository
	cache *cache.RedisCache
}

func NewCachedInvoiceRepository(repo *InvoiceRepository, cache *cache.RedisCache) *CachedInvoiceRepository {
	return &CachedInvoiceRepository{
		InvoiceRepository: repo,
		cache:             cache,
	}
}

// GetByInvoiceID returns a single invoice (with caching)
func (r *CachedInvoiceRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	cacheKey := invoiceKey(invoiceID)

	var invoice models.Invoice
	err := r.cache.Get(ctx, cacheKey, &invoice)
	if err == nil {
		log.Printf("📦 Cache HIT: invoice %s", invoiceID)
		return &invoice, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Printf("⚠️ Cache error: %v", err)
	}

	log.Printf("💾 Cache MISS: invoice %s - fetching from DB", invoiceID)
	inv, err := r.InvoiceRepository.GetByInvoiceID(ctx, invoiceID)
	if err != nil || inv == nil {
		return inv, err
	}

	if err := r.cache.Set(ctx, cacheKey, inv); err != nil {
		log.Printf("⚠️ Failed to cache invoice: %v", err)
	}

	return inv, nil
}

// Create inserts the invoice and primes the cache
func (r *CachedInvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if err := r.InvoiceRepository.Create(ctx, invoice); err != nil {
		return err
	}
	refresh(ctx, r.cache, invoiceKey(invoice.InvoiceID), invoice)
	return nil
}

// MarkSent stamps the invoice and writes the stored row through to the cache
func (r *CachedInvoiceRepository) MarkSent(ctx context.Context, invoiceID string, at time.Time) (*models.Invoice, bool, error) {
	inv, stamped, err := r.InvoiceRepository.MarkSent(ctx, invoiceID, at)
	if err != nil || inv == nil {
		return inv, stamped, err
	}
	refresh(ctx, r.cache, invoiceKey(invoiceID), inv)
	return inv, stamped, nil
}

// refresh overwrites a cache entry, dropping it if the write fails so a stale
// value cannot outlive the database change.
func refresh(ctx context.Context, c *cache.RedisCache, key string, value any) {
	if err := c.Set(ctx, key, value); err != nil {
		log.Printf("⚠️ Failed to refresh cache %s: %v", key, err)
		if err := c.Delete(ctx, key); err != nil {
			log.Printf("⚠️ Failed to invalidate cache %s: %v", key, err)
		}
	}
}
