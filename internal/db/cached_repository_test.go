package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *cache.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisCacheFromClient(client, time.Minute)
}

func TestCachedOrderRepository_ReadThrough(t *testing.T) {
	database, mock := newMock(t)
	repo := NewCachedOrderRepository(NewOrderRepository(database), newTestCache(t))
	now := time.Now().UTC()

	// Only one database read is expected; the second comes from Redis.
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1")).
		WithArgs("o-1").
		WillReturnRows(orderRow(now, models.StatusCreated))

	first, err := repo.GetByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	second, err := repo.GetByOrderID(context.Background(), "o-1")
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, models.StatusCreated, second.Status)
}

func TestCachedOrderRepository_UpdateStatusWritesThrough(t *testing.T) {
	database, mock := newMock(t)
	repo := NewCachedOrderRepository(NewOrderRepository(database), newTestCache(t))
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1")).
		WithArgs("o-1").
		WillReturnRows(orderRow(now, models.StatusCreated))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders SET status = $1")).
		WithArgs("SHIPPED", "o-1").
		WillReturnRows(orderRow(now, models.StatusShipped))

	_, err := repo.GetByOrderID(context.Background(), "o-1")
	require.NoError(t, err)

	_, err = repo.UpdateStatus(context.Background(), "o-1", models.StatusShipped)
	require.NoError(t, err)

	cached, err := repo.GetByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, cached.Status)
}

func TestCachedOrderRepository_MissIsNotCached(t *testing.T) {
	database, mock := newMock(t)
	repo := NewCachedOrderRepository(NewOrderRepository(database), newTestCache(t))

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(orderCols))
	}

	for i := 0; i < 2; i++ {
		order, err := repo.GetByOrderID(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, order)
	}
}

func TestCachedInvoiceRepository_MarkSentWritesThrough(t *testing.T) {
	database, mock := newMock(t)
	repo := NewCachedInvoiceRepository(NewInvoiceRepository(database), newTestCache(t))
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM invoices WHERE invoice_id = $1")).
		WithArgs("i-1").
		WillReturnRows(sqlmock.NewRows(invoiceCols).AddRow("i-1", "o-1", "/uploads/a.pdf", nil, now))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE invoices SET sent_at = $2")).
		WithArgs("i-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(invoiceCols).AddRow("i-1", "o-1", "/uploads/a.pdf", now, now))

	inv, err := repo.GetByInvoiceID(context.Background(), "i-1")
	require.NoError(t, err)
	assert.Nil(t, inv.SentAt)

	_, stamped, err := repo.MarkSent(context.Background(), "i-1", now)
	require.NoError(t, err)
	assert.True(t, stamped)

	inv, err = repo.GetByInvoiceID(context.Background(), "i-1")
	require.NoError(t, err)
	assert.NotNil(t, inv.SentAt)
}
