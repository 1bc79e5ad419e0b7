package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
)

// OrdersSchema is owned by the order service only.
var OrdersSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id          BIGSERIAL PRIMARY KEY,
		order_id    TEXT        NOT NULL UNIQUE,
		status      TEXT        NOT NULL,
		customer_id TEXT        NOT NULL,
		seller_id   TEXT        NOT NULL,
		product_id  TEXT        NOT NULL,
		price       INTEGER     NOT NULL CHECK (price > 0),
		quantity    INTEGER     NOT NULL CHECK (quantity > 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status)`,
}

const orderColumns = `order_id, status, customer_id, seller_id, product_id, price, quantity, created_at, updated_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(database *PostgresDB) *OrderRepository {
	return &OrderRepository{db: database.Conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var status string
	err := row.Scan(&o.OrderID, &status, &o.CustomerID, &o.SellerID, &o.ProductID,
		&o.Price, &o.Quantity, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	return &o, nil
}

// Create inserts a new order
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_id, status, customer_id, seller_id, product_id, price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		order.OrderID,
		string(order.Status),
		order.CustomerID,
		order.SellerID,
		order.ProductID,
		order.Price,
		order.Quantity,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

// GetByOrderID returns nil, nil when no order has this business key.
func (r *OrderRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return order, nil
}

// GetAll returns all orders, newest first
func (r *OrderRepository) GetAll(ctx context.Context) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY id DESC`
	return r.list(ctx, query)
}

// ListByStatus returns orders currently in status, oldest first
func (r *OrderRepository) ListByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY id`
	return r.list(ctx, query, string(status))
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	return orders, nil
}

// UpdateStatus overwrites the status and returns the committed row.
// Returns nil, nil when the order does not exist.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	query := `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE order_id = $2
		RETURNING ` + orderColumns

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, string(status), orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	return order, nil
}
