package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
)

// InvoicesSchema is owned by the invoice service only. order_id is a soft
// reference into the order store and carries no foreign key.
var InvoicesSchema = []string{
	`CREATE TABLE IF NOT EXISTS invoices (
		id         BIGSERIAL PRIMARY KEY,
		invoice_id TEXT        NOT NULL UNIQUE,
		order_id   TEXT        NOT NULL,
		pdf_url    TEXT        NOT NULL,
		sent_at    TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS invoices_order_id_idx ON invoices (order_id)`,
}

const invoiceColumns = `invoice_id, order_id, pdf_url, sent_at, created_at`

type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(database *PostgresDB) *InvoiceRepository {
	return &InvoiceRepository{db: database.Conn}
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var inv models.Invoice
	var sentAt sql.NullTime
	if err := row.Scan(&inv.InvoiceID, &inv.OrderID, &inv.PdfURL, &sentAt, &inv.CreatedAt); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		inv.SentAt = &t
	}
	return &inv, nil
}

// Create inserts a new invoice
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	query := `
		INSERT INTO invoices (invoice_id, order_id, pdf_url, sent_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	var sentAt sql.NullTime
	if invoice.SentAt != nil {
		sentAt = sql.NullTime{Time: *invoice.SentAt, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query, invoice.InvoiceID, invoice.OrderID, invoice.PdfURL, sentAt).
		Scan(&invoice.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	return nil
}

// GetByInvoiceID returns nil, nil when absent
func (r *InvoiceRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_id = $1`
	return r.getOne(ctx, query, invoiceID)
}

// FindByOrderID returns the canonical invoice for an order: the first one
// created. Returns nil, nil when the order has no invoice.
func (r *InvoiceRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE order_id = $1 ORDER BY created_at, id LIMIT 1`
	return r.getOne(ctx, query, orderID)
}

func (r *InvoiceRepository) getOne(ctx context.Context, query string, arg string) (*models.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// GetAll returns all invoices, newest first
func (r *InvoiceRepository) GetAll(ctx context.Context) ([]models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invoices: %w", err)
	}

	return invoices, nil
}

// MarkSent stamps sent_at only if it is still NULL. stamped is false when the
// invoice had already been stamped; the stored row is returned either way.
// Returns nil, false, nil when the invoice does not exist.
func (r *InvoiceRepository) MarkSent(ctx context.Context, invoiceID string, at time.Time) (invoice *models.Invoice, stamped bool, err error) {
	query := `
		UPDATE invoices SET sent_at = $2
		WHERE invoice_id = $1 AND sent_at IS NULL
		RETURNING ` + invoiceColumns

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, invoiceID, at))
	if err == nil {
		return inv, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to mark invoice sent: %w", err)
	}

	inv, err = r.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, false, err
	}
	return inv, false, nil
}
