package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
)

// InvoiceStore is the invoice side's persistence. Lookups return nil, nil
// when nothing matches.
type InvoiceStore interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Invoice, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Invoice, error)
	GetAll(ctx context.Context) ([]models.Invoice, error)
	MarkSent(ctx context.Context, invoiceID string, at time.Time) (*models.Invoice, bool, error)
}

// OrderReader reads the order side synchronously. Returns nil, nil when the
// order does not exist.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

type InvoiceService struct {
	store  InvoiceStore
	orders OrderReader
	now    func() time.Time
}

type InvoiceOption func(*InvoiceService)

func WithClock(now func() time.Time) InvoiceOption {
	return func(s *InvoiceService) {
		s.now = now
	}
}

func NewInvoiceService(store InvoiceStore, orders OrderReader, opts ...InvoiceOption) *InvoiceService {
	s := &InvoiceService{
		store:  store,
		orders: orders,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload creates the invoice for an existing order. If the order is already
// SHIPPED the invoice is created with sentAt set, which covers shipments that
// happened before the document was uploaded.
func (s *InvoiceService) Upload(ctx context.Context, orderID, pdfURL string) (*models.Invoice, error) {
	const op = "invoices.Upload"

	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(pdfURL) == "" {
		return nil, apperr.New(op, orderID, apperr.ErrValidation)
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.New(op, orderID, apperr.ErrNotFound)
	}

	invoice := &models.Invoice{
		InvoiceID: uuid.NewString(),
		OrderID:   orderID,
		PdfURL:    pdfURL,
	}
	// Stamped in the same insert so a shipped order never leaves an unsent invoice behind.
	if order.Status == models.StatusShipped {
		now := s.now()
		invoice.SentAt = &now
	}
	if err := s.store.Create(ctx, invoice); err != nil {
		return nil, err
	}

	if invoice.Sent() {
		log.Printf("✅ Order %s already shipped, invoice %s created as sent", orderID, invoice.InvoiceID)
	} else {
		log.Printf("✅ Invoice %s created for order %s", invoice.InvoiceID, orderID)
	}
	return invoice, nil
}

func (s *InvoiceService) Get(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	invoice, err := s.store.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, apperr.New("invoices.Get", invoiceID, apperr.ErrNotFound)
	}
	return invoice, nil
}

func (s *InvoiceService) List(ctx context.Context) ([]models.Invoice, error) {
	return s.store.GetAll(ctx)
}

// Correlate marks the canonical invoice of orderID as sent. The stamp is
// written only once; replays for an already-sent invoice succeed without a
// write. Fails with a correlation miss when the order has no invoice yet.
func (s *InvoiceService) Correlate(ctx context.Context, orderID string) (*models.Invoice, error) {
	const op = "invoices.Correlate"

	invoice, err := s.store.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, apperr.New(op, orderID, apperr.ErrCorrelationMiss)
	}
	if invoice.Sent() {
		log.Printf("♻️ Invoice %s already sent, nothing to do", invoice.InvoiceID)
		return invoice, nil
	}

	stamped, _, err := s.store.MarkSent(ctx, invoice.InvoiceID, s.now())
	if err != nil {
		return nil, err
	}
	if stamped == nil {
		return nil, apperr.New(op, orderID, apperr.ErrCorrelationMiss)
	}
	return stamped, nil
}
