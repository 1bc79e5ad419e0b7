package service

import (
	"context"
	"sync"
	"time"

	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
)

type memOrderStore struct {
	mu      sync.Mutex
	orders  map[string]models.Order
	updates int
}

func newMemOrderStore(orders ...models.Order) *memOrderStore {
	s := &memOrderStore{orders: make(map[string]models.Order)}
	for _, o := range orders {
		s.orders[o.OrderID] = o
	}
	return s
}

func (s *memOrderStore) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt
	s.orders[order.OrderID] = *order
	return nil
}

func (s *memOrderStore) GetByOrderID(_ context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// GetOrder lets the store double as the invoice side's view of the order side.
func (s *memOrderStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.GetByOrderID(ctx, orderID)
}

func (s *memOrderStore) GetAll(_ context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out, nil
}

func (s *memOrderStore) ListByStatus(_ context.Context, status models.OrderStatus) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOrderStore) UpdateStatus(_ context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	s.updates++
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = o
	return &o, nil
}

type memInvoiceStore struct {
	mu            sync.Mutex
	invoices      []models.Invoice
	markSentCalls int
}

func (s *memInvoiceStore) Create(_ context.Context, invoice *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice.CreatedAt = time.Now().UTC()
	s.invoices = append(s.invoices, *invoice)
	return nil
}

func (s *memInvoiceStore) GetByInvoiceID(_ context.Context, invoiceID string) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.InvoiceID == invoiceID {
			return &inv, nil
		}
	}
	return nil, nil
}

func (s *memInvoiceStore) FindByOrderID(_ context.Context, orderID string) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.OrderID == orderID {
			return &inv, nil
		}
	}
	return nil, nil
}

func (s *memInvoiceStore) GetAll(_ context.Context) ([]models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Invoice(nil), s.invoices...), nil
}

func (s *memInvoiceStore) MarkSent(_ context.Context, invoiceID string, at time.Time) (*models.Invoice, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markSentCalls++
	for i := range s.invoices {
		if s.invoices[i].InvoiceID != invoiceID {
			continue
		}
		stamped := false
		if s.invoices[i].SentAt == nil {
			t := at
			s.invoices[i].SentAt = &t
			stamped = true
		}
		inv := s.invoices[i]
		return &inv, stamped, nil
	}
	return nil, false, nil
}

func (s *memInvoiceStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invoices)
}

type recordingPublisher struct {
	mu       sync.Mutex
	orderIDs []string
	err      error
}

func (p *recordingPublisher) PublishShipped(_ context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.orderIDs = append(p.orderIDs, orderID)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.orderIDs...)
}

// tickingClock returns a later instant on every call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func testOrder(id string, status models.OrderStatus) models.Order {
	return models.Order{
		OrderID:    id,
		Status:     status,
		CustomerID: "customer-1",
		SellerID:   "seller-1",
		ProductID:  "product-1",
		Price:      1999,
		Quantity:   1,
	}
}
