package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubOrders struct {
	order    *models.Order
	err      error
	lastReq  models.CreateOrderRequest
	lastSet  string
	setCalls int
}

func (s *stubOrders) Create(_ context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	s.lastReq = req
	return s.order, s.err
}

func (s *stubOrders) Get(context.Context, string) (*models.Order, error) { return s.order, s.err }

func (s *stubOrders) List(context.Context) ([]models.Order, error) {
	if s.order == nil {
		return nil, s.err
	}
	return []models.Order{*s.order}, s.err
}

func (s *stubOrders) SetStatus(_ context.Context, _ string, status string) (*models.Order, error) {
	s.setCalls++
	s.lastSet = status
	return s.order, s.err
}

type stubInvoices struct {
	invoice *models.Invoice
	err     error
	pdfURL  string
}

func (s *stubInvoices) Upload(_ context.Context, orderID, pdfURL string) (*models.Invoice, error) {
	s.pdfURL = pdfURL
	if s.err != nil {
		return nil, s.err
	}
	return &models.Invoice{InvoiceID: "inv-1", OrderID: orderID, PdfURL: pdfURL}, nil
}

func (s *stubInvoices) Get(context.Context, string) (*models.Invoice, error) { return s.invoice, s.err }

func (s *stubInvoices) List(context.Context) ([]models.Invoice, error) { return nil, s.err }

func orderRouter(svc OrderService) *gin.Engine {
	r := gin.New()
	NewOrderHandler(svc).Register(r)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.New("op", "k", apperr.ErrNotFound), http.StatusNotFound},
		{apperr.New("op", "k", apperr.ErrValidation), http.StatusBadRequest},
		{apperr.New("op", "k", apperr.ErrInvalidTransition), http.StatusConflict},
		{apperr.Wrap("op", "k", apperr.ErrDelivery, errors.New("down")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestCreateOrder(t *testing.T) {
	svc := &stubOrders{order: &models.Order{OrderID: "O1", Status: models.StatusCreated}}
	w := serve(orderRouter(svc), http.MethodPost, "/orders",
		`{"customerId":"c","sellerId":"s","productId":"p","price":100,"quantity":2}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 100, svc.lastReq.Price)

	var got models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "O1", got.OrderID)
}

func TestCreateOrder_BindingError(t *testing.T) {
	w := serve(orderRouter(&stubOrders{}), http.MethodPost, "/orders", `{"customerId":"c","price":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	svc := &stubOrders{err: apperr.New("orders.Get", "O9", apperr.ErrNotFound)}
	w := serve(orderRouter(svc), http.MethodGet, "/orders/O9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrders_EmptyIsArray(t *testing.T) {
	w := serve(orderRouter(&stubOrders{}), http.MethodGet, "/orders", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUpdateOrderStatus(t *testing.T) {
	for _, method := range []string{http.MethodPut, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			svc := &stubOrders{order: &models.Order{OrderID: "O1", Status: models.StatusShipped}}
			w := serve(orderRouter(svc), method, "/orders/O1/status", `{"status":"SHIPPED"}`)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "SHIPPED", svc.lastSet)
		})
	}
}

func TestUpdateOrderStatus_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown status", apperr.New("orders.SetStatus", "O1", apperr.ErrValidation), http.StatusBadRequest},
		{"missing order", apperr.New("orders.SetStatus", "O1", apperr.ErrNotFound), http.StatusNotFound},
		{"backwards", apperr.New("orders.SetStatus", "O1", apperr.ErrInvalidTransition), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(orderRouter(&stubOrders{err: tt.err}), http.MethodPut, "/orders/O1/status", `{"status":"X"}`)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestUpdateOrderStatus_MissingBody(t *testing.T) {
	svc := &stubOrders{}
	w := serve(orderRouter(svc), http.MethodPut, "/orders/O1/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, svc.setCalls)
}

func TestUpdateOrderStatus_DeliveryFailureReturnsOrder(t *testing.T) {
	svc := &stubOrders{
		order: &models.Order{OrderID: "O1", Status: models.StatusShipped},
		err:   apperr.Wrap("orders.SetStatus", "O1", apperr.ErrDelivery, errors.New("broker down")),
	}
	w := serve(orderRouter(svc), http.MethodPut, "/orders/O1/status", `{"status":"SHIPPED"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body struct {
		Error string       `json:"error"`
		Order models.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "broker down")
	assert.Equal(t, models.StatusShipped, body.Order.Status)
}

func TestHealthCheck(t *testing.T) {
	w := serve(orderRouter(&stubOrders{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"order-service"}`, w.Body.String())
}

func uploadRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func invoiceRouter(svc InvoiceService, dir string) *gin.Engine {
	r := gin.New()
	NewInvoiceHandler(svc, dir).Register(r)
	return r
}

func TestUploadInvoice(t *testing.T) {
	dir := t.TempDir()
	svc := &stubInvoices{}
	r := invoiceRouter(svc, dir)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "/invoices/O1/upload", "invoice.PDF", []byte("%PDF-1.4")))
	require.Equal(t, http.StatusCreated, w.Code)

	var got models.Invoice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "O1", got.OrderID)
	assert.True(t, strings.HasPrefix(got.PdfURL, "/uploads/file-"))
	assert.True(t, strings.HasSuffix(got.PdfURL, ".pdf"))

	stored, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(got.PdfURL, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(stored))

	// The stored document is served back under /uploads.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, got.PdfURL, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4", w.Body.String())
}

func TestUploadInvoice_RejectsNonPDF(t *testing.T) {
	dir := t.TempDir()
	svc := &stubInvoices{}

	w := httptest.NewRecorder()
	invoiceRouter(svc, dir).ServeHTTP(w, uploadRequest(t, "/invoices/O1/upload", "invoice.txt", []byte("hi")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.pdfURL)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestUploadInvoice_MissingFile(t *testing.T) {
	w := httptest.NewRecorder()
	invoiceRouter(&stubInvoices{}, t.TempDir()).ServeHTTP(w, uploadRequest(t, "/invoices/O1/upload", "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadInvoice_UnknownOrderRemovesFile(t *testing.T) {
	dir := t.TempDir()
	svc := &stubInvoices{err: apperr.New("invoices.Upload", "O9", apperr.ErrNotFound)}

	w := httptest.NewRecorder()
	invoiceRouter(svc, dir).ServeHTTP(w, uploadRequest(t, "/invoices/O9/upload", "invoice.pdf", []byte("%PDF")))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, svc.pdfURL)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestGetInvoice(t *testing.T) {
	sent := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubInvoices{invoice: &models.Invoice{InvoiceID: "inv-1", OrderID: "O1", SentAt: &sent}}

	w := serve(invoiceRouter(svc, t.TempDir()), http.MethodGet, "/invoices/inv-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Invoice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.SentAt)
	assert.True(t, sent.Equal(*got.SentAt))
}

func TestListInvoices_EmptyIsArray(t *testing.T) {
	w := serve(invoiceRouter(&stubInvoices{}, t.TempDir()), http.MethodGet, "/invoices", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}
