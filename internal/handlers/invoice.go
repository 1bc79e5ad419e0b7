package handlers

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
)

// UploadsPath is the URL prefix the upload directory is served under.
const UploadsPath = "/uploads"

type InvoiceService interface {
	Upload(ctx context.Context, orderID, pdfURL string) (*models.Invoice, error)
	Get(ctx context.Context, invoiceID string) (*models.Invoice, error)
	List(ctx context.Context) ([]models.Invoice, error)
}

type InvoiceHandler struct {
	invoices  InvoiceService
	uploadDir string
}

func NewInvoiceHandler(invoices InvoiceService, uploadDir string) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, uploadDir: uploadDir}
}

func (h *InvoiceHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	// Both routes share the :id wildcard; it is an order id on upload.
	r.POST("/invoices/:id/upload", h.UploadInvoice)
	r.GET("/invoices", h.ListInvoices)
	r.GET("/invoices/:id", h.GetInvoice)
	r.Static(UploadsPath, h.uploadDir)
}

func (h *InvoiceHandler) HealthCheck(c *gin.Context) {
	healthCheck("invoice-service")(c)
}

func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	invoices, err := h.invoices.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}

	c.JSON(http.StatusOK, invoices)
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// UploadInvoice stores the PDF sent in the "file" form field and creates the
// invoice for the order. The stored file is removed if the invoice is not
// created.
func (h *InvoiceHandler) UploadInvoice(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only PDF files are accepted"})
		return
	}

	name := "file-" + uuid.NewString() + ".pdf"
	dst := filepath.Join(h.uploadDir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		respondError(c, err)
		return
	}

	invoice, err := h.invoices.Upload(c.Request.Context(), c.Param("id"), UploadsPath+"/"+name)
	if err != nil {
		if rmErr := os.Remove(dst); rmErr != nil {
			log.Printf("⚠️ Failed to remove %s: %v", dst, rmErr)
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invoice)
}
