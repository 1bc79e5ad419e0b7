package models

import "time"

type Invoice struct {
	InvoiceID string     `json:"invoiceId"`
	OrderID   string     `json:"orderId"`
	PdfURL    string     `json:"pdfUrl"`
	SentAt    *time.Time `json:"sentAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (i *Invoice) Sent() bool {
	return i.SentAt != nil
}
