package models

// ShippedEvent is published when an order reaches SHIPPED.
// The order id is the only correlation key; there is no event id.
type ShippedEvent struct {
	OrderID string `json:"orderId"`
}
