package models

import "time"

type Order struct {
	OrderID    string      `json:"orderId"`
	Status     OrderStatus `json:"status"`
	CustomerID string      `json:"customerId"`
	SellerID   string      `json:"sellerId"`
	ProductID  string      `json:"productId"`
	Price      int         `json:"price"`
	Quantity   int         `json:"quantity"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

type CreateOrderRequest struct {
	CustomerID string `json:"customerId" binding:"required"`
	SellerID   string `json:"sellerId" binding:"required"`
	ProductID  string `json:"productId" binding:"required"`
	Price      int    `json:"price" binding:"required,gt=0"`
	Quantity   int    `json:"quantity" binding:"required,gt=0"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
