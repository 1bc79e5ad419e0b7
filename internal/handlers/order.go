package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
)

type OrderService interface {
	Create(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error)
	Get(ctx context.Context, orderID string) (*models.Order, error)
	List(ctx context.Context) ([]models.Order, error)
	SetStatus(ctx context.Context, orderID, status string) (*models.Order, error)
}

type OrderHandler struct {
	orders OrderService
}

func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Register mounts the order routes on r.
func (h *OrderHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.POST("/orders", h.CreateOrder)
	r.GET("/orders", h.ListOrders)
	r.GET("/orders/:orderId", h.GetOrder)
	r.PUT("/orders/:orderId/status", h.UpdateOrderStatus)
	r.PATCH("/orders/:orderId/status", h.UpdateOrderStatus)
}

func (h *OrderHandler) HealthCheck(c *gin.Context) {
	healthCheck("order-service")(c)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// UpdateOrderStatus sets the order status. When the order is SHIPPED but the
// event could not be published the committed order is still returned, with
// 502, so the caller can retry the same request.
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.SetStatus(c.Request.Context(), c.Param("orderId"), req.Status)
	if err != nil {
		if apperr.IsDelivery(err) && order != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "order": order})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
