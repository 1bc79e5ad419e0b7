package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
)

// URLResolver looks up the base URL of a healthy service instance.
type URLResolver interface {
	GetServiceURL(serviceName string) (string, error)
}

// OrderClient reads orders from the order service over HTTP.
type OrderClient struct {
	serviceName string
	fallbackURL string
	resolver    URLResolver
	httpClient  *http.Client
}

// NewOrderClient returns a client for serviceName. resolver may be nil, in
// which case fallbackURL is always used.
func NewOrderClient(serviceName, fallbackURL string, resolver URLResolver) *OrderClient {
	return &OrderClient{
		serviceName: serviceName,
		fallbackURL: fallbackURL,
		resolver:    resolver,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *OrderClient) baseURL() string {
	if c.resolver == nil {
		return c.fallbackURL
	}
	u, err := c.resolver.GetServiceURL(c.serviceName)
	if err != nil {
		log.Printf("⚠️ %s not resolved, using %s: %v", c.serviceName, c.fallbackURL, err)
		return c.fallbackURL
	}
	return u
}

// GetOrder fetches an order from the order service. Returns nil, nil when the
// order does not exist.
func (c *OrderClient) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	endpoint := fmt.Sprintf("%s/orders/%s", c.baseURL(), url.PathEscape(orderID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order service returned status %d", resp.StatusCode)
	}

	var order models.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &order, nil
}
