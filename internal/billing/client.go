package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client recupera objetos del proveedor de pagos. Solo se usa como
// fallback cuando el evento no trae la referencia del cliente.
type Client interface {
	GetSubscription(ctx context.Context, subscriptionID string) (Subscription, error)
}

// HTTPClient implementa Client contra la API REST del proveedor.
type HTTPClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewHTTPClient(baseURL, secretKey string) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) GetSubscription(ctx context.Context, subscriptionID string) (Subscription, error) {
	url := fmt.Sprintf("%s/v1/subscriptions/%s", c.baseURL, subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Subscription{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Subscription{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Subscription{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Subscription{}, fmt.Errorf("subscription fetch: status=%d", resp.StatusCode)
	}

	var sub Subscription
	if err := json.Unmarshal(body, &sub); err != nil {
		return Subscription{}, fmt.Errorf("unmarshal subscription: %w", err)
	}
	return sub, nil
}
