package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// HTTPClient talks to the billing service REST API using a publishable key.
// The key is write-only: it can create customers/instances and push metrics
// but cannot read other customers' data.
type HTTPClient struct {
	baseURL        string
	publishableKey string
	appSlug        string
	httpClient     *http.Client
}

// NewHTTPClient returns a billing client for the given base URL. baseURL and
// publishableKey must be non-empty; appSlug identifies this application on
// the billing service.
func NewHTTPClient(baseURL, publishableKey, appSlug string) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("billing: base URL is empty")
	}
	if publishableKey == "" {
		return nil, fmt.Errorf("billing: publishable key is empty")
	}
	return &HTTPClient{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		publishableKey: publishableKey,
		appSlug:        appSlug,
		httpClient:     &http.Client{Timeout: defaultRequestTimeout},
	}, nil
}

// GetOrCreateCustomer resolves the customer keyed by email, creating it when
// absent. The billing service treats this as an idempotent upsert.
func (c *HTTPClient) GetOrCreateCustomer(ctx context.Context, email string) (*Customer, error) {
	body := map[string]string{"email": email, "app_slug": c.appSlug}
	var out Customer
	if err := c.post(ctx, "/v1/customers", body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("billing: customer response missing customer_id")
	}
	return &out, nil
}

// GetOrCreateInstance resolves the instance for the customer, creating it
// when absent.
func (c *HTTPClient) GetOrCreateInstance(ctx context.Context, customerID string) (*Instance, error) {
	path := fmt.Sprintf("/v1/customers/%s/instances", customerID)
	var out Instance
	if err := c.post(ctx, path, map[string]string{"app_slug": c.appSlug}, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("billing: instance response missing instance_id")
	}
	return &out, nil
}

// SendMetric pushes a single key/value measurement for the instance.
func (c *HTTPClient) SendMetric(ctx context.Context, instanceID, key string, value any) error {
	path := fmt.Sprintf("/v1/instances/%s/metrics", instanceID)
	return c.post(ctx, path, map[string]any{"key": key, "value": value}, nil)
}

// SetStatus reports the instance lifecycle status.
func (c *HTTPClient) SetStatus(ctx context.Context, instanceID string, status InstanceStatus) error {
	path := fmt.Sprintf("/v1/instances/%s/status", instanceID)
	return c.post(ctx, path, map[string]string{"status": string(status)}, nil)
}

// post sends a JSON POST and decodes the response into out when out is
// non-nil. Non-2xx responses are returned as errors.
func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.publishableKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("billing: %s returned %s", path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
