// Package delivery forwards availability changes to the downstream sink.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"PharmacyScanner/internal/models"
)

// AvailabilityPath is the sink endpoint receiving observations.
const AvailabilityPath = "/internal/availability"

const defaultTimeout = 15 * time.Second

// DeliveryError is a failed delivery: the sink was unreachable or answered
// with a non-2xx status.
type DeliveryError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("delivery to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("delivery to %s failed: status %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Client posts payloads to {BaseURL}/internal/availability. It never retries.
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a sink client. A zero timeout means 15s.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// WithBasicAuth sets credentials sent with every request.
func (c *Client) WithBasicAuth(username, password string) *Client {
	c.Username, c.Password = username, password
	return c
}

// Endpoint is the full URL deliveries are posted to.
func (c *Client) Endpoint() string {
	return c.BaseURL + AvailabilityPath
}

// Deliver posts one payload. Any failure is a *DeliveryError.
func (c *Client) Deliver(ctx context.Context, payload models.AvailabilityPayload) error {
	endpoint := c.Endpoint()

	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{URL: endpoint, Err: fmt.Errorf("encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{URL: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &DeliveryError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	c.logger.Debug("delivery: posted",
		"pharmacyId", payload.PharmacyID,
		"product", payload.Product,
		"status", payload.Status,
		"code", resp.StatusCode,
	)
	return nil
}
