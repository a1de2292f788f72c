package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// ErrRejected is returned when the sink answers but refuses the order
var ErrRejected = errors.New("order sink rejected the order")

// Response is the order sink reply
type Response struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client posts orders to the external order endpoint
type Client struct {
	endpoint *url.URL
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates an order sink client
func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid order sink url %q", endpoint)
	}
	return &Client{
		endpoint: u,
		http:     &http.Client{Timeout: timeout},
		logger:   util.GetLogger(),
	}, nil
}

// Submit posts the order and returns the sink reply.
// A transport failure, non-2xx status or success=false is an error.
func (c *Client) Submit(ctx context.Context, order *models.Order) (*Response, error) {
	ctx, span := util.StartSpan(ctx, "sink.Client.Submit")
	defer span.End()

	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	util.OrderSinkLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("order sink unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read sink response: %w", err)
	}

	var out Response
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			c.logger.Warn("Unreadable order sink response",
				zap.String("order_id", order.ID),
				zap.Int("status", resp.StatusCode),
				zap.Error(err))
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &out, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, out.reason())
	}
	if !out.Success {
		return &out, fmt.Errorf("%w: %s", ErrRejected, out.reason())
	}

	c.logger.Info("Order accepted by sink",
		zap.String("order_id", order.ID),
		zap.String("sink_order_id", out.OrderID))
	return &out, nil
}

func (r Response) reason() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Message != "":
		return r.Message
	default:
		return "no reason given"
	}
}
