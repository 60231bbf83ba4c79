// Package fulfillment talks to the legacy order endpoint that turns checkout
// orders into logistic orders.
package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxResponseSize is the maximum body read from the fulfillment service.
const maxResponseSize = 1 << 20

// ErrTransport marks calls that produced no usable response: network
// failures, timeouts, and bodies that could not be encoded or decoded.
var ErrTransport = errors.New("fulfillment transport failure")

type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds every single call.
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger.Named("fulfillment"),
		tracer:     otel.Tracer("marketplace-checkout/fulfillment"),
	}
}

// Ref is an identifier the service may send as a JSON string or number.
type Ref string

func (r *Ref) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = Ref(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = Ref(n.String())
	return nil
}

type CreateResponse struct {
	CartID          Ref    `json:"cart_id"`
	LogisticOrderID Ref    `json:"logistic_order_id"`
	Status          string `json:"status"`
}

type PaymentMethod struct {
	NameOnCard string `json:"name_on_card"`
}

type SubmitResponse struct {
	CartID        Ref            `json:"cart_id"`
	Status        string         `json:"status"`
	Warnings      []string       `json:"warnings"`
	PaymentMethod *PaymentMethod `json:"payment_method"`
}

// ErrorDetail is one entry of the service's error envelope.
type ErrorDetail struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ResponseError is a non-2xx answer from the service.
type ResponseError struct {
	StatusCode int
	Body       []byte
	// Errors holds the coded errors of a structured envelope.
	Errors []ErrorDetail
	// Message is the top-level "message" of a JSON body, if any.
	Message string
	isJSON  bool
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("fulfillment: HTTP %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// Structured reports whether the body carried a list of coded errors.
func (e *ResponseError) Structured() bool { return len(e.Errors) > 0 }

// IsJSON reports whether the body parsed as a JSON object.
func (e *ResponseError) IsJSON() bool { return e.isJSON }

func newResponseError(status int, body []byte) *ResponseError {
	re := &ResponseError{StatusCode: status, Body: body}
	var envelope struct {
		Errors  []ErrorDetail `json:"errors"`
		Message string        `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		re.isJSON = true
		re.Message = envelope.Message
		for _, d := range envelope.Errors {
			if d.Code != "" {
				re.Errors = append(re.Errors, d)
			}
		}
	}
	return re
}

// CreateCart opens a cart for one order.
func (c *Client) CreateCart(ctx context.Context, customerRef string, payload CartPayload) (*CreateResponse, error) {
	endpoint := fmt.Sprintf("%s/v0/payments/user/%s/carts/", c.baseURL, url.PathEscape(customerRef))
	var out CreateResponse
	if err := c.do(ctx, "fulfillment.CreateCart", http.MethodPost, endpoint, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitCart confirms a previously created cart.
func (c *Client) SubmitCart(ctx context.Context, customerRef, logisticOrderID string, payload CartPayload) (*SubmitResponse, error) {
	endpoint := fmt.Sprintf("%s/v0/payments/user/%s/carts/%s", c.baseURL, url.PathEscape(customerRef), url.PathEscape(logisticOrderID))
	var out SubmitResponse
	if err := c.do(ctx, "fulfillment.SubmitCart", http.MethodPut, endpoint, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, payload CartPayload, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("order.logistic_id", payload.LogisticOrderID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrTransport, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("fulfillment call rejected",
			zap.String("op", op),
			zap.Int("http_status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return newResponseError(resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	return nil
}
