// Package payos is the HTTP client for the backend's payment endpoints, which
// front the PayOS gateway. Every response is normalized into models.Payment
// and every failure into a *models.GatewayError.
package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/models"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
	"github.com/snapbook/payment-reconciler/internal/validation"
)

const maxBodyBytes = 1 << 20

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CreatePaymentLink asks the backend to open a PayOS checkout for a booking.
func (c *Client) CreatePaymentLink(ctx context.Context, userID int64, req models.CreatePaymentRequest) (*models.Payment, error) {
	v := validation.Violations{}
	validation.PositiveInt("userId", userID, v)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if err := validation.CreatePaymentRequest(req); err != nil {
		return nil, err
	}

	path := "/payment/create?userId=" + url.QueryEscape(strconv.FormatInt(userID, 10))
	body, err := c.do(ctx, "create_payment_link", http.MethodPost, path, req)
	if err != nil {
		return nil, err
	}
	p, env, err := decodePayment(body)
	if err != nil {
		return nil, parseError("create_payment_link", err)
	}
	if env.failed() && !env.hasData() {
		return nil, envelopeError("create_payment_link", env)
	}
	if p.BookingID == 0 {
		p.BookingID = req.BookingID
	}
	return &p, nil
}

// GetPayment fetches the payment by its database id. The display order code
// is never accepted here.
func (c *Client) GetPayment(ctx context.Context, paymentID int64) (*models.Payment, error) {
	v := validation.Violations{}
	validation.PositiveInt("paymentId", paymentID, v)
	if err := v.Err(); err != nil {
		return nil, err
	}

	body, err := c.do(ctx, "get_payment", http.MethodGet, "/payment/"+strconv.FormatInt(paymentID, 10), nil)
	if err != nil {
		return nil, err
	}
	p, env, err := decodePayment(body)
	if err != nil {
		return nil, parseError("get_payment", err)
	}
	if !env.hasData() && env.failed() {
		return nil, envelopeError("get_payment", env)
	}
	if p.PaymentID == 0 {
		p.PaymentID = paymentID
	}
	return &p, nil
}

// CancelPayment cancels the pending payment attached to a booking.
func (c *Client) CancelPayment(ctx context.Context, bookingID int64) error {
	v := validation.Violations{}
	validation.PositiveInt("bookingId", bookingID, v)
	if err := v.Err(); err != nil {
		return err
	}

	body, err := c.do(ctx, "cancel_payment", http.MethodPut, "/payment/booking/"+strconv.FormatInt(bookingID, 10)+"/cancel", nil)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// plain-text acknowledgements are fine
		return nil
	}
	if env.failed() {
		return envelopeError("cancel_payment", env)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "payos."+op)
	defer span.End()
	span.SetAttributes(attribute.String("http.request.method", method), attribute.String("payos.path", path))

	start := time.Now()
	defer func() {
		telemetry.GatewayRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, &models.GatewayError{Op: op, Kind: models.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &models.GatewayError{Op: op, StatusCode: resp.StatusCode, Kind: models.ErrNetwork, Err: err}
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		gerr := statusError(op, resp.StatusCode, body)
		span.SetStatus(codes.Error, gerr.Error())
		telemetry.Logger.Debug("Gateway request failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", gerr.Message),
		)
		return nil, gerr
	}
	return body, nil
}

func statusError(op string, status int, body []byte) *models.GatewayError {
	var env envelope
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &env); err == nil && env.message() != "" {
		msg = env.message()
	}
	return &models.GatewayError{Op: op, StatusCode: status, Message: msg, Kind: classify(status, msg)}
}

func envelopeError(op string, env envelope) *models.GatewayError {
	msg := env.message()
	return &models.GatewayError{Op: op, Message: msg, Kind: classify(0, msg)}
}

func parseError(op string, err error) *models.GatewayError {
	return &models.GatewayError{Op: op, Message: "malformed response", Kind: models.ErrNetwork, Err: err}
}

func classify(status int, msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusNotFound, strings.Contains(lower, "not found"), strings.Contains(lower, "not exist"):
		return models.ErrNotFound
	case strings.Contains(lower, "already"), strings.Contains(lower, "cannot cancel"), strings.Contains(lower, "finalized"):
		return models.ErrInvalidState
	case status == http.StatusConflict:
		return models.ErrInvalidState
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return models.ErrValidation
	default:
		return models.ErrNetwork
	}
}
