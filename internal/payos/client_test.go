package payos

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapbook/payment-reconciler/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second)
}

func TestCreatePaymentLink(t *testing.T) {
	var got models.CreatePaymentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment/create", r.URL.Path)
		assert.Equal(t, "9", r.URL.Query().Get("userId"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"00","desc":"success","data":{
			"paymentId": 311,
			"orderCode": 1730000123,
			"amount": 250000,
			"status": "PENDING",
			"qr": "00020101021238570010A000000727012700069704220113VQRQA",
			"checkoutUrl": "https://pay.payos.vn/web/abc",
			"paymentLinkId": "abc",
			"bin": "970422",
			"accountNumber": "VQRQA",
			"currency": "VND",
			"expiredAt": 1730000999
		}}`))
	})

	req := models.CreatePaymentRequest{
		ProductName: "Studio session",
		Description: "Booking 77",
		BookingID:   77,
		SuccessURL:  "snapbook://payment-success",
		CancelURL:   "snapbook://payment-cancel",
	}
	p, err := c.CreatePaymentLink(context.Background(), 9, req)
	require.NoError(t, err)

	assert.Equal(t, req, got)
	assert.Equal(t, int64(311), p.PaymentID)
	assert.Equal(t, "1730000123", p.OrderCode)
	assert.Equal(t, int64(77), p.BookingID)
	assert.Equal(t, "250000", p.TotalAmount.String())
	assert.Equal(t, models.StatusPending, p.Status)
	assert.Equal(t, models.QRFormatEMVCo, p.QRFormat)
	assert.Equal(t, "https://pay.payos.vn/web/abc", p.PaymentURL)
	require.NotNil(t, p.ExpiredAt)
	assert.Equal(t, int64(1730000999), p.ExpiredAt.Unix())
}

func TestCreatePaymentLinkValidatesBeforeCalling(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.CreatePaymentLink(context.Background(), 1, models.CreatePaymentRequest{ProductName: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.False(t, called)
}

func TestGetPaymentUsesDatabaseID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/311", r.URL.Path)
		w.Write([]byte(`{"id":"311","externalTransactionId":"99887766","totalAmount":"120000.50","status":"Paid","qrCodeUrl":"https://img.vietqr.io/x.png"}`))
	})

	p, err := c.GetPayment(context.Background(), 311)
	require.NoError(t, err)
	assert.Equal(t, int64(311), p.PaymentID)
	assert.Equal(t, "99887766", p.OrderCode)
	assert.Equal(t, "120000.5", p.TotalAmount.String())
	assert.Equal(t, models.StatusPaid, p.Status)
	assert.Equal(t, models.QRFormatURL, p.QRFormat)
}

func TestGetPaymentRejectsNonPositiveID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL)
	})
	_, err := c.GetPayment(context.Background(), 0)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestGetPaymentErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"http 404", http.StatusNotFound, `{"message":"Payment 5 not found"}`, models.ErrNotFound},
		{"not found envelope", http.StatusOK, `{"code":"101","desc":"Payment not found","data":null}`, models.ErrNotFound},
		{"server error", http.StatusBadGateway, `upstream timeout`, models.ErrNetwork},
		{"malformed body", http.StatusOK, `<html>`, models.ErrNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			_, err := c.GetPayment(context.Background(), 5)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)

			var gerr *models.GatewayError
			assert.True(t, errors.As(err, &gerr))
		})
	}
}

func TestCancelPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/payment/booking/77/cancel", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, c.CancelPayment(context.Background(), 77))
}

func TestCancelPaymentAlreadyFinalized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Payment is already completed, cannot cancel"}`))
	})
	err := c.CancelPayment(context.Background(), 77)
	assert.True(t, errors.Is(err, models.ErrInvalidState), "got %v", err)
}

func TestCancelPaymentTransportFailure(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	err := c.CancelPayment(context.Background(), 3)
	assert.True(t, errors.Is(err, models.ErrNetwork), "got %v", err)
}
