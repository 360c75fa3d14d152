package payos

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/snapbook/payment-reconciler/internal/models"
)

// envelope covers the wrappers the backend has been seen to use:
// {code, desc, data}, {success, message, data}, or the bare object.
type envelope struct {
	Code    flexString      `json:"code"`
	Desc    string          `json:"desc"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) message() string {
	for _, m := range []string{e.Desc, e.Message, e.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

func (e envelope) failed() bool {
	if e.Success != nil && !*e.Success {
		return true
	}
	switch string(e.Code) {
	case "", "00", "0", "200", "201":
		return false
	}
	return true
}

func (e envelope) hasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && d[0] == '{'
}

type gatewayPayment struct {
	PaymentID             flexInt          `json:"paymentId"`
	ID                    flexInt          `json:"id"`
	BookingID             flexInt          `json:"bookingId"`
	OrderCode             flexString       `json:"orderCode"`
	ExternalTransactionID flexString       `json:"externalTransactionId"`
	Amount                *decimal.Decimal `json:"amount"`
	TotalAmount           *decimal.Decimal `json:"totalAmount"`
	Currency              string           `json:"currency"`
	Status                string           `json:"status"`
	QRCode                string           `json:"qrCode"`
	QR                    string           `json:"qr"`
	QRCodeURL             string           `json:"qrCodeUrl"`
	CheckoutURL           string           `json:"checkoutUrl"`
	PaymentURL            string           `json:"paymentUrl"`
	PaymentLinkID         string           `json:"paymentLinkId"`
	Bin                   flexString       `json:"bin"`
	AccountNumber         flexString       `json:"accountNumber"`
	ExpiredAt             flexTime         `json:"expiredAt"`
}

func (g gatewayPayment) toModel() models.Payment {
	p := models.Payment{
		PaymentID:     int64(g.PaymentID),
		BookingID:     int64(g.BookingID),
		OrderCode:     string(g.OrderCode),
		Currency:      g.Currency,
		Status:        models.ParseStatus(g.Status),
		PaymentLinkID: g.PaymentLinkID,
		Bin:           string(g.Bin),
		AccountNumber: string(g.AccountNumber),
		ExpiredAt:     g.ExpiredAt.t,
	}
	if p.PaymentID == 0 {
		p.PaymentID = int64(g.ID)
	}
	if p.OrderCode == "" {
		p.OrderCode = string(g.ExternalTransactionID)
	}
	switch {
	case g.TotalAmount != nil:
		p.TotalAmount = *g.TotalAmount
	case g.Amount != nil:
		p.TotalAmount = *g.Amount
	}
	p.QRCode = firstNonEmpty(g.QRCode, g.QR, g.QRCodeURL)
	p.QRFormat = ClassifyQR(p.QRCode)
	p.PaymentURL = firstNonEmpty(g.CheckoutURL, g.PaymentURL)
	return p
}

// decodePayment unwraps an optional envelope and normalizes the payment.
func decodePayment(body []byte) (models.Payment, envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.Payment{}, env, err
	}
	payload := body
	if env.hasData() {
		payload = env.Data
	}
	var g gatewayPayment
	if err := json.Unmarshal(payload, &g); err != nil {
		return models.Payment{}, env, err
	}
	return g.toModel(), env, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// flexInt accepts a JSON number or a numeric string. Anything else decodes
// to zero.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// flexString accepts a JSON string or a bare number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// flexTime accepts RFC3339-ish strings and unix timestamps in seconds or
// milliseconds.
type flexTime struct{ t *time.Time }

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				f.t = &t
				return nil
			}
		}
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return nil
	}
	var t time.Time
	if n > 1e12 {
		t = time.UnixMilli(n).UTC()
	} else {
		t = time.Unix(n, 0).UTC()
	}
	f.t = &t
	return nil
}
