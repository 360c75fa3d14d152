package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusSuccess   PaymentStatus = "SUCCESS"
	StatusPaid      PaymentStatus = "PAID"
	StatusCompleted PaymentStatus = "COMPLETED"
	StatusCancelled PaymentStatus = "CANCELLED"
	StatusFailed    PaymentStatus = "FAILED"
	StatusExpired   PaymentStatus = "EXPIRED"
)

// ParseStatus normalizes a raw gateway status. Anything the gateway reports
// that is not a known terminal value is treated as still pending.
func ParseStatus(raw string) PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "SUCCEEDED":
		return StatusSuccess
	case "PAID":
		return StatusPaid
	case "COMPLETED":
		return StatusCompleted
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	case "FAILED":
		return StatusFailed
	case "EXPIRED":
		return StatusExpired
	default:
		return StatusPending
	}
}

func (s PaymentStatus) IsSuccess() bool {
	return s == StatusSuccess || s == StatusPaid || s == StatusCompleted
}

func (s PaymentStatus) IsFailure() bool {
	return s == StatusCancelled || s == StatusFailed || s == StatusExpired
}

func (s PaymentStatus) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure()
}

type QRFormat string

const (
	QRFormatURL         QRFormat = "url"
	QRFormatDataURI     QRFormat = "data_uri"
	QRFormatBase64Image QRFormat = "base64_image"
	QRFormatEMVCo       QRFormat = "emvco"
	QRFormatUnknown     QRFormat = "unknown"
)

// Payment is an immutable snapshot of one gateway transaction. PaymentID is
// the only key used for lookups; OrderCode is for display.
type Payment struct {
	PaymentID     int64           `json:"paymentId"`
	OrderCode     string          `json:"orderCode"`
	BookingID     int64           `json:"bookingId"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Currency      string          `json:"currency,omitempty"`
	Status        PaymentStatus   `json:"status"`
	QRCode        string          `json:"qrCode,omitempty"`
	QRFormat      QRFormat        `json:"qrFormat,omitempty"`
	PaymentURL    string          `json:"paymentUrl,omitempty"`
	PaymentLinkID string          `json:"paymentLinkId,omitempty"`
	Bin           string          `json:"bin,omitempty"`
	AccountNumber string          `json:"accountNumber,omitempty"`
	ExpiredAt     *time.Time      `json:"expiredAt,omitempty"`
}

// Booking is carried alongside a payment for display only.
type Booking struct {
	Name        string          `json:"name"`
	Date        string          `json:"date,omitempty"`
	Time        string          `json:"time,omitempty"`
	Location    string          `json:"location,omitempty"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type CreatePaymentRequest struct {
	ProductName string `json:"productName"`
	Description string `json:"description"`
	BookingID   int64  `json:"bookingId"`
	SuccessURL  string `json:"successUrl"`
	CancelURL   string `json:"cancelUrl"`
}

// PaymentEvent is published on payment.created by checkout flows.
type PaymentEvent struct {
	PaymentID   int64           `json:"payment_id"`
	BookingID   int64           `json:"booking_id"`
	UserID      int64           `json:"user_id"`
	Kind        SessionKind     `json:"kind"`
	OrderCode   string          `json:"order_code"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	QRCode      string          `json:"qr_code"`
	CheckoutURL string          `json:"checkout_url"`
	BookingName string          `json:"booking_name"`
	CreatedAt   time.Time       `json:"created_at"`
}

type DeepLinkType string

const (
	DeepLinkPaymentSuccess DeepLinkType = "PAYMENT_SUCCESS"
	DeepLinkPaymentCancel  DeepLinkType = "PAYMENT_CANCEL"
	DeepLinkUnknown        DeepLinkType = "UNKNOWN"
)

type DeepLinkEvent struct {
	Type DeepLinkType `json:"type"`
	URL  string       `json:"url"`
}
