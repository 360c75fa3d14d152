package validation

import (
	"strings"

	"github.com/snapbook/payment-reconciler/internal/models"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Err returns a *models.ValidationError, or nil when nothing was violated.
func (v Violations) Err() error {
	if v.Empty() {
		return nil
	}
	return &models.ValidationError{Violations: v}
}

func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func PositiveInt(field string, val int64, v Violations) {
	if val <= 0 {
		v[field] = "must_be_positive"
	}
}

func CreatePaymentRequest(req models.CreatePaymentRequest) error {
	v := Violations{}
	Required("productName", req.ProductName, v)
	Required("description", req.Description, v)
	PositiveInt("bookingId", req.BookingID, v)
	Required("successUrl", req.SuccessURL, v)
	Required("cancelUrl", req.CancelURL, v)
	return v.Err()
}
