// Package deeplink classifies the return URLs the payment gateway redirects
// to once the user finishes or abandons checkout.
package deeplink

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/snapbook/payment-reconciler/internal/models"
)

const (
	successMarker = "payment-success"
	cancelMarker  = "payment-cancel"
)

// Classify matches the marker against host and path so a marker inside the
// query string is ignored. The scheme may be a custom app scheme or an exp://
// development redirect. Unparseable URLs fall back to the whole string.
func Classify(rawURL string) models.DeepLinkEvent {
	lower := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil {
		lower = strings.ToLower(u.Host + u.Path)
	}
	evt := models.DeepLinkEvent{Type: models.DeepLinkUnknown, URL: rawURL}
	switch {
	case strings.Contains(lower, successMarker):
		evt.Type = models.DeepLinkPaymentSuccess
	case strings.Contains(lower, cancelMarker):
		evt.Type = models.DeepLinkPaymentCancel
	}
	return evt
}

// PaymentID extracts the database payment id carried in the callback query.
// orderCode is never used.
func PaymentID(rawURL string) (int64, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, false
	}
	q := u.Query()
	for _, key := range []string{"paymentId", "payment_id"} {
		if v := q.Get(key); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err == nil && id > 0 {
				return id, true
			}
		}
	}
	return 0, false
}
