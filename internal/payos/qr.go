package payos

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/snapbook/payment-reconciler/internal/models"
)

// emvcoPrefix is the payload format indicator every EMVCo merchant QR
// (VietQR included) starts with.
const emvcoPrefix = "000201"

// ClassifyQR tells the shell how the gateway's qrCode value must be rendered.
func ClassifyQR(qr string) models.QRFormat {
	qr = strings.TrimSpace(qr)
	lower := strings.ToLower(qr)
	switch {
	case qr == "":
		return models.QRFormatUnknown
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return models.QRFormatURL
	case strings.HasPrefix(lower, "data:image/"):
		return models.QRFormatDataURI
	case strings.HasPrefix(qr, emvcoPrefix), isDigits(qr):
		return models.QRFormatEMVCo
	case isBase64Image(qr):
		return models.QRFormatBase64Image
	default:
		return models.QRFormatUnknown
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isBase64Image(s string) bool {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(raw), "image/")
}
