package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/interfaces"
	"github.com/snapbook/payment-reconciler/internal/models"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
)

const (
	RouteBack           = "back"
	RouteBookingHistory = "BookingHistory"
	RouteWallet         = "Wallet"
	RouteVenueBookings  = "VenueBookings"
)

// Capabilities is what differs between the customer, wallet and venue
// waiting screens. RefreshBalance is optional.
type Capabilities struct {
	SuccessRoute      string
	CancelRoute       string
	NavigateOnSuccess func(ctx context.Context, outcome models.SessionOutcome)
	NavigateOnCancel  func(ctx context.Context, outcome models.SessionOutcome)
	RefreshBalance    func(ctx context.Context, paymentID int64) error
}

// CapabilitiesFor builds the capability set for a session kind. Navigation
// is reported to the shell by publishing the outcome.
func CapabilitiesFor(kind models.SessionKind, publisher interfaces.OutcomePublisher, balance interfaces.BalanceRefresher) Capabilities {
	publish := func(ctx context.Context, outcome models.SessionOutcome) {
		if publisher == nil {
			return
		}
		if err := publisher.PublishOutcome(ctx, outcome); err != nil {
			telemetry.Logger.Error("Failed to publish session outcome",
				zap.Int64("payment_id", outcome.PaymentID),
				zap.String("status", string(outcome.Status)),
				zap.Error(err),
			)
		}
	}

	caps := Capabilities{
		CancelRoute:       RouteBack,
		NavigateOnSuccess: publish,
		NavigateOnCancel:  publish,
	}
	switch kind {
	case models.KindWallet:
		caps.SuccessRoute = RouteWallet
		if balance != nil {
			caps.RefreshBalance = balance.RefreshBalance
		}
	case models.KindVenue:
		caps.SuccessRoute = RouteVenueBookings
	default:
		caps.SuccessRoute = RouteBookingHistory
	}
	return caps
}
