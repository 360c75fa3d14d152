package interfaces

import (
	"context"

	"github.com/snapbook/payment-reconciler/internal/models"
)

// PaymentGateway is the payment status client the reconciliation sessions
// depend on.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, userID int64, req models.CreatePaymentRequest) (*models.Payment, error)
	GetPayment(ctx context.Context, paymentID int64) (*models.Payment, error)
	CancelPayment(ctx context.Context, bookingID int64) error
}

// SessionRepository defines the contract for the session audit trail
type SessionRepository interface {
	InsertSession(ctx context.Context, info models.SessionStateInfo) error
	TransitionStatus(ctx context.Context, sessionID string, from, to models.PaymentStatus, attempts int, trigger models.Trigger) (int64, error)
	GetLatestByPaymentID(ctx context.Context, paymentID int64) (*models.SessionStateInfo, error)
}

// OutcomePublisher broadcasts terminal session outcomes.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome models.SessionOutcome) error
}

// SuccessGuard reports whether the caller is the first to handle a
// payment's success.
type SuccessGuard interface {
	Acquire(ctx context.Context, paymentID int64) (bool, error)
}

// BalanceRefresher asks the wallet service to recompute a user's balance.
type BalanceRefresher interface {
	RefreshBalance(ctx context.Context, paymentID int64) error
}
