package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const BalanceRefreshSubject = "wallet.balance.refresh"

// Requester is the subset of *nats.Conn used for request/reply.
type Requester interface {
	Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error)
}

type balanceRefreshRequest struct {
	PaymentID int64 `json:"payment_id"`
}

type balanceRefreshResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NATSBalanceRefresher asks the wallet service to recompute the balance
// after a top-up succeeds.
type NATSBalanceRefresher struct {
	nc      Requester
	timeout time.Duration
}

func NewNATSBalanceRefresher(nc Requester, timeout time.Duration) *NATSBalanceRefresher {
	return &NATSBalanceRefresher{nc: nc, timeout: timeout}
}

func (r *NATSBalanceRefresher) RefreshBalance(ctx context.Context, paymentID int64) error {
	data, err := json.Marshal(balanceRefreshRequest{PaymentID: paymentID})
	if err != nil {
		return err
	}

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	msg, err := r.nc.Request(BalanceRefreshSubject, data, timeout)
	if err != nil {
		return fmt.Errorf("balance refresh for payment %d: %w", paymentID, err)
	}

	var resp balanceRefreshResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return fmt.Errorf("balance refresh for payment %d: decode reply: %w", paymentID, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("balance refresh for payment %d: %w", paymentID, errors.New(resp.Error))
	}
	return nil
}
