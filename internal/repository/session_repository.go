package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/snapbook/payment-reconciler/internal/models"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_sessions (
			session_id VARCHAR(64) PRIMARY KEY,
			payment_id BIGINT NOT NULL,
			booking_id BIGINT,
			kind VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			previous_status VARCHAR(20) NOT NULL DEFAULT '',
			attempts INT NOT NULL DEFAULT 0,
			last_trigger VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_sessions_payment_id ON payment_sessions(payment_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_sessions_status ON payment_sessions(status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *SessionRepository) InsertSession(ctx context.Context, info models.SessionStateInfo) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_sessions (session_id, payment_id, booking_id, kind, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING
	`, info.SessionID, info.PaymentID, info.BookingID, info.Kind, info.Status)
	return err
}

// TransitionStatus moves a session out of from. Zero rows affected means the
// session was not in from any more.
func (r *SessionRepository) TransitionStatus(ctx context.Context, sessionID string, from, to models.PaymentStatus, attempts int, trigger models.Trigger) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_sessions
		SET status = $1, previous_status = $2, attempts = $3, last_trigger = $4, updated_at = NOW()
		WHERE session_id = $5 AND status = $6
	`, to, from, attempts, trigger, sessionID, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) GetLatestByPaymentID(ctx context.Context, paymentID int64) (*models.SessionStateInfo, error) {
	var info models.SessionStateInfo
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, payment_id, COALESCE(booking_id, 0), kind, status, previous_status,
			attempts, last_trigger, created_at, updated_at
		FROM payment_sessions WHERE payment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, paymentID).Scan(
		&info.SessionID, &info.PaymentID, &info.BookingID, &info.Kind, &info.Status, &info.PreviousStatus,
		&info.Attempts, &info.Trigger, &info.CreatedAt, &info.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no session for payment %d", models.ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}
