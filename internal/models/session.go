package models

import "time"

// SessionKind selects which capability set a session gets: customer
// bookings, wallet top-ups or venue owner bookings.
type SessionKind string

const (
	KindBooking SessionKind = "booking"
	KindWallet  SessionKind = "wallet"
	KindVenue   SessionKind = "venue"
)

func ParseKind(raw string) SessionKind {
	switch SessionKind(raw) {
	case KindWallet:
		return KindWallet
	case KindVenue:
		return KindVenue
	default:
		return KindBooking
	}
}

// Prompt is the user-facing decision the shell has to show.
type Prompt string

const (
	PromptNone    Prompt = ""
	PromptTimeout Prompt = "timeout" // retry or dismiss
	PromptExpired Prompt = "expired" // create new payment or dismiss
)

// Trigger records what caused a state change.
type Trigger string

const (
	TriggerPoll       Trigger = "poll"
	TriggerDeepLink   Trigger = "deep_link"
	TriggerForeground Trigger = "foreground"
	TriggerManual     Trigger = "manual_check"
	TriggerCancel     Trigger = "manual_cancel"
	TriggerAutoCancel Trigger = "auto_cancel"
)

type CancelOutcome string

const (
	CancelOutcomeCancelled        CancelOutcome = "cancelled"
	CancelOutcomeAlreadyCancelled CancelOutcome = "already_cancelled"
)

// SessionState is a point-in-time copy of a polling session.
type SessionState struct {
	SessionID        string        `json:"sessionId"`
	PaymentID        int64         `json:"paymentId"`
	BookingID        int64         `json:"bookingId"`
	OrderCode        string        `json:"orderCode"`
	Kind             SessionKind   `json:"kind"`
	Status           PaymentStatus `json:"status"`
	AttemptCount     int           `json:"attemptCount"`
	IsPolling        bool          `json:"isPolling"`
	IsComplete       bool          `json:"isComplete"`
	SecondsRemaining int           `json:"secondsRemaining"`
	Prompt           Prompt        `json:"prompt,omitempty"`
	LastError        string        `json:"lastError,omitempty"`
	Trigger          Trigger       `json:"trigger,omitempty"`
	NextRoute        string        `json:"nextRoute,omitempty"`
	Payment          Payment       `json:"payment"`
	Booking          Booking       `json:"booking"`
}

// SessionOutcome reports the terminal state of a session.
type SessionOutcome struct {
	SessionID  string        `json:"session_id"`
	PaymentID  int64         `json:"payment_id"`
	BookingID  int64         `json:"booking_id"`
	OrderCode  string        `json:"order_code"`
	Kind       SessionKind   `json:"kind"`
	Status     PaymentStatus `json:"status"`
	Trigger    Trigger       `json:"trigger"`
	Attempts   int           `json:"attempts"`
	Route      string        `json:"route,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// SessionStateInfo is the persisted audit row of a session.
type SessionStateInfo struct {
	SessionID      string
	PaymentID      int64
	BookingID      int64
	Kind           string
	Status         string
	PreviousStatus string
	Attempts       int
	Trigger        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
