package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/deeplink"
	"github.com/snapbook/payment-reconciler/internal/interfaces"
	"github.com/snapbook/payment-reconciler/internal/models"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
)

// Manager keeps at most one mounted session per payment id.
type Manager struct {
	deps      Deps
	publisher interfaces.OutcomePublisher
	balance   interfaces.BalanceRefresher
	cfg       PollingConfig
	retention time.Duration

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewManager(deps Deps, publisher interfaces.OutcomePublisher, balance interfaces.BalanceRefresher, cfg PollingConfig, retention time.Duration) *Manager {
	return &Manager{
		deps:      deps,
		publisher: publisher,
		balance:   balance,
		cfg:       cfg,
		retention: retention,
		sessions:  make(map[int64]*Session),
	}
}

// Start mounts a session for the payment, or returns the one already
// mounted. The bool reports whether a new session was created.
func (m *Manager) Start(ctx context.Context, payment models.Payment, booking models.Booking, kind models.SessionKind) (*Session, bool, error) {
	if payment.PaymentID <= 0 {
		return nil, false, &models.ValidationError{Violations: map[string]string{"paymentId": "must_be_positive"}}
	}

	m.mu.Lock()
	if existing, ok := m.sessions[payment.PaymentID]; ok {
		m.mu.Unlock()
		return existing, false, nil
	}
	s := NewSession(payment, booking, kind, m.cfg, m.deps, CapabilitiesFor(kind, m.publisher, m.balance))
	s.onFinish = m.scheduleRemoval
	m.sessions[payment.PaymentID] = s
	m.mu.Unlock()

	telemetry.SessionsActive.Inc()

	if m.deps.Repo != nil {
		info := models.SessionStateInfo{
			SessionID: s.ID(),
			PaymentID: payment.PaymentID,
			BookingID: payment.BookingID,
			Kind:      string(kind),
			Status:    string(models.StatusPending),
		}
		if err := m.deps.Repo.InsertSession(ctx, info); err != nil {
			telemetry.Logger.Error("Failed to persist session",
				zap.Int64("payment_id", payment.PaymentID),
				zap.Error(err),
			)
		}
	}

	s.Start()
	return s, true, nil
}

func (m *Manager) Get(paymentID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[paymentID]
	return s, ok
}

// Stop unmounts the session for a payment.
func (m *Manager) Stop(paymentID int64) bool {
	s, ok := m.Get(paymentID)
	if !ok {
		return false
	}
	return m.remove(paymentID, s)
}

// HandleDeepLink routes a gateway redirect to its session. When paymentID is
// zero it is read from the URL query.
func (m *Manager) HandleDeepLink(paymentID int64, rawURL string) (models.DeepLinkEvent, bool, error) {
	evt := deeplink.Classify(rawURL)
	if paymentID <= 0 {
		id, ok := deeplink.PaymentID(rawURL)
		if !ok {
			return evt, false, &models.ValidationError{Violations: map[string]string{"paymentId": "required"}}
		}
		paymentID = id
	}
	s, ok := m.Get(paymentID)
	if !ok {
		return evt, false, fmt.Errorf("%w: no session for payment %d", models.ErrNotFound, paymentID)
	}
	return evt, s.HandleDeepLink(evt), nil
}

// Shutdown closes every session and waits for their goroutines.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	all := make(map[int64]*Session, len(m.sessions))
	for id, s := range m.sessions {
		all[id] = s
	}
	m.mu.Unlock()

	for id, s := range all {
		m.remove(id, s)
	}
	for _, s := range all {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) scheduleRemoval(s *Session) {
	id := s.PaymentID()
	time.AfterFunc(m.retention, func() {
		m.remove(id, s)
	})
}

func (m *Manager) remove(paymentID int64, s *Session) bool {
	m.mu.Lock()
	current, ok := m.sessions[paymentID]
	if !ok || current != s {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, paymentID)
	m.mu.Unlock()

	s.Close()
	telemetry.SessionsActive.Dec()
	return true
}
