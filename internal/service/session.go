package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/config"
	"github.com/snapbook/payment-reconciler/internal/interfaces"
	"github.com/snapbook/payment-reconciler/internal/models"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
)

type PollingConfig struct {
	FastInterval   time.Duration
	SlowInterval   time.Duration
	FastWindow     time.Duration
	MaxAttempts    int
	NotFoundGrace  int
	Countdown      time.Duration
	CountdownTick  time.Duration
	RequestTimeout time.Duration
}

func DefaultPollingConfig() PollingConfig {
	return PollingConfig{
		FastInterval:   2 * time.Second,
		SlowInterval:   4 * time.Second,
		FastWindow:     60 * time.Second,
		MaxAttempts:    60,
		NotFoundGrace:  10,
		Countdown:      15 * time.Minute,
		CountdownTick:  time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

func PollingConfigFrom(p config.Polling, requestTimeout time.Duration) PollingConfig {
	return PollingConfig{
		FastInterval:   p.FastInterval,
		SlowInterval:   p.SlowInterval,
		FastWindow:     p.FastWindow,
		MaxAttempts:    p.MaxAttempts,
		NotFoundGrace:  p.NotFoundGrace,
		Countdown:      p.Countdown,
		CountdownTick:  p.CountdownTick,
		RequestTimeout: requestTimeout,
	}
}

// Deps are the collaborators shared by every session. Only Gateway is
// required.
type Deps struct {
	Gateway interfaces.PaymentGateway
	Repo    interfaces.SessionRepository
	Guard   interfaces.SuccessGuard
}

// Session reconciles one in-flight payment with the gateway. It owns the
// countdown and polling timers; both stop on the first terminal status, on
// Close, or on cancellation.
type Session struct {
	id      string
	kind    models.SessionKind
	booking models.Booking
	cfg     PollingConfig
	deps    Deps
	caps    Capabilities
	logger  *zap.Logger

	// onFinish runs after the terminal side effects.
	onFinish func(*Session)

	ctx          context.Context
	stop         context.CancelFunc
	timers       context.Context
	cancelTimers context.CancelFunc
	wg           sync.WaitGroup
	done         chan struct{}

	cancelMu sync.Mutex

	mu            sync.RWMutex
	payment       models.Payment
	attempts      int
	notFound      int
	polling       bool
	pollGen       int
	pollStarted   time.Time
	complete      bool
	closed        bool
	autoCancelled bool
	deadline      time.Time
	finishedAt    time.Time
	prompt        models.Prompt
	lastErr       string
	trigger       models.Trigger
	nextRoute     string
}

func NewSession(payment models.Payment, booking models.Booking, kind models.SessionKind, cfg PollingConfig, deps Deps, caps Capabilities) *Session {
	ctx, stop := context.WithCancel(context.Background())
	timers, cancelTimers := context.WithCancel(ctx)
	id := uuid.NewString()
	payment.Status = models.ParseStatus(string(payment.Status))

	return &Session{
		id:           id,
		kind:         kind,
		booking:      booking,
		cfg:          cfg,
		deps:         deps,
		caps:         caps,
		logger:       telemetry.Logger.With(zap.String("session_id", id), zap.Int64("payment_id", payment.PaymentID)),
		ctx:          ctx,
		stop:         stop,
		timers:       timers,
		cancelTimers: cancelTimers,
		done:         make(chan struct{}),
		payment:      payment,
		deadline:     time.Now().Add(cfg.Countdown),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) PaymentID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payment.PaymentID
}

// Start mounts the session: the countdown begins and the first status check
// fires immediately.
func (s *Session) Start() {
	s.mu.Lock()
	if s.closed || s.complete {
		s.mu.Unlock()
		return
	}
	s.deadline = time.Now().Add(s.cfg.Countdown)
	initial := s.payment
	s.mu.Unlock()

	if initial.Status.IsTerminal() {
		s.finish(initial, models.TriggerPoll, models.PromptNone)
		return
	}

	s.mu.Lock()
	if !s.closed && !s.complete {
		s.wg.Add(1)
		go s.runCountdown()
	}
	s.mu.Unlock()

	s.StartPolling()
}

// StartPolling starts the polling loop. It is a no-op when the payment id is
// unknown, a loop is already running, or the session is complete.
func (s *Session) StartPolling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.complete || s.polling || s.payment.PaymentID <= 0 {
		return false
	}

	pctx, cancel := context.WithCancel(s.timers)
	s.polling = true
	s.pollGen++
	gen := s.pollGen
	s.pollStarted = time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		runAdaptive(pctx, s.nextInterval, s.pollOnce)

		s.mu.Lock()
		if s.pollGen == gen {
			s.polling = false
		}
		s.mu.Unlock()
	}()

	s.logger.Info("Polling started")
	return true
}

// nextInterval is the short cadence during the fast window after polling
// started and the long cadence afterwards.
func (s *Session) nextInterval() time.Duration {
	s.mu.RLock()
	started := s.pollStarted
	s.mu.RUnlock()

	if time.Since(started) < s.cfg.FastWindow {
		return s.cfg.FastInterval
	}
	return s.cfg.SlowInterval
}

func (s *Session) pollOnce(ctx context.Context) bool {
	s.mu.Lock()
	if s.complete {
		s.mu.Unlock()
		return false
	}
	s.attempts++
	attempt := s.attempts
	id := s.payment.PaymentID
	s.mu.Unlock()

	p, err := s.fetch(ctx, id)
	if ctx.Err() != nil {
		return false
	}

	switch {
	case err == nil:
		telemetry.PollAttempts.WithLabelValues("ok").Inc()
		s.mu.Lock()
		s.notFound = 0
		s.lastErr = ""
		s.mu.Unlock()
		if s.apply(*p, models.TriggerPoll) {
			return false
		}

	case errors.Is(err, models.ErrNotFound):
		telemetry.PollAttempts.WithLabelValues("not_found").Inc()
		s.mu.Lock()
		s.notFound++
		misses := s.notFound
		s.lastErr = err.Error()
		s.mu.Unlock()

		if misses > s.cfg.NotFoundGrace {
			s.logger.Warn("Payment still not found after grace window, expiring",
				zap.Int("attempt", attempt),
				zap.Int("not_found", misses),
			)
			s.expire(models.TriggerPoll)
			return false
		}
		s.logger.Debug("Payment not found yet", zap.Int("attempt", attempt), zap.Int("not_found", misses))

	default:
		telemetry.PollAttempts.WithLabelValues("error").Inc()
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.logger.Warn("Status poll failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	if attempt >= s.cfg.MaxAttempts {
		s.mu.Lock()
		if !s.complete {
			s.prompt = models.PromptTimeout
		}
		s.mu.Unlock()
		s.logger.Warn("Polling budget exhausted", zap.Int("attempt", attempt))
		return false
	}
	return true
}

func (s *Session) runCountdown() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CountdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.timers.Done():
			return
		case now := <-ticker.C:
			s.mu.RLock()
			expired := !now.Before(s.deadline)
			s.mu.RUnlock()
			if expired {
				s.autoCancel()
				return
			}
		}
	}
}

// autoCancel runs at most once, when the countdown reaches zero while the
// payment is still pending.
func (s *Session) autoCancel() {
	s.mu.Lock()
	if s.complete || s.closed || s.autoCancelled {
		s.mu.Unlock()
		return
	}
	s.autoCancelled = true
	s.mu.Unlock()

	s.logger.Info("Countdown elapsed, cancelling payment")

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout)
	defer cancel()

	if _, err := s.cancel(ctx, models.TriggerAutoCancel); err != nil {
		if errors.Is(err, models.ErrInvalidState) && s.isComplete() {
			return
		}
		s.logger.Warn("Auto-cancel failed, expiring locally", zap.Error(err))
		s.expire(models.TriggerAutoCancel)
	}
}

// HandleDeepLink short-circuits to the terminal status named by a gateway
// redirect. It reports whether the event changed the session.
func (s *Session) HandleDeepLink(evt models.DeepLinkEvent) bool {
	p := s.currentPayment()
	switch evt.Type {
	case models.DeepLinkPaymentSuccess:
		p.Status = models.StatusSuccess
	case models.DeepLinkPaymentCancel:
		p.Status = models.StatusCancelled
	default:
		return false
	}
	s.logger.Info("Deep link received", zap.String("type", string(evt.Type)))
	return s.finish(p, models.TriggerDeepLink, models.PromptNone)
}

// Foreground runs one out-of-band check after the host app returns to the
// foreground. It does not count against the polling budget.
func (s *Session) Foreground(ctx context.Context) bool {
	s.mu.RLock()
	complete := s.complete || s.closed
	id := s.payment.PaymentID
	s.mu.RUnlock()
	if complete {
		return false
	}

	p, err := s.fetch(ctx, id)
	if err != nil {
		s.logger.Warn("Foreground status check failed", zap.Error(err))
		return false
	}
	return s.apply(*p, models.TriggerForeground)
}

// CheckStatus is the user-initiated status check. Errors are returned to the
// caller so it can offer a retry.
func (s *Session) CheckStatus(ctx context.Context) (models.SessionState, error) {
	s.mu.RLock()
	complete := s.complete || s.closed
	id := s.payment.PaymentID
	s.mu.RUnlock()
	if complete {
		return s.Snapshot(), nil
	}

	p, err := s.fetch(ctx, id)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return s.Snapshot(), err
	}
	s.apply(*p, models.TriggerManual)
	return s.Snapshot(), nil
}

// Retry clears a timeout prompt, resets the attempt budget and restarts
// polling.
func (s *Session) Retry() bool {
	s.mu.Lock()
	if s.complete || s.closed {
		s.mu.Unlock()
		return false
	}
	s.attempts = 0
	s.notFound = 0
	s.prompt = models.PromptNone
	s.lastErr = ""
	s.mu.Unlock()

	return s.StartPolling()
}

// Close tears the session down. Timers and in-flight requests are
// cancelled; Done is closed once every goroutine has returned.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.polling = false
	s.mu.Unlock()

	s.stop()
	go func() {
		s.wg.Wait()
		close(s.done)
	}()
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Snapshot() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	if s.complete {
		now = s.finishedAt
	}
	remaining := s.deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	return models.SessionState{
		SessionID:        s.id,
		PaymentID:        s.payment.PaymentID,
		BookingID:        s.payment.BookingID,
		OrderCode:        s.payment.OrderCode,
		Kind:             s.kind,
		Status:           s.payment.Status,
		AttemptCount:     s.attempts,
		IsPolling:        s.polling,
		IsComplete:       s.complete,
		SecondsRemaining: int((remaining + time.Second - 1) / time.Second),
		Prompt:           s.prompt,
		LastError:        s.lastErr,
		Trigger:          s.trigger,
		NextRoute:        s.nextRoute,
		Payment:          s.payment,
		Booking:          s.booking,
	}
}

func (s *Session) isComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.complete
}

func (s *Session) currentPayment() models.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payment
}

func (s *Session) fetch(ctx context.Context, paymentID int64) (*models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return s.deps.Gateway.GetPayment(ctx, paymentID)
}

// apply folds a fresh snapshot into the session and reports whether it
// completed the session.
func (s *Session) apply(p models.Payment, trigger models.Trigger) bool {
	if p.Status.IsTerminal() {
		return s.finish(p, trigger, models.PromptNone)
	}
	s.mu.Lock()
	if !s.complete && !s.closed {
		s.payment = mergeSnapshot(s.payment, p)
	}
	s.mu.Unlock()
	return false
}

func (s *Session) expire(trigger models.Trigger) bool {
	p := s.currentPayment()
	p.Status = models.StatusExpired
	return s.finish(p, trigger, models.PromptExpired)
}

// finish performs the single terminal transition of the session. Whichever
// trigger gets here first wins; later callers get false.
func (s *Session) finish(p models.Payment, trigger models.Trigger, prompt models.Prompt) bool {
	s.mu.Lock()
	if s.complete || s.closed {
		s.mu.Unlock()
		return false
	}
	s.payment = mergeSnapshot(s.payment, p)
	s.complete = true
	s.polling = false
	s.prompt = prompt
	s.trigger = trigger
	s.finishedAt = time.Now()
	if p.Status.IsSuccess() {
		s.nextRoute = s.caps.SuccessRoute
	} else {
		s.nextRoute = s.caps.CancelRoute
	}
	outcome := models.SessionOutcome{
		SessionID:  s.id,
		PaymentID:  s.payment.PaymentID,
		BookingID:  s.payment.BookingID,
		OrderCode:  s.payment.OrderCode,
		Kind:       s.kind,
		Status:     s.payment.Status,
		Trigger:    trigger,
		Attempts:   s.attempts,
		Route:      s.nextRoute,
		OccurredAt: s.finishedAt,
	}
	s.mu.Unlock()

	s.cancelTimers()

	s.logger.Info("Payment session finished",
		zap.String("status", string(outcome.Status)),
		zap.String("trigger", string(trigger)),
		zap.Int("attempt", outcome.Attempts),
	)
	telemetry.SessionTerminal.WithLabelValues(string(outcome.Status), string(trigger)).Inc()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.RequestTimeout)
	defer cancel()

	s.recordTransition(ctx, outcome)
	if outcome.Status.IsSuccess() {
		s.onSuccess(ctx, outcome)
	} else if s.caps.NavigateOnCancel != nil {
		s.caps.NavigateOnCancel(ctx, outcome)
	}
	if s.onFinish != nil {
		s.onFinish(s)
	}
	return true
}

func (s *Session) onSuccess(ctx context.Context, outcome models.SessionOutcome) {
	if s.deps.Guard != nil {
		first, err := s.deps.Guard.Acquire(ctx, outcome.PaymentID)
		switch {
		case err != nil:
			s.logger.Warn("Success guard unavailable, continuing", zap.Error(err))
		case !first:
			s.logger.Info("Payment success already handled elsewhere")
			return
		}
	}
	if s.caps.RefreshBalance != nil {
		if err := s.caps.RefreshBalance(ctx, outcome.PaymentID); err != nil {
			s.logger.Warn("Balance refresh failed", zap.Error(err))
		}
	}
	if s.caps.NavigateOnSuccess != nil {
		s.caps.NavigateOnSuccess(ctx, outcome)
	}
}

func (s *Session) recordTransition(ctx context.Context, outcome models.SessionOutcome) {
	if s.deps.Repo == nil {
		return
	}
	rows, err := s.deps.Repo.TransitionStatus(ctx, s.id, models.StatusPending, outcome.Status, outcome.Attempts, outcome.Trigger)
	if err != nil {
		s.logger.Error("Failed to record session transition", zap.Error(err))
		return
	}
	if rows == 0 {
		s.logger.Warn("Session transition not applied",
			zap.String("from_status", string(models.StatusPending)),
			zap.String("to_status", string(outcome.Status)),
		)
	}
}

// mergeSnapshot returns fresh with identity and display fields the gateway
// omitted carried over from prev.
func mergeSnapshot(prev, fresh models.Payment) models.Payment {
	out := fresh
	if out.PaymentID == 0 {
		out.PaymentID = prev.PaymentID
	}
	if out.BookingID == 0 {
		out.BookingID = prev.BookingID
	}
	if out.OrderCode == "" {
		out.OrderCode = prev.OrderCode
	}
	if out.TotalAmount.IsZero() {
		out.TotalAmount = prev.TotalAmount
	}
	if out.QRCode == "" {
		out.QRCode = prev.QRCode
		out.QRFormat = prev.QRFormat
	}
	if out.PaymentURL == "" {
		out.PaymentURL = prev.PaymentURL
	}
	if out.Currency == "" {
		out.Currency = prev.Currency
	}
	if out.ExpiredAt == nil {
		out.ExpiredAt = prev.ExpiredAt
	}
	return out
}
