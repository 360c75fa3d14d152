package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/models"
)

// Cancel is the user-initiated cancel. The remote status is re-read first so
// a payment that already went through is never cancelled; in that case
// ErrInvalidState is returned and the local status never becomes cancelled.
// A payment the gateway no longer knows about counts as already cancelled.
func (s *Session) Cancel(ctx context.Context) (models.CancelOutcome, error) {
	return s.cancel(ctx, models.TriggerCancel)
}

func (s *Session) cancel(ctx context.Context, trigger models.Trigger) (models.CancelOutcome, error) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()

	s.mu.RLock()
	complete := s.complete
	current := s.payment
	s.mu.RUnlock()

	if complete {
		if current.Status.IsSuccess() {
			return "", fmt.Errorf("%w: payment %d is %s", models.ErrInvalidState, current.PaymentID, current.Status)
		}
		return models.CancelOutcomeAlreadyCancelled, nil
	}

	latest, err := s.fetch(ctx, current.PaymentID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		s.finishCancelled(current, trigger)
		return models.CancelOutcomeAlreadyCancelled, nil
	case err != nil:
		return "", err
	}

	switch {
	case latest.Status.IsSuccess():
		s.apply(*latest, trigger)
		s.logger.Info("Cancel refused, payment already succeeded", zap.String("status", string(latest.Status)))
		return "", fmt.Errorf("%w: payment %d is %s", models.ErrInvalidState, current.PaymentID, latest.Status)
	case latest.Status.IsFailure():
		s.apply(*latest, trigger)
		return models.CancelOutcomeAlreadyCancelled, nil
	}

	snapshot := mergeSnapshot(current, *latest)
	if err := s.deps.Gateway.CancelPayment(ctx, snapshot.BookingID); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			s.finishCancelled(snapshot, trigger)
			return models.CancelOutcomeAlreadyCancelled, nil
		case errors.Is(err, models.ErrInvalidState):
			return s.reconcileRefusedCancel(ctx, snapshot, trigger, err)
		}
		s.logger.Warn("Cancel request failed", zap.String("trigger", string(trigger)), zap.Error(err))
		return "", err
	}

	s.finishCancelled(snapshot, trigger)
	return models.CancelOutcomeCancelled, nil
}

func (s *Session) finishCancelled(p models.Payment, trigger models.Trigger) {
	p.Status = models.StatusCancelled
	s.finish(p, trigger, models.PromptNone)
}

// reconcileRefusedCancel handles a cancel the gateway refused as already
// finalized. The status is read again: success is surfaced as
// ErrInvalidState, anything else ends the session as already cancelled.
func (s *Session) reconcileRefusedCancel(ctx context.Context, snapshot models.Payment, trigger models.Trigger, refusal error) (models.CancelOutcome, error) {
	latest, err := s.fetch(ctx, snapshot.PaymentID)
	switch {
	case err == nil && latest.Status.IsSuccess():
		s.apply(*latest, trigger)
		s.logger.Info("Cancel refused, payment already succeeded", zap.String("status", string(latest.Status)))
		return "", fmt.Errorf("%w: payment %d is %s", models.ErrInvalidState, snapshot.PaymentID, latest.Status)
	case err == nil && latest.Status.IsFailure():
		s.apply(*latest, trigger)
		return models.CancelOutcomeAlreadyCancelled, nil
	case err != nil && !errors.Is(err, models.ErrNotFound):
		s.logger.Warn("Status re-check after refused cancel failed", zap.Error(err))
	}

	s.logger.Info("Gateway reports payment already finalized", zap.String("trigger", string(trigger)), zap.Error(refusal))
	if trigger == models.TriggerAutoCancel {
		s.expire(trigger)
	} else {
		s.finishCancelled(snapshot, trigger)
	}
	return models.CancelOutcomeAlreadyCancelled, nil
}
