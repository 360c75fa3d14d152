package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/models"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
)

const PaymentCreatedTopic = "payment.created"

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

func NewPaymentCreatedReader(brokers []string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    PaymentCreatedTopic,
		GroupID:  "payment-reconciler",
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

// ConsumePaymentEvents mounts a session for every payment.created event
// until ctx is done or the reader is closed.
func (m *Manager) ConsumePaymentEvents(ctx context.Context, reader MessageReader) {
	telemetry.Logger.Info("Started consuming payment.created events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		var event models.PaymentEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			telemetry.Logger.Error("Error unmarshaling event", zap.Error(err))
			continue
		}

		payment := models.Payment{
			PaymentID:   event.PaymentID,
			BookingID:   event.BookingID,
			OrderCode:   event.OrderCode,
			TotalAmount: event.Amount,
			Currency:    event.Currency,
			Status:      models.ParseStatus(event.Status),
			QRCode:      event.QRCode,
			PaymentURL:  event.CheckoutURL,
		}
		booking := models.Booking{Name: event.BookingName, TotalAmount: event.Amount}

		if _, created, err := m.Start(ctx, payment, booking, models.ParseKind(string(event.Kind))); err != nil {
			telemetry.Logger.Error("Error mounting payment session",
				zap.Int64("payment_id", event.PaymentID),
				zap.Error(err),
			)
		} else if created {
			telemetry.Logger.Info("Mounted payment session from event",
				zap.Int64("payment_id", event.PaymentID),
				zap.String("kind", string(event.Kind)),
			)
		}
	}
}
