// Package events broadcasts terminal session outcomes to the rest of the
// platform over Kafka and NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/interfaces"
	"github.com/snapbook/payment-reconciler/internal/models"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
)

const OutcomeTopic = "payment.session.finished"

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewOutcomeWriter(brokers string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(SplitBrokers(brokers)...),
		Topic:    OutcomeTopic,
		Balancer: &kafka.LeastBytes{},
	}
}

// SplitBrokers parses a comma-separated broker list.
func SplitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// PublishOutcome writes the outcome keyed by payment id so every event of a
// payment lands on the same partition.
func (p *KafkaPublisher) PublishOutcome(ctx context.Context, outcome models.SessionOutcome) error {
	value, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(outcome.PaymentID, 10)),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Conn is the subset of *nats.Conn used here.
type Conn interface {
	Publish(subj string, data []byte) error
}

type NATSPublisher struct {
	nc Conn
}

func NewNATSPublisher(nc Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// Subject is payment.session.<kind>.<status>, lower-cased.
func Subject(outcome models.SessionOutcome) string {
	return fmt.Sprintf("payment.session.%s.%s",
		strings.ToLower(string(outcome.Kind)),
		strings.ToLower(string(outcome.Status)),
	)
}

func (p *NATSPublisher) PublishOutcome(ctx context.Context, outcome models.SessionOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(Subject(outcome), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// MultiPublisher fans an outcome out to every publisher. All publishers are
// tried; their errors are joined.
type MultiPublisher []interfaces.OutcomePublisher

func (m MultiPublisher) PublishOutcome(ctx context.Context, outcome models.SessionOutcome) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishOutcome(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	telemetry.Logger.Debug("Published session outcome",
		zap.Int64("payment_id", outcome.PaymentID),
		zap.String("status", string(outcome.Status)),
		zap.String("trigger", string(outcome.Trigger)),
	)
	return nil
}
