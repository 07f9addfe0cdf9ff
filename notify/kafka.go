// Package notify delivers finished pipeline runs to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ledgerone/warehouse/ledger"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one JSON message per run, keyed by run id.
type Kafka struct {
	writer messageWriter
}

var _ ledger.RunNotifier = (*Kafka)(nil)

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// RunMessage is the payload of a run notification.
type RunMessage struct {
	Type string           `json:"type"`
	Run  ledger.RunRecord `json:"run"`
}

func messageType(status ledger.RunStatus) string {
	switch status {
	case ledger.RunPublished:
		return "tables_published"
	case ledger.RunBlocked:
		return "run_blocked"
	default:
		return "run_failed"
	}
}

func (k *Kafka) NotifyRun(ctx context.Context, run ledger.RunRecord) error {
	data, err := json.Marshal(RunMessage{Type: messageType(run.Status), Run: run})
	if err != nil {
		return err
	}

	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(run.RunID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(run.Status)},
		},
	})
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// =============================================================================
// FAN-OUT
// =============================================================================

// Multi delivers a run to every notifier and joins their errors.
type Multi []ledger.RunNotifier

func (m Multi) NotifyRun(ctx context.Context, run ledger.RunRecord) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyRun(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
