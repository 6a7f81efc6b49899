package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/config"
)

const (
	schemaVersion = "1.0"
	auditTopic    = "audit"
)

// AuditPublisher implements port.AuditSink on top of the async producer.
type AuditPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewAuditPublisher constructs a Kafka-backed audit sink.
func NewAuditPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *AuditPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type auditEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   map[string]any   `json:"payload,omitempty"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// Record enqueues the event on the audit topic keyed by user id so a user's
// events stay ordered within one partition.
func (p *AuditPublisher) Record(ctx context.Context, event domain.AuditEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("audit publisher not configured")
	}

	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := auditEnvelope{
		EventID:   id,
		EventType: "tokens." + string(event.Action),
		UserID:    event.UserID,
		SessionID: event.SessionID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   event.Metadata,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal audit envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(auditTopic),
		Value: sarama.ByteEncoder(bytes),
	}
	if event.UserID != "" {
		message.Key = sarama.StringEncoder(event.UserID)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.AuditSink = (*AuditPublisher)(nil)
