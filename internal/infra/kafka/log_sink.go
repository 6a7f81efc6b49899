package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
)

// LogSink logs audit events instead of sending them to Kafka. Used when the
// broker is disabled.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a development-friendly audit sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Record writes the event to the logger.
func (s *LogSink) Record(_ context.Context, event domain.AuditEvent) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.logger.Info("Audit event recorded",
		zap.String("event_id", event.ID),
		zap.String("action", string(event.Action)),
		zap.String("user_id", event.UserID),
		zap.String("session_id", event.SessionID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("metadata", event.Metadata),
	)
	return nil
}

var _ port.AuditSink = (*LogSink)(nil)
