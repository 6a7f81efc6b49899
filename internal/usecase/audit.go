package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
)

const defaultAuditTimeout = 2 * time.Second

// AuditResult reports what happened to a submitted audit event.
type AuditResult struct {
	Event domain.AuditEvent
	Err   error
}

// BestEffortAudit forwards lifecycle events to the audit sink without ever
// affecting the caller's outcome.
type BestEffortAudit struct {
	sink    port.AuditSink
	timeout time.Duration
	metrics port.RevocationMetrics
	logger  *zap.Logger
	now     func() time.Time

	wg sync.WaitGroup
}

// NewBestEffortAudit constructs the helper. A nil sink turns Submit into a no-op.
func NewBestEffortAudit(sink port.AuditSink, timeout time.Duration, metrics port.RevocationMetrics, logger *zap.Logger) *BestEffortAudit {
	if timeout <= 0 {
		timeout = defaultAuditTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BestEffortAudit{
		sink:    sink,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit records the event in the background. The returned channel receives
// exactly one result and is then closed; callers may ignore it.
func (a *BestEffortAudit) Submit(ctx context.Context, event domain.AuditEvent) <-chan AuditResult {
	results := make(chan AuditResult, 1)
	if a == nil || a.sink == nil {
		results <- AuditResult{Event: event}
		close(results)
		return results
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = a.now()
	}
	detached := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(results)

		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("audit sink panic: %v", r)
			}
			if err != nil {
				a.metrics.IncAuditFailure()
				a.logger.Warn("audit event dropped",
					zap.String("action", string(event.Action)),
					zap.String("event_id", event.ID),
					zap.Error(err),
				)
			}
			results <- AuditResult{Event: event, Err: err}
		}()

		sinkCtx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()
		err = a.sink.Record(sinkCtx, event)
	}()

	return results
}

// Wait blocks until every submitted event has been handled.
func (a *BestEffortAudit) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}
