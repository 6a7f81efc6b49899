package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
)

type countingMetrics struct {
	noopMetrics
	auditFailures int
}

func (m *countingMetrics) IncAuditFailure() { m.auditFailures++ }

type blockingSink struct{}

func (blockingSink) Record(ctx context.Context, _ domain.AuditEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestBestEffortAudit_DeliversResult(t *testing.T) {
	sink := &recordingSink{}
	audit := NewBestEffortAudit(sink, time.Second, nil, zaptest.NewLogger(t))

	result := <-audit.Submit(context.Background(), domain.AuditEvent{Action: domain.AuditActionLogin, UserID: "user-1"})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Event.ID == "" || result.Event.OccurredAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled, got %+v", result.Event)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected one recorded event, got %d", len(sink.events))
	}
}

func TestBestEffortAudit_CapturesSinkErrorAndPanic(t *testing.T) {
	metrics := &countingMetrics{}
	logger := zaptest.NewLogger(t)

	failing := NewBestEffortAudit(&recordingSink{err: errors.New("broker down")}, time.Second, metrics, logger)
	if result := <-failing.Submit(context.Background(), domain.AuditEvent{Action: domain.AuditActionLogout}); result.Err == nil {
		t.Fatalf("expected sink error in result")
	}

	panicking := NewBestEffortAudit(&recordingSink{panics: true}, time.Second, metrics, logger)
	if result := <-panicking.Submit(context.Background(), domain.AuditEvent{Action: domain.AuditActionLogout}); result.Err == nil {
		t.Fatalf("expected recovered panic in result")
	}

	if metrics.auditFailures != 2 {
		t.Fatalf("expected 2 audit failures counted, got %d", metrics.auditFailures)
	}
}

func TestBestEffortAudit_SurvivesCallerCancellation(t *testing.T) {
	sink := &recordingSink{}
	audit := NewBestEffortAudit(sink, time.Second, nil, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if result := <-audit.Submit(ctx, domain.AuditEvent{Action: domain.AuditActionLogoutAll}); result.Err != nil {
		t.Fatalf("expected detached context to ignore caller cancellation, got %v", result.Err)
	}
}

func TestBestEffortAudit_TimesOut(t *testing.T) {
	audit := NewBestEffortAudit(blockingSink{}, 20*time.Millisecond, nil, zaptest.NewLogger(t))

	select {
	case result := <-audit.Submit(context.Background(), domain.AuditEvent{Action: domain.AuditActionLogin}):
		if !errors.Is(result.Err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", result.Err)
		}
	case <-time.After(time.Second):
		t.Fatalf("audit submission did not time out")
	}
}

func TestBestEffortAudit_NilSinkIsNoop(t *testing.T) {
	audit := NewBestEffortAudit(nil, 0, nil, nil)

	result, ok := <-audit.Submit(context.Background(), domain.AuditEvent{Action: domain.AuditActionLogin})
	if !ok || result.Err != nil {
		t.Fatalf("expected an immediate empty result, got %+v ok=%v", result, ok)
	}
}
