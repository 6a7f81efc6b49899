package port

import (
	"context"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
)

// AuditSink receives lifecycle events. Callers treat it as fire-and-forget.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}
