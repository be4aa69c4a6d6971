package payment

import (
	"context"
	"time"
)

// SessionRepository stores outstanding payment sessions.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, correlationID string) (*Session, error)
	// MarkProcessed is the idempotency gate: it flips processed from false
	// to true and returns the updated row, or ErrAlreadyProcessed.
	MarkProcessed(ctx context.Context, correlationID string, succeeded bool, resultCode int, resultDesc, receipt string, at time.Time) (*Session, error)
	// MarkRecorded notes that the PaymentRecord for a settled session exists.
	MarkRecorded(ctx context.Context, correlationID string) error
	ListUnprocessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Session, error)
	// ListUnrecordedBefore returns successful sessions processed before
	// cutoff whose PaymentRecord was never written.
	ListUnrecordedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Session, error)
	// DeleteProcessedBefore keeps successful sessions that are not yet recorded.
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type RecordRepository interface {
	// Create returns ErrRecordExists when the correlation id already has a record.
	Create(ctx context.Context, r *Record) error
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
	ListAnomalies(ctx context.Context, limit int) ([]Record, error)
}
