package request

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	SetCorrelation(ctx context.Context, id, correlationID string) error
	// MarkPaid moves an AWAITING_PAYMENT request to PENDING with its queue
	// position.
	MarkPaid(ctx context.Context, id string, position int, paidAt time.Time) (*Request, error)
	// UpdateStatus is a compare-and-set on status.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Request, error)
	// DeleteAwaiting removes a request that never got paid.
	DeleteAwaiting(ctx context.Context, id string) error
	// ListBySession orders by paid time, then submission time.
	ListBySession(ctx context.Context, sessionID string, status Status) ([]Request, error)
}
