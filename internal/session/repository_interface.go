package session

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository persists sessions. Counter and queue mutations are atomic
// increments; implementations must never read-modify-write them in Go.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	ListByPerformer(ctx context.Context, performerID string) ([]Session, error)
	Transition(ctx context.Context, id string, from []Status, to Status, at time.Time) (*Session, error)
	SetAcceptingRequests(ctx context.Context, id string, accepting bool) (*Session, error)
	AppendToQueue(ctx context.Context, id, requestID string) (int, error)
	// RemoveFromQueue undoes AppendToQueue for a request that never became
	// visible. The position itself is not reused.
	RemoveFromQueue(ctx context.Context, id, requestID string) error
	RecordDecision(ctx context.Context, id, requestID string, accepted bool, amount decimal.Decimal) (*Session, error)
	AddTip(ctx context.Context, id string, amount decimal.Decimal) (*Session, error)
	SetCurrentSong(ctx context.Context, id, songID string) error
}
