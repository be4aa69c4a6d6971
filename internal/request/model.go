package request

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPending         Status = "PENDING"
	StatusAccepted        Status = "ACCEPTED"
	StatusRejected        Status = "REJECTED"
	StatusPlayed          Status = "PLAYED"
)

// ParseStatus fails closed on unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusAwaitingPayment, StatusPending, StatusAccepted, StatusRejected, StatusPlayed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

type Request struct {
	ID                   string          `db:"id" json:"id"`
	RequesterID          string          `db:"requester_id" json:"requester_id"`
	PerformerID          string          `db:"performer_id" json:"performer_id"`
	SessionID            string          `db:"session_id" json:"session_id"`
	SongID               string          `db:"song_id" json:"song_id"`
	Status               Status          `db:"status" json:"status"`
	Amount               decimal.Decimal `db:"amount" json:"amount"`
	Message              *string         `db:"message" json:"message,omitempty"`
	QueuePosition        *int            `db:"queue_position" json:"queue_position"`
	PaymentCorrelationID *string         `db:"payment_correlation_id" json:"payment_correlation_id,omitempty"`
	PaidAt               *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

type SubmitRequest struct {
	SongID  string           `json:"song_id" binding:"required,max=200"`
	Amount  *decimal.Decimal `json:"amount" binding:"required"`
	Phone   string           `json:"phone" binding:"required"`
	Message *string          `json:"message" binding:"omitempty,max=280"`
}

type SubmitResponse struct {
	Request       *Request `json:"request"`
	CorrelationID string   `json:"correlation_id"`
	Message       string   `json:"message"`
}

// QueueEntry pairs a pending request with its live rank. Rank is
// compacted, unlike QueuePosition.
type QueueEntry struct {
	Request
	Rank int `json:"rank"`
}

type Stats struct {
	SessionID         string          `json:"session_id"`
	QueueLength       int             `json:"queue_length"`
	TotalValue        decimal.Decimal `json:"total_value"`
	AverageAmount     decimal.Decimal `json:"average_amount"`
	OldestWaitMinutes int64           `json:"oldest_wait_minutes"`
}
