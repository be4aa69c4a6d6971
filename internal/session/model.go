package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"spinwish/internal/logger"
)

type Status string
type Type string

const (
	StatusPreparing Status = "PREPARING"
	StatusLive      Status = "LIVE"
	StatusPaused    Status = "PAUSED"
	StatusEnded     Status = "ENDED"

	TypeVenue  Type = "VENUE"
	TypeOnline Type = "ONLINE"
)

type Session struct {
	ID                  string          `db:"id" json:"id"`
	PerformerID         string          `db:"performer_id" json:"performer_id"`
	PerformerName       string          `db:"performer_name" json:"performer_name"`
	VenueID             *string         `db:"venue_id" json:"venue_id,omitempty"`
	Title               string          `db:"title" json:"title"`
	Status              Status          `db:"status" json:"status"`
	Type                Type            `db:"type" json:"type"`
	IsAcceptingRequests bool            `db:"is_accepting_requests" json:"is_accepting_requests"`
	MinTipAmount        decimal.Decimal `db:"min_tip_amount" json:"min_tip_amount"`
	TotalEarnings       decimal.Decimal `db:"total_earnings" json:"total_earnings"`
	TotalTips           decimal.Decimal `db:"total_tips" json:"total_tips"`
	TotalRequests       int             `db:"total_requests" json:"total_requests"`
	AcceptedRequests    int             `db:"accepted_requests" json:"accepted_requests"`
	RejectedRequests    int             `db:"rejected_requests" json:"rejected_requests"`
	QueueTail           int             `db:"queue_tail" json:"-"`
	RequestQueue        pq.StringArray  `db:"request_queue" json:"request_queue"`
	CurrentSongID       *string         `db:"current_song_id" json:"current_song_id,omitempty"`
	StartedAt           *time.Time      `db:"started_at" json:"started_at,omitempty"`
	EndedAt             *time.Time      `db:"ended_at" json:"ended_at,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// Analytics summarises a session's counters for the performer dashboard.
type Analytics struct {
	SessionID        string          `json:"session_id"`
	Status           Status          `json:"status"`
	TotalRequests    int             `json:"total_requests"`
	PendingRequests  int             `json:"pending_requests"`
	AcceptedRequests int             `json:"accepted_requests"`
	RejectedRequests int             `json:"rejected_requests"`
	AcceptanceRate   float64         `json:"acceptance_rate"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	TotalTips        decimal.Decimal `json:"total_tips"`
	TotalIncome      decimal.Decimal `json:"total_income"`
	DurationMinutes  int64           `json:"duration_minutes"`
	EarningsPerHour  decimal.Decimal `json:"earnings_per_hour"`
	RequestsPerHour  float64         `json:"requests_per_hour"`
}

type CreateSessionRequest struct {
	Title               string           `json:"title" binding:"required,max=120"`
	Type                string           `json:"type" binding:"omitempty,oneof=VENUE ONLINE CLUB venue online club"`
	VenueID             *string          `json:"venue_id"`
	MinTipAmount        *decimal.Decimal `json:"min_tip_amount"`
	IsAcceptingRequests *bool            `json:"is_accepting_requests"`
}

type SetAcceptingRequest struct {
	Accepting *bool `json:"accepting" binding:"required"`
}

// ParseStatus fails closed on anything other than a known lifecycle status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPreparing, StatusLive, StatusPaused, StatusEnded:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// ParseType accepts CLUB as an alias of VENUE and falls back to ONLINE.
func ParseType(s string) Type {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VENUE", "CLUB":
		return TypeVenue
	case "ONLINE":
		return TypeOnline
	case "":
		return TypeOnline
	default:
		logger.Warn("unknown session type, defaulting to ONLINE", "type", s)
		return TypeOnline
	}
}

func (s *Session) clone() *Session {
	c := *s
	c.RequestQueue = append(pq.StringArray(nil), s.RequestQueue...)
	return &c
}
