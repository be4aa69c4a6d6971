package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spinwish/internal/logger"
	"spinwish/internal/metrics"
)

// Manager owns the session lifecycle and the counters other packages
// mutate through it.
type Manager struct {
	repo Repository
	now  func() time.Time
}

func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo, now: time.Now}
}

func (m *Manager) Create(ctx context.Context, performerID, performerName string, req CreateSessionRequest) (*Session, error) {
	s := &Session{
		ID:                  uuid.NewString(),
		PerformerID:         performerID,
		PerformerName:       performerName,
		VenueID:             req.VenueID,
		Title:               req.Title,
		Status:              StatusPreparing,
		Type:                ParseType(req.Type),
		IsAcceptingRequests: true,
		MinTipAmount:        decimal.Zero,
		TotalEarnings:       decimal.Zero,
		TotalTips:           decimal.Zero,
	}
	if req.MinTipAmount != nil {
		if req.MinTipAmount.IsNegative() {
			return nil, ErrInvalidMinimum
		}
		s.MinTipAmount = *req.MinTipAmount
	}
	if req.IsAcceptingRequests != nil {
		s.IsAcceptingRequests = *req.IsAcceptingRequests
	}

	if err := m.repo.Create(ctx, s); err != nil {
		return nil, err
	}
	metrics.RecordSessionTransition(string(StatusPreparing))
	logger.Info("session created", "session_id", s.ID, "performer_id", performerID, "type", s.Type)
	return s, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.repo.GetByID(ctx, id)
}

func (m *Manager) ListByPerformer(ctx context.Context, performerID string) ([]Session, error) {
	return m.repo.ListByPerformer(ctx, performerID)
}

func (m *Manager) Start(ctx context.Context, performerID, id string) (*Session, error) {
	return m.transition(ctx, performerID, id, []Status{StatusPreparing}, StatusLive)
}

func (m *Manager) Pause(ctx context.Context, performerID, id string) (*Session, error) {
	return m.transition(ctx, performerID, id, []Status{StatusLive}, StatusPaused)
}

func (m *Manager) Resume(ctx context.Context, performerID, id string) (*Session, error) {
	return m.transition(ctx, performerID, id, []Status{StatusPaused}, StatusLive)
}

// End is terminal. In-flight payments are not cancelled; they settle as
// anomalies when they arrive.
func (m *Manager) End(ctx context.Context, performerID, id string) (*Session, error) {
	return m.transition(ctx, performerID, id, []Status{StatusLive, StatusPaused}, StatusEnded)
}

func (m *Manager) transition(ctx context.Context, performerID, id string, from []Status, to Status) (*Session, error) {
	if _, err := m.owned(ctx, performerID, id); err != nil {
		return nil, err
	}

	s, err := m.repo.Transition(ctx, id, from, to, m.now())
	if err != nil {
		return nil, err
	}
	metrics.RecordSessionTransition(string(to))
	logger.Info("session transitioned", "session_id", id, "status", to)
	return s, nil
}

func (m *Manager) owned(ctx context.Context, performerID, id string) (*Session, error) {
	s, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.PerformerID != performerID {
		return nil, ErrNotOwner
	}
	return s, nil
}

func (m *Manager) SetAcceptingRequests(ctx context.Context, performerID, id string, accepting bool) (*Session, error) {
	if _, err := m.owned(ctx, performerID, id); err != nil {
		return nil, err
	}
	return m.repo.SetAcceptingRequests(ctx, id, accepting)
}

// CheckAccepting reports whether a new paid request of amount may be
// submitted to the session right now.
func (m *Manager) CheckAccepting(ctx context.Context, id string, amount decimal.Decimal) (*Session, error) {
	s, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case s.Status == StatusEnded:
		return nil, ErrSessionEnded
	case s.Status != StatusLive:
		return nil, ErrSessionNotLive
	case !s.IsAcceptingRequests:
		return nil, ErrNotAcceptingRequests
	case amount.LessThan(s.MinTipAmount):
		return nil, fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, s.MinTipAmount.StringFixed(2))
	}
	return s, nil
}

// AssignQueuePosition appends requestID to the session queue and returns
// its position. Positions are never reused.
func (m *Manager) AssignQueuePosition(ctx context.Context, id, requestID string) (int, error) {
	return m.repo.AppendToQueue(ctx, id, requestID)
}

// ReleaseQueuePosition takes back a position whose request could not be
// marked paid. It also applies to ended sessions.
func (m *Manager) ReleaseQueuePosition(ctx context.Context, id, requestID string) error {
	return m.repo.RemoveFromQueue(ctx, id, requestID)
}

func (m *Manager) RecordAccepted(ctx context.Context, id, requestID string, amount decimal.Decimal) (*Session, error) {
	return m.repo.RecordDecision(ctx, id, requestID, true, amount)
}

func (m *Manager) RecordRejected(ctx context.Context, id, requestID string) (*Session, error) {
	return m.repo.RecordDecision(ctx, id, requestID, false, decimal.Zero)
}

func (m *Manager) CreditTip(ctx context.Context, id string, amount decimal.Decimal) (*Session, error) {
	return m.repo.AddTip(ctx, id, amount)
}

func (m *Manager) SetCurrentSong(ctx context.Context, id, songID string) error {
	return m.repo.SetCurrentSong(ctx, id, songID)
}

func (m *Manager) Analytics(ctx context.Context, id string) (*Analytics, error) {
	s, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	a := &Analytics{
		SessionID:        s.ID,
		Status:           s.Status,
		TotalRequests:    s.TotalRequests,
		PendingRequests:  s.TotalRequests - s.AcceptedRequests - s.RejectedRequests,
		AcceptedRequests: s.AcceptedRequests,
		RejectedRequests: s.RejectedRequests,
		TotalEarnings:    s.TotalEarnings,
		TotalTips:        s.TotalTips,
		TotalIncome:      s.TotalEarnings.Add(s.TotalTips),
		EarningsPerHour:  decimal.Zero,
	}
	if decided := s.AcceptedRequests + s.RejectedRequests; decided > 0 {
		a.AcceptanceRate = float64(s.AcceptedRequests) / float64(decided) * 100
	}

	if s.StartedAt != nil {
		end := m.now()
		if s.EndedAt != nil {
			end = *s.EndedAt
		}
		elapsed := end.Sub(*s.StartedAt)
		a.DurationMinutes = int64(elapsed / time.Minute)
		if hours := elapsed.Hours(); hours > 0 {
			a.EarningsPerHour = a.TotalIncome.Div(decimal.NewFromFloat(hours)).Round(2)
			a.RequestsPerHour = float64(s.TotalRequests) / hours
		}
	}
	return a, nil
}
