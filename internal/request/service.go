package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spinwish/internal/logger"
	"spinwish/internal/metrics"
	"spinwish/internal/payment"
	"spinwish/internal/session"
)

// PaymentInitiator starts a payment prompt for a request.
type PaymentInitiator interface {
	Initiate(ctx context.Context, in payment.InitiateInput) (*payment.Session, error)
}

// Queue owns song request submission, payment confirmation and the
// performer's accept, reject and play actions.
type Queue struct {
	repo     Repository
	sessions *session.Manager
	payments PaymentInitiator
	now      func() time.Time
}

func NewQueue(repo Repository, sessions *session.Manager, payments PaymentInitiator) *Queue {
	return &Queue{repo: repo, sessions: sessions, payments: payments, now: time.Now}
}

// Submit creates a request waiting on payment and pushes the prompt. The
// session guards run before any payment session exists.
func (q *Queue) Submit(ctx context.Context, sessionID, requesterID string, in SubmitRequest) (*SubmitResponse, error) {
	if err := payment.ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	if _, err := payment.NormalizePhone(in.Phone); err != nil {
		return nil, err
	}

	s, err := q.sessions.CheckAccepting(ctx, sessionID, *in.Amount)
	if err != nil {
		return nil, err
	}

	req := &Request{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		PerformerID: s.PerformerID,
		SessionID:   s.ID,
		SongID:      in.SongID,
		Status:      StatusAwaitingPayment,
		Amount:      *in.Amount,
		Message:     in.Message,
	}
	if err := q.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	requestID := req.ID
	ps, err := q.payments.Initiate(ctx, payment.InitiateInput{
		Phone:       in.Phone,
		Amount:      in.Amount,
		Purpose:     payment.PurposeRequest,
		RequestID:   &requestID,
		SessionID:   s.ID,
		PerformerID: s.PerformerID,
		PayerID:     requesterID,
		Reference:   "Song" + s.PerformerName,
		Description: "Song request",
	})
	if err != nil {
		if delErr := q.repo.DeleteAwaiting(ctx, req.ID); delErr != nil {
			logger.Warn("remove unpaid request", "request_id", req.ID, "error", delErr)
		}
		return nil, err
	}

	if err := q.repo.SetCorrelation(ctx, req.ID, ps.CorrelationID); err != nil && !errors.Is(err, ErrRequestNotFound) {
		return nil, err
	}
	cid := ps.CorrelationID
	req.PaymentCorrelationID = &cid

	metrics.RecordSongRequest("submitted")
	logger.FromContext(ctx).Info("song request submitted",
		"request_id", req.ID,
		"session_id", s.ID,
		"correlation_id", cid,
	)
	return &SubmitResponse{
		Request:       req,
		CorrelationID: cid,
		Message:       "Payment prompt sent. Your request joins the queue once payment completes.",
	}, nil
}

// ConfirmPayment assigns the next queue position and exposes the request
// to the performer.
func (q *Queue) ConfirmPayment(ctx context.Context, requestID, receipt string) (int, error) {
	req, err := q.repo.GetByID(ctx, requestID)
	if errors.Is(err, ErrRequestNotFound) {
		return 0, fmt.Errorf("%w: %w", payment.ErrTargetGone, err)
	}
	if err != nil {
		return 0, err
	}
	if req.Status != StatusAwaitingPayment {
		return 0, fmt.Errorf("%w: %w", payment.ErrTargetGone, ErrNotAwaitingPayment)
	}

	position, err := q.sessions.AssignQueuePosition(ctx, req.SessionID, req.ID)
	if err != nil {
		return 0, fmt.Errorf("assign queue position: %w", err)
	}

	if _, err := q.repo.MarkPaid(ctx, req.ID, position, q.now()); err != nil {
		if relErr := q.sessions.ReleaseQueuePosition(context.WithoutCancel(ctx), req.SessionID, req.ID); relErr != nil {
			logger.FromContext(ctx).Error("release queue position",
				"request_id", req.ID,
				"queue_position", position,
				"error", relErr,
			)
		}
		if errors.Is(err, ErrRequestNotFound) || errors.Is(err, ErrNotAwaitingPayment) {
			return 0, fmt.Errorf("%w: %w", payment.ErrTargetGone, err)
		}
		return 0, err
	}

	metrics.RecordSongRequest(string(StatusPending))
	logger.FromContext(ctx).Info("song request paid",
		"request_id", req.ID,
		"queue_position", position,
		"receipt", receipt,
	)
	return position, nil
}

// Discard drops a request whose payment failed. The requester resubmits.
func (q *Queue) Discard(ctx context.Context, requestID string) error {
	if err := q.repo.DeleteAwaiting(ctx, requestID); err != nil {
		if errors.Is(err, ErrNotAwaitingPayment) {
			return fmt.Errorf("%w: %w", payment.ErrTargetGone, err)
		}
		return err
	}
	metrics.RecordSongRequest("discarded")
	return nil
}

func (q *Queue) Get(ctx context.Context, id string) (*Request, error) {
	return q.repo.GetByID(ctx, id)
}

func (q *Queue) owned(ctx context.Context, performerID, id string) (*Request, error) {
	req, err := q.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PerformerID != performerID {
		return nil, ErrNotPerformer
	}
	return req, nil
}

// Accept credits the request amount to the session's earnings.
func (q *Queue) Accept(ctx context.Context, performerID, id string) (*Request, error) {
	return q.decide(ctx, performerID, id, StatusAccepted, func(req *Request) error {
		_, err := q.sessions.RecordAccepted(ctx, req.SessionID, req.ID, req.Amount)
		return err
	})
}

// Reject does not refund; captured funds stay with the provider flow.
func (q *Queue) Reject(ctx context.Context, performerID, id string) (*Request, error) {
	return q.decide(ctx, performerID, id, StatusRejected, func(req *Request) error {
		_, err := q.sessions.RecordRejected(ctx, req.SessionID, req.ID)
		return err
	})
}

func (q *Queue) MarkPlayed(ctx context.Context, performerID, id string) (*Request, error) {
	if _, err := q.owned(ctx, performerID, id); err != nil {
		return nil, err
	}

	req, err := q.repo.UpdateStatus(ctx, id, StatusAccepted, StatusPlayed)
	if err != nil {
		return nil, err
	}
	if err := q.sessions.SetCurrentSong(ctx, req.SessionID, req.SongID); err != nil {
		q.revert(ctx, id, StatusPlayed, StatusAccepted)
		return nil, err
	}
	metrics.RecordSongRequest(string(StatusPlayed))
	return req, nil
}

// decide flips PENDING to status first so concurrent decisions on the
// same request apply counters once, then reverts if the session refuses.
func (q *Queue) decide(ctx context.Context, performerID, id string, status Status, apply func(*Request) error) (*Request, error) {
	if _, err := q.owned(ctx, performerID, id); err != nil {
		return nil, err
	}

	req, err := q.repo.UpdateStatus(ctx, id, StatusPending, status)
	if err != nil {
		return nil, err
	}
	if err := apply(req); err != nil {
		q.revert(ctx, id, status, StatusPending)
		return nil, err
	}

	metrics.RecordSongRequest(string(status))
	logger.FromContext(ctx).Info("song request decided", "request_id", id, "status", status)
	return req, nil
}

func (q *Queue) revert(ctx context.Context, id string, from, to Status) {
	if _, err := q.repo.UpdateStatus(ctx, id, from, to); err != nil {
		logger.Error("revert request status", "request_id", id, "error", err)
	}
}

// ListQueue returns pending requests in queue position order with
// compacted ranks.
func (q *Queue) ListQueue(ctx context.Context, sessionID string) ([]QueueEntry, error) {
	if _, err := q.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	pending, err := q.repo.ListBySession(ctx, sessionID, StatusPending)
	if err != nil {
		return nil, err
	}

	entries := make([]QueueEntry, len(pending))
	for i, r := range pending {
		entries[i] = QueueEntry{Request: r, Rank: i + 1}
	}
	return entries, nil
}

func (q *Queue) ListByStatus(ctx context.Context, sessionID string, status Status) ([]Request, error) {
	return q.repo.ListBySession(ctx, sessionID, status)
}

func (q *Queue) Stats(ctx context.Context, sessionID string) (*Stats, error) {
	entries, err := q.ListQueue(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		SessionID:     sessionID,
		QueueLength:   len(entries),
		TotalValue:    decimal.Zero,
		AverageAmount: decimal.Zero,
	}
	if len(entries) == 0 {
		return stats, nil
	}

	oldest := q.now()
	for _, e := range entries {
		stats.TotalValue = stats.TotalValue.Add(e.Amount)
		waitingSince := e.CreatedAt
		if e.PaidAt != nil {
			waitingSince = *e.PaidAt
		}
		if waitingSince.Before(oldest) {
			oldest = waitingSince
		}
	}
	stats.AverageAmount = stats.TotalValue.Div(decimal.NewFromInt(int64(len(entries)))).Round(2)

	stats.OldestWaitMinutes = int64(q.now().Sub(oldest) / time.Minute)
	return stats, nil
}
