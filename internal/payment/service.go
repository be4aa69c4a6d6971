package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"spinwish/internal/logger"
	"spinwish/internal/metrics"
	"spinwish/internal/session"
)

// ErrTipsClosed is returned when tipping an ended session.
var ErrTipsClosed = errors.New("session is not taking tips")

type InitiateInput struct {
	Phone       string
	Amount      *decimal.Decimal
	Purpose     Purpose
	RequestID   *string
	SessionID   string
	PerformerID string
	PayerID     string
	Reference   string
	Description string
}

// Service validates payment input, pushes the prompt and records the
// outstanding payment session.
type Service struct {
	gateway   Gateway
	sessions  SessionRepository
	directory SessionDirectory
	retry     *RetryPolicy
	expiry    time.Duration
	now       func() time.Time
}

func NewService(gateway Gateway, sessions SessionRepository, directory SessionDirectory, retry *RetryPolicy, expiry time.Duration) *Service {
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Service{
		gateway:   gateway,
		sessions:  sessions,
		directory: directory,
		retry:     retry,
		expiry:    expiry,
		now:       time.Now,
	}
}

// Initiate never holds a session lock while waiting on the gateway.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*Session, error) {
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	if err := ValidateAmount(in.Amount); err != nil {
		return nil, err
	}

	push := PushRequest{
		Phone:       phone,
		Amount:      *in.Amount,
		Reference:   SanitizeReference(in.Reference),
		Description: in.Description,
	}

	var resp *PushResponse
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		var pushErr error
		resp, pushErr = s.gateway.InitiatePush(ctx, push)
		return pushErr
	})
	if err != nil {
		logger.FromContext(ctx).Error("payment initiation failed", "purpose", in.Purpose, "error", err)
		return nil, err
	}

	now := s.now()
	ps := &Session{
		CorrelationID:     resp.CorrelationID,
		MerchantRequestID: resp.MerchantRequestID,
		Phone:             phone,
		Amount:            *in.Amount,
		Purpose:           in.Purpose,
		RequestID:         in.RequestID,
		SessionID:         in.SessionID,
		PerformerID:       in.PerformerID,
		PayerID:           in.PayerID,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.expiry),
	}
	if err := s.sessions.Create(ctx, ps); err != nil {
		return nil, fmt.Errorf("store payment session: %w", err)
	}

	metrics.RecordPaymentInitiated(string(in.Purpose))
	logger.FromContext(ctx).Info("payment initiated",
		"correlation_id", ps.CorrelationID,
		"purpose", ps.Purpose,
		"amount", ps.Amount.String(),
	)
	return ps, nil
}

// Tip starts a tip payment to a session that has not ended.
func (s *Service) Tip(ctx context.Context, sessionID, payerID string, req TipRequest) (*Session, error) {
	target, err := s.directory.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if target.Status == session.StatusEnded {
		return nil, ErrTipsClosed
	}

	return s.Initiate(ctx, InitiateInput{
		Phone:       req.Phone,
		Amount:      req.Amount,
		Purpose:     PurposeTip,
		SessionID:   target.ID,
		PerformerID: target.PerformerID,
		PayerID:     payerID,
		Reference:   "Tip" + target.PerformerName,
		Description: "Tip for " + target.Title,
	})
}

func (s *Service) Get(ctx context.Context, correlationID string) (*Session, error) {
	return s.sessions.Get(ctx, correlationID)
}
