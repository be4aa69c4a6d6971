package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spinwish/internal/logger"
	"spinwish/internal/metrics"
	"spinwish/internal/session"
)

// ErrTargetGone is returned by a RequestSettler when the request can no
// longer take a payment.
var ErrTargetGone = errors.New("payment target no longer available")

// Anomaly reasons.
const (
	AnomalySessionEnded     = "session_ended"
	AnomalyRequestMissing   = "request_missing"
	AnomalySettlementFailed = "settlement_failed"
	AnomalyRecordRecovered  = "record_recovered"
)

// RequestSettler confirms or discards song requests that wait on a payment.
type RequestSettler interface {
	ConfirmPayment(ctx context.Context, requestID, receipt string) (int, error)
	Discard(ctx context.Context, requestID string) error
}

// SessionDirectory is the slice of the session manager the payment flow needs.
type SessionDirectory interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	CreditTip(ctx context.Context, id string, amount decimal.Decimal) (*session.Session, error)
}

// Alerter notifies operators about money captured without a target.
type Alerter interface {
	SendAnomalyAlert(ctx context.Context, rec *Record) error
}

// Reconciler is the only writer that turns gateway outcomes into domain
// state. Callbacks, status queries and the sweeper all go through Reconcile.
type Reconciler struct {
	sessions  SessionRepository
	records   RecordRepository
	requests  RequestSettler
	directory SessionDirectory
	gateway   Gateway
	alerter   Alerter
	now       func() time.Time
}

func NewReconciler(
	sessions SessionRepository,
	records RecordRepository,
	requests RequestSettler,
	directory SessionDirectory,
	gateway Gateway,
	alerter Alerter,
) *Reconciler {
	return &Reconciler{
		sessions:  sessions,
		records:   records,
		requests:  requests,
		directory: directory,
		gateway:   gateway,
		alerter:   alerter,
		now:       time.Now,
	}
}

// HandleCallback parses a webhook body and reconciles it.
func (r *Reconciler) HandleCallback(ctx context.Context, body []byte) error {
	res, err := ParseCallback(body)
	if err != nil {
		return err
	}
	return r.Reconcile(ctx, res, "callback")
}

// Reconcile applies a terminal gateway result. Unknown and already
// processed correlation ids are no-ops, so duplicates never double-credit.
func (r *Reconciler) Reconcile(ctx context.Context, res *StatusResult, source string) error {
	if res.Pending {
		return nil
	}
	metrics.RecordPaymentResult(source, strconv.Itoa(res.ResultCode))

	log := logger.FromContext(ctx).With("correlation_id", res.CorrelationID, "source", source)

	succeeded := res.ResultCode == ResultSuccess
	ps, err := r.sessions.MarkProcessed(ctx, res.CorrelationID, succeeded, res.ResultCode, res.ResultDesc, res.Receipt, r.now())
	switch {
	case errors.Is(err, ErrPaymentSessionNotFound):
		log.Warn("result for unknown payment session ignored", "result_code", res.ResultCode)
		return nil
	case errors.Is(err, ErrAlreadyProcessed):
		metrics.RecordDuplicateResult()
		log.Info("duplicate payment result ignored", "result_code", res.ResultCode)
		return nil
	case err != nil:
		return fmt.Errorf("mark payment processed: %w", err)
	}

	outcome := ResultOutcome(res.ResultCode)
	if succeeded {
		if err := r.settleSuccess(ctx, ps, res); err != nil {
			return err
		}
	} else {
		r.settleFailure(ctx, ps, res)
	}

	metrics.RecordPaymentSettled(string(ps.Purpose), outcome, r.now().Sub(ps.CreatedAt).Seconds())
	log.Info("payment settled", "purpose", ps.Purpose, "outcome", outcome, "result_desc", res.ResultDesc)
	return nil
}

func (r *Reconciler) settleSuccess(ctx context.Context, ps *Session, res *StatusResult) error {
	log := logger.FromContext(ctx).With("correlation_id", ps.CorrelationID)

	if res.Amount != nil && !res.Amount.Equal(ps.Amount) {
		log.Warn("captured amount differs from requested", "requested", ps.Amount.String(), "captured", res.Amount.String())
	}
	if res.Receipt != "" && !IsValidReceipt(res.Receipt) {
		log.Warn("malformed receipt number", "receipt", res.Receipt)
	}

	var settleErr error
	switch ps.Purpose {
	case PurposeRequest:
		if ps.RequestID == nil {
			settleErr = ErrTargetGone
			break
		}
		var position int
		position, settleErr = r.requests.ConfirmPayment(ctx, *ps.RequestID, res.Receipt)
		if settleErr == nil {
			log.Info("request payment confirmed", "request_id", *ps.RequestID, "queue_position", position)
		}
	case PurposeTip:
		_, settleErr = r.directory.CreditTip(ctx, ps.SessionID, ps.Amount)
	default:
		settleErr = fmt.Errorf("unknown payment purpose %q", ps.Purpose)
	}

	rec := r.newRecord(ctx, ps, r.now())
	rec.ReceiptNumber = res.Receipt
	if res.Amount != nil {
		rec.Amount = *res.Amount
	}
	if res.Phone != "" {
		rec.PayerPhone = res.Phone
	}
	if res.TransactionTime != nil {
		rec.TransactionTime = *res.TransactionTime
	}

	if settleErr != nil {
		reason := anomalyReason(settleErr)
		rec.Anomaly = true
		rec.AnomalyReason = &reason
		log.Error("payment captured without target", "reason", reason, "error", settleErr)

		if ps.RequestID != nil {
			if err := r.requests.Discard(ctx, *ps.RequestID); err != nil && !errors.Is(err, ErrTargetGone) {
				log.Warn("discarding orphaned request failed", "request_id", *ps.RequestID, "error", err)
			}
		}
	}

	if err := r.commitRecord(ctx, rec); err != nil {
		log.Error("payment record not written, left for recovery", "anomaly", rec.Anomaly, "error", err)
		return err
	}
	if rec.Anomaly {
		r.raiseAnomaly(ctx, rec)
	}
	return nil
}

func (r *Reconciler) newRecord(ctx context.Context, ps *Session, at time.Time) *Record {
	rec := &Record{
		ID:              uuid.NewString(),
		CorrelationID:   ps.CorrelationID,
		Amount:          ps.Amount,
		PayerPhone:      ps.Phone,
		ReceiptNumber:   ps.ReceiptNumber,
		PaymentType:     ps.Purpose,
		RequestID:       ps.RequestID,
		SessionID:       ps.SessionID,
		PerformerID:     ps.PerformerID,
		TransactionTime: at,
	}
	if s, err := r.directory.Get(ctx, ps.SessionID); err == nil {
		rec.PerformerName = s.PerformerName
	}
	return rec
}

// commitRecord writes rec and then flags its payment session recorded.
// A session that stays unrecorded is picked up by RecoverRecord.
func (r *Reconciler) commitRecord(ctx context.Context, rec *Record) error {
	if err := r.records.Create(ctx, rec); err != nil && !errors.Is(err, ErrRecordExists) {
		return fmt.Errorf("create payment record: %w", err)
	}
	if err := r.sessions.MarkRecorded(ctx, rec.CorrelationID); err != nil {
		return fmt.Errorf("mark payment recorded: %w", err)
	}
	return nil
}

func (r *Reconciler) raiseAnomaly(ctx context.Context, rec *Record) {
	metrics.RecordAnomaly(*rec.AnomalyReason)
	if r.alerter == nil {
		return
	}
	if err := r.alerter.SendAnomalyAlert(ctx, rec); err != nil {
		logger.FromContext(ctx).Error("queue anomaly alert", "correlation_id", rec.CorrelationID, "error", err)
	}
}

// RecoverRecord writes the missing PaymentRecord for a successful session
// whose settlement ran but whose record write failed. The settlement
// outcome is not known any more, so the record is flagged for review.
// It reports whether a new record was written.
func (r *Reconciler) RecoverRecord(ctx context.Context, ps *Session) (bool, error) {
	at := r.now()
	if ps.ProcessedAt != nil {
		at = *ps.ProcessedAt
	}
	rec := r.newRecord(ctx, ps, at)
	reason := AnomalyRecordRecovered
	rec.Anomaly = true
	rec.AnomalyReason = &reason

	err := r.records.Create(ctx, rec)
	switch {
	case errors.Is(err, ErrRecordExists):
		// only the recorded flag was lost
		return false, r.sessions.MarkRecorded(ctx, ps.CorrelationID)
	case err != nil:
		return false, fmt.Errorf("create payment record: %w", err)
	}
	if err := r.sessions.MarkRecorded(ctx, ps.CorrelationID); err != nil {
		return true, fmt.Errorf("mark payment recorded: %w", err)
	}

	logger.FromContext(ctx).Warn("payment record recovered",
		"correlation_id", ps.CorrelationID,
		"purpose", ps.Purpose,
		"amount", ps.Amount.String(),
	)
	r.raiseAnomaly(ctx, rec)
	return true, nil
}

func (r *Reconciler) settleFailure(ctx context.Context, ps *Session, res *StatusResult) {
	if ps.Purpose != PurposeRequest || ps.RequestID == nil {
		return
	}
	if err := r.requests.Discard(ctx, *ps.RequestID); err != nil && !errors.Is(err, ErrTargetGone) {
		logger.FromContext(ctx).Warn("discard unpaid request",
			"request_id", *ps.RequestID,
			"result_code", res.ResultCode,
			"error", err,
		)
	}
}

func anomalyReason(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionEnded):
		return AnomalySessionEnded
	case errors.Is(err, ErrTargetGone), errors.Is(err, session.ErrSessionNotFound):
		return AnomalyRequestMissing
	default:
		return AnomalySettlementFailed
	}
}

// QueryAndReconcile asks the gateway for the current result and applies it
// when terminal.
func (r *Reconciler) QueryAndReconcile(ctx context.Context, correlationID string) (*StatusResult, error) {
	res, err := r.gateway.QueryStatus(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if res.CorrelationID == "" {
		res.CorrelationID = correlationID
	}
	if err := r.Reconcile(ctx, res, "query"); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Reconciler) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	return r.records.ListBySession(ctx, sessionID)
}

func (r *Reconciler) ListAnomalies(ctx context.Context, limit int) ([]Record, error) {
	return r.records.ListAnomalies(ctx, limit)
}
