package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const sessionColumns = `correlation_id, merchant_request_id, phone, amount, purpose, request_id, session_id,
	performer_id, payer_id, processed, succeeded, result_code, result_desc, receipt_number, recorded,
	created_at, expires_at, processed_at`

const recordColumns = `id, correlation_id, amount, payer_phone, receipt_number, payment_type, request_id,
	session_id, performer_id, performer_name, anomaly, anomaly_reason, transaction_time, created_at`

type sessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO payment_sessions (correlation_id, merchant_request_id, phone, amount, purpose, request_id,
			session_id, performer_id, payer_id, expires_at)
		VALUES (:correlation_id, :merchant_request_id, :phone, :amount, :purpose, :request_id,
			:session_id, :performer_id, :payer_id, :expires_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, s)
	return err
}

func (r *sessionRepository) Get(ctx context.Context, correlationID string) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM payment_sessions WHERE correlation_id = $1`, correlationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) MarkProcessed(ctx context.Context, correlationID string, succeeded bool, resultCode int, resultDesc, receipt string, at time.Time) (*Session, error) {
	query := `
		UPDATE payment_sessions
		SET processed = TRUE, succeeded = $2, result_code = $3, result_desc = $4, receipt_number = $5, processed_at = $6
		WHERE correlation_id = $1 AND processed = FALSE
		RETURNING ` + sessionColumns

	var s Session
	err := r.db.GetContext(ctx, &s, query, correlationID, succeeded, resultCode, resultDesc, receipt, at)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, correlationID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyProcessed
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) MarkRecorded(ctx context.Context, correlationID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payment_sessions SET recorded = TRUE WHERE correlation_id = $1`,
		correlationID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPaymentSessionNotFound
	}
	return nil
}

func (r *sessionRepository) ListUnrecordedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Session, error) {
	var sessions []Session
	err := r.db.SelectContext(ctx, &sessions,
		`SELECT `+sessionColumns+` FROM payment_sessions
		WHERE succeeded = TRUE AND recorded = FALSE AND processed_at < $1
		ORDER BY processed_at
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepository) ListUnprocessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Session, error) {
	var sessions []Session
	err := r.db.SelectContext(ctx, &sessions,
		`SELECT `+sessionColumns+` FROM payment_sessions
		WHERE processed = FALSE AND created_at < $1
		ORDER BY created_at
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM payment_sessions
		WHERE processed = TRUE AND processed_at < $1 AND (recorded = TRUE OR succeeded = FALSE)`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type recordRepository struct {
	db *sqlx.DB
}

func NewRecordRepository(db *sqlx.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Create(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO payment_records (id, correlation_id, amount, payer_phone, receipt_number, payment_type,
			request_id, session_id, performer_id, performer_name, anomaly, anomaly_reason, transaction_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (correlation_id) DO NOTHING
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		rec.ID, rec.CorrelationID, rec.Amount, rec.PayerPhone, rec.ReceiptNumber, rec.PaymentType,
		rec.RequestID, rec.SessionID, rec.PerformerID, rec.PerformerName, rec.Anomaly, rec.AnomalyReason,
		rec.TransactionTime,
	).Scan(&rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordExists
	}
	return err
}

func (r *recordRepository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	var records []Record
	err := r.db.SelectContext(ctx, &records,
		`SELECT `+recordColumns+` FROM payment_records WHERE session_id = $1 ORDER BY transaction_time DESC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *recordRepository) ListAnomalies(ctx context.Context, limit int) ([]Record, error) {
	var records []Record
	err := r.db.SelectContext(ctx, &records,
		`SELECT `+recordColumns+` FROM payment_records WHERE anomaly = TRUE ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return records, nil
}
