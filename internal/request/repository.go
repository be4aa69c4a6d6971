package request

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const requestColumns = `id, requester_id, performer_id, session_id, song_id, status, amount, message,
	queue_position, payment_correlation_id, paid_at, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO song_requests (id, requester_id, performer_id, session_id, song_id, status, amount, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		req.ID, req.RequesterID, req.PerformerID, req.SessionID, req.SongID, req.Status, req.Amount, req.Message,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
}

func (r *repository) GetByID(ctx context.Context, id string) (*Request, error) {
	var req Request
	err := r.db.GetContext(ctx, &req, `SELECT `+requestColumns+` FROM song_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *repository) SetCorrelation(ctx context.Context, id, correlationID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE song_requests SET payment_correlation_id = $2, updated_at = NOW() WHERE id = $1`,
		id, correlationID,
	)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (r *repository) MarkPaid(ctx context.Context, id string, position int, paidAt time.Time) (*Request, error) {
	query := `
		UPDATE song_requests
		SET status = 'PENDING', queue_position = $2, paid_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'AWAITING_PAYMENT'
		RETURNING ` + requestColumns

	var req Request
	err := r.db.GetContext(ctx, &req, query, id, position, paidAt)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNotAwaitingPayment
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id string, from, to Status) (*Request, error) {
	query := `
		UPDATE song_requests
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + requestColumns

	var req Request
	err := r.db.GetContext(ctx, &req, query, id, from, to)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidStatusChange
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) DeleteAwaiting(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM song_requests WHERE id = $1 AND status = 'AWAITING_PAYMENT'`,
		id,
	)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotAwaitingPayment
	}
	return nil
}

func (r *repository) ListBySession(ctx context.Context, sessionID string, status Status) ([]Request, error) {
	var requests []Request
	err := r.db.SelectContext(ctx, &requests,
		`SELECT `+requestColumns+` FROM song_requests
		WHERE session_id = $1 AND status = $2
		ORDER BY queue_position NULLS LAST, created_at`,
		sessionID, status,
	)
	if err != nil {
		return nil, err
	}
	return requests, nil
}
