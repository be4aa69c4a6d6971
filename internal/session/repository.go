package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const sessionColumns = `id, performer_id, performer_name, venue_id, title, status, type, is_accepting_requests,
	min_tip_amount, total_earnings, total_tips, total_requests, accepted_requests, rejected_requests,
	queue_tail, request_queue, current_song_id, started_at, ended_at, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO sessions (id, performer_id, performer_name, venue_id, title, status, type, is_accepting_requests, min_tip_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		s.ID, s.PerformerID, s.PerformerName, s.VenueID, s.Title, s.Status, s.Type, s.IsAcceptingRequests, s.MinTipAmount,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *repository) GetByID(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListByPerformer(ctx context.Context, performerID string) ([]Session, error) {
	var sessions []Session
	err := r.db.SelectContext(ctx, &sessions,
		`SELECT `+sessionColumns+` FROM sessions WHERE performer_id = $1 ORDER BY created_at DESC`,
		performerID,
	)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repository) Transition(ctx context.Context, id string, from []Status, to Status, at time.Time) (*Session, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	query := `
		UPDATE sessions
		SET status = $2,
			started_at = CASE WHEN $2 = 'LIVE' AND started_at IS NULL THEN $4 ELSE started_at END,
			ended_at = CASE WHEN $2 = 'ENDED' THEN $4 ELSE ended_at END,
			updated_at = $4
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + sessionColumns

	var s Session
	err := r.db.GetContext(ctx, &s, query, id, to, pq.Array(allowed), at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explain(ctx, id, ErrInvalidTransition)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) SetAcceptingRequests(ctx context.Context, id string, accepting bool) (*Session, error) {
	query := `
		UPDATE sessions
		SET is_accepting_requests = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'ENDED'
		RETURNING ` + sessionColumns

	var s Session
	err := r.db.GetContext(ctx, &s, query, id, accepting)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explain(ctx, id, ErrSessionEnded)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) AppendToQueue(ctx context.Context, id, requestID string) (int, error) {
	query := `
		UPDATE sessions
		SET queue_tail = queue_tail + 1,
			total_requests = total_requests + 1,
			request_queue = array_append(request_queue, $2),
			updated_at = NOW()
		WHERE id = $1 AND status <> 'ENDED'
		RETURNING queue_tail
	`

	var position int
	err := r.db.GetContext(ctx, &position, query, id, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, r.explain(ctx, id, ErrSessionEnded)
	}
	if err != nil {
		return 0, err
	}
	return position, nil
}

func (r *repository) RemoveFromQueue(ctx context.Context, id, requestID string) error {
	query := `
		UPDATE sessions
		SET total_requests = total_requests - 1,
			request_queue = array_remove(request_queue, $2),
			updated_at = NOW()
		WHERE id = $1 AND $2 = ANY(request_queue)
	`
	_, err := r.db.ExecContext(ctx, query, id, requestID)
	return err
}

func (r *repository) RecordDecision(ctx context.Context, id, requestID string, accepted bool, amount decimal.Decimal) (*Session, error) {
	query := `
		UPDATE sessions
		SET rejected_requests = rejected_requests + 1,
			request_queue = array_remove(request_queue, $2),
			updated_at = NOW()
		WHERE id = $1 AND status <> 'ENDED'
		RETURNING ` + sessionColumns
	args := []interface{}{id, requestID}
	if accepted {
		query = `
		UPDATE sessions
		SET accepted_requests = accepted_requests + 1,
			total_earnings = total_earnings + $3,
			request_queue = array_remove(request_queue, $2),
			updated_at = NOW()
		WHERE id = $1 AND status <> 'ENDED'
		RETURNING ` + sessionColumns
		args = append(args, amount)
	}

	var s Session
	err := r.db.GetContext(ctx, &s, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explain(ctx, id, ErrSessionEnded)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) AddTip(ctx context.Context, id string, amount decimal.Decimal) (*Session, error) {
	query := `
		UPDATE sessions
		SET total_tips = total_tips + $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'ENDED'
		RETURNING ` + sessionColumns

	var s Session
	err := r.db.GetContext(ctx, &s, query, id, amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explain(ctx, id, ErrSessionEnded)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) SetCurrentSong(ctx context.Context, id, songID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET current_song_id = $2, updated_at = NOW() WHERE id = $1 AND status <> 'ENDED'`,
		id, songID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return r.explain(ctx, id, ErrSessionEnded)
	}
	return nil
}

// explain turns a guarded UPDATE that matched no row into a domain error.
func (r *repository) explain(ctx context.Context, id string, fallback error) error {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.Status == StatusEnded {
		return ErrSessionEnded
	}
	return fallback
}
