package payment

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	closer := func() {
		sqlxDB.Close()
	}
	return sqlxDB, mock, closer
}

var paymentSessionColumns = []string{
	"correlation_id", "merchant_request_id", "phone", "amount", "purpose", "request_id", "session_id",
	"performer_id", "payer_id", "processed", "succeeded", "result_code", "result_desc", "receipt_number", "recorded",
	"created_at", "expires_at", "processed_at",
}

func TestSessionRepository_MarkProcessed(t *testing.T) {
	db, mock, close := setupMock(t)
	defer close()
	repo := NewSessionRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE correlation_id = $1 AND processed = FALSE")).
		WithArgs("c1", true, 0, "ok", "QKJ4H7L2M9", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(paymentSessionColumns).AddRow(
			"c1", "m1", "254712345678", "100.00", "REQUEST", "req-1", "s1",
			"dj-1", "fan-1", true, true, 0, "ok", "QKJ4H7L2M9", false, now, now.Add(time.Minute), now,
		))

	ps, err := repo.MarkProcessed(context.Background(), "c1", true, 0, "ok", "QKJ4H7L2M9", now)
	require.NoError(t, err)
	require.True(t, ps.Processed)
	require.False(t, ps.Recorded)
	require.Equal(t, "QKJ4H7L2M9", ps.ReceiptNumber)
	require.Equal(t, "req-1", *ps.RequestID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_MarkProcessedTwice(t *testing.T) {
	db, mock, close := setupMock(t)
	defer close()
	repo := NewSessionRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE correlation_id = $1 AND processed = FALSE")).
		WithArgs("c1", false, 1032, "cancelled", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(paymentSessionColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_sessions WHERE correlation_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(paymentSessionColumns).AddRow(
			"c1", "m1", "254712345678", "100.00", "REQUEST", "req-1", "s1",
			"dj-1", "fan-1", true, true, 0, "ok", "QKJ4H7L2M9", false, now, now.Add(time.Minute), now,
		))

	_, err := repo.MarkProcessed(context.Background(), "c1", false, 1032, "cancelled", "", now)
	require.ErrorIs(t, err, ErrAlreadyProcessed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_MarkProcessedUnknown(t *testing.T) {
	db, mock, close := setupMock(t)
	defer close()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE correlation_id = $1 AND processed = FALSE")).
		WillReturnRows(sqlmock.NewRows(paymentSessionColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_sessions WHERE correlation_id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(paymentSessionColumns))

	_, err := repo.MarkProcessed(context.Background(), "nope", true, 0, "ok", "", time.Now())
	require.ErrorIs(t, err, ErrPaymentSessionNotFound)
}

func TestSessionRepository_DeleteProcessedBefore(t *testing.T) {
	db, mock, close := setupMock(t)
	defer close()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("AND (recorded = TRUE OR succeeded = FALSE)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteProcessedBefore(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
}

func TestRecordRepository_Create(t *testing.T) {
	db, mock, close := setupMock(t)
	defer close()
	repo := NewRecordRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO payment_records")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	rec := &Record{ID: "r1", CorrelationID: "c1", PaymentType: PurposeTip, SessionID: "s1", TransactionTime: now}
	require.NoError(t, repo.Create(context.Background(), rec))
	require.Equal(t, now, rec.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_MarkRecorded(t *testing.T) {
	db, mock, close := setupMock(t)
	defer close()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_sessions SET recorded = TRUE WHERE correlation_id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_sessions SET recorded = TRUE WHERE correlation_id = $1")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkRecorded(context.Background(), "c1"))
	require.ErrorIs(t, repo.MarkRecorded(context.Background(), "gone"), ErrPaymentSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_ListUnrecordedBefore(t *testing.T) {
	db, mock, close := setupMock(t)
	defer close()
	repo := NewSessionRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE succeeded = TRUE AND recorded = FALSE AND processed_at < $1")).
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows(paymentSessionColumns).AddRow(
			"c1", "m1", "254712345678", "100.00", "TIP", nil, "s1",
			"dj-1", "fan-1", true, true, 0, "ok", "QKJ4H7L2M9", false, now, now.Add(time.Minute), now,
		))

	sessions, err := repo.ListUnrecordedBefore(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "QKJ4H7L2M9", sessions[0].ReceiptNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_CreateExisting(t *testing.T) {
	db, mock, close := setupMock(t)
	defer close()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (correlation_id) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	rec := &Record{ID: "r2", CorrelationID: "c1", PaymentType: PurposeTip, SessionID: "s1", TransactionTime: time.Now()}
	require.ErrorIs(t, repo.Create(context.Background(), rec), ErrRecordExists)
	require.NoError(t, mock.ExpectationsWereMet())
}
