package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spinwish/internal/session"
)

type MockSettler struct{ mock.Mock }

func (m *MockSettler) ConfirmPayment(ctx context.Context, requestID, receipt string) (int, error) {
	args := m.Called(ctx, requestID, receipt)
	return args.Int(0), args.Error(1)
}

func (m *MockSettler) Discard(ctx context.Context, requestID string) error {
	return m.Called(ctx, requestID).Error(0)
}

type MockAlerter struct{ mock.Mock }

func (m *MockAlerter) SendAnomalyAlert(ctx context.Context, rec *Record) error {
	return m.Called(ctx, rec).Error(0)
}

// flakyRecords fails every Create until healed.
type flakyRecords struct {
	RecordRepository
	mu     sync.Mutex
	broken bool
}

func (f *flakyRecords) Create(ctx context.Context, rec *Record) error {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return errors.New("db unavailable")
	}
	return f.RecordRepository.Create(ctx, rec)
}

func (f *flakyRecords) heal() {
	f.mu.Lock()
	f.broken = false
	f.mu.Unlock()
}

type reconcilerFixture struct {
	sessions  SessionRepository
	records   RecordRepository
	settler   *MockSettler
	alerter   *MockAlerter
	manager   *session.Manager
	gateway   *fakeGateway
	r         *Reconciler
	sessionID string
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	ctx := context.Background()

	manager := session.NewManager(session.NewMemoryRepository())
	s, err := manager.Create(ctx, "dj-1", "DJ Kali", session.CreateSessionRequest{Title: "Friday"})
	require.NoError(t, err)
	_, err = manager.Start(ctx, "dj-1", s.ID)
	require.NoError(t, err)

	f := &reconcilerFixture{
		sessions:  NewMemorySessionRepository(),
		records:   NewMemoryRecordRepository(),
		settler:   new(MockSettler),
		alerter:   new(MockAlerter),
		manager:   manager,
		gateway:   &fakeGateway{},
		sessionID: s.ID,
	}
	f.r = NewReconciler(f.sessions, f.records, f.settler, manager, f.gateway, f.alerter)
	return f
}

func (f *reconcilerFixture) addSession(t *testing.T, correlationID string, purpose Purpose, requestID *string) {
	t.Helper()
	require.NoError(t, f.sessions.Create(context.Background(), &Session{
		CorrelationID: correlationID,
		Phone:         "254712345678",
		Amount:        decimal.NewFromInt(100),
		Purpose:       purpose,
		RequestID:     requestID,
		SessionID:     f.sessionID,
		PerformerID:   "dj-1",
		CreatedAt:     time.Now(),
		ExpiresAt:     time.Now().Add(5 * time.Minute),
	}))
}

func success(correlationID string) *StatusResult {
	return &StatusResult{CorrelationID: correlationID, ResultCode: ResultSuccess, ResultDesc: "ok", Receipt: "QKJ4H7L2M9"}
}

func TestReconcile_RequestSuccessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	requestID := "req-1"
	f.addSession(t, "c1", PurposeRequest, &requestID)

	f.settler.On("ConfirmPayment", mock.Anything, "req-1", "QKJ4H7L2M9").Return(1, nil).Once()

	require.NoError(t, f.r.Reconcile(ctx, success("c1"), "callback"))
	require.NoError(t, f.r.Reconcile(ctx, success("c1"), "callback"))
	require.NoError(t, f.r.Reconcile(ctx, &StatusResult{CorrelationID: "c1", ResultCode: ResultCancelled}, "query"))

	f.settler.AssertExpectations(t)
	f.settler.AssertNotCalled(t, "Discard", mock.Anything, mock.Anything)

	ps, err := f.sessions.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ps.Processed)
	assert.True(t, ps.Succeeded)

	records, err := f.records.ListBySession(ctx, f.sessionID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "DJ Kali", records[0].PerformerName)
	assert.False(t, records[0].Anomaly)
}

func TestReconcile_FailureDiscardsRequest(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	requestID := "req-2"
	f.addSession(t, "c2", PurposeRequest, &requestID)

	f.settler.On("Discard", mock.Anything, "req-2").Return(nil).Once()

	require.NoError(t, f.r.Reconcile(ctx, &StatusResult{CorrelationID: "c2", ResultCode: ResultCancelled, ResultDesc: "cancelled"}, "callback"))
	require.NoError(t, f.r.Reconcile(ctx, success("c2"), "callback"))

	f.settler.AssertExpectations(t)
	f.settler.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything, mock.Anything)

	ps, err := f.sessions.Get(ctx, "c2")
	require.NoError(t, err)
	assert.True(t, ps.Processed)
	assert.False(t, ps.Succeeded)
	require.NotNil(t, ps.ResultCode)
	assert.Equal(t, ResultCancelled, *ps.ResultCode)

	records, _ := f.records.ListBySession(ctx, f.sessionID)
	assert.Empty(t, records)
}

func TestReconcile_EndedSessionIsAnomaly(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	requestID := "req-3"
	f.addSession(t, "c3", PurposeRequest, &requestID)

	f.settler.On("ConfirmPayment", mock.Anything, "req-3", mock.Anything).
		Return(0, fmt.Errorf("assign position: %w", session.ErrSessionEnded)).Once()
	f.settler.On("Discard", mock.Anything, "req-3").Return(nil).Once()
	f.alerter.On("SendAnomalyAlert", mock.Anything, mock.MatchedBy(func(r *Record) bool {
		return r.Anomaly && *r.AnomalyReason == AnomalySessionEnded
	})).Return(nil).Once()

	require.NoError(t, f.r.Reconcile(ctx, success("c3"), "callback"))

	f.settler.AssertExpectations(t)
	f.alerter.AssertExpectations(t)

	anomalies, err := f.r.ListAnomalies(ctx, 10)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "c3", anomalies[0].CorrelationID)
}

func TestReconcile_TipCreditsSession(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	f.addSession(t, "c4", PurposeTip, nil)

	require.NoError(t, f.r.Reconcile(ctx, success("c4"), "callback"))
	require.NoError(t, f.r.Reconcile(ctx, success("c4"), "callback"))

	s, err := f.manager.Get(ctx, f.sessionID)
	require.NoError(t, err)
	assert.True(t, s.TotalTips.Equal(decimal.NewFromInt(100)), s.TotalTips.String())

	records, _ := f.records.ListBySession(ctx, f.sessionID)
	require.Len(t, records, 1)
	assert.Equal(t, PurposeTip, records[0].PaymentType)
}

func TestReconcile_TipAfterSessionEnded(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	f.addSession(t, "c5", PurposeTip, nil)
	_, err := f.manager.End(ctx, "dj-1", f.sessionID)
	require.NoError(t, err)

	f.alerter.On("SendAnomalyAlert", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, f.r.Reconcile(ctx, success("c5"), "callback"))

	s, _ := f.manager.Get(ctx, f.sessionID)
	assert.True(t, s.TotalTips.IsZero())
	anomalies, _ := f.r.ListAnomalies(ctx, 10)
	require.Len(t, anomalies, 1)
	f.alerter.AssertExpectations(t)
}

func TestReconcile_UnknownAndPendingAreNoops(t *testing.T) {
	f := newReconcilerFixture(t)
	assert.NoError(t, f.r.Reconcile(context.Background(), success("nope"), "callback"))
	assert.NoError(t, f.r.Reconcile(context.Background(), &StatusResult{CorrelationID: "nope", Pending: true}, "query"))
}

func TestHandleCallback(t *testing.T) {
	f := newReconcilerFixture(t)
	requestID := "req-6"
	f.addSession(t, "ws_CO_191220191020363925", PurposeRequest, &requestID)
	f.settler.On("ConfirmPayment", mock.Anything, "req-6", "NLJ7RT61SV").Return(3, nil).Once()

	require.NoError(t, f.r.HandleCallback(context.Background(), []byte(successCallback)))
	f.settler.AssertExpectations(t)

	assert.ErrorIs(t, f.r.HandleCallback(context.Background(), []byte(`{}`)), ErrInvalidCallback)
}

func TestReconcile_RecordWriteFailureLeavesSessionRecoverable(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	records := &flakyRecords{RecordRepository: f.records, broken: true}
	f.r = NewReconciler(f.sessions, records, f.settler, f.manager, f.gateway, f.alerter)
	f.addSession(t, "c6", PurposeTip, nil)

	err := f.r.Reconcile(ctx, success("c6"), "callback")
	require.Error(t, err)
	require.NoError(t, f.r.Reconcile(ctx, success("c6"), "callback"))

	s, err := f.manager.Get(ctx, f.sessionID)
	require.NoError(t, err)
	assert.True(t, s.TotalTips.Equal(decimal.NewFromInt(100)), s.TotalTips.String())

	list, _ := f.records.ListBySession(ctx, f.sessionID)
	assert.Empty(t, list)

	unrecorded, err := f.sessions.ListUnrecordedBefore(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, unrecorded, 1)
	assert.Equal(t, "QKJ4H7L2M9", unrecorded[0].ReceiptNumber)

	// retention must not drop the only trace of the captured money
	n, err := f.sessions.DeleteProcessedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	records.heal()
	f.alerter.On("SendAnomalyAlert", mock.Anything, mock.MatchedBy(func(r *Record) bool {
		return *r.AnomalyReason == AnomalyRecordRecovered
	})).Return(nil).Once()

	written, err := f.r.RecoverRecord(ctx, &unrecorded[0])
	require.NoError(t, err)
	assert.True(t, written)
	f.alerter.AssertExpectations(t)

	list, _ = f.records.ListBySession(ctx, f.sessionID)
	require.Len(t, list, 1)
	assert.Equal(t, "QKJ4H7L2M9", list[0].ReceiptNumber)
	assert.True(t, list[0].Anomaly)

	ps, err := f.sessions.Get(ctx, "c6")
	require.NoError(t, err)
	assert.True(t, ps.Recorded)
}

func TestRecoverRecord_ExistingRecordOnlySetsFlag(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	f.addSession(t, "c7", PurposeTip, nil)

	ps, err := f.sessions.MarkProcessed(ctx, "c7", true, ResultSuccess, "ok", "QKJ4H7L2M9", time.Now())
	require.NoError(t, err)
	require.NoError(t, f.records.Create(ctx, &Record{ID: "r7", CorrelationID: "c7", SessionID: f.sessionID, PaymentType: PurposeTip}))

	written, err := f.r.RecoverRecord(ctx, ps)
	require.NoError(t, err)
	assert.False(t, written)
	f.alerter.AssertNotCalled(t, "SendAnomalyAlert", mock.Anything, mock.Anything)

	got, err := f.sessions.Get(ctx, "c7")
	require.NoError(t, err)
	assert.True(t, got.Recorded)

	list, _ := f.records.ListBySession(ctx, f.sessionID)
	assert.Len(t, list, 1)
}

func TestReconcile_SuccessMarksSessionRecorded(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	f.addSession(t, "c8", PurposeTip, nil)

	require.NoError(t, f.r.Reconcile(ctx, success("c8"), "callback"))

	ps, err := f.sessions.Get(ctx, "c8")
	require.NoError(t, err)
	assert.True(t, ps.Recorded)

	unrecorded, err := f.sessions.ListUnrecordedBefore(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, unrecorded)
}
