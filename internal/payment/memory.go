package payment

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{sessions: make(map[string]*Session)}
}

func (r *memorySessionRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	c := *s
	r.sessions[s.CorrelationID] = &c
	return nil
}

func (r *memorySessionRepository) Get(_ context.Context, correlationID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[correlationID]
	if !ok {
		return nil, ErrPaymentSessionNotFound
	}
	c := *s
	return &c, nil
}

func (r *memorySessionRepository) MarkProcessed(_ context.Context, correlationID string, succeeded bool, resultCode int, resultDesc, receipt string, at time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[correlationID]
	if !ok {
		return nil, ErrPaymentSessionNotFound
	}
	if s.Processed {
		return nil, ErrAlreadyProcessed
	}

	s.Processed = true
	s.Succeeded = succeeded
	s.ResultCode = &resultCode
	s.ResultDesc = &resultDesc
	s.ReceiptNumber = receipt
	processedAt := at
	s.ProcessedAt = &processedAt

	c := *s
	return &c, nil
}

func (r *memorySessionRepository) ListUnprocessedBefore(_ context.Context, cutoff time.Time, limit int) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Session
	for _, s := range r.sessions {
		if !s.Processed && s.CreatedAt.Before(cutoff) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memorySessionRepository) MarkRecorded(_ context.Context, correlationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[correlationID]
	if !ok {
		return ErrPaymentSessionNotFound
	}
	s.Recorded = true
	return nil
}

func (r *memorySessionRepository) ListUnrecordedBefore(_ context.Context, cutoff time.Time, limit int) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Session
	for _, s := range r.sessions {
		if s.Succeeded && !s.Recorded && s.ProcessedAt != nil && s.ProcessedAt.Before(cutoff) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.Before(*out[j].ProcessedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memorySessionRepository) DeleteProcessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if s.Succeeded && !s.Recorded {
			continue
		}
		if s.Processed && s.ProcessedAt != nil && s.ProcessedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type memoryRecordRepository struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRecordRepository() RecordRepository {
	return &memoryRecordRepository{}
}

func (r *memoryRecordRepository) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.records {
		if existing.CorrelationID == rec.CorrelationID {
			return ErrRecordExists
		}
	}
	rec.CreatedAt = time.Now()
	r.records = append(r.records, *rec)
	return nil
}

func (r *memoryRecordRepository) ListBySession(_ context.Context, sessionID string) ([]Record, error) {
	return r.filter(func(rec Record) bool { return rec.SessionID == sessionID }, 0), nil
}

func (r *memoryRecordRepository) ListAnomalies(_ context.Context, limit int) ([]Record, error) {
	return r.filter(func(rec Record) bool { return rec.Anomaly }, limit), nil
}

// filter returns matching records newest first.
func (r *memoryRecordRepository) filter(keep func(Record) bool, limit int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record
	for i := len(r.records) - 1; i >= 0; i-- {
		if keep(r.records[i]) {
			out = append(out, r.records[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
