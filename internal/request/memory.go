package request

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.Mutex
	requests map[string]*Request
}

func NewMemoryRepository() Repository {
	return &memoryRepository{requests: make(map[string]*Request)}
}

func clone(r *Request) *Request {
	c := *r
	return &c
}

func (m *memoryRepository) Create(_ context.Context, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.requests[r.ID] = clone(r)
	return nil
}

func (m *memoryRepository) GetByID(_ context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return clone(r), nil
}

func (m *memoryRepository) SetCorrelation(_ context.Context, id, correlationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	cid := correlationID
	r.PaymentCorrelationID = &cid
	r.UpdatedAt = time.Now()
	return nil
}

func (m *memoryRepository) MarkPaid(_ context.Context, id string, position int, paidAt time.Time) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if r.Status != StatusAwaitingPayment {
		return nil, ErrNotAwaitingPayment
	}

	pos := position
	paid := paidAt
	r.Status = StatusPending
	r.QueuePosition = &pos
	r.PaidAt = &paid
	r.UpdatedAt = paidAt
	return clone(r), nil
}

func (m *memoryRepository) UpdateStatus(_ context.Context, id string, from, to Status) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if r.Status != from {
		return nil, ErrInvalidStatusChange
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	return clone(r), nil
}

func (m *memoryRepository) DeleteAwaiting(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok || r.Status != StatusAwaitingPayment {
		return ErrNotAwaitingPayment
	}
	delete(m.requests, id)
	return nil
}

func (m *memoryRepository) ListBySession(_ context.Context, sessionID string, status Status) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Request
	for _, r := range m.requests {
		if r.SessionID == sessionID && r.Status == status {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.QueuePosition != nil && b.QueuePosition != nil && *a.QueuePosition != *b.QueuePosition:
			return *a.QueuePosition < *b.QueuePosition
		case a.QueuePosition != nil && b.QueuePosition == nil:
			return true
		case a.QueuePosition == nil && b.QueuePosition != nil:
			return false
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}
