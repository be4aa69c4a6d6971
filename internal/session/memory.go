package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryRepository returns a Repository kept in process memory.
// Every mutation happens under a single mutex.
func NewMemoryRepository() Repository {
	return &memoryRepository{sessions: make(map[string]*Session)}
}

func (r *memoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	r.sessions[s.ID] = s.clone()
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.clone(), nil
}

func (r *memoryRepository) ListByPerformer(_ context.Context, performerID string) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Session
	for _, s := range r.sessions {
		if s.PerformerID == performerID {
			out = append(out, *s.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) Transition(_ context.Context, id string, from []Status, to Status, at time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	allowed := false
	for _, st := range from {
		if s.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		if s.Status == StatusEnded {
			return nil, ErrSessionEnded
		}
		return nil, ErrInvalidTransition
	}

	s.Status = to
	if to == StatusLive && s.StartedAt == nil {
		started := at
		s.StartedAt = &started
	}
	if to == StatusEnded {
		ended := at
		s.EndedAt = &ended
	}
	s.UpdatedAt = at
	return s.clone(), nil
}

// mutate applies fn to a non-ended session under the lock.
func (r *memoryRepository) mutate(id string, fn func(s *Session)) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Status == StatusEnded {
		return nil, ErrSessionEnded
	}
	fn(s)
	s.UpdatedAt = time.Now()
	return s.clone(), nil
}

func (r *memoryRepository) SetAcceptingRequests(_ context.Context, id string, accepting bool) (*Session, error) {
	return r.mutate(id, func(s *Session) {
		s.IsAcceptingRequests = accepting
	})
}

func (r *memoryRepository) AppendToQueue(_ context.Context, id, requestID string) (int, error) {
	s, err := r.mutate(id, func(s *Session) {
		s.QueueTail++
		s.TotalRequests++
		s.RequestQueue = append(s.RequestQueue, requestID)
	})
	if err != nil {
		return 0, err
	}
	return s.QueueTail, nil
}

func (r *memoryRepository) RemoveFromQueue(_ context.Context, id, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	for i, rid := range s.RequestQueue {
		if rid == requestID {
			s.RequestQueue = append(s.RequestQueue[:i:i], s.RequestQueue[i+1:]...)
			s.TotalRequests--
			s.UpdatedAt = time.Now()
			break
		}
	}
	return nil
}

func (r *memoryRepository) RecordDecision(_ context.Context, id, requestID string, accepted bool, amount decimal.Decimal) (*Session, error) {
	return r.mutate(id, func(s *Session) {
		if accepted {
			s.AcceptedRequests++
			s.TotalEarnings = s.TotalEarnings.Add(amount)
		} else {
			s.RejectedRequests++
		}
		queue := s.RequestQueue[:0]
		for _, rid := range s.RequestQueue {
			if rid != requestID {
				queue = append(queue, rid)
			}
		}
		s.RequestQueue = queue
	})
}

func (r *memoryRepository) AddTip(_ context.Context, id string, amount decimal.Decimal) (*Session, error) {
	return r.mutate(id, func(s *Session) {
		s.TotalTips = s.TotalTips.Add(amount)
	})
}

func (r *memoryRepository) SetCurrentSong(_ context.Context, id, songID string) error {
	_, err := r.mutate(id, func(s *Session) {
		song := songID
		s.CurrentSongID = &song
	})
	return err
}
