package sessions

import (
	"context"
	"sync"
	"time"
)

// Repository provides session persistence operations. Get returns (nil, nil)
// for a missing session so callers can distinguish absence from store errors.
type Repository interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// Sweep removes sessions whose lastSeenAt is older than ttl. Stores with
	// native key expiry may implement this as a no-op.
	Sweep(ctx context.Context, ttl time.Duration) error
}

// MemoryRepository implements Repository with an in-process map. This is the
// default store; process restart drops all sessions.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: map[string]*Session{}}
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (r *MemoryRepository) Put(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *MemoryRepository) Sweep(ctx context.Context, ttl time.Duration) error {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.byID {
		if s == nil || s.LastSeenAt.IsZero() || now.Sub(s.LastSeenAt) > ttl {
			delete(r.byID, id)
		}
	}
	return nil
}

// Len reports the number of stored sessions (used by tests and /ready).
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
