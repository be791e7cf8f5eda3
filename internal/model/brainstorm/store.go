package brainstorm

import (
	"context"
	"sync"
	"time"
)

// Store persists session documents.
type Store interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Update applies fn to the stored document as one atomic read-modify-write.
	// When fn returns an error nothing is written and the error is returned.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
}

// MemoryStore implements Store with an in-memory map, suitable for a single process.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Create stores a copy of the session.
func (s *MemoryStore) Create(_ context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a copy of the stored session.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Update runs fn on a working copy under the store lock and commits it on success.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	s.sessions[id] = working
	return working.Clone(), nil
}
