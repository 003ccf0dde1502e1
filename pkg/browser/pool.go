package browser

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or already closed session ids
var ErrSessionNotFound = errors.New("browser session not found")

// Pool manages browser sessions that outlive a single call
type Pool struct {
	sessions map[string]*PooledSession
	mu       sync.RWMutex
}

// PooledSession holds data for a browser session
type PooledSession struct {
	Session   *Session
	Page      *Page
	CreatedAt time.Time
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{
		sessions: make(map[string]*PooledSession),
	}
}

// Put stores a session and returns its new id
func (p *Pool) Put(session *Session, page *Page) string {
	id := uuid.New().String()
	p.mu.Lock()
	p.sessions[id] = &PooledSession{
		Session:   session,
		Page:      page,
		CreatedAt: time.Now(),
	}
	p.mu.Unlock()
	return id
}

// Get looks a session up by id
func (p *Pool) Get(id string) (*PooledSession, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close removes a session and shuts its browser down.
// Closing an unknown id is a no-op.
func (p *Pool) Close(id string) error {
	p.mu.Lock()
	s, ok := p.sessions[id]
	delete(p.sessions, id)
	p.mu.Unlock()

	if !ok || s.Session == nil {
		return nil
	}
	return s.Session.Close()
}

// CloseAll shuts every session down, returning the first error
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*PooledSession)
	p.mu.Unlock()

	var first error
	for _, s := range sessions {
		if s.Session == nil {
			continue
		}
		if err := s.Session.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Len returns the number of live sessions
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
