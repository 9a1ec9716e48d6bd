package agriquery

import (
	"context"
	"sync"
	"time"

	"github.com/agrisense/agriquery/schema"
)

// Turn is one answered query of a conversation.
type Turn struct {
	Query     string                 `json:"query"`
	Answer    string                 `json:"answer"`
	Intent    schema.Intent          `json:"intent"`
	Layer     schema.ProcessingLayer `json:"layer"`
	RequestID string                 `json:"request_id"`
	Timestamp time.Time              `json:"timestamp"`
}

// Session holds the turns of one conversation, oldest first.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Turns     []Turn    `json:"turns"`
}

// SessionStore is an abstraction for conversation persistence.
type SessionStore interface {
	// AddTurn appends t to the session, creating it on first use.
	AddTurn(ctx context.Context, id, userID string, t Turn) error
	Get(ctx context.Context, id string) (*Session, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// MemSessionStore manages sessions in memory.
type MemSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxTurns int
}

// NewMemSessionStore keeps at most maxTurns turns per session; zero keeps all.
func NewMemSessionStore(maxTurns int) *MemSessionStore {
	return &MemSessionStore{sessions: make(map[string]*Session), maxTurns: maxTurns}
}

func (m *MemSessionStore) AddTurn(_ context.Context, id, userID string, t Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id, UserID: userID, CreatedAt: t.Timestamp}
		m.sessions[id] = s
	}
	s.Turns = trimTurns(append(s.Turns, t), m.maxTurns)
	return nil
}

// Get returns a copy of the session.
func (m *MemSessionStore) Get(_ context.Context, id string) (*Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false, nil
	}
	cp := *s
	cp.Turns = append([]Turn(nil), s.Turns...)
	return &cp, true, nil
}

func (m *MemSessionStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	return ok, nil
}

func trimTurns(turns []Turn, max int) []Turn {
	if max > 0 && len(turns) > max {
		return turns[len(turns)-max:]
	}
	return turns
}
