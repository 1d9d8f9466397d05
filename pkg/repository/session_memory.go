package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/beam-cloud/salesmap/pkg/types"
)

const defaultMemorySessions = 10000

type memorySession struct {
	session   types.Session
	expiresAt time.Time
}

// SessionMemoryRepository implements SessionRepository in memory.
// This is used for local mode where we don't have Redis.
type SessionMemoryRepository struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, memorySession]
	ttl      time.Duration
}

func NewSessionMemoryRepository(ttl time.Duration) SessionRepository {
	if ttl <= 0 {
		ttl = types.DefaultSessionTTL
	}
	return &SessionMemoryRepository{
		sessions: expirable.NewLRU[string, memorySession](defaultMemorySessions, nil, ttl),
		ttl:      ttl,
	}
}

func (r *SessionMemoryRepository) CreateSession(ctx context.Context, session *types.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.Add(session.ID, memorySession{session: *session, expiresAt: time.Now().Add(r.ttl)})
	return nil
}

func (r *SessionMemoryRepository) GetSession(ctx context.Context, sessionId string) (*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions.Get(sessionId)
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, types.ErrSessionNotFound
	}
	session := entry.session
	return &session, nil
}

func (r *SessionMemoryRepository) UpdateCredential(ctx context.Context, sessionId string, cred types.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions.Get(sessionId)
	if !ok || time.Now().After(entry.expiresAt) {
		return types.ErrSessionNotFound
	}
	entry.session.Credential = cred
	r.sessions.Add(sessionId, entry)
	return nil
}

func (r *SessionMemoryRepository) DeleteSession(ctx context.Context, sessionId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.Remove(sessionId)
	return nil
}
