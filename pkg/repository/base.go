package repository

import (
	"context"
	"time"

	"github.com/beam-cloud/salesmap/pkg/types"
)

// SessionRepository stores sessions keyed by their opaque id. Expiry is
// enforced by the backend.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, sessionId string) (*types.Session, error)
	UpdateCredential(ctx context.Context, sessionId string, cred types.Credential) error
	DeleteSession(ctx context.Context, sessionId string) error
}

// ResultCache stores serialized aggregates. Get returns types.ErrCacheMiss
// when no live entry exists.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
