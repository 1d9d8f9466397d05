package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beam-cloud/salesmap/pkg/common"
	"github.com/beam-cloud/salesmap/pkg/types"
)

// SessionRedisRepository implements SessionRepository using Redis
type SessionRedisRepository struct {
	rdb  *common.RedisClient
	lock *common.RedisLock
	ttl  time.Duration
}

func NewSessionRedisRepository(rdb *common.RedisClient, ttl time.Duration) SessionRepository {
	if ttl <= 0 {
		ttl = types.DefaultSessionTTL
	}
	return &SessionRedisRepository{
		rdb:  rdb,
		lock: common.NewRedisLock(rdb),
		ttl:  ttl,
	}
}

func (r *SessionRedisRepository) CreateSession(ctx context.Context, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, common.Keys.SessionState(session.ID), data, r.ttl).Err()
}

func (r *SessionRedisRepository) GetSession(ctx context.Context, sessionId string) (*types.Session, error) {
	data, err := r.rdb.Get(ctx, common.Keys.SessionState(sessionId)).Bytes()
	if err == redis.Nil {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// UpdateCredential rewrites the stored credential without extending the
// session's remaining lifetime.
func (r *SessionRedisRepository) UpdateCredential(ctx context.Context, sessionId string, cred types.Credential) error {
	lockKey := common.Keys.SessionLock(sessionId)
	if err := r.lock.Acquire(ctx, lockKey, common.RedisLockOptions{TtlS: 10, Retries: 3}); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer r.lock.Release(lockKey)

	stateKey := common.Keys.SessionState(sessionId)
	session, err := r.GetSession(ctx, sessionId)
	if err != nil {
		return err
	}

	ttl, err := r.rdb.PTTL(ctx, stateKey).Result()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return types.ErrSessionNotFound
	}

	session.Credential = cred
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, stateKey, data, ttl).Err()
}

func (r *SessionRedisRepository) DeleteSession(ctx context.Context, sessionId string) error {
	return r.rdb.Del(ctx, common.Keys.SessionState(sessionId)).Err()
}
