package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cvcoach/internal/errors"
	"cvcoach/internal/suggestions"
)

const (
	sessionKeyPrefix = "cvcoach:session:" // cvcoach:session:{session_id}
	lockKeyPrefix    = "cvcoach:lock:"    // cvcoach:lock:{lock_key}
	maxTxRetries     = 10
)

// RedisOptions configures the Redis-backed stores.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewNetworkError(errors.ErrCodeStorageFailed, "failed to connect to redis", err).
			WithContext("addr", opts.Addr)
	}
	return client, nil
}

// RedisSessions stores sessions as JSON values with a sliding TTL.
type RedisSessions struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessions creates a Redis session store. A zero ttl stores
// sessions without expiry.
func NewRedisSessions(client *redis.Client, ttl time.Duration) *RedisSessions {
	return &RedisSessions{client: client, ttl: ttl}
}

func (r *RedisSessions) Create(ctx context.Context, s *suggestions.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeStorageFailed, "failed to marshal session", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(s.ID), data, r.ttl).Result()
	if err != nil {
		return errors.NewIOError(errors.ErrCodeStorageFailed, "failed to create session", err)
	}
	if !ok {
		return errors.NewConflictError(errors.ErrCodeInvalidRequest, "session already exists", nil).WithContext("session_id", s.ID)
	}
	return nil
}

func (r *RedisSessions) Get(ctx context.Context, id string) (*suggestions.Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, suggestions.ErrSessionNotFound(id)
	}
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeStorageFailed, "failed to get session", err)
	}
	return decodeSession(data)
}

// Update applies fn inside a WATCH transaction and retries when another
// writer modified the session concurrently.
func (r *RedisSessions) Update(ctx context.Context, id string, fn func(*suggestions.Session) error) (*suggestions.Session, error) {
	key := r.key(id)
	var updated *suggestions.Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return suggestions.ErrSessionNotFound(id)
		}
		if err != nil {
			return errors.NewIOError(errors.ErrCodeStorageFailed, "failed to get session", err)
		}
		sess, err := decodeSession(data)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		out, err := json.Marshal(sess)
		if err != nil {
			return errors.NewInternalError(errors.ErrCodeStorageFailed, "failed to marshal session", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.ttl)
			return nil
		})
		if err == nil {
			updated = sess
		}
		return err
	}

	for range maxTxRetries {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewIOError(errors.ErrCodeStorageFailed, "failed to update session", err)
	}
	return nil, errors.NewConflictError(errors.ErrCodeStorageFailed, "session update contended too often", nil).WithContext("session_id", id)
}

func (r *RedisSessions) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return errors.NewIOError(errors.ErrCodeStorageFailed, "failed to delete session", err)
	}
	if n == 0 {
		return suggestions.ErrSessionNotFound(id)
	}
	return nil
}

func (r *RedisSessions) key(id string) string {
	return sessionKeyPrefix + id
}

func decodeSession(data []byte) (*suggestions.Session, error) {
	var sess suggestions.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeStorageFailed, "failed to unmarshal session", err)
	}
	return &sess, nil
}

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocks is a Locker shared by every replica using the same Redis.
// Locks expire after ttl so a crashed holder cannot block a document.
type RedisLocks struct {
	client *redis.Client
	ttl    time.Duration
	logger *errors.Logger
}

func NewRedisLocks(client *redis.Client, ttl time.Duration, logger *errors.Logger) *RedisLocks {
	return &RedisLocks{client: client, ttl: ttl, logger: logger}
}

func (l *RedisLocks) TryLock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := lockKeyPrefix + key

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeStorageFailed, "failed to acquire lock", err)
	}
	if !ok {
		return nil, suggestions.ErrInFlight(key)
	}

	return func() {
		// The request context may already be done.
		if err := unlockScript.Run(context.WithoutCancel(ctx), l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.LogError(err, "Failed to release lock", "lock_key", key)
		}
	}, nil
}
