package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-sync/internal/config"
)

const (
	passLockKey = "identity-sync:pass-lock"
	lastPassKey = "identity-sync:last-pass"

	lastPassTTL = 7 * 24 * time.Hour
)

// Redis wraps the go-redis client used for the cross-replica pass lock. An
// empty Addr disables Redis; lock acquisition then always succeeds so a
// single-instance deployment needs no Redis at all.
type Redis struct {
	Client  *redis.Client
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not provided; pass lock is process local only")
		return &Redis{Client: nil, lockTTL: cfg.LockTTL(), logger: logger}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client, lockTTL: cfg.LockTTL(), logger: logger}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// CacheLastPass stores the most recent pass summary so any replica can
// serve it.
func (r *Redis) CacheLastPass(ctx context.Context, payload []byte) error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Set(ctx, lastPassKey, payload, lastPassTTL).Err()
}

// LastPass returns the cached pass summary, or nil when none is cached.
func (r *Redis) LastPass(ctx context.Context) ([]byte, error) {
	if r == nil || r.Client == nil {
		return nil, nil
	}
	payload, err := r.Client.Get(ctx, lastPassKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// AcquirePassLock takes the shared pass lock, tagging it with the pass id.
// Returns false when another replica already holds it. The TTL bounds how
// long a crashed holder can block other replicas.
func (r *Redis) AcquirePassLock(ctx context.Context, passID string) (bool, error) {
	if r == nil || r.Client == nil {
		return true, nil
	}
	ok, err := r.Client.SetNX(ctx, passLockKey, passID, r.lockTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ReleasePassLock drops the shared pass lock if this pass still holds it.
func (r *Redis) ReleasePassLock(ctx context.Context, passID string) {
	if r == nil || r.Client == nil {
		return
	}
	holder, err := r.Client.Get(ctx, passLockKey).Result()
	if err != nil || holder != passID {
		return
	}
	if err := r.Client.Del(ctx, passLockKey).Err(); err != nil {
		r.logger.Warn("failed to release pass lock", zap.Error(err))
	}
}
