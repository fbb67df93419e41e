package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	fptredis "github.com/ethpandaops/fpt/pkg/redis"
)

// RunLock keeps two scheduled runs from overlapping
type RunLock interface {
	// Acquire returns false when another holder owns the lock
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LocalLock serialises runs within one process
type LocalLock struct {
	mu sync.Mutex
}

var _ RunLock = (*LocalLock)(nil)

// Acquire takes the lock without blocking
func (l *LocalLock) Acquire(_ context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

// Release frees the lock
func (l *LocalLock) Release(_ context.Context) error {
	l.mu.Unlock()
	return nil
}

// RedisLock is a lease shared by every replica pointing at the same Redis
type RedisLock struct {
	log        logrus.FieldLogger
	client     redis.UniversalClient
	key        string
	instanceID string
	ttl        time.Duration
}

var _ RunLock = (*RedisLock)(nil)

// NewRedisLock creates a lock stored under <prefix>:scheduler:lock
func NewRedisLock(log logrus.FieldLogger, client redis.UniversalClient, cfg *fptredis.Config, ttl time.Duration) *RedisLock {
	instanceID := uuid.New().String()

	return &RedisLock{
		log:        log.WithField("component", "run-lock").WithField("instance_id", instanceID),
		client:     client,
		key:        cfg.PrefixKey("scheduler:lock"),
		instanceID: instanceID,
		ttl:        ttl,
	}
}

// Acquire sets the lease if nobody holds it
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}

	if ok {
		l.log.WithField("ttl", l.ttl).Debug("Acquired run lock")
		return true, nil
	}

	owner, err := l.client.Get(ctx, l.key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to check run lock owner: %w", err)
	}

	l.log.WithField("owner", owner).Debug("Run lock held by another instance")

	return false, nil
}

// Release deletes the lease if this instance still owns it
func (l *RedisLock) Release(ctx context.Context) error {
	owner, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to check run lock owner: %w", err)
	}

	if owner != l.instanceID {
		l.log.WithField("owner", owner).Warn("Run lock lease expired and was taken over")
		return nil
	}

	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}

	l.log.Debug("Released run lock")

	return nil
}
