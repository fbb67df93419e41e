package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	fptredis "github.com/ethpandaops/fpt/pkg/redis"
)

// Tracker persists when the last successful run finished
type Tracker interface {
	// LastSuccess returns the zero time when no run has succeeded yet
	LastSuccess(ctx context.Context) (time.Time, error)
	SetLastSuccess(ctx context.Context, ts time.Time) error
}

// RedisTracker keeps the timestamp under <prefix>:scheduler:last_success
type RedisTracker struct {
	log    logrus.FieldLogger
	client redis.UniversalClient
	key    string
}

var _ Tracker = (*RedisTracker)(nil)

// NewRedisTracker creates a Redis-backed tracker
func NewRedisTracker(log logrus.FieldLogger, client redis.UniversalClient, cfg *fptredis.Config) *RedisTracker {
	return &RedisTracker{
		log:    log.WithField("component", "run-tracker"),
		client: client,
		key:    cfg.PrefixKey("scheduler:last_success"),
	}
}

// LastSuccess reads the stored timestamp
func (r *RedisTracker) LastSuccess(ctx context.Context) (time.Time, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}

		return time.Time{}, fmt.Errorf("failed to get last success: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, val)
	if err != nil {
		r.log.WithError(err).WithField("raw_value", val).Error("Failed to parse timestamp")
		return time.Time{}, fmt.Errorf("failed to parse last success %q: %w", val, err)
	}

	return ts, nil
}

// SetLastSuccess stores ts with no expiry
func (r *RedisTracker) SetLastSuccess(ctx context.Context, ts time.Time) error {
	if err := r.client.Set(ctx, r.key, ts.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("failed to set last success: %w", err)
	}

	return nil
}
