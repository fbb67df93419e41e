package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/fpt/internal/testutil"
	fptredis "github.com/ethpandaops/fpt/pkg/redis"
)

var errBoom = errors.New("boom")

func testConfig() Config {
	return Config{Cron: "*/5 * * * *", Retries: 2, RetryDelay: time.Millisecond, LockTTL: time.Minute}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "descriptor", mutate: func(c *Config) { c.Cron = "@every 1h" }},
		{name: "bad cron", mutate: func(c *Config) { c.Cron = "every tuesday" }, wantErr: ErrInvalidSchedule},
		{name: "negative retries", mutate: func(c *Config) { c.Retries = -1 }, wantErr: ErrInvalidRetries},
		{name: "negative delay", mutate: func(c *Config) { c.RetryDelay = -time.Second }, wantErr: ErrInvalidRetryDelay},
		{name: "zero lock ttl", mutate: func(c *Config) { c.LockTTL = 0 }, wantErr: ErrInvalidLockTTL},
		{name: "redis with bad db", mutate: func(c *Config) {
			c.Redis = fptredis.Config{Address: "localhost:6379", DB: -1}
		}, wantErr: fptredis.ErrInvalidDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRunner_RunOnce(t *testing.T) {
	fixed := time.Date(2020, 11, 10, 15, 4, 5, 0, time.UTC)

	t.Run("succeeds first time", func(t *testing.T) {
		log, hook := testutil.NewLogger()

		var got time.Time
		r := NewRunner(log, testConfig(), func(_ context.Context, date time.Time) error {
			got = date
			return nil
		}, WithClock(func() time.Time { return fixed }))

		require.NoError(t, r.RunOnce(context.Background()))
		assert.Equal(t, fixed, got)
		assert.True(t, testutil.HasEntry(hook, logrus.InfoLevel, "Scheduled run succeeded"))
	})

	t.Run("retries until success", func(t *testing.T) {
		log, _ := testutil.NewLogger()

		var calls atomic.Int32
		r := NewRunner(log, testConfig(), func(context.Context, time.Time) error {
			if calls.Add(1) < 3 {
				return errBoom
			}
			return nil
		})

		require.NoError(t, r.RunOnce(context.Background()))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after retries", func(t *testing.T) {
		log, hook := testutil.NewLogger()

		var calls atomic.Int32
		r := NewRunner(log, testConfig(), func(context.Context, time.Time) error {
			calls.Add(1)
			return errBoom
		})

		err := r.RunOnce(context.Background())
		require.ErrorIs(t, err, errBoom)
		assert.Equal(t, int32(3), calls.Load())
		assert.True(t, testutil.HasEntry(hook, logrus.ErrorLevel, "Scheduled run failed"))
	})

	t.Run("stops retrying when canceled", func(t *testing.T) {
		log, _ := testutil.NewLogger()

		cfg := testConfig()
		cfg.RetryDelay = time.Hour

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		r := NewRunner(log, cfg, func(context.Context, time.Time) error {
			cancel()
			return errBoom
		})

		err := r.RunOnce(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("skips when locked", func(t *testing.T) {
		log, _ := testutil.NewLogger()

		lock := &LocalLock{}
		ok, err := lock.Acquire(context.Background())
		require.NoError(t, err)
		require.True(t, ok)

		var calls atomic.Int32
		r := NewRunner(log, testConfig(), func(context.Context, time.Time) error {
			calls.Add(1)
			return nil
		}, WithLock(lock))

		assert.ErrorIs(t, r.RunOnce(context.Background()), ErrRunLocked)
		assert.Zero(t, calls.Load())
	})

	t.Run("releases lock after run", func(t *testing.T) {
		log, _ := testutil.NewLogger()

		lock := &LocalLock{}
		r := NewRunner(log, testConfig(), func(context.Context, time.Time) error { return nil }, WithLock(lock))

		require.NoError(t, r.RunOnce(context.Background()))

		ok, err := lock.Acquire(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRedisLock(t *testing.T) {
	log, _ := testutil.NewLogger()
	mr, cfg, client := testutil.NewMiniredisClient(t)
	ctx := context.Background()

	first := NewRedisLock(log, client, cfg, time.Minute)
	second := NewRedisLock(log, client, cfg, time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Only the owner can release.
	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists("fpt-test:scheduler:lock"))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("fpt-test:scheduler:lock"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")
}

func TestRedisTracker(t *testing.T) {
	log, _ := testutil.NewLogger()
	_, cfg, client := testutil.NewMiniredisClient(t)
	ctx := context.Background()

	tracker := NewRedisTracker(log, client, cfg)

	last, err := tracker.LastSuccess(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	ts := time.Date(2020, 11, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, tracker.SetLastSuccess(ctx, ts))

	last, err = tracker.LastSuccess(ctx)
	require.NoError(t, err)
	assert.True(t, ts.Equal(last))

	require.NoError(t, client.Set(ctx, "fpt-test:scheduler:last_success", "yesterday", 0).Err())

	_, err = tracker.LastSuccess(ctx)
	assert.Error(t, err)
}

func TestRunner_RecordsSuccess(t *testing.T) {
	log, _ := testutil.NewLogger()
	_, cfg, client := testutil.NewMiniredisClient(t)

	fixed := time.Date(2020, 11, 10, 8, 0, 0, 0, time.UTC)
	tracker := NewRedisTracker(log, client, cfg)

	r := NewRunner(log, testConfig(), func(context.Context, time.Time) error { return nil },
		WithTracker(tracker),
		WithLock(NewRedisLock(log, client, cfg, time.Minute)),
		WithClock(func() time.Time { return fixed }),
	)

	require.NoError(t, r.RunOnce(context.Background()))

	last, err := tracker.LastSuccess(context.Background())
	require.NoError(t, err)
	assert.True(t, fixed.Equal(last))
}

func TestRunner_StartStop(t *testing.T) {
	log, _ := testutil.NewLogger()

	cfg := testConfig()
	cfg.Cron = "@every 1s"

	var calls atomic.Int32
	r := NewRunner(log, cfg, func(context.Context, time.Time) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
}

func TestRunner_StartRejectsBadSchedule(t *testing.T) {
	log, _ := testutil.NewLogger()

	cfg := testConfig()
	cfg.Cron = "nope"

	r := NewRunner(log, cfg, func(context.Context, time.Time) error { return nil })
	assert.ErrorIs(t, r.Start(context.Background()), ErrInvalidSchedule)
}
