// Package scheduler runs the pipeline on a cron cadence with retries
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ethpandaops/fpt/pkg/redis"
)

var (
	// ErrInvalidSchedule is returned when the cron expression cannot be parsed
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInvalidRetries is returned when retries is negative
	ErrInvalidRetries = errors.New("retries must not be negative")
	// ErrInvalidRetryDelay is returned when the retry delay is negative
	ErrInvalidRetryDelay = errors.New("retry delay must not be negative")
	// ErrInvalidLockTTL is returned when the run lock lease is not positive
	ErrInvalidLockTTL = errors.New("lock ttl must be positive")
)

// Config defines scheduler configuration
type Config struct {
	Cron       string        `yaml:"cron" default:"*/5 * * * *"`
	Retries    int           `yaml:"retries" default:"1"`
	RetryDelay time.Duration `yaml:"retryDelay" default:"5m"`
	LockTTL    time.Duration `yaml:"lockTTL" default:"30m"`

	// Redis is optional. When set, replicas share a run lock and last-run record.
	Redis redis.Config `yaml:"redis"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if _, err := parseSchedule(c.Cron); err != nil {
		return err
	}

	if c.Retries < 0 {
		return ErrInvalidRetries
	}

	if c.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}

	if c.LockTTL <= 0 {
		return ErrInvalidLockTTL
	}

	if c.Redis.Address != "" {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	return nil
}

func parseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
	}

	return sched, nil
}
