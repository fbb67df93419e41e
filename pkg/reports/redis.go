package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	fptredis "github.com/ethpandaops/fpt/pkg/redis"
)

// RedisSink stores each report as a JSON string under <prefix>:reports:<dataset>:<stage>
type RedisSink struct {
	log    logrus.FieldLogger
	client redis.UniversalClient
	cfg    *fptredis.Config
	ttl    time.Duration
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink creates a sink over client. A zero ttl keeps reports until overwritten.
func NewRedisSink(log logrus.FieldLogger, client redis.UniversalClient, cfg *fptredis.Config, ttl time.Duration) *RedisSink {
	return &RedisSink{
		log:    log.WithField("service", "reports"),
		client: client,
		cfg:    cfg,
		ttl:    ttl,
	}
}

// Key returns the Redis key for a dataset and stage
func (s *RedisSink) Key(dataset, stage string) string {
	return s.cfg.PrefixKey(fmt.Sprintf("reports:%s:%s", dataset, stage))
}

// Write stores doc as JSON
func (s *RedisSink) Write(ctx context.Context, dataset, stage string, doc any) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s %s report: %w", dataset, stage, err)
	}

	key := s.Key(dataset, stage)

	if err := s.client.Set(ctx, key, body, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store %s %s report: %w", dataset, stage, err)
	}

	s.log.WithFields(logrus.Fields{
		"dataset": dataset,
		"stage":   stage,
		"key":     key,
	}).Debug("Stored report")

	return "redis://" + key, nil
}

// Read fetches the current report
func (s *RedisSink) Read(ctx context.Context, dataset, stage string) ([]byte, error) {
	key := s.Key(dataset, stage)

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s report: %w", dataset, stage, err)
	}

	return data, nil
}

// Close closes the underlying client
func (s *RedisSink) Close() error {
	return s.client.Close()
}
