package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/fpt/pkg/aggregation"
	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/observability"
	"github.com/ethpandaops/fpt/pkg/pipeline"
	"github.com/ethpandaops/fpt/pkg/reports"
	"github.com/ethpandaops/fpt/pkg/scheduler"
	"github.com/ethpandaops/fpt/pkg/source"
	"github.com/ethpandaops/fpt/pkg/storage"
	"github.com/ethpandaops/fpt/pkg/validation"
)

const shutdownTimeout = 10 * time.Second

// Service owns every component of one configured engine
type Service struct {
	config *Config
	log    logrus.FieldLogger

	store    *storage.Mux
	registry *contracts.Registry
	sink     reports.Sink
	pipeline *pipeline.Pipeline
	runner   *scheduler.Runner

	schedulerRedis *redis.Client
}

// NewService validates cfg and builds the engine
func NewService(log logrus.FieldLogger, cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log = log.WithField("service", "engine")

	registry, err := contracts.Load(cfg.Contracts, cfg.Paths.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load contracts: %w", err)
	}

	store := storage.NewMux(log, cfg.Storage)

	sink, err := reports.New(log, &cfg.Reports, store, cfg.Paths.Reports)
	if err != nil {
		return nil, fmt.Errorf("failed to create report sink: %w", err)
	}

	reader := source.NewReader(log, store)
	if !cfg.Validation.Strict {
		reader = reader.Lenient()
	}

	raw := validation.NewRawValidator(log, reader, sink, cfg.Validation)
	flat := validation.NewFlatValidator(log, sink, cfg.Validation)
	exporter := aggregation.NewExporter(log, store, cfg.Paths.Out, cfg.Export)

	s := &Service{
		config:   cfg,
		log:      log,
		store:    store,
		registry: registry,
		sink:     sink,
		pipeline: pipeline.New(log, registry, reader, raw, flat, exporter, cfg.Pipeline),
	}

	var opts []scheduler.Option

	if cfg.Schedule.Redis.Address != "" {
		s.schedulerRedis = cfg.Schedule.Redis.NewClient()
		opts = append(opts,
			scheduler.WithLock(scheduler.NewRedisLock(log, s.schedulerRedis, &cfg.Schedule.Redis, cfg.Schedule.LockTTL)),
			scheduler.WithTracker(scheduler.NewRedisTracker(log, s.schedulerRedis, &cfg.Schedule.Redis)),
		)
	}

	s.runner = scheduler.NewRunner(log, cfg.Schedule, func(ctx context.Context, date time.Time) error {
		_, err := s.Run(ctx, date)
		return err
	}, opts...)

	log.WithFields(logrus.Fields{
		"datasets": registry.Names(),
		"raw":      cfg.Paths.Raw,
		"out":      cfg.Paths.Out,
		"reports":  cfg.Paths.Reports,
		"sink":     cfg.Reports.Sink,
		"strict":   cfg.Validation.Strict,
	}).Info("Engine configured")

	return s, nil
}

// Registry returns the dataset contracts in use
func (s *Service) Registry() *contracts.Registry {
	return s.registry
}

// Run executes one full pipeline run for date
func (s *Service) Run(ctx context.Context, date time.Time) (pipeline.Result, error) {
	return s.pipeline.Run(ctx, date)
}

// Validate runs the raw and flat checks for the named datasets, or all of them, without exporting
func (s *Service) Validate(ctx context.Context, names ...string) error {
	ctx = reports.WithRun(ctx, reports.NewRun(time.Time{}))

	_, err := s.pipeline.LoadAndValidate(ctx, names...)

	return err
}

// Report returns the stored report document for dataset and stage
func (s *Service) Report(ctx context.Context, dataset string, stage validation.Stage) ([]byte, error) {
	return s.sink.Read(ctx, dataset, string(stage))
}

// Start starts the metrics server and the cron scheduler
func (s *Service) Start(ctx context.Context) error {
	observability.StartMetricsServer(s.log, s.config.MetricsAddr)

	if err := s.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

// Stop stops the scheduler and releases clients
func (s *Service) Stop() error {
	s.log.Info("Stopping engine")

	var errs []error

	if err := s.runner.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := observability.StopMetricsServer(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics server: %w", err))
	}

	if closer, ok := s.sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("report sink: %w", err))
		}
	}

	if s.schedulerRedis != nil {
		if err := s.schedulerRedis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler redis: %w", err))
		}
	}

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	return errors.Join(errs...)
}
