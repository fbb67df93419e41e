// Package pipeline runs validate, flatten and validate per dataset, then aggregates and exports
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/fpt/pkg/aggregation"
	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/flatten"
	"github.com/ethpandaops/fpt/pkg/observability"
	"github.com/ethpandaops/fpt/pkg/reports"
	"github.com/ethpandaops/fpt/pkg/source"
	"github.com/ethpandaops/fpt/pkg/table"
	"github.com/ethpandaops/fpt/pkg/validation"
)

var (
	// ErrRawSchemaFailed is returned when a dataset fails raw validation
	ErrRawSchemaFailed = errors.New("raw schema validation failed")
	// ErrFlatSchemaFailed is returned when a dataset fails flat validation
	ErrFlatSchemaFailed = errors.New("flat schema validation failed")
	// ErrDatasetMissing is returned when aggregation is missing one of its inputs
	ErrDatasetMissing = errors.New("dataset missing from validated tables")
	// ErrInvalidConcurrency is returned when concurrency is below one
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	// ErrValidationSignalled is used when a validator fails a dataset without a report reason
	ErrValidationSignalled = errors.New("validator signalled failure")
)

// RawValidator validates a source as stored
type RawValidator interface {
	Validate(ctx context.Context, c contracts.Contract, preloaded *table.Table) (validation.Outcome, error)
}

// LoadFailureRecorder is implemented by raw validators that can report a failed full read
type LoadFailureRecorder interface {
	RecordLoadFailure(ctx context.Context, c contracts.Contract, cause error) (validation.Outcome, error)
}

// FlatValidator validates a flattened table
type FlatValidator interface {
	Validate(ctx context.Context, c contracts.Contract, flat *table.Table) (validation.Outcome, error)
}

// Exporter persists the feature table
type Exporter interface {
	Export(ctx context.Context, rows []aggregation.FeatureRow) (csvLocation, parquetLocation string, err error)
}

// Config holds pipeline settings
type Config struct {
	// Concurrency bounds how many datasets are validated and flattened at once
	Concurrency int `yaml:"concurrency" default:"1"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return ErrInvalidConcurrency
	}

	return nil
}

// Result describes a finished run
type Result struct {
	RunID           string
	Date            time.Time
	Rows            int
	CSVLocation     string
	ParquetLocation string
}

// Pipeline wires the stages together
type Pipeline struct {
	log      logrus.FieldLogger
	registry *contracts.Registry
	reader   source.Reader
	raw      RawValidator
	flat     FlatValidator
	exporter Exporter
	cfg      Config
}

// New creates a pipeline
func New(
	log logrus.FieldLogger,
	registry *contracts.Registry,
	reader source.Reader,
	raw RawValidator,
	flat FlatValidator,
	exporter Exporter,
	cfg Config,
) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	return &Pipeline{
		log:      log.WithField("service", "pipeline"),
		registry: registry,
		reader:   reader,
		raw:      raw,
		flat:     flat,
		exporter: exporter,
		cfg:      cfg,
	}
}

// Run validates every dataset, aggregates and exports. A failed run exports nothing.
func (p *Pipeline) Run(ctx context.Context, date time.Time) (Result, error) {
	run := reports.NewRun(date)
	ctx = reports.WithRun(ctx, run)
	start := time.Now()

	log := p.log.WithFields(logrus.Fields{
		"run_id": run.ID,
		"date":   run.DateString(),
	})

	log.Info("Starting run")

	result := Result{RunID: run.ID, Date: run.Date}

	tables, err := p.LoadAndValidate(ctx)
	if err != nil {
		observability.RecordRun("failed", time.Since(start).Seconds())
		log.WithError(err).Error("Run failed during validation")

		return result, err
	}

	rows, err := p.aggregate(tables)
	if err != nil {
		observability.RecordRun("failed", time.Since(start).Seconds())
		log.WithError(err).Error("Run failed during aggregation")

		return result, err
	}

	result.Rows = len(rows)

	result.CSVLocation, result.ParquetLocation, err = p.exporter.Export(ctx, rows)
	if err != nil {
		observability.RecordRun("failed", time.Since(start).Seconds())
		log.WithError(err).Error("Run failed during export")

		return result, fmt.Errorf("export failed: %w", err)
	}

	observability.RecordRun("success", time.Since(start).Seconds())

	log.WithFields(logrus.Fields{
		"rows":     result.Rows,
		"csv":      result.CSVLocation,
		"parquet":  result.ParquetLocation,
		"duration": time.Since(start).String(),
	}).Info("Run complete")

	return result, nil
}

// LoadAndValidate runs raw validation, full read, flatten and flat validation for the named
// datasets, or every registered dataset when none are named
func (p *Pipeline) LoadAndValidate(ctx context.Context, names ...string) (map[string]*table.Table, error) {
	selected, err := p.selectContracts(names)
	if err != nil {
		return nil, err
	}

	tables := make(map[string]*table.Table, len(selected))

	if p.cfg.Concurrency == 1 {
		for _, c := range selected {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			t, err := p.loadDataset(ctx, c)
			if err != nil {
				return nil, err
			}

			tables[c.Name] = t
		}

		return tables, nil
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, c := range selected {
		g.Go(func() error {
			t, err := p.loadDataset(gctx, c)
			if err != nil {
				return err
			}

			mu.Lock()
			tables[c.Name] = t
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return tables, nil
}

// AggregateAndExport builds the feature table from validated flat tables and exports it
func (p *Pipeline) AggregateAndExport(ctx context.Context, tables map[string]*table.Table) (csvLocation, parquetLocation string, err error) {
	rows, err := p.aggregate(tables)
	if err != nil {
		return "", "", err
	}

	return p.exporter.Export(ctx, rows)
}

func (p *Pipeline) aggregate(tables map[string]*table.Table) ([]aggregation.FeatureRow, error) {
	for _, name := range []string{contracts.Pays, contracts.Taps, contracts.Prints} {
		if tables[name] == nil {
			return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, name)
		}
	}

	rows, err := aggregation.Aggregate(tables[contracts.Pays], tables[contracts.Taps], tables[contracts.Prints])
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	return rows, nil
}

func (p *Pipeline) loadDataset(ctx context.Context, c contracts.Contract) (*table.Table, error) {
	log := p.log.WithField("dataset", c.Name)

	rawOut, err := p.raw.Validate(ctx, c, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (report: %s): %w", ErrRawSchemaFailed, c.Name, rawOut.Location, err)
	}

	if !rawOut.Passed {
		return nil, fmt.Errorf("%w: %s (report: %s): %w", ErrRawSchemaFailed, c.Name, rawOut.Location, outcomeErr(rawOut))
	}

	raw, err := p.reader.ReadTable(ctx, c)
	if err != nil {
		return nil, p.loadFailure(ctx, c, rawOut, err)
	}

	flat := flatten.Flatten(c, raw)

	flatOut, err := p.flat.Validate(ctx, c, flat)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (report: %s): %w", ErrFlatSchemaFailed, c.Name, flatOut.Location, err)
	}

	if !flatOut.Passed {
		return nil, fmt.Errorf("%w: %s (report: %s): %w", ErrFlatSchemaFailed, c.Name, flatOut.Location, outcomeErr(flatOut))
	}

	log.WithFields(logrus.Fields{
		"rows":        flat.Len(),
		"columns":     flat.Columns(),
		"raw_report":  rawOut.Location,
		"flat_report": flatOut.Location,
	}).Info("Dataset ready")

	return flat, nil
}

// loadFailure turns a failed full read into a raw-stage failure, replacing the passing raw report
// when the validator supports it
func (p *Pipeline) loadFailure(ctx context.Context, c contracts.Contract, rawOut validation.Outcome, cause error) error {
	recorder, ok := p.raw.(LoadFailureRecorder)
	if !ok {
		return fmt.Errorf("%w: %s (report: %s): %w: %w", ErrRawSchemaFailed, c.Name, rawOut.Location, validation.ErrSourceRead, cause)
	}

	out, err := recorder.RecordLoadFailure(ctx, c, cause)

	return fmt.Errorf("%w: %s (report: %s): %w", ErrRawSchemaFailed, c.Name, out.Location, err)
}

func (p *Pipeline) selectContracts(names []string) ([]contracts.Contract, error) {
	if len(names) == 0 {
		return p.registry.All(), nil
	}

	out := make([]contracts.Contract, 0, len(names))

	for _, name := range names {
		c, err := p.registry.Get(name)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	return out, nil
}

// outcomeErr never returns nil so failures always carry a cause
func outcomeErr(out validation.Outcome) error {
	if err := out.Err(); err != nil {
		return err
	}

	return ErrValidationSignalled
}
