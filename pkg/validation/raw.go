package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/observability"
	"github.com/ethpandaops/fpt/pkg/reports"
	"github.com/ethpandaops/fpt/pkg/source"
	"github.com/ethpandaops/fpt/pkg/table"
	"github.com/ethpandaops/fpt/pkg/tokens"
)

// RawValidator checks sources as stored against the contract schema
type RawValidator struct {
	log    logrus.FieldLogger
	reader source.Reader
	sink   reports.Sink
	cfg    Config
	now    func() time.Time
}

// NewRawValidator creates a raw-stage validator
func NewRawValidator(log logrus.FieldLogger, reader source.Reader, sink reports.Sink, cfg Config) *RawValidator {
	if cfg.KeySampleLimit <= 0 {
		cfg.KeySampleLimit = DefaultKeySampleLimit
	}

	return &RawValidator{
		log:    log.WithField("service", "raw-validator"),
		reader: reader,
		sink:   sink,
		cfg:    cfg,
		now:    time.Now,
	}
}

// observation is what a scan learned about a source
type observation struct {
	present    []string
	rows       int
	violations map[string]int
}

// Validate checks c's source, writes the raw report and returns the outcome. A preloaded
// table, when given, supplies columns, rows and values instead of re-reading the source.
// The returned error is non-nil for read failures and report write failures.
func (v *RawValidator) Validate(ctx context.Context, c contracts.Contract, preloaded *table.Table) (Outcome, error) {
	start := time.Now()
	log := v.log.WithField("dataset", c.Name)

	var (
		obs observation
		err error
	)

	switch {
	case preloaded != nil:
		obs = observeTable(c, preloaded)
	case c.IsEvent():
		obs, err = v.observeEvents(ctx, c)
	default:
		obs, err = v.observeTabular(ctx, c)
	}

	if err != nil {
		return v.readFailure(ctx, log, c, err, start)
	}

	report := v.buildReport(ctx, c, obs)

	loc, err := v.sink.Write(ctx, c.Name, string(StageRaw), report)
	if err != nil {
		observability.RecordError("raw-validator", "report_write")
		return Outcome{Report: report}, fmt.Errorf("%w: %w", ErrReportWrite, err)
	}

	for _, w := range report.WrongTypes {
		observability.RecordTypeViolations(c.Name, w.Column, w.Count)
	}

	out := Outcome{Passed: report.OK || !v.cfg.Strict, Location: loc, Report: report}
	fields := logrus.Fields{
		"report":      loc,
		"rows":        report.Rows,
		"missing":     report.MissingColumns,
		"new_columns": report.NewColumns,
		"wrong_types": wrongTypeColumns(report.WrongTypes),
	}

	switch {
	case !report.OK:
		log.WithFields(fields).WithField("strict", v.cfg.Strict).Error("Raw schema drift detected")
		observability.RecordValidation(c.Name, string(StageRaw), resultDrift, report.Rows, time.Since(start).Seconds())
	case len(report.NewColumns) > 0:
		log.WithFields(fields).Warn("Raw schema ok with new columns")
		observability.RecordValidation(c.Name, string(StageRaw), resultOK, report.Rows, time.Since(start).Seconds())
	default:
		log.WithFields(fields).Info("Raw schema ok")
		observability.RecordValidation(c.Name, string(StageRaw), resultOK, report.Rows, time.Since(start).Seconds())
	}

	return out, nil
}

func (v *RawValidator) buildReport(ctx context.Context, c contracts.Contract, obs observation) Report {
	expected := c.ExpectedColumns()
	present := sortedUnique(obs.present)
	missing, extra := diff(expected, present)
	presentSet := toSet(present)

	wrong := []WrongType{}

	for _, col := range sortedUnique(expected) {
		n := obs.violations[col]
		if n == 0 || !presentSet[col] {
			continue
		}

		typ, _ := c.TypeOf(col)
		wrong = append(wrong, WrongType{Column: col, Expected: string(typ), Count: n})
	}

	report := v.newReport(ctx, c)
	report.Rows = obs.rows
	report.SourceColumns = present
	report.MissingColumns = missing
	report.NewColumns = extra
	report.WrongTypes = wrong
	report.OK = len(missing) == 0 && len(wrong) == 0 && (c.AllowNewColumns || len(extra) == 0)

	return report
}

func (v *RawValidator) newReport(ctx context.Context, c contracts.Contract) Report {
	report := Report{
		Dataset:         c.Name,
		Stage:           StageRaw,
		ExpectedColumns: sortedUnique(c.ExpectedColumns()),
		SourceColumns:   []string{},
		MissingColumns:  []string{},
		NewColumns:      []string{},
		ExpectedSchema:  c.SchemaMap(),
		AllowNewColumns: c.AllowNewColumns,
		GeneratedAt:     v.now().UTC(),
	}

	if run, ok := reports.RunFromContext(ctx); ok {
		report.RunID = run.ID
	}

	return report
}

func (v *RawValidator) readFailure(ctx context.Context, log logrus.FieldLogger, c contracts.Contract, cause error, start time.Time) (Outcome, error) {
	report := v.newReport(ctx, c)
	report.ReadError = cause.Error()

	readErr := fmt.Errorf("%w: %s: %w", ErrSourceRead, c.Name, cause)

	observability.RecordValidation(c.Name, string(StageRaw), resultError, 0, time.Since(start).Seconds())

	loc, err := v.sink.Write(ctx, c.Name, string(StageRaw), report)
	if err != nil {
		return Outcome{Report: report}, errors.Join(readErr, fmt.Errorf("%w: %w", ErrReportWrite, err))
	}

	log.WithError(cause).WithField("report", loc).Error("Raw source read failed")

	return Outcome{Passed: false, Location: loc, Report: report}, readErr
}

// RecordLoadFailure replaces the raw report of a source that passed the scan but could not be
// fully loaded. The returned error wraps ErrSourceRead.
func (v *RawValidator) RecordLoadFailure(ctx context.Context, c contracts.Contract, cause error) (Outcome, error) {
	return v.readFailure(ctx, v.log.WithField("dataset", c.Name), c, cause, time.Now())
}

// observeTabular reads the CSV header and checks every field of the declared columns
func (v *RawValidator) observeTabular(ctx context.Context, c contracts.Contract) (observation, error) {
	obs := observation{violations: map[string]int{}}

	var checks []columnCheck

	err := v.reader.ScanRows(ctx, c, func(header, record []string) error {
		if checks == nil {
			checks = checksFor(c, header)
			obs.present = header
		}

		obs.rows++

		for _, chk := range checks {
			raw := strings.TrimSpace(record[chk.index])
			if raw == "" {
				continue
			}

			if !tokens.Conforms(chk.typ, raw) {
				obs.violations[chk.name]++
			}
		}

		return nil
	})
	if err != nil {
		return obs, err
	}

	if obs.rows == 0 {
		// A header-only file never reaches the callback
		header, err := v.reader.Columns(ctx, c)
		if err != nil {
			return obs, err
		}

		obs.present = header
	}

	return obs, nil
}

// observeEvents counts every line, samples keys from the first KeySampleLimit records and
// checks declared scalar fields in every decodable record
func (v *RawValidator) observeEvents(ctx context.Context, c contracts.Contract) (observation, error) {
	obs := observation{violations: map[string]int{}}
	keys := map[string]bool{}

	scalars := make([]contracts.Column, 0, len(c.Schema))
	for _, col := range c.Schema {
		if col.Type != contracts.TypeNested {
			scalars = append(scalars, col)
		}
	}

	err := v.reader.ScanLines(ctx, c, func(line []byte) error {
		obs.rows++

		rec, err := source.DecodeRecord(line)
		if err != nil {
			return nil //nolint:nilerr // malformed lines are counted but carry no keys or tokens
		}

		if obs.rows <= v.cfg.KeySampleLimit {
			for k := range rec {
				keys[k] = true
			}
		}

		for _, col := range scalars {
			val, ok := rec[col.Name]
			if !ok || val == nil {
				continue
			}

			if !tokens.Conforms(col.Type, val) {
				obs.violations[col.Name]++
			}
		}

		return nil
	})
	if err != nil {
		return obs, err
	}

	for k := range keys {
		obs.present = append(obs.present, k)
	}

	return obs, nil
}

// observeTable checks an already loaded table
func observeTable(c contracts.Contract, t *table.Table) observation {
	obs := observation{
		present:    t.Columns(),
		rows:       t.Len(),
		violations: map[string]int{},
	}

	for _, chk := range checksFor(c, obs.present) {
		values, _ := t.Column(chk.name)

		for _, val := range values {
			if !tokens.Conforms(chk.typ, val) {
				obs.violations[chk.name]++
			}
		}
	}

	return obs
}

type columnCheck struct {
	name  string
	index int
	typ   contracts.Type
}

// checksFor lists present columns that are declared with a checkable type
func checksFor(c contracts.Contract, present []string) []columnCheck {
	checks := []columnCheck{}

	for i, name := range present {
		typ, ok := c.TypeOf(name)
		if !ok || typ == contracts.TypeNested || typ == contracts.TypeString {
			continue
		}

		checks = append(checks, columnCheck{name: name, index: i, typ: typ})
	}

	return checks
}

func wrongTypeColumns(wrong []WrongType) []string {
	out := make([]string, 0, len(wrong))
	for _, w := range wrong {
		out = append(out, w.Column)
	}

	return out
}
