package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/observability"
	"github.com/ethpandaops/fpt/pkg/reports"
	"github.com/ethpandaops/fpt/pkg/table"
)

// FlatValidator checks that flattened event tables have exactly the contract's flat columns.
// New columns are never tolerated at this stage.
type FlatValidator struct {
	log    logrus.FieldLogger
	sink   reports.Sink
	strict bool
	now    func() time.Time
}

// NewFlatValidator creates a flat-stage validator
func NewFlatValidator(log logrus.FieldLogger, sink reports.Sink, cfg Config) *FlatValidator {
	return &FlatValidator{
		log:    log.WithField("service", "flat-validator"),
		sink:   sink,
		strict: cfg.Strict,
		now:    time.Now,
	}
}

// Validate compares flat's columns with c.FlatColumns and writes the flat report. Tabular
// contracts pass without a report.
func (v *FlatValidator) Validate(ctx context.Context, c contracts.Contract, flat *table.Table) (Outcome, error) {
	if !c.IsEvent() {
		return Outcome{Passed: true}, nil
	}

	start := time.Now()
	present := sortedUnique(flat.Columns())
	missing, extra := diff(c.FlatColumns, present)

	report := Report{
		Dataset:         c.Name,
		Stage:           StageFlat,
		Rows:            flat.Len(),
		ExpectedColumns: sortedUnique(c.FlatColumns),
		SourceColumns:   present,
		MissingColumns:  missing,
		NewColumns:      extra,
		AllowNewColumns: false,
		OK:              len(missing) == 0 && len(extra) == 0,
		GeneratedAt:     v.now().UTC(),
	}

	if run, ok := reports.RunFromContext(ctx); ok {
		report.RunID = run.ID
	}

	loc, err := v.sink.Write(ctx, c.Name, string(StageFlat), report)
	if err != nil {
		observability.RecordError("flat-validator", "report_write")
		return Outcome{Report: report}, fmt.Errorf("%w: %w", ErrReportWrite, err)
	}

	log := v.log.WithFields(logrus.Fields{
		"dataset": c.Name,
		"report":  loc,
		"rows":    report.Rows,
	})

	if report.OK {
		log.Info("Flat schema ok")
		observability.RecordValidation(c.Name, string(StageFlat), resultOK, report.Rows, time.Since(start).Seconds())
	} else {
		log.WithFields(logrus.Fields{
			"missing":     missing,
			"new_columns": extra,
			"strict":      v.strict,
		}).Error("Flat schema mismatch")
		observability.RecordValidation(c.Name, string(StageFlat), resultDrift, report.Rows, time.Since(start).Seconds())
	}

	return Outcome{Passed: report.OK || !v.strict, Location: loc, Report: report}, nil
}
