// Package validation checks raw and flattened datasets against their contracts
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Stage identifies which side of flattening a report describes
type Stage string

const (
	// StageRaw checks sources as stored
	StageRaw Stage = "raw"
	// StageFlat checks tables after flattening
	StageFlat Stage = "flat"
)

// Metric result labels
const (
	resultOK    = "ok"
	resultDrift = "drift"
	resultError = "error"
)

// WrongType records a column whose values did not match the declared type
type WrongType struct {
	Column   string `json:"column"`
	Expected string `json:"expected"`
	Count    int    `json:"count"`
}

// Report is the persisted outcome of one validation
type Report struct {
	Dataset         string            `json:"dataset"`
	Stage           Stage             `json:"stage"`
	Rows            int               `json:"rows"`
	ExpectedColumns []string          `json:"expected_columns"`
	SourceColumns   []string          `json:"source_columns"`
	MissingColumns  []string          `json:"missing_columns"`
	NewColumns      []string          `json:"new_columns"`
	ExpectedSchema  map[string]string `json:"expected_schema,omitempty"`
	WrongTypes      []WrongType       `json:"wrong_types,omitempty"`
	AllowNewColumns bool              `json:"allow_new_columns"`
	ReadError       string            `json:"read_error,omitempty"`
	OK              bool              `json:"ok"`
	RunID           string            `json:"run_id,omitempty"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// Outcome is what a validator hands back to the pipeline
type Outcome struct {
	// Passed is the signal the caller acts on. In non-strict mode it can be true while Report.OK is false.
	Passed   bool
	Location string
	Report   Report
}

// Err describes why the report is not ok. It is nil when the report is ok or records no reason.
func (o Outcome) Err() error {
	r := o.Report
	if r.OK {
		return nil
	}

	var errs []error

	if r.ReadError != "" {
		errs = append(errs, fmt.Errorf("%w: %s", ErrSourceRead, r.ReadError))
	}

	if r.Stage == StageFlat && (len(r.MissingColumns) > 0 || len(r.NewColumns) > 0) {
		errs = append(errs, ErrFlattenShapeMismatch)
	}

	if len(r.MissingColumns) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(r.MissingColumns, ", ")))
	}

	if len(r.NewColumns) > 0 && (r.Stage == StageFlat || !r.AllowNewColumns) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrUnexpectedColumns, strings.Join(r.NewColumns, ", ")))
	}

	if len(r.WrongTypes) > 0 {
		cols := make([]string, 0, len(r.WrongTypes))
		for _, w := range r.WrongTypes {
			cols = append(cols, w.Column)
		}

		errs = append(errs, fmt.Errorf("%w: %s", ErrTypeViolation, strings.Join(cols, ", ")))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%s %s validation failed: %w", r.Dataset, r.Stage, errors.Join(errs...))
}

// diff returns sorted expected-minus-present and present-minus-expected
func diff(expected, present []string) (missing, extra []string) {
	exp := toSet(expected)
	pres := toSet(present)

	missing = []string{}
	extra = []string{}

	for c := range exp {
		if !pres[c] {
			missing = append(missing, c)
		}
	}

	for c := range pres {
		if !exp[c] {
			extra = append(extra, c)
		}
	}

	sort.Strings(missing)
	sort.Strings(extra)

	return missing, extra
}

func toSet(cols []string) map[string]bool {
	out := make(map[string]bool, len(cols))
	for _, c := range cols {
		out[c] = true
	}

	return out
}

func sortedUnique(cols []string) []string {
	set := toSet(cols)

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}

	sort.Strings(out)

	return out
}
