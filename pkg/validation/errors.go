package validation

import "errors"

// Validation-specific errors
var (
	// ErrSourceRead is returned when a raw source cannot be read. It fails the dataset in every mode.
	ErrSourceRead = errors.New("source could not be read")
	// ErrMissingColumns is returned when expected columns are absent
	ErrMissingColumns = errors.New("expected columns missing")
	// ErrUnexpectedColumns is returned when undeclared columns are present and not tolerated
	ErrUnexpectedColumns = errors.New("unexpected columns present")
	// ErrTypeViolation is returned when values do not match their declared type
	ErrTypeViolation = errors.New("values do not match declared types")
	// ErrFlattenShapeMismatch is returned when a flattened table does not have exactly the flat columns
	ErrFlattenShapeMismatch = errors.New("flattened columns do not match contract")
	// ErrReportWrite is returned when a report cannot be persisted
	ErrReportWrite = errors.New("failed to write validation report")
)
