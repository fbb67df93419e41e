package contracts

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrNameRequired is returned when a contract has no name
	ErrNameRequired = errors.New("contract name is required")
	// ErrLocationRequired is returned when a contract has no raw location
	ErrLocationRequired = errors.New("contract location is required")
	// ErrEmptySchema is returned when a contract declares no columns
	ErrEmptySchema = errors.New("contract schema must declare at least one column")
	// ErrDuplicateColumn is returned when a column is declared twice
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrNestedColumnCount is returned when an event contract does not declare exactly one nested column
	ErrNestedColumnCount = errors.New("event contracts must declare exactly one nested column")
	// ErrFlatColumnsRequired is returned when an event contract has no flat column list
	ErrFlatColumnsRequired = errors.New("event contracts must declare flat columns")
)

// Contract is the declared identity, location and expected shape of one dataset
type Contract struct {
	Name            string   `yaml:"name"`
	Kind            Kind     `yaml:"kind"`
	Location        string   `yaml:"location"`
	Schema          []Column `yaml:"schema"`
	FlatColumns     []string `yaml:"flat_columns"`
	AllowNewColumns bool     `yaml:"allow_new_columns"`
}

// Validate checks the contract is internally consistent
func (c *Contract) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrNameRequired
	}

	if c.Kind != KindTabular && c.Kind != KindEvent {
		return fmt.Errorf("%w: %q for dataset %s", ErrUnknownKind, c.Kind, c.Name)
	}

	if strings.TrimSpace(c.Location) == "" {
		return fmt.Errorf("%w: dataset %s", ErrLocationRequired, c.Name)
	}

	if len(c.Schema) == 0 {
		return fmt.Errorf("%w: dataset %s", ErrEmptySchema, c.Name)
	}

	seen := make(map[string]struct{}, len(c.Schema))
	nested := 0

	for _, col := range c.Schema {
		if !col.Type.Valid() {
			return fmt.Errorf("%w: %q for %s.%s", ErrUnknownType, col.Type, c.Name, col.Name)
		}

		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateColumn, c.Name, col.Name)
		}

		seen[col.Name] = struct{}{}

		if col.Type == TypeNested {
			nested++
		}
	}

	if c.Kind == KindEvent {
		if nested != 1 {
			return fmt.Errorf("%w: dataset %s has %d", ErrNestedColumnCount, c.Name, nested)
		}

		if len(c.FlatColumns) == 0 {
			return fmt.Errorf("%w: dataset %s", ErrFlatColumnsRequired, c.Name)
		}
	}

	return nil
}

// IsEvent reports whether the dataset is an event log that needs flattening
func (c *Contract) IsEvent() bool {
	return c.Kind == KindEvent
}

// ExpectedColumns returns the raw column names in declaration order
func (c *Contract) ExpectedColumns() []string {
	out := make([]string, 0, len(c.Schema))
	for _, col := range c.Schema {
		out = append(out, col.Name)
	}

	return out
}

// TypeOf returns the declared type of a raw column
func (c *Contract) TypeOf(column string) (Type, bool) {
	for _, col := range c.Schema {
		if col.Name == column {
			return col.Type, true
		}
	}

	return "", false
}

// NestedColumn returns the name of the nested-record column, or "" when there is none
func (c *Contract) NestedColumn() string {
	for _, col := range c.Schema {
		if col.Type == TypeNested {
			return col.Name
		}
	}

	return ""
}

// SchemaMap returns column name to type name, used in reports
func (c *Contract) SchemaMap() map[string]string {
	out := make(map[string]string, len(c.Schema))
	for _, col := range c.Schema {
		out[col.Name] = string(col.Type)
	}

	return out
}

func (c Contract) clone() Contract {
	out := c
	out.Schema = append([]Column(nil), c.Schema...)
	out.FlatColumns = append([]string(nil), c.FlatColumns...)

	return out
}

// ResolveLocation joins a relative location onto base. Absolute paths and URIs are returned unchanged.
func ResolveLocation(base, location string) string {
	if location == "" || strings.Contains(location, "://") || filepath.IsAbs(location) || base == "" {
		return location
	}

	if strings.Contains(base, "://") {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(location, "/")
	}

	return filepath.Join(base, location)
}
