// Package contracts declares the datasets a run ingests and the shape each one must have
package contracts

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownType is returned when a column declares a type outside the supported set
	ErrUnknownType = errors.New("unknown column type")
	// ErrUnknownKind is returned when a contract declares an unsupported storage kind
	ErrUnknownKind = errors.New("unknown dataset kind")
)

// Kind is the storage representation of a raw dataset
type Kind string

const (
	// KindTabular is a delimited text file with a header row
	KindTabular Kind = "tabular"
	// KindEvent is a JSON-object-per-line event log
	KindEvent Kind = "event"
)

// ParseKind parses a storage kind, accepting the legacy dataset-family aliases
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tabular", "csv", "table":
		return KindTabular, nil
	case "event", "events", "ndjson", "jsonl":
		return KindEvent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler
func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := ParseKind(raw)
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}

// Type is the semantic type declared for a raw column. The set is closed.
type Type string

const (
	TypeInteger  Type = "integer"
	TypeFloat    Type = "float"
	TypeBoolean  Type = "boolean"
	TypeDate     Type = "date"
	TypeDatetime Type = "datetime"
	TypeString   Type = "string"
	TypeNested   Type = "nested"
)

// ParseType parses a semantic type name. Common dataframe spellings are accepted as aliases.
func ParseType(raw string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "integer", "int", "int64", "int32", "long":
		return TypeInteger, nil
	case "float", "float64", "float32", "double", "decimal":
		return TypeFloat, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "date":
		return TypeDate, nil
	case "datetime", "timestamp":
		return TypeDatetime, nil
	case "string", "str", "utf8", "text":
		return TypeString, nil
	case "nested", "nested-record", "record", "struct", "object":
		return TypeNested, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
}

// Valid reports whether t is one of the declared variants
func (t Type) Valid() bool {
	switch t {
	case TypeInteger, TypeFloat, TypeBoolean, TypeDate, TypeDatetime, TypeString, TypeNested:
		return true
	default:
		return false
	}
}

// Temporal reports whether values of this type are dates or timestamps
func (t Type) Temporal() bool {
	return t == TypeDate || t == TypeDatetime
}

// UnmarshalYAML implements yaml.Unmarshaler
func (t *Type) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := ParseType(raw)
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

// Column is one expected raw column
type Column struct {
	Name string `yaml:"name"`
	Type Type   `yaml:"type"`
}
