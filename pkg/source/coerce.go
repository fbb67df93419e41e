package source

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/tokens"
)

// coerceField converts a CSV field. Empty fields are null; undeclared columns stay strings.
func coerceField(c contracts.Contract, column, raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil //nolint:nilnil // empty CSV field is a null value
	}

	typ, ok := c.TypeOf(column)
	if !ok {
		return raw, nil
	}

	return coerceString(typ, column, s)
}

// coerceJSON converts a decoded JSON value. Undeclared values are normalized only.
func coerceJSON(c contracts.Contract, column string, v any) (any, error) {
	if v == nil {
		return nil, nil //nolint:nilnil // JSON null
	}

	typ, ok := c.TypeOf(column)
	if !ok {
		return Normalize(v), nil
	}

	switch typ {
	case contracts.TypeNested:
		return Normalize(v), nil
	case contracts.TypeString:
		if s, isStr := v.(string); isStr {
			return s, nil
		}

		if n, isNum := v.(json.Number); isNum {
			return n.String(), nil
		}

		return fmt.Sprint(Normalize(v)), nil
	}

	switch x := v.(type) {
	case string:
		return coerceString(typ, column, strings.TrimSpace(x))
	case json.Number:
		return coerceString(typ, column, x.String())
	case bool:
		if typ == contracts.TypeBoolean {
			return x, nil
		}
	}

	return nil, fmt.Errorf("%w: column %q expects %s, got %T", ErrCoerce, column, typ, v)
}

func coerceString(typ contracts.Type, column, s string) (any, error) {
	fail := func(err error) error {
		return fmt.Errorf("%w: column %q value %q as %s: %w", ErrCoerce, column, s, typ, err)
	}

	switch typ {
	case contracts.TypeInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fail(err)
		}

		return n, nil
	case contracts.TypeFloat:
		if !tokens.IsFloat(s) {
			return nil, fail(strconv.ErrSyntax)
		}

		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fail(err)
		}

		return f, nil
	case contracts.TypeBoolean:
		switch strings.ToLower(s) {
		case "true", "1", "t", "yes":
			return true, nil
		case "false", "0", "f", "no":
			return false, nil
		}

		return nil, fail(strconv.ErrSyntax)
	case contracts.TypeDate:
		d, err := tokens.ParseDate(s)
		if err != nil {
			return nil, fail(err)
		}

		return d, nil
	case contracts.TypeDatetime:
		ts, err := tokens.ParseTime(s)
		if err != nil {
			return nil, fail(err)
		}

		return ts.UTC(), nil
	default:
		return s, nil
	}
}

// Normalize converts json.Number values, including those inside maps and slices, to int64
// when the literal is integral and float64 otherwise
func Normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return n
		}

		if f, err := x.Float64(); err == nil {
			return f
		}

		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, inner := range x {
			out[k] = Normalize(inner)
		}

		return out
	case []any:
		out := make([]any, len(x))
		for i, inner := range x {
			out[i] = Normalize(inner)
		}

		return out
	default:
		return v
	}
}
