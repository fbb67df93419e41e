// Package tokens classifies raw values against declared semantic types using only their literal form
package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethpandaops/fpt/pkg/contracts"
)

// ErrNotTemporal is returned when a token is not an ISO-8601 date or date-time
var ErrNotTemporal = errors.New("not an ISO-8601 date or date-time")

//nolint:gochecknoglobals // Compiled once and shared
var (
	integerPattern = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern   = regexp.MustCompile(`^[+-]?((\d+(\.\d*)?)|(\.\d+))([eE][+-]?\d+)?$`)

	booleanTokens = map[string]struct{}{
		"true": {}, "false": {}, "1": {}, "0": {}, "t": {}, "f": {}, "yes": {}, "no": {},
	}

	dateTimeLayouts = []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04Z07:00",
		"2006-01-02T15:04",
		"2006-01-02T15",
	}
)

const dateLayout = "2006-01-02"

// Conforms reports whether v is an acceptable token for t. Nulls always conform and nested
// columns are exempt.
func Conforms(t contracts.Type, v any) bool {
	if v == nil {
		return true
	}

	switch t {
	case contracts.TypeInteger:
		return IsInteger(v)
	case contracts.TypeFloat:
		return IsFloat(v)
	case contracts.TypeBoolean:
		return IsBoolean(v)
	case contracts.TypeDate, contracts.TypeDatetime:
		return IsTemporal(v)
	default:
		return true
	}
}

// IsInteger accepts an optional sign followed by digits
func IsInteger(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return integerPattern.MatchString(strings.TrimSpace(x))
	case json.Number:
		return integerPattern.MatchString(x.String())
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// IsFloat accepts signed decimals with optional fraction and exponent, including ".5" and "5."
func IsFloat(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return floatPattern.MatchString(strings.TrimSpace(x))
	case json.Number:
		return floatPattern.MatchString(x.String())
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// IsBoolean accepts true/false/1/0/t/f/yes/no in any case, JSON booleans, and the numbers 0 and 1
func IsBoolean(v any) bool {
	switch x := v.(type) {
	case nil, bool:
		return true
	case string:
		_, ok := booleanTokens[strings.ToLower(strings.TrimSpace(x))]
		return ok
	case json.Number:
		f, err := x.Float64()
		return err == nil && (f == 0 || f == 1)
	case int:
		return x == 0 || x == 1
	case int64:
		return x == 0 || x == 1
	case float64:
		return x == 0 || x == 1
	default:
		return false
	}
}

// IsTemporal accepts time values and strings that ParseTime understands
func IsTemporal(v any) bool {
	switch x := v.(type) {
	case nil, time.Time:
		return true
	case string:
		_, err := ParseTime(x)
		return err == nil
	default:
		return false
	}
}

// ParseTime parses a date-only token or a T-separated date-time with an optional Z or offset
// suffix. A trailing Z is read as +00:00.
func ParseTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)

	if !strings.Contains(s, "T") {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrNotTemporal, raw)
		}

		return t, nil
	}

	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrNotTemporal, raw)
}

// ParseDate parses like ParseTime and keeps only the calendar date, at midnight UTC
func ParseDate(raw string) (time.Time, error) {
	t, err := ParseTime(raw)
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
