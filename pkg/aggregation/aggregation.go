// Package aggregation builds the weekly feature table from validated pays, taps and prints
package aggregation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ethpandaops/fpt/pkg/table"
)

var (
	// ErrMissingColumn is returned when an input table lacks a column the aggregation reads
	ErrMissingColumn = errors.New("input table is missing a required column")
	// ErrInvalidValue is returned when a value has an unusable type
	ErrInvalidValue = errors.New("invalid value in input table")
)

// Input column names
const (
	ColumnUserID    = "user_id"
	ColumnValueProp = "value_prop"
	ColumnDay       = "day"
	ColumnPayDate   = "pay_date"
	ColumnTotal     = "total"
)

// Columns is the fixed output column order
//
//nolint:gochecknoglobals // fixed output layout
var Columns = []string{
	"snapshot_date",
	"user_id",
	"value_prop",
	"view_count",
	"click_occurred",
	"tap_count",
	"payment_count",
	"payment_total",
}

// FeatureRow is one (user_id, value_prop) pair from the prints snapshot with its trailing metrics
type FeatureRow struct {
	SnapshotDate  time.Time
	UserID        int64
	ValueProp     string
	ViewCount     int64
	ClickOccurred bool
	TapCount      int64
	PaymentCount  int64
	PaymentTotal  int64
}

// Key is the aggregation grain
type Key struct {
	UserID    int64
	ValueProp string
}

// event is one input row reduced to what the aggregation needs
type event struct {
	key    Key
	day    time.Time
	week   time.Time
	amount float64
}

// Aggregate joins the three streams onto this week's prints snapshot. Rows with a null date,
// user_id or value_prop cannot be placed on the grain and are skipped.
func Aggregate(pays, taps, prints *table.Table) ([]FeatureRow, error) {
	printEvents, err := events(prints, ColumnDay, "")
	if err != nil {
		return nil, fmt.Errorf("prints: %w", err)
	}

	tapEvents, err := events(taps, ColumnDay, "")
	if err != nil {
		return nil, fmt.Errorf("taps: %w", err)
	}

	payEvents, err := events(pays, ColumnPayDate, ColumnTotal)
	if err != nil {
		return nil, fmt.Errorf("pays: %w", err)
	}

	snapshot := snapshotPairs(printEvents)

	views := countByKey(inWindow(printEvents))
	tapCounts := countByKey(inWindow(tapEvents))

	payWindow := inWindow(payEvents)
	payCounts := countByKey(payWindow)
	payTotals := sumByKey(payWindow)

	keys := make([]Key, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].UserID != keys[j].UserID {
			return keys[i].UserID < keys[j].UserID
		}

		return keys[i].ValueProp < keys[j].ValueProp
	})

	rows := make([]FeatureRow, 0, len(keys))

	for _, k := range keys {
		tapCount := tapCounts[k]

		rows = append(rows, FeatureRow{
			SnapshotDate:  snapshot[k],
			UserID:        k.UserID,
			ValueProp:     k.ValueProp,
			ViewCount:     views[k],
			ClickOccurred: tapCount > 0,
			TapCount:      tapCount,
			PaymentCount:  payCounts[k],
			PaymentTotal:  int64(payTotals[k]),
		})
	}

	return rows, nil
}

// snapshotPairs maps each pair seen in the latest prints week to its latest print day in that week
func snapshotPairs(prints []event) map[Key]time.Time {
	out := map[Key]time.Time{}
	if len(prints) == 0 {
		return out
	}

	latest := prints[0].week
	for _, e := range prints[1:] {
		if e.week.After(latest) {
			latest = e.week
		}
	}

	for _, e := range prints {
		if !e.week.Equal(latest) {
			continue
		}

		if cur, ok := out[e.key]; !ok || e.day.After(cur) {
			out[e.key] = e.day
		}
	}

	return out
}

func inWindow(evts []event) []event {
	weeks := make([]time.Time, 0, len(evts))
	for _, e := range evts {
		weeks = append(weeks, e.week)
	}

	window := map[time.Time]bool{}
	for _, w := range TrailingWeeks(weeks) {
		window[w] = true
	}

	out := make([]event, 0, len(evts))

	for _, e := range evts {
		if window[e.week] {
			out = append(out, e)
		}
	}

	return out
}

func countByKey(evts []event) map[Key]int64 {
	out := map[Key]int64{}
	for _, e := range evts {
		out[e.key]++
	}

	return out
}

func sumByKey(evts []event) map[Key]float64 {
	out := map[Key]float64{}
	for _, e := range evts {
		out[e.key] += e.amount
	}

	return out
}

// events extracts keyed, dated rows. amountCol is optional; null amounts add nothing.
func events(t *table.Table, dateCol, amountCol string) ([]event, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: table is nil", ErrMissingColumn)
	}

	required := []string{dateCol, ColumnUserID, ColumnValueProp}
	if amountCol != "" {
		required = append(required, amountCol)
	}

	for _, col := range required {
		if !t.HasColumn(col) {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	out := make([]event, 0, t.Len())

	for i := 0; i < t.Len(); i++ {
		rawDay, _ := t.Value(i, dateCol)
		rawUser, _ := t.Value(i, ColumnUserID)
		rawProp, _ := t.Value(i, ColumnValueProp)

		if rawDay == nil || rawUser == nil || rawProp == nil {
			continue
		}

		day, ok := rawDay.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: %s row %d is %T", ErrInvalidValue, dateCol, i, rawDay)
		}

		user, ok := asInt64(rawUser)
		if !ok {
			return nil, fmt.Errorf("%w: %s row %d is %v", ErrInvalidValue, ColumnUserID, i, rawUser)
		}

		e := event{
			key:  Key{UserID: user, ValueProp: asString(rawProp)},
			day:  day.UTC(),
			week: WeekStart(day),
		}

		if amountCol != "" {
			rawAmount, _ := t.Value(i, amountCol)
			if rawAmount != nil {
				amount, ok := asFloat(rawAmount)
				if !ok {
					return nil, fmt.Errorf("%w: %s row %d is %v", ErrInvalidValue, amountCol, i, rawAmount)
				}

				e.amount = amount
			}
		}

		out = append(out, e)
	}

	return out, nil
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int64(x), true
		}
	}

	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}

	return 0, false
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}
