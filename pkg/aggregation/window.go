package aggregation

import (
	"sort"
	"time"
)

// TrailingWindowWeeks is how many of the most recent distinct weeks are considered before the
// latest one is dropped
const TrailingWindowWeeks = 4

// WeekStart truncates t to Monday 00:00 UTC of its week
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7

	return day.AddDate(0, 0, -offset)
}

// TrailingWeeks returns the completed weeks preceding the most recent one: the distinct
// weeks sorted ascending, the last four kept and the latest of those dropped
func TrailingWeeks(weeks []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(weeks))
	distinct := make([]time.Time, 0, len(weeks))

	for _, w := range weeks {
		w = w.UTC()
		if !seen[w] {
			seen[w] = true
			distinct = append(distinct, w)
		}
	}

	sort.Slice(distinct, func(i, j int) bool { return distinct[i].Before(distinct[j]) })

	if len(distinct) == 0 {
		return []time.Time{}
	}

	if len(distinct) > TrailingWindowWeeks {
		distinct = distinct[len(distinct)-TrailingWindowWeeks:]
	}

	// The latest week is dropped even when fewer than four weeks exist, so the
	// still-accumulating week never enters the window.
	return distinct[:len(distinct)-1]
}
