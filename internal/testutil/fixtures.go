package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Fixture file names under the raw data directory
const (
	PaysFile   = "pays.csv"
	TapsFile   = "taps.json"
	PrintsFile = "prints.json"
)

// PaysCSV covers weeks starting 2020-10-12, 2020-10-19, 2020-10-26 and 2020-11-02
var PaysCSV = strings.Join([]string{ //nolint:gochecknoglobals // fixture
	"pay_date,total,user_id,value_prop",
	"2020-10-14,10.5,1,cash",
	"2020-10-22,5.0,3,link",
	"2020-10-28,20.7,1,cash",
	"2020-11-05,99,2,transport",
}, "\n") + "\n"

// TapsNDJSON covers weeks starting 2020-10-19, 2020-10-26 and 2020-11-02
var TapsNDJSON = strings.Join([]string{ //nolint:gochecknoglobals // fixture
	`{"day":"2020-10-21","event_data":{"position":1,"value_prop":"transport"},"user_id":2}`,
	`{"day":"2020-10-27","event_data":{"position":0,"value_prop":"cash"},"user_id":1}`,
	`{"day":"2020-11-03","event_data":{"position":0,"value_prop":"cash"},"user_id":1}`,
}, "\n") + "\n"

// PrintsNDJSON covers weeks starting 2020-10-05 through 2020-11-02; the last week is the snapshot
var PrintsNDJSON = strings.Join([]string{ //nolint:gochecknoglobals // fixture
	`{"day":"2020-10-06","event_data":{"position":0,"value_prop":"cash"},"user_id":1}`,
	`{"day":"2020-10-13","event_data":{"position":2,"value_prop":"transport"},"user_id":2}`,
	`{"day":"2020-10-20","event_data":{"position":0,"value_prop":"cash"},"user_id":1}`,
	`{"day":"2020-10-26","event_data":{"position":1,"value_prop":"cash"},"user_id":1}`,
	``,
	`{"day":"2020-11-02","event_data":{"position":0,"value_prop":"cash"},"user_id":1}`,
	`{"day":"2020-11-03","event_data":{"position":1,"value_prop":"cash"},"user_id":1}`,
	`{"day":"2020-11-04","event_data":{"position":0,"value_prop":"transport"},"user_id":2}`,
}, "\n") + "\n"

// RawFixtures maps fixture file names to their contents
func RawFixtures() map[string]string {
	return map[string]string{
		PaysFile:   PaysCSV,
		TapsFile:   TapsNDJSON,
		PrintsFile: PrintsNDJSON,
	}
}

// WriteRawFixtures writes the fixtures into a fresh raw directory and returns its path.
// overrides replace or add files by name.
func WriteRawFixtures(t *testing.T, overrides map[string]string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "raw")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create raw dir: %v", err)
	}

	files := RawFixtures()
	for name, body := range overrides {
		files[name] = body
	}

	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("failed to write fixture %s: %v", name, err)
		}
	}

	return dir
}
