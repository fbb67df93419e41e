package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunDate(t *testing.T) {
	date, err := parseRunDate("")
	require.NoError(t, err)
	assert.True(t, date.IsZero())

	date, err = parseRunDate("2020-11-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 11, 10, 0, 0, 0, 0, time.UTC), date)

	date, err = parseRunDate("2020-11-10T23:59:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 11, 10, 0, 0, 0, 0, time.UTC), date)

	_, err = parseRunDate("last tuesday")
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"run", "validate", "schedule", "datasets", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
