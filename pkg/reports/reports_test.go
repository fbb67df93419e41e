package reports

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/fpt/internal/testutil"
	fptredis "github.com/ethpandaops/fpt/pkg/redis"
	"github.com/ethpandaops/fpt/pkg/storage"
)

type doc struct {
	Dataset string `json:"dataset"`
	OK      bool   `json:"ok"`
}

func TestFileSink_WriteRead(t *testing.T) {
	log, _ := testutil.NewLogger()
	root := t.TempDir()

	sink, err := NewFileSink(log, storage.NewLocalStore(), root, "")
	require.NoError(t, err)

	ctx := context.Background()

	loc, err := sink.Write(ctx, "pays", "raw", doc{Dataset: "pays", OK: false})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "pays", "schema_raw.json"), loc)

	loc2, err := sink.Write(ctx, "pays", "raw", doc{Dataset: "pays", OK: true})
	require.NoError(t, err)
	assert.Equal(t, loc, loc2)

	data, err := sink.Read(ctx, "pays", "raw")
	require.NoError(t, err)

	var got doc
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.OK, "later write replaces the earlier report")

	_, err = sink.Read(ctx, "taps", "flat")
	require.ErrorIs(t, err, ErrReportNotFound)
}

func TestFileSink_TemplateWithRunDate(t *testing.T) {
	log, _ := testutil.NewLogger()
	store := storage.NewMemoryStore()

	sink, err := NewFileSink(log, store, "s3://bucket/reports/", `{{ .Dataset | upper }}/schema_{{ .Stage }}_{{ .Date }}.json`)
	require.NoError(t, err)

	ctx := WithRun(context.Background(), NewRun(time.Date(2020, 11, 5, 13, 0, 0, 0, time.UTC)))

	loc, err := sink.Write(ctx, "taps", "flat", doc{Dataset: "taps"})
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/reports/TAPS/schema_flat_2020-11-05.json", loc)
	assert.Equal(t, []string{loc}, store.Locations())
}

func TestNewFileSink_BadTemplate(t *testing.T) {
	log, _ := testutil.NewLogger()

	_, err := NewFileSink(log, storage.NewMemoryStore(), "out", "{{ .Dataset ")
	require.ErrorIs(t, err, ErrInvalidPathTemplate)
}

func TestRedisSink(t *testing.T) {
	log, _ := testutil.NewLogger()
	mr, cfg, client := testutil.NewMiniredisClient(t)

	sink := NewRedisSink(log, client, cfg, time.Hour)
	ctx := context.Background()

	loc, err := sink.Write(ctx, "prints", "raw", doc{Dataset: "prints", OK: true})
	require.NoError(t, err)
	assert.Equal(t, "redis://fpt-test:reports:prints:raw", loc)

	stored, err := mr.Get("fpt-test:reports:prints:raw")
	require.NoError(t, err)
	assert.JSONEq(t, `{"dataset":"prints","ok":true}`, stored)
	assert.Equal(t, time.Hour, mr.TTL("fpt-test:reports:prints:raw"))

	data, err := sink.Read(ctx, "prints", "raw")
	require.NoError(t, err)
	assert.JSONEq(t, stored, string(data))

	_, err = sink.Read(ctx, "prints", "flat")
	require.ErrorIs(t, err, ErrReportNotFound)
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	loc, err := sink.Write(ctx, "taps", "raw", doc{Dataset: "taps"})
	require.NoError(t, err)
	assert.Equal(t, "memory://taps/raw", loc)

	_, err = sink.Write(ctx, "taps", "raw", doc{Dataset: "taps", OK: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.Len())

	data, err := sink.Read(ctx, "taps", "raw")
	require.NoError(t, err)
	assert.JSONEq(t, `{"dataset":"taps","ok":true}`, string(data))

	_, err = sink.Read(ctx, "taps", "flat")
	require.ErrorIs(t, err, ErrReportNotFound)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"file default template", Config{Sink: SinkFile}, nil},
		{"file bad template", Config{Sink: SinkFile, PathTemplate: "{{"}, ErrInvalidPathTemplate},
		{"memory", Config{Sink: SinkMemory}, nil},
		{"redis without address", Config{Sink: SinkRedis}, fptredis.ErrAddressRequired},
		{"unknown", Config{Sink: "s3"}, ErrUnknownSink},
		{"negative ttl", Config{Sink: SinkMemory, TTL: -time.Second}, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestNew_SelectsSink(t *testing.T) {
	log, _ := testutil.NewLogger()

	sink, err := New(log, &Config{Sink: SinkMemory}, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &MemorySink{}, sink)

	sink, err = New(log, &Config{Sink: SinkFile}, storage.NewMemoryStore(), "reports")
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, sink)

	_, err = New(log, &Config{Sink: "nope"}, nil, "")
	require.ErrorIs(t, err, ErrUnknownSink)
}

func TestNewRun(t *testing.T) {
	run := NewRun(time.Time{})
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.Date.IsZero())

	ctx := WithRun(context.Background(), run)
	got, ok := RunFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, run, got)

	_, ok = RunFromContext(context.Background())
	assert.False(t, ok)
}
