package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/fpt/internal/testutil"
	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/reports"
	"github.com/ethpandaops/fpt/pkg/source"
	"github.com/ethpandaops/fpt/pkg/storage"
	"github.com/ethpandaops/fpt/pkg/table"
)

var errBadLine = errors.New("undecodable line 2")

type harness struct {
	store *storage.MemoryStore
	sink  *reports.MemorySink
	hook  *test.Hook
	raw   *RawValidator
	flat  *FlatValidator
}

func newHarness(t *testing.T, files map[string]string, cfg Config) *harness {
	t.Helper()

	log, hook := testutil.NewLogger()
	store := storage.NewMemoryStore()

	for name, body := range files {
		require.NoError(t, store.Put(context.Background(), "raw/"+name, []byte(body)))
	}

	sink := reports.NewMemorySink()
	reader := source.NewReader(log, store)

	return &harness{
		store: store,
		sink:  sink,
		hook:  hook,
		raw:   NewRawValidator(log, reader, sink, cfg),
		flat:  NewFlatValidator(log, sink, cfg),
	}
}

func contract(t *testing.T, name string) contracts.Contract {
	t.Helper()

	c, err := contracts.Default("raw").Get(name)
	require.NoError(t, err)

	return c
}

func storedReport(t *testing.T, sink *reports.MemorySink, dataset string, stage Stage) Report {
	t.Helper()

	data, err := sink.Read(context.Background(), dataset, string(stage))
	require.NoError(t, err)

	var r Report
	require.NoError(t, json.Unmarshal(data, &r))

	return r
}

func strict() Config {
	return Config{Strict: true, KeySampleLimit: DefaultKeySampleLimit}
}

func TestRawValidator_TabularOK(t *testing.T) {
	h := newHarness(t, testutil.RawFixtures(), strict())
	ctx := reports.WithRun(context.Background(), reports.Run{ID: "run-1", Date: time.Now()})

	out, err := h.raw.Validate(ctx, contract(t, contracts.Pays), nil)
	require.NoError(t, err)

	assert.True(t, out.Passed)
	assert.Equal(t, "memory://pays/raw", out.Location)
	require.NoError(t, out.Err())

	r := storedReport(t, h.sink, contracts.Pays, StageRaw)
	assert.Equal(t, "pays", r.Dataset)
	assert.Equal(t, StageRaw, r.Stage)
	assert.Equal(t, 4, r.Rows)
	assert.Equal(t, []string{"pay_date", "total", "user_id", "value_prop"}, r.SourceColumns)
	assert.Empty(t, r.MissingColumns)
	assert.Empty(t, r.NewColumns)
	assert.Empty(t, r.WrongTypes)
	assert.Equal(t, "date", r.ExpectedSchema["pay_date"])
	assert.Equal(t, "run-1", r.RunID)
	assert.True(t, r.OK)
	assert.True(t, testutil.HasEntry(h.hook, logrus.InfoLevel, "Raw schema ok"))
}

func TestRawValidator_TabularCountsEveryRow(t *testing.T) {
	lines := []string{"pay_date,total,user_id,value_prop"}
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("2020-11-%02d,%d.5,%d,cash", i, i, i))
	}

	h := newHarness(t, map[string]string{testutil.PaysFile: strings.Join(lines, "\n") + "\n"}, strict())

	out, err := h.raw.Validate(context.Background(), contract(t, contracts.Pays), nil)
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, 10, out.Report.Rows)

	r := storedReport(t, h.sink, contracts.Pays, StageRaw)
	assert.True(t, r.OK)
	assert.Equal(t, 10, r.Rows)
	assert.Empty(t, r.WrongTypes)
}

func TestRawValidator_RecordLoadFailure(t *testing.T) {
	h := newHarness(t, testutil.RawFixtures(), strict())
	c := contract(t, contracts.Taps)

	out, err := h.raw.Validate(context.Background(), c, nil)
	require.NoError(t, err)
	require.True(t, out.Passed)

	out, err = h.raw.RecordLoadFailure(context.Background(), c, errBadLine)
	require.ErrorIs(t, err, ErrSourceRead)
	require.ErrorIs(t, err, errBadLine)
	assert.False(t, out.Passed)

	r := storedReport(t, h.sink, contracts.Taps, StageRaw)
	assert.False(t, r.OK)
	assert.Zero(t, r.Rows)
	assert.Contains(t, r.ReadError, "undecodable line")
}

func TestRawValidator_TabularWrongTypes(t *testing.T) {
	files := map[string]string{
		"pays.csv": "pay_date,total,user_id,value_prop\n" +
			"2020-11-01,abc,1,cash\n" +
			"yesterday,1.5,x,cash\n" +
			"2020-11-02,,,cash\n",
	}

	h := newHarness(t, files, strict())

	out, err := h.raw.Validate(context.Background(), contract(t, contracts.Pays), nil)
	require.NoError(t, err)

	assert.False(t, out.Passed)
	assert.False(t, out.Report.OK)
	assert.Equal(t, []WrongType{
		{Column: "pay_date", Expected: "date", Count: 1},
		{Column: "total", Expected: "float", Count: 1},
		{Column: "user_id", Expected: "integer", Count: 1},
	}, out.Report.WrongTypes)
	require.ErrorIs(t, out.Err(), ErrTypeViolation)
	assert.True(t, testutil.HasEntry(h.hook, logrus.ErrorLevel, "Raw schema drift detected"))
}

func TestRawValidator_NonStrictIsAdvisory(t *testing.T) {
	files := map[string]string{"pays.csv": "pay_date,total,user_id\n2020-11-01,abc,1\n"}
	h := newHarness(t, files, Config{Strict: false, KeySampleLimit: 10})

	out, err := h.raw.Validate(context.Background(), contract(t, contracts.Pays), nil)
	require.NoError(t, err)

	assert.True(t, out.Passed)
	assert.False(t, out.Report.OK)
	assert.Equal(t, []string{"value_prop"}, out.Report.MissingColumns)

	err = out.Err()
	require.ErrorIs(t, err, ErrMissingColumns)
	require.ErrorIs(t, err, ErrTypeViolation)

	assert.False(t, storedReport(t, h.sink, contracts.Pays, StageRaw).OK)
	assert.True(t, testutil.HasEntry(h.hook, logrus.ErrorLevel, "Raw schema drift detected"))
}

func TestRawValidator_NewColumnsPolicy(t *testing.T) {
	files := map[string]string{"pays.csv": "pay_date,total,user_id,value_prop,channel\n2020-11-01,1,1,cash,web\n"}

	t.Run("tolerated", func(t *testing.T) {
		h := newHarness(t, files, strict())

		out, err := h.raw.Validate(context.Background(), contract(t, contracts.Pays), nil)
		require.NoError(t, err)

		assert.True(t, out.Passed)
		assert.True(t, out.Report.OK)
		assert.Equal(t, []string{"channel"}, out.Report.NewColumns)
		assert.True(t, testutil.HasEntry(h.hook, logrus.WarnLevel, "Raw schema ok with new columns"))
	})

	t.Run("disallowed", func(t *testing.T) {
		h := newHarness(t, files, strict())
		c := contract(t, contracts.Pays)
		c.AllowNewColumns = false

		out, err := h.raw.Validate(context.Background(), c, nil)
		require.NoError(t, err)

		assert.False(t, out.Passed)
		assert.False(t, out.Report.OK)
		require.ErrorIs(t, out.Err(), ErrUnexpectedColumns)
	})

	t.Run("disallowed non-strict", func(t *testing.T) {
		h := newHarness(t, files, Config{Strict: false, KeySampleLimit: 10})
		c := contract(t, contracts.Pays)
		c.AllowNewColumns = false

		out, err := h.raw.Validate(context.Background(), c, nil)
		require.NoError(t, err)

		assert.True(t, out.Passed)
		assert.False(t, out.Report.OK)
	})
}

func TestRawValidator_ReadFailure(t *testing.T) {
	for _, strictMode := range []bool{true, false} {
		h := newHarness(t, nil, Config{Strict: strictMode, KeySampleLimit: 10})

		out, err := h.raw.Validate(context.Background(), contract(t, contracts.Taps), nil)
		require.ErrorIs(t, err, ErrSourceRead)
		require.ErrorIs(t, err, storage.ErrNotFound)

		assert.False(t, out.Passed)
		assert.Equal(t, "memory://taps/raw", out.Location)
		require.ErrorIs(t, out.Err(), ErrSourceRead)

		r := storedReport(t, h.sink, contracts.Taps, StageRaw)
		assert.Equal(t, 0, r.Rows)
		assert.Empty(t, r.SourceColumns)
		assert.Empty(t, r.MissingColumns)
		assert.Empty(t, r.NewColumns)
		assert.NotEmpty(t, r.ReadError)
		assert.False(t, r.OK)
		assert.True(t, testutil.HasEntry(h.hook, logrus.ErrorLevel, "Raw source read failed"))
	}
}

func TestRawValidator_EmptyCSVIsReadFailure(t *testing.T) {
	h := newHarness(t, map[string]string{"pays.csv": ""}, strict())

	out, err := h.raw.Validate(context.Background(), contract(t, contracts.Pays), nil)
	require.ErrorIs(t, err, ErrSourceRead)
	require.ErrorIs(t, err, source.ErrEmptySource)
	assert.False(t, out.Passed)
}

func TestRawValidator_HeaderOnlyCSV(t *testing.T) {
	h := newHarness(t, map[string]string{"pays.csv": "pay_date,total,user_id,value_prop\n"}, strict())

	out, err := h.raw.Validate(context.Background(), contract(t, contracts.Pays), nil)
	require.NoError(t, err)

	assert.True(t, out.Passed)
	assert.Equal(t, 0, out.Report.Rows)
	assert.Len(t, out.Report.SourceColumns, 4)
}

func TestRawValidator_EventsOK(t *testing.T) {
	h := newHarness(t, testutil.RawFixtures(), strict())

	out, err := h.raw.Validate(context.Background(), contract(t, contracts.Prints), nil)
	require.NoError(t, err)

	assert.True(t, out.Passed)
	assert.Equal(t, 7, out.Report.Rows, "blank lines are not records")
	assert.Equal(t, []string{"day", "event_data", "user_id"}, out.Report.SourceColumns)
	assert.Equal(t, "nested", out.Report.ExpectedSchema["event_data"])
}

func TestRawValidator_EventsTokens(t *testing.T) {
	files := map[string]string{
		"taps.json": `{"day":"2020-11-01","event_data":"scalar","user_id":"12"}` + "\n" +
			"not json\n" +
			`{"day":"2020-11-01T10:00:00Z","event_data":{},"user_id":1.5}` + "\n" +
			`{"day":"11/01/2020","event_data":{},"user_id":null}` + "\n" +
			`{"day":null,"event_data":{},"user_id":true}` + "\n",
	}

	h := newHarness(t, files, strict())

	out, err := h.raw.Validate(context.Background(), contract(t, contracts.Taps), nil)
	require.NoError(t, err)

	assert.Equal(t, 5, out.Report.Rows, "malformed lines still count")
	assert.Equal(t, []WrongType{
		{Column: "day", Expected: "date", Count: 1},
		{Column: "user_id", Expected: "integer", Count: 2},
	}, out.Report.WrongTypes)
	assert.False(t, out.Passed)
}

func TestRawValidator_KeySampleLimit(t *testing.T) {
	files := map[string]string{
		"taps.json": `{"day":"2020-11-01","event_data":{},"user_id":1}` + "\n" +
			`{"day":"2020-11-01","event_data":{},"user_id":2,"late":true}` + "\n" +
			`{"day":"2020-11-01","event_data":{},"user_id":3}` + "\n",
	}

	h := newHarness(t, files, Config{Strict: true, KeySampleLimit: 1})

	out, err := h.raw.Validate(context.Background(), contract(t, contracts.Taps), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, out.Report.Rows)
	assert.Empty(t, out.Report.NewColumns, "keys past the sample are not discovered")

	h = newHarness(t, files, strict())

	out, err = h.raw.Validate(context.Background(), contract(t, contracts.Taps), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, out.Report.NewColumns)
}

func TestRawValidator_Preloaded(t *testing.T) {
	h := newHarness(t, nil, strict())

	tbl := table.MustNew("pay_date", "total", "user_id", "value_prop")
	require.NoError(t, tbl.Append(time.Date(2020, 11, 1, 0, 0, 0, 0, time.UTC), 1.5, int64(1), "cash"))
	require.NoError(t, tbl.Append(nil, "bad", int64(2), "cash"))

	out, err := h.raw.Validate(context.Background(), contract(t, contracts.Pays), tbl)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Report.Rows)
	assert.Equal(t, []WrongType{{Column: "total", Expected: "float", Count: 1}}, out.Report.WrongTypes)
}

func TestFlatValidator_Tabular(t *testing.T) {
	h := newHarness(t, nil, strict())

	out, err := h.flat.Validate(context.Background(), contract(t, contracts.Pays), table.MustNew("anything"))
	require.NoError(t, err)

	assert.True(t, out.Passed)
	assert.Empty(t, out.Location)
	assert.Equal(t, 0, h.sink.Len())
}

func TestFlatValidator_Event(t *testing.T) {
	exact := table.MustNew("day", "position", "value_prop", "user_id")
	require.NoError(t, exact.Append(nil, nil, nil, nil))

	h := newHarness(t, nil, strict())

	out, err := h.flat.Validate(context.Background(), contract(t, contracts.Taps), exact)
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, "memory://taps/flat", out.Location)

	r := storedReport(t, h.sink, contracts.Taps, StageFlat)
	assert.True(t, r.OK)
	assert.Equal(t, 1, r.Rows)
	assert.Nil(t, r.WrongTypes)
	assert.Nil(t, r.ExpectedSchema)

	extra := table.MustNew("day", "position", "value_prop", "user_id", "extra")

	out, err = h.flat.Validate(context.Background(), contract(t, contracts.Taps), extra)
	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.Equal(t, []string{"extra"}, out.Report.NewColumns)

	err = out.Err()
	require.ErrorIs(t, err, ErrFlattenShapeMismatch)
	require.ErrorIs(t, err, ErrUnexpectedColumns)

	missing := table.MustNew("day", "user_id")

	out, err = h.flat.Validate(context.Background(), contract(t, contracts.Taps), missing)
	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.Equal(t, []string{"position", "value_prop"}, out.Report.MissingColumns)
	require.ErrorIs(t, out.Err(), ErrMissingColumns)
}

func TestFlatValidator_NonStrict(t *testing.T) {
	h := newHarness(t, nil, Config{Strict: false, KeySampleLimit: 1})

	out, err := h.flat.Validate(context.Background(), contract(t, contracts.Prints), table.MustNew("day"))
	require.NoError(t, err)

	assert.True(t, out.Passed)
	assert.False(t, out.Report.OK)
	assert.True(t, testutil.HasEntry(h.hook, logrus.ErrorLevel, "Flat schema mismatch"))
}

func TestMockValidator(t *testing.T) {
	m := NewMockValidator()

	out, err := m.Validate(context.Background(), contract(t, contracts.Pays), nil)
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, 1, m.CallCount())
}
