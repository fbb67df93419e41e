package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/table"
)

func eventContract(t *testing.T) contracts.Contract {
	t.Helper()

	c, err := contracts.Default("raw").Get(contracts.Taps)
	require.NoError(t, err)

	return c
}

func TestFlatten_TabularIdentity(t *testing.T) {
	c, err := contracts.Default("raw").Get(contracts.Pays)
	require.NoError(t, err)

	tbl := table.MustNew("pay_date", "total")
	assert.Same(t, tbl, Flatten(c, tbl))
}

func TestFlatten_Event(t *testing.T) {
	tbl := table.MustNew("day", "event_data", "user_id", "extra")
	require.NoError(t, tbl.Append("2020-11-01", map[string]any{"position": int64(0), "value_prop": "cash"}, int64(1), "x"))
	require.NoError(t, tbl.Append("2020-11-02", nil, int64(2), "y"))
	require.NoError(t, tbl.Append("2020-11-03", map[string]any{"value_prop": "link"}, int64(3), "z"))

	flat := Flatten(eventContract(t), tbl)

	assert.Equal(t, []string{"day", "position", "value_prop", "user_id"}, flat.Columns())
	require.Equal(t, 3, flat.Len())

	assert.Equal(t, map[string]any{"day": "2020-11-01", "position": int64(0), "value_prop": "cash", "user_id": int64(1)}, flat.Record(0))
	assert.Equal(t, map[string]any{"day": "2020-11-02", "position": nil, "value_prop": nil, "user_id": int64(2)}, flat.Record(1))
	assert.Equal(t, map[string]any{"day": "2020-11-03", "position": nil, "value_prop": "link", "user_id": int64(3)}, flat.Record(2))
}

func TestFlatten_NestedOverwritesTopLevel(t *testing.T) {
	tbl := table.MustNew("day", "event_data", "user_id", "value_prop")
	require.NoError(t, tbl.Append("d1", map[string]any{"position": int64(1), "value_prop": "nested"}, int64(1), "top"))
	require.NoError(t, tbl.Append("d2", map[string]any{"position": int64(2)}, int64(2), "kept"))

	flat := Flatten(eventContract(t), tbl)

	values, ok := flat.Column("value_prop")
	require.True(t, ok)
	assert.Equal(t, []any{"nested", "kept"}, values)
}

func TestFlatten_MissingNestedColumn(t *testing.T) {
	tbl := table.MustNew("day", "user_id", "other")
	require.NoError(t, tbl.Append("d1", int64(1), "o"))

	flat := Flatten(eventContract(t), tbl)

	assert.Equal(t, []string{"day", "user_id"}, flat.Columns())
	assert.Equal(t, 1, flat.Len())
}

func TestFlatten_NoFlatColumnsReturnsUnpacked(t *testing.T) {
	tbl := table.MustNew("event_data", "other")
	require.NoError(t, tbl.Append(map[string]any{"foo": int64(1)}, "o"))
	require.NoError(t, tbl.Append(map[string]any{"bar": "b"}, "p"))

	flat := Flatten(eventContract(t), tbl)

	assert.Equal(t, []string{"other", "foo", "bar"}, flat.Columns())
	assert.Equal(t, 2, flat.Len())
}

func TestFlatten_EmptyTable(t *testing.T) {
	tbl := table.MustNew("day", "event_data", "user_id")

	flat := Flatten(eventContract(t), tbl)

	assert.Equal(t, []string{"day", "user_id"}, flat.Columns())
	assert.Equal(t, 0, flat.Len())
}

func TestUnnest_PreservesRowOrder(t *testing.T) {
	tbl := table.MustNew("id", "payload")
	for i := int64(0); i < 5; i++ {
		require.NoError(t, tbl.Append(i, map[string]any{"n": i * 10}))
	}

	out := Unnest(tbl, "payload")

	ids, _ := out.Column("id")
	ns, _ := out.Column("n")
	assert.Equal(t, []any{int64(0), int64(1), int64(2), int64(3), int64(4)}, ids)
	assert.Equal(t, []any{int64(0), int64(10), int64(20), int64(30), int64(40)}, ns)
}
