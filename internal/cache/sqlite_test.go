package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/synthpop/internal/geotable"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	st.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return st
}

func TestSQLite_PutGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	want := joinedTable(t)

	require.NoError(t, st.Put(ctx, "k1", want))

	got, err := st.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "EPSG:7844", got.CRS())
	assert.Equal(t, "gnaf", got.Source())
	require.Equal(t, want.Len(), got.Len())
	for i, r := range want.Rows() {
		g := got.Row(i)
		assert.Equal(t, r.ID, g.ID)
		assert.Equal(t, r.Region, g.Region)
		assert.Equal(t, r.Attrs, g.Attrs)
		x, y, ok := g.Point()
		require.True(t, ok)
		wx, wy, _ := r.Point()
		assert.Equal(t, wx, x)
		assert.Equal(t, wy, y)
	}
}

func TestSQLite_Miss(t *testing.T) {
	st := newTestSQLiteStore(t)
	got, err := st.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_PutReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "k1", joinedTable(t)))
	smaller, err := geotable.New("EPSG:7844", "gnaf", []geotable.Row{
		{ID: "GAQLD9", Geom: geotable.NewPoint(153.0251, -27.4698, 7844), Region: "30101100101"},
	})
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, "k1", smaller))

	got, err := st.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "GAQLD9", got.Row(0).ID)
}

func TestSQLite_ListAndDelete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "k1", joinedTable(t)))
	require.NoError(t, st.Put(ctx, "k2", joinedTable(t)))

	entries, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{
		Key:       "k1",
		CRS:       "EPSG:7844",
		Source:    "gnaf",
		Rows:      2,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}, entries[0])

	require.NoError(t, st.Delete(ctx, "k1"))
	got, err := st.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)

	entries, err = st.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, Key("k2"), entries[0].Key)
}

func TestSQLite_WithLayer(t *testing.T) {
	st := newTestSQLiteStore(t)
	layer := NewLayer(st)
	calls := 0
	compute := func(context.Context) (*geotable.Table, error) {
		calls++
		return joinedTable(t), nil
	}

	_, hit, err := layer.GetOrCompute(context.Background(), "k1", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	got, hit, err := layer.GetOrCompute(context.Background(), "k1", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, 1, calls)
}
