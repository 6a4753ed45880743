package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/synthpop/internal/geotable"
)

// memStore is an in-memory Store for Layer tests.
type memStore struct {
	tables map[Key]*geotable.Table
	getErr error
	putErr error
	puts   int
}

func newMemStore() *memStore { return &memStore{tables: map[Key]*geotable.Table{}} }

func (m *memStore) Get(_ context.Context, key Key) (*geotable.Table, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.tables[key], nil
}

func (m *memStore) Put(_ context.Context, key Key, t *geotable.Table) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.tables[key] = t
	return nil
}

func (m *memStore) List(context.Context) ([]Entry, error) { return nil, nil }
func (m *memStore) Delete(_ context.Context, key Key) error {
	delete(m.tables, key)
	return nil
}
func (m *memStore) Close() error { return nil }

func joinedTable(t *testing.T) *geotable.Table {
	t.Helper()
	tbl, err := geotable.New("EPSG:7844", "gnaf", []geotable.Row{
		{ID: "GANSW1", Geom: geotable.NewPoint(151.2093, -33.8688, 7844), Region: "11703133801", Attrs: map[string]string{"STATE": "NSW"}},
		{ID: "GAVIC2", Geom: geotable.NewPoint(144.9631, -37.8136, 7844), Region: geotable.Unassigned},
	})
	require.NoError(t, err)
	return tbl
}

func TestLayer_MissThenHit(t *testing.T) {
	store := newMemStore()
	layer := NewLayer(store)
	calls := 0
	compute := func(context.Context) (*geotable.Table, error) {
		calls++
		return joinedTable(t), nil
	}

	first, hit, err := layer.GetOrCompute(context.Background(), "k1", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, first.Len())

	second, hit, err := layer.GetOrCompute(context.Background(), "k1", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, store.puts)
}

func TestLayer_ComputeError(t *testing.T) {
	store := newMemStore()
	layer := NewLayer(store)
	boom := errors.New("join failed")

	_, _, err := layer.GetOrCompute(context.Background(), "k1", func(context.Context) (*geotable.Table, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.puts)
}

func TestLayer_ReadErrorRecomputes(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("corrupt")
	layer := NewLayer(store)

	tbl, hit, err := layer.GetOrCompute(context.Background(), "k1", func(context.Context) (*geotable.Table, error) {
		return joinedTable(t), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, tbl)
}

func TestLayer_PersistError(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("disk full")
	layer := NewLayer(store)

	_, _, err := layer.GetOrCompute(context.Background(), "k1", func(context.Context) (*geotable.Table, error) {
		return joinedTable(t), nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: persist k1")
}

func TestLayer_NilStoreAlwaysComputes(t *testing.T) {
	layer := NewLayer(nil)
	calls := 0
	compute := func(context.Context) (*geotable.Table, error) {
		calls++
		return joinedTable(t), nil
	}
	for range 2 {
		_, hit, err := layer.GetOrCompute(context.Background(), "k1", compute)
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, 2, calls)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFingerprint_ContentNotLocation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "NSW_ADDRESS_DEFAULT_GEOCODE_psv.psv"), "ID|LON|LAT\n1|151|-33\n")
	writeFile(t, filepath.Join(root, "b", "NSW_ADDRESS_DEFAULT_GEOCODE_psv.psv"), "ID|LON|LAT\n1|151|-33\n")

	ka, err := Fingerprint(nil, filepath.Join(root, "a"))
	require.NoError(t, err)
	kb, err := Fingerprint(nil, filepath.Join(root, "b"))
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
	assert.Len(t, string(ka), 16)
}

func TestFingerprint_IgnoresModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa1.shp")
	writeFile(t, path, "polygons")

	before, err := Fingerprint(nil, path)
	require.NoError(t, err)
	later := time.Now().Add(48 * time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	after, err := Fingerprint(nil, path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFingerprint_ChangesWithInputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sa1.shp")
	writeFile(t, path, "polygons")

	base, err := Fingerprint(map[string]string{"crs": "EPSG:7844"}, path)
	require.NoError(t, err)

	otherParam, err := Fingerprint(map[string]string{"crs": "EPSG:3857"}, path)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherParam)

	writeFile(t, path, "polygons!")
	otherContent, err := Fingerprint(map[string]string{"crs": "EPSG:7844"}, path)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherContent)
}

func TestFingerprint_ParamBoundaries(t *testing.T) {
	a, err := Fingerprint(map[string]string{"ab": "c"})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]string{"a": "bc"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFingerprint_MissingPath(t *testing.T) {
	_, err := Fingerprint(nil, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: fingerprint")
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, r := range joinedTable(t).Rows() {
		sr, err := encodeRow(r)
		require.NoError(t, err)
		got, err := decodeRow(sr)
		require.NoError(t, err)

		assert.Equal(t, r.ID, got.ID)
		assert.Equal(t, r.Region, got.Region)
		assert.Equal(t, r.Attrs, got.Attrs)
		x, y, ok := got.Point()
		require.True(t, ok)
		wx, wy, _ := r.Point()
		assert.Equal(t, wx, x)
		assert.Equal(t, wy, y)
		assert.Equal(t, 7844, got.Geom.SRID())
	}
}

func TestCodec_BadGeometry(t *testing.T) {
	_, err := decodeRow(storedRow{ID: "x", Geom: []byte{0x01, 0x02}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode geometry of x")
}
