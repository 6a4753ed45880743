package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPoints_Increments(t *testing.T) {
	before := testutil.ToFloat64(JoinPoints.WithLabelValues("assigned"))
	JoinPoints.WithLabelValues("assigned").Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(JoinPoints.WithLabelValues("assigned")))
}

func TestWriteTextfile(t *testing.T) {
	CacheLookups.WithLabelValues("hit").Inc()
	path := filepath.Join(t.TempDir(), "synthpop.prom")

	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "synthpop_cache_lookups_total")
}

func TestWriteTextfile_EmptyPath(t *testing.T) {
	assert.NoError(t, WriteTextfile(""))
}

func TestWriteTextfile_BadDir(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "out.prom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics: write textfile")
}
