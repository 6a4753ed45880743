package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files []string, contents map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "pack.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for _, name := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(contents[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIP_All(t *testing.T) {
	files := []string{"SA1_2021_AUST_GDA2020.shp", "SA1_2021_AUST_GDA2020.dbf", "nested/readme.txt"}
	zipPath := createTestZIP(t, files, map[string]string{
		"SA1_2021_AUST_GDA2020.shp": "shp",
		"SA1_2021_AUST_GDA2020.dbf": "dbf",
		"nested/readme.txt":         "hello",
	})

	dest := t.TempDir()
	extracted, err := ExtractZIP(zipPath, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dest, "SA1_2021_AUST_GDA2020.shp"),
		filepath.Join(dest, "SA1_2021_AUST_GDA2020.dbf"),
		filepath.Join(dest, "nested", "readme.txt"),
	}, extracted)

	data, err := os.ReadFile(filepath.Join(dest, "nested", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestExtractZIPMatching(t *testing.T) {
	files := []string{
		"2021 Census GCP All Geographies for AUS/SA1/AUS/2021Census_G04A_AUST_SA1.csv",
		"2021 Census GCP All Geographies for AUS/SA1/AUS/2021Census_G04B_AUST_SA1.csv",
		"2021 Census GCP All Geographies for AUS/SA2/AUS/2021Census_G04A_AUST_SA2.csv",
		"Metadata/readme.txt",
	}
	zipPath := createTestZIP(t, files, map[string]string{})
	pattern := regexp.MustCompile(`2021Census_G\d+[A-Z]?_AUST_SA1`)

	extracted, err := ExtractZIPMatching(zipPath, t.TempDir(), pattern.MatchString)
	require.NoError(t, err)
	require.Len(t, extracted, 2)
	assert.Equal(t, "2021Census_G04A_AUST_SA1.csv", filepath.Base(extracted[0]))
	assert.Equal(t, "2021Census_G04B_AUST_SA1.csv", filepath.Base(extracted[1]))
}

func TestExtractZIP_ZipSlip(t *testing.T) {
	zipPath := createTestZIP(t, []string{"../escape.txt"}, map[string]string{"../escape.txt": "x"})
	_, err := ExtractZIP(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIP_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	_, err := ExtractZIP(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip: open archive")
}
