package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP extracts every file of a ZIP archive into destDir and returns
// the extracted paths in archive order.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	return ExtractZIPMatching(zipPath, destDir, nil)
}

// ExtractZIPMatching extracts the files whose base name satisfies match
// (nil matches everything). Census data packs hold hundreds of tables, so
// loaders extract only the ones they read.
func ExtractZIPMatching(zipPath, destDir string, match func(name string) bool) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open archive %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if match != nil && !match(filepath.Base(f.Name)) {
			continue
		}
		path, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, path)
	}
	return extracted, nil
}

// extractZIPEntry extracts a single file entry to the destination directory.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	// Sanitize against zip slip
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrapf(err, "zip: write file %s", destPath)
	}
	return destPath, nil
}
