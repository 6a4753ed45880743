// Package loader reads the address, boundary, and census datasets into the
// tables the join and allocation stages consume, and writes their outputs.
package loader

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// matchFiles returns the regular files under root (or root itself when it
// is a file) whose base name matches pattern and ends with one of exts.
// Results are sorted so loading order is stable.
func matchFiles(root string, pattern *regexp.Regexp, exts ...string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: stat %s", root)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if pattern != nil && !pattern.MatchString(name) {
			return nil
		}
		if len(exts) > 0 && !slices.Contains(exts, strings.ToLower(filepath.Ext(name))) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "loader: walk %s", root)
	}
	slices.Sort(out)
	return out, nil
}

func compilePattern(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: compile pattern %q", expr)
	}
	return re, nil
}
