package cache

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/rotisserie/eris"
)

// Key identifies a cached join result.
type Key string

// fingerprintVersion is bumped whenever the cached row encoding changes.
const fingerprintVersion = "v1"

// Fingerprint hashes the content and size of every file under paths
// (directories are walked in lexical order) together with params. File
// names outside a walked directory, ownership, and modification times do
// not contribute, so a copied or renamed input produces the same key.
func Fingerprint(params map[string]string, paths ...string) (Key, error) {
	d := xxhash.New()
	_, _ = d.WriteString(fingerprintVersion)

	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		writeField(d, k)
		writeField(d, params[k])
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return "", eris.Wrapf(err, "cache: fingerprint %s", p)
		}
		if !info.IsDir() {
			if err := hashFile(d, p); err != nil {
				return "", err
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if e.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(p, path)
			if err != nil {
				return err
			}
			writeField(d, filepath.ToSlash(rel))
			return hashFile(d, path)
		})
		if err != nil {
			return "", eris.Wrapf(err, "cache: fingerprint %s", p)
		}
	}
	return Key(fmt.Sprintf("%016x", d.Sum64())), nil
}

// writeField length-prefixes s so adjacent fields cannot run together.
func writeField(d *xxhash.Digest, s string) {
	_, _ = d.WriteString(strconv.Itoa(len(s)))
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(s)
}

func hashFile(d *xxhash.Digest, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "cache: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	n, err := io.Copy(d, f)
	if err != nil {
		return eris.Wrapf(err, "cache: read %s", path)
	}
	writeField(d, strconv.FormatInt(n, 10))
	return nil
}
