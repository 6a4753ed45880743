package loader

import (
	"context"
	"math"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/synthpop/internal/crs"
	"github.com/sells-group/synthpop/internal/fetcher"
	"github.com/sells-group/synthpop/internal/geotable"
)

// AddressOptions locates geocoded address files and names their columns.
type AddressOptions struct {
	Path      string // directory or single file
	Pattern   string // regexp on file base names
	Delimiter string // default "|"
	IDColumn  string
	LonColumn string
	LatColumn string
	CRS       string
	// Keep lists extra columns copied into row attributes.
	Keep []string
}

// AddressStats summarises what ReadAddresses skipped.
type AddressStats struct {
	Files          int `yaml:"files"`
	Rows           int `yaml:"rows"`
	Loaded         int `yaml:"loaded"`
	Duplicates     int `yaml:"duplicates"`
	BadCoordinates int `yaml:"bad_coordinates"`
}

// ReadAddresses loads address points. Duplicate identifiers keep the first
// occurrence; rows with unparsable or non-finite coordinates are skipped.
// Both are counted in the returned stats.
func ReadAddresses(ctx context.Context, opts AddressOptions) (*geotable.Table, *AddressStats, error) {
	log := zap.L().With(zap.String("component", "loader.addresses"))

	c, err := crs.Lookup(opts.CRS)
	if err != nil {
		return nil, nil, &crs.Error{Code: opts.CRS, Source: opts.Path}
	}
	pattern, err := compilePattern(opts.Pattern)
	if err != nil {
		return nil, nil, err
	}
	files, err := matchFiles(opts.Path, pattern, ".psv", ".csv", ".txt")
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, eris.Errorf("loader: no address files matching %q under %s", opts.Pattern, opts.Path)
	}

	delim := '|'
	if opts.Delimiter != "" {
		delim, _ = utf8.DecodeRuneInString(opts.Delimiter)
	}

	stats := &AddressStats{Files: len(files)}
	seen := make(map[string]struct{})
	var rows []geotable.Row
	for _, path := range files {
		n, err := readAddressFile(ctx, path, delim, c.EPSG, opts, seen, stats, func(r geotable.Row) {
			rows = append(rows, r)
		})
		if err != nil {
			return nil, nil, err
		}
		log.Debug("read address file", zap.String("path", path), zap.Int("rows", n))
	}
	stats.Loaded = len(rows)

	if stats.Duplicates > 0 {
		log.Warn("duplicate address ids skipped", zap.Int("count", stats.Duplicates))
	}
	if stats.BadCoordinates > 0 {
		log.Warn("addresses with bad coordinates skipped", zap.Int("count", stats.BadCoordinates))
	}
	log.Info("addresses loaded",
		zap.Int("files", stats.Files),
		zap.Int("rows", stats.Rows),
		zap.Int("loaded", stats.Loaded),
	)

	t, err := geotable.New(c.Code, opts.Path, rows)
	if err != nil {
		return nil, nil, err
	}
	return t, stats, nil
}

func readAddressFile(
	ctx context.Context,
	path string,
	delim rune,
	srid int,
	opts AddressOptions,
	seen map[string]struct{},
	stats *AddressStats,
	emit func(geotable.Row),
) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "loader: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	header, rowCh, errCh, err := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{Delimiter: delim, LazyQuotes: true})
	if err != nil {
		return 0, eris.Wrapf(err, "loader: read %s", path)
	}
	idx := fetcher.NewHeaderIndex(header)
	cols, err := idx.Require(opts.IDColumn, opts.LonColumn, opts.LatColumn)
	if err != nil {
		return 0, eris.Wrapf(err, "loader: %s", path)
	}
	keep := make(map[string]int, len(opts.Keep))
	for _, k := range opts.Keep {
		if pos, ok := idx.Lookup(k); ok {
			keep[k] = pos
		}
	}
	width := max(cols[0], cols[1], cols[2])

	n := 0
	for rec := range rowCh {
		n++
		stats.Rows++
		if len(rec.Fields) <= width {
			stats.BadCoordinates++
			continue
		}
		id := rec.Fields[cols[0]]
		lon, errLon := strconv.ParseFloat(rec.Fields[cols[1]], 64)
		lat, errLat := strconv.ParseFloat(rec.Fields[cols[2]], 64)
		if id == "" || errLon != nil || errLat != nil || !finite(lon) || !finite(lat) {
			stats.BadCoordinates++
			continue
		}
		if _, dup := seen[id]; dup {
			stats.Duplicates++
			continue
		}
		seen[id] = struct{}{}

		row := geotable.Row{ID: id, Geom: geotable.NewPoint(lon, lat, srid)}
		if len(keep) > 0 {
			row.Attrs = make(map[string]string, len(keep))
			for k, pos := range keep {
				if pos < len(rec.Fields) {
					row.Attrs[k] = rec.Fields[pos]
				}
			}
		}
		emit(row)
	}
	if err := <-errCh; err != nil {
		return n, eris.Wrapf(err, "loader: read %s", path)
	}
	return n, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
