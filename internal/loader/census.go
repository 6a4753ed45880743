package loader

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/synthpop/internal/census"
	"github.com/sells-group/synthpop/internal/fetcher"
)

// CensusOptions locates census tables and selects their feature columns.
type CensusOptions struct {
	Path       string // directory, single .csv/.xlsx, or .zip data pack
	Pattern    string // regexp on table base names
	CodeColumn string
	// Features selects columns; empty keeps every non-total column.
	Features    []string
	TotalPrefix string // columns with this prefix are dropped; empty keeps all
	Sheet       string // XLSX sheet name; empty reads the first sheet
	SkipRows    int    // XLSX title rows above the header
}

// CensusData is the merged content of a set of census tables.
type CensusData struct {
	Records []census.Record
	// Features is opts.Features when declared, otherwise every feature
	// column in the order the tables introduced them.
	Features []string
	Tables   int
}

// ReadCensus reads every matching table and merges the rows on the code
// column. A feature may come from only one table; the same region twice in
// one table is an error. Columns not selected by opts.Features are ignored,
// so a missing selected column surfaces as a schema mismatch in census.Load.
func ReadCensus(ctx context.Context, opts CensusOptions) (*CensusData, error) {
	log := zap.L().With(zap.String("component", "loader.census"))

	pattern, err := compilePattern(opts.Pattern)
	if err != nil {
		return nil, err
	}

	root := opts.Path
	if strings.EqualFold(filepath.Ext(root), ".zip") {
		tmp, err := os.MkdirTemp("", "synthpop-census-")
		if err != nil {
			return nil, eris.Wrap(err, "loader: create temp dir")
		}
		defer os.RemoveAll(tmp) //nolint:errcheck
		match := func(name string) bool {
			ext := strings.ToLower(filepath.Ext(name))
			return (ext == ".csv" || ext == ".xlsx") && (pattern == nil || pattern.MatchString(name))
		}
		if _, err := fetcher.ExtractZIPMatching(root, tmp, match); err != nil {
			return nil, eris.Wrapf(err, "loader: extract %s", root)
		}
		root = tmp
	}

	files, err := matchFiles(root, pattern, ".csv", ".xlsx")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, eris.Errorf("loader: no census tables matching %q under %s", opts.Pattern, opts.Path)
	}

	m := &censusMerge{
		opts:   opts,
		counts: make(map[string]map[string]int),
		owner:  make(map[string]string),
		wanted: make(map[string]bool, len(opts.Features)),
	}
	for _, f := range opts.Features {
		m.wanted[f] = true
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "loader: census cancelled")
		}
		if strings.EqualFold(filepath.Ext(path), ".xlsx") {
			err = m.readXLSX(path)
		} else {
			err = m.readCSV(ctx, path)
		}
		if err != nil {
			return nil, err
		}
	}

	data := &CensusData{Tables: len(files), Features: m.order}
	if len(opts.Features) > 0 {
		data.Features = slices.Clone(opts.Features)
	}
	data.Records = make([]census.Record, 0, len(m.regions))
	for _, r := range m.regions {
		data.Records = append(data.Records, census.Record{Region: r, Counts: m.counts[r]})
	}
	log.Info("census loaded",
		zap.Int("tables", data.Tables),
		zap.Int("regions", len(data.Records)),
		zap.Int("features", len(m.order)),
	)
	return data, nil
}

// censusMerge accumulates counts across tables.
type censusMerge struct {
	opts    CensusOptions
	counts  map[string]map[string]int
	owner   map[string]string // feature -> table it was read from
	order   []string
	wanted  map[string]bool
	regions []string // first-seen order
}

// columns picks the feature columns of one table and claims them.
func (m *censusMerge) columns(path string, header []string) (int, map[int]string, error) {
	code := -1
	feats := make(map[int]string)
	for i, h := range header {
		switch {
		case strings.EqualFold(h, m.opts.CodeColumn):
			if code < 0 {
				code = i
			}
			continue
		case h == "":
			continue
		case m.opts.TotalPrefix != "" && strings.HasPrefix(h, m.opts.TotalPrefix):
			continue
		case len(m.wanted) > 0 && !m.wanted[h]:
			continue
		}
		if prev, dup := m.owner[h]; dup {
			return 0, nil, eris.Errorf("loader: census feature %s appears in both %s and %s", h, prev, path)
		}
		m.owner[h] = path
		m.order = append(m.order, h)
		feats[i] = h
	}
	if code < 0 {
		return 0, nil, eris.Errorf("loader: %s has no column %s", path, m.opts.CodeColumn)
	}
	return code, feats, nil
}

func (m *censusMerge) addRow(path string, line int, code int, feats map[int]string, fields []string, seen map[string]bool) error {
	if code >= len(fields) {
		return eris.Errorf("loader: %s line %d: missing region code", path, line)
	}
	region := strings.TrimSpace(fields[code])
	if region == "" {
		return eris.Errorf("loader: %s line %d: empty region code", path, line)
	}
	if seen[region] {
		return eris.Errorf("loader: %s line %d: region %s repeated", path, line, region)
	}
	seen[region] = true

	counts, ok := m.counts[region]
	if !ok {
		counts = make(map[string]int, len(feats))
		m.counts[region] = counts
		m.regions = append(m.regions, region)
	}
	for pos, name := range feats {
		if pos >= len(fields) {
			return eris.Errorf("loader: %s line %d region %s: missing value for %s", path, line, region, name)
		}
		v, err := parseCount(fields[pos])
		if err != nil {
			return eris.Wrapf(err, "loader: %s line %d region %s column %s", path, line, region, name)
		}
		counts[name] = v
	}
	return nil
}

func (m *censusMerge) readCSV(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "loader: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	header, rowCh, errCh, err := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return eris.Wrapf(err, "loader: read %s", path)
	}
	code, feats, err := m.columns(path, header)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for rec := range rowCh {
		if err := m.addRow(path, rec.Line, code, feats, rec.Fields, seen); err != nil {
			return err
		}
	}
	if err := <-errCh; err != nil {
		return eris.Wrapf(err, "loader: read %s", path)
	}
	return nil
}

func (m *censusMerge) readXLSX(path string) error {
	header, rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: m.opts.Sheet, SkipRows: m.opts.SkipRows})
	if err != nil {
		return eris.Wrapf(err, "loader: read %s", path)
	}
	code, feats, err := m.columns(path, header)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for i, fields := range rows {
		// Spreadsheet line numbers are 1-based and follow the header.
		if err := m.addRow(path, m.opts.SkipRows+i+2, code, feats, fields, seen); err != nil {
			return err
		}
	}
	return nil
}

// parseCount accepts integers, including integral floats such
// as "12.0" that spreadsheets produce. Blank cells count as zero.
func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, eris.Errorf("count %q is not an integer", s)
	}
	return int(f), nil
}
