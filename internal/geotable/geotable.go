// Package geotable holds tabular records with one geometry each, tagged with
// the coordinate reference system of every geometry in the table.
package geotable

import (
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/synthpop/internal/crs"
)

// Unassigned is the region code of a row that no polygon contains.
const Unassigned = ""

// Row is one record: an identifier, a geometry, and string attributes.
// Region is populated by the spatial join; polygon tables leave it empty.
type Row struct {
	ID     string
	Geom   geom.T
	Region string
	Attrs  map[string]string
}

// Point returns the row geometry as XY when it is a point.
func (r Row) Point() (x, y float64, ok bool) {
	p, isPoint := r.Geom.(*geom.Point)
	if !isPoint || p.Empty() {
		return 0, 0, false
	}
	return p.X(), p.Y(), true
}

// Table is an immutable collection of rows sharing one CRS.
type Table struct {
	crs    string
	source string
	rows   []Row
}

// New builds a table. The CRS identifier is normalised and must be
// resolvable; source names the dataset in errors.
func New(code, source string, rows []Row) (*Table, error) {
	c, err := crs.Lookup(code)
	if err != nil {
		return nil, &crs.Error{Code: code, Source: source}
	}
	return &Table{crs: c.Code, source: source, rows: rows}, nil
}

// CRS returns the normalised identifier, e.g. "EPSG:7844".
func (t *Table) CRS() string { return t.crs }

// Source returns the dataset identity used in errors.
func (t *Table) Source() string { return t.source }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the i-th row.
func (t *Table) Row(i int) Row { return t.rows[i] }

// Rows returns the underlying rows. Callers must not modify them.
func (t *Table) Rows() []Row { return t.rows }

// WithRegions returns a new table whose i-th row carries regions[i].
func (t *Table) WithRegions(regions []string) (*Table, error) {
	if len(regions) != len(t.rows) {
		return nil, eris.Errorf("geotable: %d regions for %d rows in %s", len(regions), len(t.rows), t.source)
	}
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		r.Region = regions[i]
		rows[i] = r
	}
	return &Table{crs: t.crs, source: t.source, rows: rows}, nil
}

// Filter returns a new table holding the rows keep accepts, in order.
func (t *Table) Filter(keep func(Row) bool) *Table {
	rows := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return &Table{crs: t.crs, source: t.source, rows: rows}
}

// GroupByRegion maps each assigned region to its row identifiers sorted
// ascending. Unassigned rows are omitted.
func (t *Table) GroupByRegion() map[string][]string {
	groups := make(map[string][]string)
	for _, r := range t.rows {
		if r.Region == Unassigned {
			continue
		}
		groups[r.Region] = append(groups[r.Region], r.ID)
	}
	for region := range groups {
		sortIDs(groups[region])
	}
	return groups
}

// Index maps row identifiers to positions.
func (t *Table) Index() map[string]int {
	idx := make(map[string]int, len(t.rows))
	for i, r := range t.rows {
		idx[r.ID] = i
	}
	return idx
}

// RequireSameCRS fails with *crs.MismatchError when the tables differ.
func RequireSameCRS(a, b *Table) error {
	if a.crs != b.crs {
		return &crs.MismatchError{Left: a.crs, Right: b.crs, LeftSource: a.source, RightSource: b.source}
	}
	return nil
}

func sortIDs(ids []string) {
	slices.SortFunc(ids, CompareID)
}

// CompareID is LessID as a three-way comparison for slices.SortFunc.
func CompareID(a, b string) int {
	switch {
	case LessID(a, b):
		return -1
	case LessID(b, a):
		return 1
	}
	return 0
}

// LessID is the canonical identifier ordering: integers first in numeric
// order, then everything else lexically.
func LessID(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		if ai != bi {
			return ai < bi
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return strings.Compare(a, b) < 0
}
