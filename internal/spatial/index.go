package spatial

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tidwall/rtree"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/synthpop/internal/geotable"
)

// Index is a bounding-box R-tree over a polygon table. It is built once and
// only read afterwards, so concurrent queries are safe.
type Index struct {
	tree    rtree.RTreeG[int]
	polys   []*geom.MultiPolygon
	regions []string
}

// NewIndex indexes every polygon row. The region code of a row is read
// from regionColumn, or from the row ID when regionColumn is empty.
func NewIndex(polygons *geotable.Table, regionColumn string) (*Index, error) {
	idx := &Index{
		polys:   make([]*geom.MultiPolygon, 0, polygons.Len()),
		regions: make([]string, 0, polygons.Len()),
	}
	for i, row := range polygons.Rows() {
		mp, err := asMultiPolygon(row.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: row %d (%q) of %s", i, row.ID, polygons.Source())
		}
		region := row.ID
		if regionColumn != "" {
			region = row.Attrs[regionColumn]
		}
		if region == "" {
			return nil, eris.Errorf("spatial: row %d (%q) of %s has no %s value", i, row.ID, polygons.Source(), regionColumn)
		}
		if mp.Empty() {
			continue
		}

		b := mp.Bounds()
		n := len(idx.polys)
		idx.polys = append(idx.polys, mp)
		idx.regions = append(idx.regions, region)
		idx.tree.Insert([2]float64{b.Min(0), b.Min(1)}, [2]float64{b.Max(0), b.Max(1)}, n)
	}
	return idx, nil
}

// Len returns the number of indexed polygons.
func (idx *Index) Len() int { return len(idx.polys) }

// Region returns the region code of polygon i.
func (idx *Index) Region(i int) string { return idx.regions[i] }

// Candidates returns the polygons whose bounding box covers the point, in
// ascending input order.
func (idx *Index) Candidates(x, y float64) []int {
	var out []int
	p := [2]float64{x, y}
	idx.tree.Search(p, p, func(_, _ [2]float64, i int) bool {
		out = append(out, i)
		return true
	})
	sort.Ints(out)
	return out
}

// Locate returns the first polygon in input order that contains the point.
func (idx *Index) Locate(x, y float64, c Containment) (int, bool) {
	for _, i := range idx.Candidates(x, y) {
		if c.Contains(x, y, idx.polys[i]) {
			return i, true
		}
	}
	return -1, false
}

// Nearest returns the polygon with the smallest boundary distance to the
// point, provided it is within maxDist. Equal distances resolve to the
// earlier polygon.
func (idx *Index) Nearest(x, y, maxDist float64) (int, float64, bool) {
	best, bestDist := -1, math.Inf(1)
	limit := maxDist * maxDist
	p := [2]float64{x, y}

	idx.tree.Nearby(
		rtree.BoxDist[float64, int](p, p, func(_, _ [2]float64, i int) float64 {
			return boundaryDistSq(x, y, idx.polys[i])
		}),
		func(_, _ [2]float64, i int, d float64) bool {
			if d > limit || d > bestDist {
				return false
			}
			if d < bestDist || i < best {
				best, bestDist = i, d
			}
			return true
		},
	)
	if best < 0 {
		return -1, 0, false
	}
	return best, math.Sqrt(bestDist), true
}

func asMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	switch v := g.(type) {
	case *geom.MultiPolygon:
		return v, nil
	case *geom.Polygon:
		return geom.NewMultiPolygonFlat(v.Layout(), v.FlatCoords(), [][]int{v.Ends()}).SetSRID(v.SRID()), nil
	default:
		return nil, eris.Errorf("unsupported polygon geometry %T", g)
	}
}
