package spatial

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Containment decides whether a polygon contains a point. Implementations
// must be safe for concurrent use.
type Containment interface {
	Contains(x, y float64, poly *geom.MultiPolygon) bool
}

// EvenOdd is a ray-casting containment test over every ring of the
// multipolygon. Holes and disjoint parts fall out of the crossing parity.
// Polygons are closed: a point on any ring edge is contained, so a point on
// an edge shared by two polygons is contained by both and Index.Locate
// settles it by input order.
type EvenOdd struct{}

func (EvenOdd) Contains(x, y float64, poly *geom.MultiPolygon) bool {
	flat := poly.FlatCoords()
	stride := poly.Stride()
	inside := false
	start := 0
	for _, ends := range poly.Endss() {
		for _, end := range ends {
			n := (end - start) / stride
			for i, j := 0, n-1; i < n; j, i = i, i+1 {
				xi, yi := flat[start+i*stride], flat[start+i*stride+1]
				xj, yj := flat[start+j*stride], flat[start+j*stride+1]
				if onSegment(x, y, xi, yi, xj, yj) {
					return true
				}
				if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
					inside = !inside
				}
			}
			start = end
		}
	}
	return inside
}

// onSegment reports whether (x, y) lies exactly on the segment a-b.
func onSegment(x, y, ax, ay, bx, by float64) bool {
	if (bx-ax)*(y-ay)-(by-ay)*(x-ax) != 0 {
		return false
	}
	return x >= math.Min(ax, bx) && x <= math.Max(ax, bx) &&
		y >= math.Min(ay, by) && y <= math.Max(ay, by)
}

// boundaryDistSq is the squared planar distance from a point to the nearest
// ring edge of the multipolygon.
func boundaryDistSq(x, y float64, poly *geom.MultiPolygon) float64 {
	flat := poly.FlatCoords()
	stride := poly.Stride()
	best := math.Inf(1)
	start := 0
	for _, ends := range poly.Endss() {
		for _, end := range ends {
			for i := start; i+stride < end; i += stride {
				d := segmentDistSq(x, y, flat[i], flat[i+1], flat[i+stride], flat[i+stride+1])
				if d < best {
					best = d
				}
			}
			start = end
		}
	}
	return best
}

func segmentDistSq(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	cx, cy := ax+t*dx-px, ay+t*dy-py
	return cx*cx + cy*cy
}
