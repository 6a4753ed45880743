package geotable

import (
	"github.com/twpayne/go-geom"
)

// NewPoint builds an XY point geometry.
func NewPoint(x, y float64, srid int) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{x, y}).SetSRID(srid)
}

// NewPolygon builds an XY multipolygon from closed rings. Rings are grouped
// by orientation: a clockwise ring starts a new polygon and each following
// counter-clockwise ring is a hole in it, matching the shapefile convention.
// A leading counter-clockwise ring is treated as an outer ring.
func NewPolygon(rings [][][2]float64, srid int) *geom.MultiPolygon {
	var flat []float64
	var endss [][]int
	for _, ring := range rings {
		if len(ring) < 3 {
			continue
		}
		for _, c := range ring {
			flat = append(flat, c[0], c[1])
		}
		hole := signedArea(ring) > 0 && len(endss) > 0
		if hole {
			last := endss[len(endss)-1]
			endss[len(endss)-1] = append(last, len(flat))
		} else {
			endss = append(endss, []int{len(flat)})
		}
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss).SetSRID(srid)
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring [][2]float64) float64 {
	var sum float64
	for i := range ring {
		j := (i + 1) % len(ring)
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}
