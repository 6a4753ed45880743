package crs

import (
	"math"

	"github.com/rotisserie/eris"
)

// Transformer converts coordinates between two reference systems. It holds
// no mutable state and is safe for concurrent use.
type Transformer struct {
	From, To *CRS
	identity bool
}

// NewTransformer resolves both identifiers and builds the transform.
func NewTransformer(from, to string) (*Transformer, error) {
	src, err := Lookup(from)
	if err != nil {
		return nil, err
	}
	dst, err := Lookup(to)
	if err != nil {
		return nil, err
	}
	return &Transformer{From: src, To: dst, identity: src.EPSG == dst.EPSG}, nil
}

// Identity reports whether the transform leaves coordinates unchanged.
func (t *Transformer) Identity() bool { return t.identity }

// Transform maps one coordinate. Non-finite input and latitudes outside
// [-90, 90] are rejected.
func (t *Transformer) Transform(x, y float64) (float64, float64, error) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, eris.Errorf("crs: non-finite coordinate (%v, %v)", x, y)
	}
	if t.identity {
		return x, y, nil
	}

	lon, lat := x, y
	if t.From.proj != nil {
		lon, lat = t.From.proj.inverse(x, y)
	}
	if lat < -90 || lat > 90 {
		return 0, 0, eris.Errorf("crs: latitude %v out of range in %s", lat, t.From.Code)
	}

	lon, lat = shiftDatum(t.From.Datum, t.To.Datum, lon, lat)

	if t.To.proj == nil {
		return lon, lat, nil
	}
	if t.To.EPSG == 3857 && math.Abs(lat) >= 90 {
		return 0, 0, eris.Errorf("crs: latitude %v cannot be projected to %s", lat, t.To.Code)
	}
	ox, oy := t.To.proj.forward(lon, lat)
	return ox, oy, nil
}

// TransformFlat transforms interleaved XY coordinates in place.
func (t *Transformer) TransformFlat(flat []float64, stride int) error {
	if t.identity {
		return nil
	}
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := t.Transform(flat[i], flat[i+1])
		if err != nil {
			return err
		}
		flat[i], flat[i+1] = x, y
	}
	return nil
}
