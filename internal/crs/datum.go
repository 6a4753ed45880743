package crs

import "math"

const arcsecToRad = math.Pi / (180 * 3600)

// helmert is a seven-parameter similarity transform in the coordinate frame
// rotation convention. Translations are metres, rotations radians, scale
// unitless.
type helmert struct {
	tx, ty, tz float64
	rx, ry, rz float64
	s          float64
}

// gda94ToGDA2020 is the national conformal transformation (EPSG:8048).
var gda94ToGDA2020 = helmert{
	tx: 0.06155,
	ty: -0.01087,
	tz: -0.04019,
	rx: -0.0394924 * arcsecToRad,
	ry: -0.0327221 * arcsecToRad,
	rz: -0.0328979 * arcsecToRad,
	s:  -0.009994e-6,
}

func (h helmert) invert() helmert {
	return helmert{tx: -h.tx, ty: -h.ty, tz: -h.tz, rx: -h.rx, ry: -h.ry, rz: -h.rz, s: -h.s}
}

func (h helmert) apply(x, y, z float64) (float64, float64, float64) {
	m := 1 + h.s
	ox := h.tx + m*(x+h.rz*y-h.ry*z)
	oy := h.ty + m*(-h.rz*x+y+h.rx*z)
	oz := h.tz + m*(h.ry*x-h.rx*y+z)
	return ox, oy, oz
}

// toECEF converts geodetic degrees at zero ellipsoidal height to
// earth-centred cartesian metres on GRS80.
func toECEF(lon, lat float64) (float64, float64, float64) {
	phi := lat * math.Pi / 180
	lambda := lon * math.Pi / 180
	sinPhi := math.Sin(phi)
	n := grs80A / math.Sqrt(1-grs80E2*sinPhi*sinPhi)
	x := n * math.Cos(phi) * math.Cos(lambda)
	y := n * math.Cos(phi) * math.Sin(lambda)
	z := n * (1 - grs80E2) * sinPhi
	return x, y, z
}

func fromECEF(x, y, z float64) (float64, float64) {
	lambda := math.Atan2(y, x)
	p := math.Hypot(x, y)
	phi := math.Atan2(z, p*(1-grs80E2))
	for i := 0; i < 10; i++ {
		sinPhi := math.Sin(phi)
		n := grs80A / math.Sqrt(1-grs80E2*sinPhi*sinPhi)
		h := p/math.Cos(phi) - n
		next := math.Atan2(z, p*(1-grs80E2*n/(n+h)))
		if math.Abs(next-phi) < 1e-15 {
			phi = next
			break
		}
		phi = next
	}
	return lambda * 180 / math.Pi, phi * 180 / math.Pi
}

// shiftDatum moves geographic degrees from one datum to another through the
// GDA2020 hub.
func shiftDatum(from, to Datum, lon, lat float64) (float64, float64) {
	if hub(from) == hub(to) {
		return lon, lat
	}
	x, y, z := toECEF(lon, lat)
	if from == DatumGDA94 {
		x, y, z = gda94ToGDA2020.apply(x, y, z)
	}
	if to == DatumGDA94 {
		x, y, z = gda94ToGDA2020.invert().apply(x, y, z)
	}
	return fromECEF(x, y, z)
}

// hub collapses datums that are treated as identical.
func hub(d Datum) Datum {
	if d == DatumWGS84 {
		return DatumGDA2020
	}
	return d
}
