package crs

import "math"

// GRS80 ellipsoid, shared by GDA94 and GDA2020.
const (
	grs80A    = 6378137.0
	grs80InvF = 298.257222101
)

var (
	grs80F  = 1 / grs80InvF
	grs80E2 = grs80F * (2 - grs80F)
	grs80E  = math.Sqrt(grs80E2)
)

// transverseMercator implements the Krüger series to fourth order in n.
type transverseMercator struct {
	lon0           float64 // radians
	k0             float64
	falseEasting   float64
	falseNorthing  float64
	rectifyingA    float64
	alpha, beta    [4]float64
	eccentricity   float64
	eccentricitySq float64
}

func newUTMZone(zone int) *transverseMercator {
	cm := float64(zone*6 - 183)
	return newTransverseMercator(cm, 0.9996, 500000, 10000000)
}

func newTransverseMercator(centralMeridian, k0, fe, fn float64) *transverseMercator {
	n := grs80F / (2 - grs80F)
	n2, n3, n4 := n*n, n*n*n, n*n*n*n

	tm := &transverseMercator{
		lon0:           centralMeridian * math.Pi / 180,
		k0:             k0,
		falseEasting:   fe,
		falseNorthing:  fn,
		rectifyingA:    grs80A / (1 + n) * (1 + n2/4 + n4/64),
		eccentricity:   grs80E,
		eccentricitySq: grs80E2,
	}
	tm.alpha = [4]float64{
		n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180,
		13*n2/48 - 3*n3/5 + 557*n4/1440,
		61*n3/240 - 103*n4/140,
		49561 * n4 / 161280,
	}
	tm.beta = [4]float64{
		n/2 - 2*n2/3 + 37*n3/96 - n4/360,
		n2/48 + n3/15 - 437*n4/1440,
		17*n3/480 - 37*n4/840,
		4397 * n4 / 161280,
	}
	return tm
}

// conformalTau maps tan(latitude) to tan(conformal latitude).
func (tm *transverseMercator) conformalTau(tau float64) float64 {
	e := tm.eccentricity
	sigma := math.Sinh(e * math.Atanh(e*tau/math.Sqrt(1+tau*tau)))
	return tau*math.Sqrt(1+sigma*sigma) - sigma*math.Sqrt(1+tau*tau)
}

func (tm *transverseMercator) forward(lon, lat float64) (float64, float64) {
	phi := lat * math.Pi / 180
	lambda := lon*math.Pi/180 - tm.lon0

	tauP := tm.conformalTau(math.Tan(phi))
	cosL := math.Cos(lambda)
	xiP := math.Atan2(tauP, cosL)
	etaP := math.Asinh(math.Sin(lambda) / math.Sqrt(tauP*tauP+cosL*cosL))

	xi, eta := xiP, etaP
	for j := 1; j <= 4; j++ {
		a := tm.alpha[j-1]
		k := 2 * float64(j)
		xi += a * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += a * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	x := tm.falseEasting + tm.k0*tm.rectifyingA*eta
	y := tm.falseNorthing + tm.k0*tm.rectifyingA*xi
	return x, y
}

func (tm *transverseMercator) inverse(x, y float64) (float64, float64) {
	xi := (y - tm.falseNorthing) / (tm.k0 * tm.rectifyingA)
	eta := (x - tm.falseEasting) / (tm.k0 * tm.rectifyingA)

	xiP, etaP := xi, eta
	for j := 1; j <= 4; j++ {
		b := tm.beta[j-1]
		k := 2 * float64(j)
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	sinhEta := math.Sinh(etaP)
	cosXi := math.Cos(xiP)
	tauP := math.Sin(xiP) / math.Sqrt(sinhEta*sinhEta+cosXi*cosXi)
	lambda := math.Atan2(sinhEta, cosXi)

	// Newton iteration for tau given tau'.
	e2 := tm.eccentricitySq
	tau := tauP
	for i := 0; i < 10; i++ {
		ti := tm.conformalTau(tau)
		d := (tauP - ti) / math.Sqrt(1+ti*ti) *
			(1 + (1-e2)*tau*tau) / ((1 - e2) * math.Sqrt(1+tau*tau))
		tau += d
		if math.Abs(d) < 1e-14 {
			break
		}
	}

	lat := math.Atan(tau) * 180 / math.Pi
	lon := (lambda + tm.lon0) * 180 / math.Pi
	return lon, lat
}

// webMercator is the spherical Pseudo-Mercator projection.
type webMercator struct{}

func (webMercator) forward(lon, lat float64) (float64, float64) {
	x := grs80A * lon * math.Pi / 180
	y := grs80A * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

func (webMercator) inverse(x, y float64) (float64, float64) {
	lon := x / grs80A * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/grs80A)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}
