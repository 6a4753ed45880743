// Package crs resolves coordinate reference system identifiers and builds
// coordinate transforms between the systems used for Australian address and
// boundary data.
package crs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Datum identifies the geodetic datum a CRS is defined on.
type Datum int

const (
	// DatumGDA2020 is the hub datum. WGS84 is treated as coincident with it.
	DatumGDA2020 Datum = iota
	DatumGDA94
	DatumWGS84
)

func (d Datum) String() string {
	switch d {
	case DatumGDA94:
		return "GDA94"
	case DatumWGS84:
		return "WGS84"
	default:
		return "GDA2020"
	}
}

// projection maps geographic degrees on the datum ellipsoid to planar metres.
type projection interface {
	forward(lon, lat float64) (x, y float64)
	inverse(x, y float64) (lon, lat float64)
}

// CRS is a resolved coordinate reference system.
type CRS struct {
	Code  string
	EPSG  int
	Name  string
	Datum Datum
	proj  projection
}

// Geographic reports whether coordinates are longitude/latitude degrees.
func (c *CRS) Geographic() bool { return c.proj == nil }

func (c *CRS) String() string { return c.Code }

// Error reports a CRS identifier that cannot be resolved.
type Error struct {
	Code   string
	Source string
}

func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("crs: unsupported coordinate reference system %q for %s", e.Code, e.Source)
	}
	return fmt.Sprintf("crs: unsupported coordinate reference system %q", e.Code)
}

// MismatchError reports two datasets combined while in different systems.
type MismatchError struct {
	Left, Right             string
	LeftSource, RightSource string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("crs: mismatch between %s (%s) and %s (%s)",
		e.LeftSource, e.Left, e.RightSource, e.Right)
}

var registry = map[int]*CRS{}

func register(c *CRS) {
	c.Code = "EPSG:" + strconv.Itoa(c.EPSG)
	registry[c.EPSG] = c
}

func init() {
	register(&CRS{EPSG: 4326, Name: "WGS 84", Datum: DatumWGS84})
	register(&CRS{EPSG: 7844, Name: "GDA2020", Datum: DatumGDA2020})
	register(&CRS{EPSG: 4283, Name: "GDA94", Datum: DatumGDA94})
	register(&CRS{EPSG: 3857, Name: "WGS 84 / Pseudo-Mercator", Datum: DatumWGS84, proj: webMercator{}})

	for zone := 49; zone <= 56; zone++ {
		tm := newUTMZone(zone)
		register(&CRS{
			EPSG:  7800 + zone,
			Name:  fmt.Sprintf("GDA2020 / MGA zone %d", zone),
			Datum: DatumGDA2020,
			proj:  tm,
		})
		register(&CRS{
			EPSG:  28300 + zone,
			Name:  fmt.Sprintf("GDA94 / MGA zone %d", zone),
			Datum: DatumGDA94,
			proj:  tm,
		})
	}
}

// Normalize canonicalises an identifier to "EPSG:<n>". Bare numbers and
// lower-case prefixes are accepted.
func Normalize(code string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.TrimPrefix(s, "EPSG:")
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return "", false
	}
	return "EPSG:" + strconv.Itoa(n), true
}

// Lookup resolves an identifier such as "EPSG:7844".
func Lookup(code string) (*CRS, error) {
	norm, ok := Normalize(code)
	if !ok {
		return nil, &Error{Code: code}
	}
	n, _ := strconv.Atoi(strings.TrimPrefix(norm, "EPSG:"))
	c, ok := registry[n]
	if !ok {
		return nil, &Error{Code: code}
	}
	return c, nil
}

// Supported lists the registered identifiers in ascending EPSG order.
func Supported() []string {
	codes := make([]int, 0, len(registry))
	for n := range registry {
		codes = append(codes, n)
	}
	sort.Ints(codes)
	out := make([]string, len(codes))
	for i, n := range codes {
		out[i] = registry[n].Code
	}
	return out
}

// Same reports whether two identifiers resolve to the same system.
func Same(a, b string) bool {
	na, okA := Normalize(a)
	nb, okB := Normalize(b)
	return okA && okB && na == nb
}
