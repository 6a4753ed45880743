package crs

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	authorityRe = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	mgaZoneRe   = regexp.MustCompile(`MGA[ _]?ZONE[ _]?(\d{2})`)
)

// DetectFromPRJ infers an identifier from the WKT of a shapefile .prj. An
// explicit top-level EPSG authority wins; otherwise the datum and projection
// names are matched.
func DetectFromPRJ(wkt string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(wkt))

	if m := authorityRe.FindAllStringSubmatch(s, -1); len(m) > 0 {
		// The outermost authority is the last one in the string.
		if n, err := strconv.Atoi(m[len(m)-1][1]); err == nil {
			c, ok := registry[n]
			projected := strings.HasPrefix(s, "PROJCS")
			if ok && projected == !c.Geographic() {
				return c.Code, true
			}
		}
	}

	gda2020 := strings.Contains(s, "GDA2020") || strings.Contains(s, "GDA_2020")
	gda94 := strings.Contains(s, "GDA94") || strings.Contains(s, "GDA_1994")
	wgs84 := strings.Contains(s, "WGS_1984") || strings.Contains(s, "WGS 84") || strings.Contains(s, "WGS84")

	if m := mgaZoneRe.FindStringSubmatch(s); m != nil {
		zone, _ := strconv.Atoi(m[1])
		if zone >= 49 && zone <= 56 {
			switch {
			case gda2020:
				return "EPSG:" + strconv.Itoa(7800+zone), true
			case gda94:
				return "EPSG:" + strconv.Itoa(28300+zone), true
			}
		}
		return "", false
	}

	switch {
	case strings.HasPrefix(s, "PROJCS") && wgs84 &&
		(strings.Contains(s, "MERCATOR_AUXILIARY_SPHERE") || strings.Contains(s, "PSEUDO")):
		return "EPSG:3857", true
	case strings.HasPrefix(s, "PROJCS"):
		return "", false
	case gda2020:
		return "EPSG:7844", true
	case gda94:
		return "EPSG:4283", true
	case wgs84:
		return "EPSG:4326", true
	}
	return "", false
}
