package cache

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/synthpop/internal/geotable"
)

// storedRow is the persisted form of a geotable.Row: EWKB geometry (SRID
// included) and JSON attributes.
type storedRow struct {
	ID     string
	Region string
	Geom   []byte
	Attrs  string
}

func encodeRow(r geotable.Row) (storedRow, error) {
	out := storedRow{ID: r.ID, Region: r.Region, Attrs: "{}"}
	if r.Geom != nil {
		b, err := ewkb.Marshal(r.Geom, ewkb.NDR)
		if err != nil {
			return storedRow{}, eris.Wrapf(err, "cache: encode geometry of %s", r.ID)
		}
		out.Geom = b
	}
	if len(r.Attrs) > 0 {
		b, err := json.Marshal(r.Attrs)
		if err != nil {
			return storedRow{}, eris.Wrapf(err, "cache: encode attributes of %s", r.ID)
		}
		out.Attrs = string(b)
	}
	return out, nil
}

func decodeRow(s storedRow) (geotable.Row, error) {
	r := geotable.Row{ID: s.ID, Region: s.Region}
	if len(s.Geom) > 0 {
		g, err := ewkb.Unmarshal(s.Geom)
		if err != nil {
			return geotable.Row{}, eris.Wrapf(err, "cache: decode geometry of %s", s.ID)
		}
		r.Geom = g
	}
	if s.Attrs != "" && s.Attrs != "{}" {
		if err := json.Unmarshal([]byte(s.Attrs), &r.Attrs); err != nil {
			return geotable.Row{}, eris.Wrapf(err, "cache: decode attributes of %s", s.ID)
		}
	}
	return r, nil
}
