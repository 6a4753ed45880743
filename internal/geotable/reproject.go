package geotable

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/synthpop/internal/crs"
)

// Reproject returns a new table with every geometry expressed in target.
// Rows keep their identifiers, regions and attributes. Reprojecting to the
// table's own CRS returns an equal copy.
func Reproject(t *Table, target string) (*Table, error) {
	dst, err := crs.Lookup(target)
	if err != nil {
		return nil, &crs.Error{Code: target, Source: t.source}
	}
	tr, err := crs.NewTransformer(t.crs, dst.Code)
	if err != nil {
		return nil, eris.Wrapf(err, "geotable: reproject %s", t.source)
	}

	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		g, err := transformGeom(r.Geom, tr, dst.EPSG)
		if err != nil {
			return nil, eris.Wrapf(err, "geotable: reproject row %q of %s", r.ID, t.source)
		}
		r.Geom = g
		rows[i] = r
	}
	return &Table{crs: dst.Code, source: t.source, rows: rows}, nil
}

// transformGeom returns a transformed copy; the input geometry is never
// modified.
func transformGeom(g geom.T, tr *crs.Transformer, srid int) (geom.T, error) {
	if g == nil {
		return nil, nil
	}
	flat := append([]float64(nil), g.FlatCoords()...)
	if err := tr.TransformFlat(flat, g.Stride()); err != nil {
		return nil, err
	}

	switch v := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(v.Layout(), flat).SetSRID(srid), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(v.Layout(), flat, append([]int(nil), v.Ends()...)).SetSRID(srid), nil
	case *geom.MultiPolygon:
		endss := make([][]int, len(v.Endss()))
		for i, ends := range v.Endss() {
			endss[i] = append([]int(nil), ends...)
		}
		return geom.NewMultiPolygonFlat(v.Layout(), flat, endss).SetSRID(srid), nil
	default:
		return nil, eris.Errorf("geotable: unsupported geometry type %T", g)
	}
}
