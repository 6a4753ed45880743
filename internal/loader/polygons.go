package loader

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/synthpop/internal/crs"
	"github.com/sells-group/synthpop/internal/geotable"
)

// PolygonOptions locates a boundary shapefile and names its code columns.
type PolygonOptions struct {
	Path string // .shp, or .zip holding exactly one shapefile
	// CRS overrides the .prj. Empty means the .prj must be recognisable.
	CRS string
	// IDColumn is the per-polygon code (SA1). Columns lists every attribute
	// copied onto rows, e.g. the SA1 and SA2 code columns.
	IDColumn string
	Columns  []string
}

// PolygonStats summarises what ReadPolygons skipped.
type PolygonStats struct {
	Shapes  int `yaml:"shapes"`
	Loaded  int `yaml:"loaded"`
	Empty   int `yaml:"empty"`
	Unknown int `yaml:"unsupported_type"`
}

// shapeReader is the read surface shared by *shp.Reader and *shp.ZipReader.
type shapeReader interface {
	Next() bool
	Shape() (int, shp.Shape)
	Attribute(n int) string
	Fields() []shp.Field
	Err() error
	Close() error
}

// ReadPolygons loads boundary polygons. Null shapes (ABS "no usual address"
// and offshore regions) are skipped and counted.
func ReadPolygons(opts PolygonOptions) (*geotable.Table, *PolygonStats, error) {
	code, err := polygonCRS(opts)
	if err != nil {
		return nil, nil, err
	}
	c, err := crs.Lookup(code)
	if err != nil {
		return nil, nil, &crs.Error{Code: code, Source: opts.Path}
	}

	var r shapeReader
	if strings.EqualFold(filepath.Ext(opts.Path), ".zip") {
		r, err = shp.OpenZip(opts.Path)
	} else {
		r, err = shp.Open(opts.Path)
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "loader: open shapefile %s", opts.Path)
	}
	defer r.Close() //nolint:errcheck

	rows, stats, err := readShapes(r, opts, c.EPSG)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("polygons loaded",
		zap.String("component", "loader.polygons"),
		zap.String("path", opts.Path),
		zap.String("crs", c.Code),
		zap.Int("loaded", stats.Loaded),
		zap.Int("empty", stats.Empty),
	)
	t, err := geotable.New(c.Code, opts.Path, rows)
	if err != nil {
		return nil, nil, err
	}
	return t, stats, nil
}

func readShapes(r shapeReader, opts PolygonOptions, srid int) ([]geotable.Row, *PolygonStats, error) {
	fieldIdx := make(map[string]int)
	for i, f := range r.Fields() {
		fieldIdx[strings.ToLower(strings.TrimRight(f.String(), "\x00"))] = i
	}
	idPos, ok := fieldIdx[strings.ToLower(opts.IDColumn)]
	if !ok {
		return nil, nil, eris.Errorf("loader: %s has no column %s", opts.Path, opts.IDColumn)
	}
	cols := make(map[string]int, len(opts.Columns))
	for _, name := range opts.Columns {
		pos, ok := fieldIdx[strings.ToLower(name)]
		if !ok {
			return nil, nil, eris.Errorf("loader: %s has no column %s", opts.Path, name)
		}
		cols[name] = pos
	}

	stats := &PolygonStats{}
	var rows []geotable.Row
	for r.Next() {
		stats.Shapes++
		_, shape := r.Shape()

		var rings [][][2]float64
		switch s := shape.(type) {
		case *shp.Polygon:
			rings = polygonRings(s.Parts, s.Points)
		case *shp.PolygonZ:
			rings = polygonRings(s.Parts, s.Points)
		case *shp.Null, nil:
		default:
			stats.Unknown++
			continue
		}
		if len(rings) == 0 {
			stats.Empty++
			continue
		}

		row := geotable.Row{
			ID:    attr(r, idPos),
			Geom:  geotable.NewPolygon(rings, srid),
			Attrs: make(map[string]string, len(cols)),
		}
		for name, pos := range cols {
			row.Attrs[name] = attr(r, pos)
		}
		rows = append(rows, row)
	}
	if err := r.Err(); err != nil {
		return nil, nil, eris.Wrapf(err, "loader: read shapefile %s", opts.Path)
	}
	stats.Loaded = len(rows)
	if stats.Unknown > 0 {
		zap.L().Warn("skipped non-polygon shapes", zap.String("path", opts.Path), zap.Int("count", stats.Unknown))
	}
	return rows, stats, nil
}

func attr(r shapeReader, pos int) string {
	return strings.TrimSpace(strings.TrimRight(r.Attribute(pos), "\x00"))
}

// polygonRings splits shapefile points into rings at the part offsets.
func polygonRings(parts []int32, points []shp.Point) [][][2]float64 {
	var rings [][][2]float64
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || end-start < 3 {
			continue
		}
		ring := make([][2]float64, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, [2]float64{p.X, p.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

// polygonCRS resolves the boundary CRS: the configured code when set,
// otherwise the .prj beside the shapefile or inside the archive.
func polygonCRS(opts PolygonOptions) (string, error) {
	if opts.CRS != "" {
		return opts.CRS, nil
	}
	wkt, err := readPRJ(opts.Path)
	if err != nil {
		return "", err
	}
	code, ok := crs.DetectFromPRJ(wkt)
	if !ok {
		return "", &crs.Error{Code: prjName(wkt), Source: opts.Path}
	}
	return code, nil
}

// prjName returns the quoted name of the outermost WKT node.
func prjName(wkt string) string {
	s := strings.TrimSpace(wkt)
	start := strings.Index(s, `["`)
	if start < 0 {
		return s
	}
	rest := s[start+2:]
	if end := strings.IndexByte(rest, '"'); end >= 0 {
		return rest[:end]
	}
	return s
}

func readPRJ(path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
		b, err := os.ReadFile(prj)
		if err != nil {
			return "", eris.Wrapf(err, "loader: read %s (set data.shapefile_crs to skip)", prj)
		}
		return string(b), nil
	}

	z, err := zip.OpenReader(path)
	if err != nil {
		return "", eris.Wrapf(err, "loader: open archive %s", path)
	}
	defer z.Close() //nolint:errcheck
	for _, f := range z.File {
		if !strings.EqualFold(filepath.Ext(f.Name), ".prj") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", eris.Wrapf(err, "loader: open %s in %s", f.Name, path)
		}
		b, err := io.ReadAll(rc)
		rc.Close() //nolint:errcheck
		if err != nil {
			return "", eris.Wrapf(err, "loader: read %s in %s", f.Name, path)
		}
		return string(b), nil
	}
	return "", eris.Errorf("loader: %s holds no .prj (set data.shapefile_crs to skip)", path)
}
