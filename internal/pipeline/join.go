package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/synthpop/internal/cache"
	"github.com/sells-group/synthpop/internal/geotable"
	"github.com/sells-group/synthpop/internal/loader"
	"github.com/sells-group/synthpop/internal/metrics"
	"github.com/sells-group/synthpop/internal/spatial"
)

// Join loads addresses and boundaries, reprojects both to the configured
// CRS, and assigns every address its region. The result is cached under a
// fingerprint of the inputs and the join settings; a hit skips loading.
func (p *Pipeline) Join(ctx context.Context) (*geotable.Table, *Report, error) {
	report := &Report{RunID: uuid.NewString(), CRS: p.cfg.CRS}
	joined, err := p.join(ctx, report)
	if err != nil {
		return nil, report, err
	}
	return joined, report, nil
}

func (p *Pipeline) join(ctx context.Context, report *Report) (*geotable.Table, error) {
	strategy, err := spatial.ParseStrategy(p.cfg.Join.UnassignedStrategy)
	if err != nil {
		return nil, err
	}

	err = p.track(report, "fingerprint", func() error {
		key, err := cache.Fingerprint(p.joinParams(), p.joinInputs()...)
		report.CacheKey = key
		return err
	})
	if err != nil {
		return nil, err
	}

	computed := false
	joined, hit, err := p.cache.GetOrCompute(ctx, report.CacheKey, func(ctx context.Context) (*geotable.Table, error) {
		computed = true
		var points, polygons *geotable.Table
		err := p.track(report, "load_addresses", func() error {
			t, stats, err := loader.ReadAddresses(ctx, loader.AddressOptions{
				Path:      p.cfg.Data.GNAFPath,
				Pattern:   p.cfg.Data.GNAFPattern,
				Delimiter: p.cfg.Data.GNAFDelimiter,
				IDColumn:  p.cfg.Data.AddressIDColumn,
				LonColumn: p.cfg.Data.LongitudeColumn,
				LatColumn: p.cfg.Data.LatitudeColumn,
				CRS:       p.cfg.Data.AddressCRS,
			})
			if err != nil {
				return err
			}
			report.Addresses = stats
			points, err = geotable.Reproject(t, p.cfg.CRS)
			return err
		})
		if err != nil {
			return nil, err
		}

		err = p.track(report, "load_polygons", func() error {
			t, stats, err := loader.ReadPolygons(loader.PolygonOptions{
				Path:     p.cfg.Data.ShapefilePath,
				CRS:      p.cfg.Data.ShapefileCRS,
				IDColumn: p.cfg.Data.SA1CodeColumn,
				Columns:  []string{p.cfg.RegionColumn()},
			})
			if err != nil {
				return err
			}
			report.Polygons = stats
			polygons, err = geotable.Reproject(t, p.cfg.CRS)
			return err
		})
		if err != nil {
			return nil, err
		}

		var joined *geotable.Table
		err = p.track(report, "spatial_join", func() error {
			engine := &spatial.Engine{
				Workers:            p.cfg.Join.Workers,
				Strategy:           strategy,
				MaxNearestDistance: p.cfg.Join.MaxNearestDistance,
			}
			var jr *spatial.JoinReport
			var err error
			joined, jr, err = engine.Join(ctx, points, polygons, p.cfg.RegionColumn())
			report.Join = jr
			return err
		})
		return joined, err
	})
	if err != nil {
		return nil, err
	}

	report.CacheHit = hit
	if !computed {
		for _, name := range []string{"load_addresses", "load_polygons", "spatial_join"} {
			skipped(report, name)
		}
	}
	if report.Join == nil {
		report.Join = spatial.Summarize(joined)
	}
	recordJoin(report.Join)

	p.log.Info("join ready",
		zap.String("cache_key", string(report.CacheKey)),
		zap.Bool("cache_hit", hit),
		zap.Int("addresses", joined.Len()),
		zap.Int("unassigned", report.Join.Unassigned),
	)
	return joined, nil
}

// joinParams are the settings that change a join result for identical
// input files.
func (p *Pipeline) joinParams() map[string]string {
	return map[string]string{
		"crs":                  p.cfg.CRS,
		"granularity":          p.cfg.Granularity,
		"region_column":        p.cfg.RegionColumn(),
		"sa1_code_column":      p.cfg.Data.SA1CodeColumn,
		"unassigned_strategy":  p.cfg.Join.UnassignedStrategy,
		"max_nearest_distance": strconv.FormatFloat(p.cfg.Join.MaxNearestDistance, 'g', -1, 64),
		"gnaf_pattern":         p.cfg.Data.GNAFPattern,
		"gnaf_delimiter":       p.cfg.Data.GNAFDelimiter,
		"address_id_column":    p.cfg.Data.AddressIDColumn,
		"longitude_column":     p.cfg.Data.LongitudeColumn,
		"latitude_column":      p.cfg.Data.LatitudeColumn,
		"address_crs":          p.cfg.Data.AddressCRS,
		"shapefile_crs":        p.cfg.Data.ShapefileCRS,
	}
}

// joinInputs lists the files a join reads: the address path and the
// shapefile with whichever sidecar files exist next to it.
func (p *Pipeline) joinInputs() []string {
	paths := []string{p.cfg.Data.GNAFPath, p.cfg.Data.ShapefilePath}
	shp := p.cfg.Data.ShapefilePath
	if strings.EqualFold(filepath.Ext(shp), ".shp") {
		base := strings.TrimSuffix(shp, filepath.Ext(shp))
		for _, ext := range []string{".dbf", ".shx", ".prj"} {
			if _, err := os.Stat(base + ext); err == nil {
				paths = append(paths, base+ext)
			}
		}
	}
	return paths
}

func recordJoin(r *spatial.JoinReport) {
	metrics.JoinPoints.WithLabelValues("assigned").Add(float64(r.Assigned))
	metrics.JoinPoints.WithLabelValues("nearest").Add(float64(r.Nearest))
	metrics.JoinPoints.WithLabelValues("unassigned").Add(float64(r.Unassigned - r.Filtered))
	metrics.JoinPoints.WithLabelValues("filtered").Add(float64(r.Filtered))
}
