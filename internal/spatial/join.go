// Package spatial assigns address points to the statistical-area polygon
// that contains them.
package spatial

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/synthpop/internal/geotable"
)

// Strategy decides what happens to points no polygon contains.
type Strategy string

const (
	// StrategyKeep keeps unmatched points with the unassigned region.
	StrategyKeep Strategy = "keep"
	// StrategyFilter drops unmatched points from the output.
	StrategyFilter Strategy = "filter"
	// StrategyNearest assigns unmatched points to the closest polygon within
	// MaxNearestDistance; points beyond it stay unassigned.
	StrategyNearest Strategy = "nearest"
)

// ParseStrategy maps a config value to a Strategy. Empty means keep.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyKeep:
		return StrategyKeep, nil
	case StrategyFilter, StrategyNearest:
		return Strategy(s), nil
	}
	return "", eris.Errorf("spatial: unknown unassigned strategy %q", s)
}

// Engine runs point-in-polygon joins.
type Engine struct {
	Workers            int
	Strategy           Strategy
	MaxNearestDistance float64
	Containment        Containment
}

// JoinReport summarises a join.
type JoinReport struct {
	Points        int      `yaml:"points"`
	Assigned      int      `yaml:"assigned"`
	Nearest       int      `yaml:"nearest"`
	Unassigned    int      `yaml:"unassigned"`
	Filtered      int      `yaml:"filtered"`
	UnassignedIDs []string `yaml:"unassigned_ids,omitempty"`
}

const cancelCheckInterval = 4096

// Join assigns every point the region code of the polygon containing it.
// Both tables must share a CRS. The output preserves input row order (minus
// filtered rows) and is identical for any worker count.
func (e *Engine) Join(ctx context.Context, points, polygons *geotable.Table, regionColumn string) (*geotable.Table, *JoinReport, error) {
	log := zap.L().With(zap.String("component", "spatial.join"))

	if err := geotable.RequireSameCRS(points, polygons); err != nil {
		return nil, nil, err
	}

	idx, err := NewIndex(polygons, regionColumn)
	if err != nil {
		return nil, nil, err
	}

	contain := e.Containment
	if contain == nil {
		contain = EvenOdd{}
	}
	workers := e.Workers
	if workers < 1 {
		workers = 1
	}

	rows := points.Rows()
	n := len(rows)
	regions := make([]string, n)
	nearest := make([]bool, n)
	var nearestCount atomic.Int64

	chunk := (n + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				x, y, ok := rows[i].Point()
				if !ok {
					return eris.Errorf("spatial: row %d (%q) of %s is not a point", i, rows[i].ID, points.Source())
				}
				if p, found := idx.Locate(x, y, contain); found {
					regions[i] = idx.Region(p)
					continue
				}
				if e.Strategy == StrategyNearest {
					if p, _, found := idx.Nearest(x, y, e.MaxNearestDistance); found {
						regions[i] = idx.Region(p)
						nearest[i] = true
						nearestCount.Add(1)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrapf(err, "spatial: join %s with %s", points.Source(), polygons.Source())
	}

	report := &JoinReport{Points: n, Nearest: int(nearestCount.Load())}
	for i, r := range regions {
		if r == geotable.Unassigned {
			report.Unassigned++
			report.UnassignedIDs = append(report.UnassignedIDs, rows[i].ID)
		} else if !nearest[i] {
			report.Assigned++
		}
	}

	joined, err := points.WithRegions(regions)
	if err != nil {
		return nil, nil, err
	}
	if e.Strategy == StrategyFilter && report.Unassigned > 0 {
		joined = joined.Filter(func(r geotable.Row) bool { return r.Region != geotable.Unassigned })
		report.Filtered = report.Unassigned
	}

	log.Info("spatial join complete",
		zap.Int("points", report.Points),
		zap.Int("polygons", idx.Len()),
		zap.Int("assigned", report.Assigned),
		zap.Int("nearest", report.Nearest),
		zap.Int("unassigned", report.Unassigned),
		zap.Int("filtered", report.Filtered),
		zap.Int("workers", workers),
	)
	if report.Unassigned > 0 {
		log.Warn("points outside every polygon", zap.Int("count", report.Unassigned), zap.String("strategy", string(e.Strategy)))
	}

	return joined, report, nil
}

// Summarize rebuilds the counts of a report from an already joined table,
// such as one read back from the cache. Nearest assignments cannot be told
// apart from contained ones and are counted as assigned.
func Summarize(joined *geotable.Table) *JoinReport {
	report := &JoinReport{Points: joined.Len()}
	for _, r := range joined.Rows() {
		if r.Region == geotable.Unassigned {
			report.Unassigned++
			report.UnassignedIDs = append(report.UnassignedIDs, r.ID)
		} else {
			report.Assigned++
		}
	}
	return report
}
