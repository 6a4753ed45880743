package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/synthpop/internal/allocate"
	"github.com/sells-group/synthpop/internal/census"
	"github.com/sells-group/synthpop/internal/geotable"
	"github.com/sells-group/synthpop/internal/loader"
	"github.com/sells-group/synthpop/internal/metrics"
)

// Run executes the full pipeline: join, region filters, census load,
// allocation, then the population CSV and the YAML report. The report is
// written even when a later phase fails, so the failing phase is on disk.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	joined, report, err := p.Join(ctx)
	if err == nil {
		err = p.allocate(ctx, joined, report)
	}

	if p.cfg.Data.ReportPath != "" {
		if werr := loader.WriteReport(p.cfg.Data.ReportPath, report); werr != nil {
			if err == nil {
				err = werr
			} else {
				p.log.Warn("pipeline: write report after failure", zap.Error(werr))
			}
		}
	}
	if merr := metrics.WriteTextfile(p.cfg.Metrics.Textfile); merr != nil {
		p.log.Warn("pipeline: write metrics textfile", zap.Error(merr))
	}
	return report, err
}

func (p *Pipeline) allocate(ctx context.Context, joined *geotable.Table, report *Report) error {
	var keep func(string) bool
	if len(p.cfg.Filters.States) > 0 || len(p.cfg.Filters.RegionCodes) > 0 {
		f, err := census.RegionFilter(p.cfg.Filters.States, p.cfg.Filters.RegionCodes)
		if err != nil {
			return err
		}
		keep = f
		before := joined.Len()
		joined = joined.Filter(func(r geotable.Row) bool {
			return r.Region == geotable.Unassigned || keep(r.Region)
		})
		report.Filtered = before - joined.Len()
		p.log.Info("region filter applied",
			zap.Strings("states", p.cfg.Filters.States),
			zap.Int("region_codes", len(p.cfg.Filters.RegionCodes)),
			zap.Int("addresses_dropped", report.Filtered),
		)
	}
	addresses := joined.GroupByRegion()

	var tbl *census.Table
	err := p.track(report, "load_census", func() error {
		data, err := loader.ReadCensus(ctx, loader.CensusOptions{
			Path:        p.cfg.Data.CensusPath,
			Pattern:     p.cfg.Data.CensusPattern,
			CodeColumn:  p.cfg.Data.CensusCodeColumn,
			Features:    p.cfg.Census.Features,
			TotalPrefix: p.cfg.Census.TotalPrefix,
			Sheet:       p.cfg.Census.Sheet,
			SkipRows:    p.cfg.Census.SkipRows,
		})
		if err != nil {
			return err
		}
		tbl, err = census.Load(p.cfg.Data.CensusPath, data.Records, data.Features, census.LoadOptions{
			MissingAsZero: p.cfg.Census.MissingAsZero,
		})
		if err != nil {
			return err
		}
		if keep != nil {
			tbl = tbl.Filter(keep)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var results []allocate.Result
	err = p.track(report, "allocate", func() error {
		var rep *allocate.Report
		var err error
		results, rep, err = allocate.Allocate(ctx, addresses, tbl, allocate.Options{
			Seed:    p.cfg.Allocation.Seed,
			Workers: p.cfg.Allocation.Workers,
			Mode:    allocate.Mode(p.cfg.Allocation.Mode),
		})
		if err != nil {
			return err
		}
		// One identifier for the whole run.
		rep.RunID = report.RunID
		report.Allocation = rep
		recordAllocation(rep)
		return nil
	})
	if err != nil {
		return err
	}

	return p.track(report, "write_output", func() error {
		if err := loader.WriteAllocations(p.cfg.Data.OutputPath, joined, results); err != nil {
			return eris.Wrap(err, "pipeline: write allocations")
		}
		p.log.Info("population written",
			zap.String("path", p.cfg.Data.OutputPath),
			zap.Int("rows", len(results)),
		)
		return nil
	})
}

// recordAllocation counts regions by supply case. In multi mode a region
// can be short on one feature and padded on another; it counts as under.
func recordAllocation(r *allocate.Report) {
	none := make(map[string]bool)
	under := make(map[string]bool)
	for _, d := range r.Deficits {
		if d.NoSupply {
			none[d.Region] = true
		} else {
			under[d.Region] = true
		}
	}
	missing := make(map[string]bool, len(r.MissingCensus))
	for _, region := range r.MissingCensus {
		missing[region] = true
	}
	over := 0
	for _, s := range r.Surpluses {
		if !under[s.Region] && !missing[s.Region] {
			over++
		}
	}
	exact := max(r.Regions-len(under)-over-len(missing), 0)

	metrics.AllocationRegions.WithLabelValues("exact").Add(float64(exact))
	metrics.AllocationRegions.WithLabelValues("over").Add(float64(over))
	metrics.AllocationRegions.WithLabelValues("under").Add(float64(len(under)))
	metrics.AllocationRegions.WithLabelValues("none").Add(float64(len(none)))
	metrics.AllocationRegions.WithLabelValues("missing_census").Add(float64(len(r.MissingCensus)))
	metrics.AllocationRows.WithLabelValues("feature").Add(float64(r.Allocated))
	metrics.AllocationRows.WithLabelValues("unassigned").Add(float64(r.Padded))
	metrics.AllocationShortfall.Add(float64(r.Shortfall()))
}
