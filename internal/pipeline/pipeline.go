// Package pipeline runs the join and allocation stages end to end: load
// the inputs, join addresses to regions through the cache, allocate census
// counts, and write the population file and its diagnostics.
package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/synthpop/internal/allocate"
	"github.com/sells-group/synthpop/internal/cache"
	"github.com/sells-group/synthpop/internal/config"
	"github.com/sells-group/synthpop/internal/loader"
	"github.com/sells-group/synthpop/internal/spatial"
)

// PhaseStatus is the outcome of one pipeline phase.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult records one phase of a run.
type PhaseResult struct {
	Name     string      `yaml:"name"`
	Status   PhaseStatus `yaml:"status"`
	Duration int64       `yaml:"duration_ms"`
	Error    string      `yaml:"error,omitempty"`
}

// Report is the diagnostics file written next to the population output.
type Report struct {
	RunID      string               `yaml:"run_id"`
	CRS        string               `yaml:"crs"`
	CacheKey   cache.Key            `yaml:"cache_key"`
	CacheHit   bool                 `yaml:"cache_hit"`
	Addresses  *loader.AddressStats `yaml:"addresses,omitempty"`
	Polygons   *loader.PolygonStats `yaml:"polygons,omitempty"`
	Join       *spatial.JoinReport  `yaml:"join"`
	Filtered   int                  `yaml:"filtered_addresses,omitempty"`
	Allocation *allocate.Report     `yaml:"allocation,omitempty"`
	Phases     []PhaseResult        `yaml:"phases"`
}

// Pipeline wires configuration to the join cache.
type Pipeline struct {
	cfg   *config.Config
	cache *cache.Layer
	log   *zap.Logger
}

// New creates a Pipeline. A nil store disables caching.
func New(cfg *config.Config, store cache.Store) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		cache: cache.NewLayer(store),
		log:   zap.L().With(zap.String("component", "pipeline")),
	}
}

// track runs fn as the named phase and appends its result to report.
func (p *Pipeline) track(report *Report, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	res := PhaseResult{Name: name, Status: PhaseStatusComplete, Duration: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = PhaseStatusFailed
		res.Error = err.Error()
		p.log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", res.Duration),
			zap.Error(err),
		)
	} else {
		p.log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", res.Duration),
		)
	}
	report.Phases = append(report.Phases, res)
	return err
}

func skipped(report *Report, name string) {
	report.Phases = append(report.Phases, PhaseResult{Name: name, Status: PhaseStatusSkipped})
}
