// Package metrics exposes batch counters for the join, cache, and
// allocation stages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
)

const namespace = "synthpop"

var (
	// JoinPoints counts address points by join outcome.
	// Labels: result (assigned, nearest, unassigned, filtered)
	JoinPoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "join",
		Name:      "points_total",
		Help:      "Address points processed by the spatial join",
	}, []string{"result"})

	// CacheLookups counts join cache lookups.
	// Labels: result (hit, miss, error)
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Join cache lookups by result",
	}, []string{"result"})

	// AllocationRegions counts allocated regions by supply case.
	// Labels: supply (exact, over, under, none, missing_census)
	AllocationRegions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "allocation",
		Name:      "regions_total",
		Help:      "Regions allocated by supply case",
	}, []string{"supply"})

	// AllocationRows counts emitted allocation rows.
	// Labels: kind (feature, unassigned)
	AllocationRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "allocation",
		Name:      "rows_total",
		Help:      "Allocation rows written",
	}, []string{"kind"})

	// AllocationShortfall counts census individuals that could not be placed.
	AllocationShortfall = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "allocation",
		Name:      "shortfall_total",
		Help:      "Census counts left unplaced because of address under-supply",
	})
)

// WriteTextfile dumps the default registry in the node-exporter textfile
// format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return eris.Wrapf(prometheus.WriteToTextfile(path, prometheus.DefaultGatherer), "metrics: write textfile %s", path)
}
