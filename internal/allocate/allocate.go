// Package allocate distributes per-region census feature counts across the
// addresses located in each region.
package allocate

import (
	"context"
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/synthpop/internal/census"
	"github.com/sells-group/synthpop/internal/geotable"
)

// Unassigned is the feature given to addresses the census does not cover.
const Unassigned = census.Unassigned

// Mode selects how features are sampled.
type Mode string

const (
	// ModeSingle gives every address exactly one feature; features are
	// mutually exclusive (age/sex bands).
	ModeSingle Mode = "single"
	// ModeMulti samples each feature independently; an address may receive
	// several features.
	ModeMulti Mode = "multi"
)

// Options configures an allocation run.
type Options struct {
	Seed    uint64
	Workers int
	Mode    Mode
	// Source overrides the per-region random source. Nil uses PCGSource(Seed).
	Source SourceFunc
}

// Result assigns one feature to one address.
type Result struct {
	AddressID string
	Region    string
	Feature   string
}

// Allocate runs the allocation over every region that has addresses or
// census counts. Output is ordered by region then address (then feature in
// schema order) and does not depend on opts.Workers.
func Allocate(ctx context.Context, addresses map[string][]string, tbl *census.Table, opts Options) ([]Result, *Report, error) {
	log := zap.L().With(zap.String("component", "allocate"))

	mode := opts.Mode
	if mode == "" {
		mode = ModeSingle
	}
	if mode != ModeSingle && mode != ModeMulti {
		return nil, nil, eris.Errorf("allocate: unknown mode %q", mode)
	}
	source := opts.Source
	if source == nil {
		source = PCGSource(opts.Seed)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	regions := regionUnion(addresses, tbl)
	outcomes := make([]*outcome, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, region := range regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			counts, ok := tbl.Counts(region)
			r := rand.New(source(region))
			addrs := sortedCopy(addresses[region])
			if mode == ModeMulti {
				outcomes[i] = allocateMulti(region, addrs, tbl.Features(), counts, ok, r)
			} else {
				outcomes[i] = allocateSingle(region, addrs, tbl.Features(), counts, ok, r)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "allocate: run")
	}

	report := &Report{RunID: uuid.NewString(), Seed: opts.Seed, Mode: string(mode), Source: tbl.Source()}
	var results []Result
	for _, o := range outcomes {
		results = append(results, o.results...)
		report.add(o)
	}

	log.Info("allocation complete",
		zap.String("run_id", report.RunID),
		zap.String("mode", report.Mode),
		zap.Int("regions", report.Regions),
		zap.Int("addresses", report.Addresses),
		zap.Int("allocated", report.Allocated),
		zap.Int("padded", report.Padded),
		zap.Int("deficits", len(report.Deficits)),
		zap.Int("shortfall", report.Shortfall()),
	)
	if len(report.MissingCensus) > 0 {
		log.Warn("regions with addresses but no census record", zap.Int("count", len(report.MissingCensus)))
	}
	return results, report, nil
}

// outcome is one region's contribution to the run.
type outcome struct {
	region   string
	results  []Result
	n        int
	deficits []Deficit
	surplus  *Surplus
	scaling  *Scaling
	missing  bool
}

func allocateSingle(region string, addrs, features []string, counts []int, hasCensus bool, r *rand.Rand) *outcome {
	o := &outcome{region: region, n: len(addrs), missing: !hasCensus && len(addrs) > 0}
	n := len(addrs)
	total := sum(counts)

	if n == 0 {
		if total > 0 {
			o.deficits = []Deficit{{Region: region, Census: total, Shortfall: total, NoSupply: true}}
		}
		return o
	}

	alloc := counts
	if total > n {
		alloc = Apportion(counts, n)
		o.deficits = []Deficit{{Region: region, Census: total, Addresses: n, Shortfall: total - n}}
		o.scaling = newScaling(region, features, counts, alloc)
	}

	pool := make([]string, 0, n)
	for i, c := range alloc {
		for range c {
			pool = append(pool, features[i])
		}
	}
	if pad := n - len(pool); pad > 0 {
		o.surplus = &Surplus{Region: region, Addresses: n, Census: total, Padded: pad}
		for range pad {
			pool = append(pool, Unassigned)
		}
	}
	shuffle(r, pool)

	o.results = make([]Result, n)
	for i, id := range addrs {
		o.results[i] = Result{AddressID: id, Region: region, Feature: pool[i]}
	}
	return o
}

func allocateMulti(region string, addrs, features []string, counts []int, hasCensus bool, r *rand.Rand) *outcome {
	o := &outcome{region: region, n: len(addrs), missing: !hasCensus && len(addrs) > 0}
	n := len(addrs)

	given := make([][]string, n)
	perm := make([]int, n)
	for fi, c := range counts {
		if c == 0 {
			continue
		}
		k := c
		if k > n {
			o.deficits = append(o.deficits, Deficit{
				Region: region, Feature: features[fi], Census: c, Addresses: n, Shortfall: c - n, NoSupply: n == 0,
			})
			k = n
		}
		for i := range perm {
			perm[i] = i
		}
		// Partial Fisher–Yates: the first k slots are a uniform k-subset.
		for i := 0; i < k; i++ {
			j := i + r.IntN(n-i)
			perm[i], perm[j] = perm[j], perm[i]
		}
		for _, a := range perm[:k] {
			given[a] = append(given[a], features[fi])
		}
	}

	padded := 0
	for i, id := range addrs {
		if len(given[i]) == 0 {
			o.results = append(o.results, Result{AddressID: id, Region: region, Feature: Unassigned})
			padded++
			continue
		}
		for _, f := range given[i] {
			o.results = append(o.results, Result{AddressID: id, Region: region, Feature: f})
		}
	}
	if padded > 0 {
		o.surplus = &Surplus{Region: region, Addresses: n, Census: sum(counts), Padded: padded}
	}
	return o
}

func regionUnion(addresses map[string][]string, tbl *census.Table) []string {
	seen := make(map[string]struct{}, len(addresses)+tbl.Len())
	var out []string
	for r := range addresses {
		if r == geotable.Unassigned {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	for _, r := range tbl.Regions() {
		if _, ok := seen[r]; !ok {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, geotable.CompareID)
	return out
}

func sortedCopy(ids []string) []string {
	out := slices.Clone(ids)
	slices.SortFunc(out, geotable.CompareID)
	return out
}

func sum(v []int) int {
	var n int
	for _, x := range v {
		n += x
	}
	return n
}
