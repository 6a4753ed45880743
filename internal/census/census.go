// Package census holds per-region feature counts and validates them against
// the configured feature schema.
package census

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/synthpop/internal/geotable"
)

// Unassigned is the reserved feature name given to addresses the census
// does not cover. No census feature may use it.
const Unassigned = "unassigned"

// Record is one region's raw counts as read from the source.
type Record struct {
	Region string
	Counts map[string]int
}

// SchemaMismatchError reports a region whose feature set differs from the
// declared schema.
type SchemaMismatchError struct {
	Source  string
	Region  string
	Missing []string
	Extra   []string
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ","))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Extra, ","))
	}
	return fmt.Sprintf("census: schema mismatch in %s region %s: %s", e.Source, e.Region, strings.Join(parts, "; "))
}

// LoadOptions controls schema validation.
type LoadOptions struct {
	// MissingAsZero treats absent features as zero instead of failing.
	MissingAsZero bool
}

// Table is an immutable region → counts mapping with a fixed feature order.
type Table struct {
	source   string
	features []string
	regions  []string
	counts   map[string][]int
}

// Load validates records against schema and builds a table. Counts are
// stored in schema order. Duplicate regions and negative counts are errors.
func Load(source string, records []Record, schema []string, opts LoadOptions) (*Table, error) {
	if len(schema) == 0 {
		return nil, eris.Errorf("census: empty feature schema for %s", source)
	}
	declared := make(map[string]struct{}, len(schema))
	for _, f := range schema {
		if _, dup := declared[f]; dup {
			return nil, eris.Errorf("census: feature %q declared twice", f)
		}
		if f == Unassigned {
			return nil, eris.Errorf("census: feature name %q is reserved", f)
		}
		declared[f] = struct{}{}
	}

	t := &Table{
		source:   source,
		features: append([]string(nil), schema...),
		counts:   make(map[string][]int, len(records)),
	}
	for _, rec := range records {
		if rec.Region == "" {
			return nil, eris.Errorf("census: record with empty region code in %s", source)
		}
		if _, dup := t.counts[rec.Region]; dup {
			return nil, eris.Errorf("census: duplicate region %s in %s", rec.Region, source)
		}

		var missing, extra []string
		for f := range rec.Counts {
			if _, ok := declared[f]; !ok {
				extra = append(extra, f)
			}
		}
		row := make([]int, len(schema))
		for i, f := range schema {
			v, ok := rec.Counts[f]
			if !ok {
				missing = append(missing, f)
				continue
			}
			if v < 0 {
				return nil, eris.Errorf("census: negative count %d for %s in region %s of %s", v, f, rec.Region, source)
			}
			row[i] = v
		}
		if len(extra) > 0 || (len(missing) > 0 && !opts.MissingAsZero) {
			sort.Strings(extra)
			return nil, &SchemaMismatchError{Source: source, Region: rec.Region, Missing: missing, Extra: extra}
		}

		t.counts[rec.Region] = row
		t.regions = append(t.regions, rec.Region)
	}
	sort.Slice(t.regions, func(i, j int) bool { return geotable.LessID(t.regions[i], t.regions[j]) })
	return t, nil
}

// Source returns the dataset identity.
func (t *Table) Source() string { return t.source }

// Features returns the schema in declaration order.
func (t *Table) Features() []string { return t.features }

// Regions returns region codes in canonical order.
func (t *Table) Regions() []string { return t.regions }

// Len returns the number of regions.
func (t *Table) Len() int { return len(t.regions) }

// Counts returns the counts for region in schema order.
func (t *Table) Counts(region string) ([]int, bool) {
	c, ok := t.counts[region]
	return c, ok
}

// Total returns the sum of a region's counts.
func (t *Table) Total(region string) int {
	var n int
	for _, v := range t.counts[region] {
		n += v
	}
	return n
}

// Filter returns a table restricted to the regions keep accepts.
func (t *Table) Filter(keep func(region string) bool) *Table {
	out := &Table{source: t.source, features: t.features, counts: make(map[string][]int)}
	for _, r := range t.regions {
		if keep(r) {
			out.regions = append(out.regions, r)
			out.counts[r] = t.counts[r]
		}
	}
	return out
}
