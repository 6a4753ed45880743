package allocate

// Deficit records a region (or, in multi mode, a region and feature) whose
// census count exceeds the addresses available. It is a diagnostic, never an
// error.
type Deficit struct {
	Region    string `yaml:"region"`
	Feature   string `yaml:"feature,omitempty"`
	Census    int    `yaml:"census"`
	Addresses int    `yaml:"addresses"`
	Shortfall int    `yaml:"shortfall"`
	NoSupply  bool   `yaml:"no_supply,omitempty"`
}

// Surplus records a region with more addresses than census counts; the
// extra addresses receive the Unassigned feature.
type Surplus struct {
	Region    string `yaml:"region"`
	Addresses int    `yaml:"addresses"`
	Census    int    `yaml:"census"`
	Padded    int    `yaml:"padded"`
}

// Scaling records the apportionment applied to an under-supplied region.
type Scaling struct {
	Region   string         `yaml:"region"`
	Original map[string]int `yaml:"original"`
	Scaled   map[string]int `yaml:"scaled"`
}

func newScaling(region string, features []string, original, scaled []int) *Scaling {
	s := &Scaling{Region: region, Original: make(map[string]int, len(features)), Scaled: make(map[string]int, len(features))}
	for i, f := range features {
		s.Original[f] = original[i]
		s.Scaled[f] = scaled[i]
	}
	return s
}

// Report is the diagnostics summary of an allocation run.
type Report struct {
	RunID         string    `yaml:"run_id"`
	Seed          uint64    `yaml:"seed"`
	Mode          string    `yaml:"mode"`
	Source        string    `yaml:"census_source"`
	Regions       int       `yaml:"regions"`
	Addresses     int       `yaml:"addresses"`
	Allocated     int       `yaml:"allocated"`
	Padded        int       `yaml:"padded"`
	Deficits      []Deficit `yaml:"deficits,omitempty"`
	Surpluses     []Surplus `yaml:"surpluses,omitempty"`
	Scaled        []Scaling `yaml:"scaled,omitempty"`
	MissingCensus []string  `yaml:"missing_census,omitempty"`
}

func (r *Report) add(o *outcome) {
	if o.n > 0 {
		r.Regions++
	}
	r.Addresses += o.n
	for _, res := range o.results {
		if res.Feature == Unassigned {
			r.Padded++
		} else {
			r.Allocated++
		}
	}
	r.Deficits = append(r.Deficits, o.deficits...)
	if o.surplus != nil {
		r.Surpluses = append(r.Surpluses, *o.surplus)
	}
	if o.scaling != nil {
		r.Scaled = append(r.Scaled, *o.scaling)
	}
	if o.missing {
		r.MissingCensus = append(r.MissingCensus, o.region)
	}
}

// Shortfall is the total census count that could not be placed.
func (r *Report) Shortfall() int {
	var n int
	for _, d := range r.Deficits {
		n += d.Shortfall
	}
	return n
}

// DeficitFor returns the region-level deficit for region, summing per
// feature entries in multi mode.
func (r *Report) DeficitFor(region string) (int, bool) {
	var n int
	found := false
	for _, d := range r.Deficits {
		if d.Region == region {
			n += d.Shortfall
			found = true
		}
	}
	return n, found
}
