package census

import (
	"strings"

	"github.com/rotisserie/eris"
)

// States indexed by the leading digit of an ASGS SA1/SA2 code.
var states = map[byte]string{
	'1': "NSW",
	'2': "VIC",
	'3': "QLD",
	'4': "SA",
	'5': "WA",
	'6': "TAS",
	'7': "NT",
	'8': "ACT",
	'9': "OT",
}

// StateOf returns the state abbreviation encoded in a region code.
func StateOf(region string) (string, bool) {
	if region == "" {
		return "", false
	}
	s, ok := states[region[0]]
	return s, ok
}

// RegionFilter builds a predicate from state abbreviations and explicit
// region codes. Empty lists impose no restriction; both lists must match
// when both are set.
func RegionFilter(stateNames, regionCodes []string) (func(string) bool, error) {
	wantStates := make(map[string]struct{}, len(stateNames))
	known := make(map[string]struct{}, len(states))
	for _, s := range states {
		known[s] = struct{}{}
	}
	for _, s := range stateNames {
		s = strings.ToUpper(strings.TrimSpace(s))
		if _, ok := known[s]; !ok {
			return nil, eris.Errorf("census: unknown state %q", s)
		}
		wantStates[s] = struct{}{}
	}
	wantCodes := make(map[string]struct{}, len(regionCodes))
	for _, c := range regionCodes {
		wantCodes[strings.TrimSpace(c)] = struct{}{}
	}

	return func(region string) bool {
		if len(wantStates) > 0 {
			s, ok := StateOf(region)
			if !ok {
				return false
			}
			if _, ok := wantStates[s]; !ok {
				return false
			}
		}
		if len(wantCodes) > 0 {
			if _, ok := wantCodes[region]; !ok {
				return false
			}
		}
		return true
	}, nil
}
