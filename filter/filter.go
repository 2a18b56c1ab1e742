// Package filter narrows the spot stream before it reaches the downstream
// sink.
//
// Filters can restrict:
//   - Band (e.g., 20m, 40m, 160m)
//   - Mode (e.g., CW, SSB, FT8)
//   - DX callsign patterns (W1*, LZ5VV, *ABC)
//   - DX continent, once cty enrichment has filled the metadata
//
// Multiple criteria use AND logic. The zero Filter accepts everything.
// A watch list runs after filtering and never drops spots: it flags DX calls
// that equal, or are within a small edit distance of, a watched call.
package filter

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"dxlistener/spot"
)

// SupportedModes lists the modes accepted in filter files.
var SupportedModes = []string{
	"SSB", "CW", "RTTY", "FT8", "FT4", "JS8", "PSK31", "MSK144", "Q65", "WSPR",
}

// Filter holds the accept lists. Empty lists mean "accept all".
type Filter struct {
	Bands        []string `yaml:"bands"`
	Modes        []string `yaml:"modes"`
	Callsigns    []string `yaml:"callsigns"`
	DXContinents []string `yaml:"dx_continents"`
	SkipSkimmers bool     `yaml:"skip_skimmers"`

	bandSet      map[string]bool
	modeSet      map[string]bool
	continentSet map[string]bool
}

// NewFilter returns a filter accepting every spot.
func NewFilter() *Filter {
	f := &Filter{}
	f.compile()
	return f
}

// Load reads a YAML filter file.
func Load(path string) (*Filter, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f Filter
	if err := yaml.Unmarshal(bs, &f); err != nil {
		return nil, fmt.Errorf("parse filter %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("filter %s: %w", path, err)
	}
	f.compile()
	return &f, nil
}

// FromSelections builds a validated filter from explicit lists.
func FromSelections(bands, modes, callsigns, continents []string, skipSkimmers bool) (*Filter, error) {
	f := &Filter{
		Bands:        append([]string(nil), bands...),
		Modes:        append([]string(nil), modes...),
		Callsigns:    append([]string(nil), callsigns...),
		DXContinents: append([]string(nil), continents...),
		SkipSkimmers: skipSkimmers,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f.compile()
	return f, nil
}

// Save writes the filter as YAML.
func (f *Filter) Save(path string) error {
	bs, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, bs, 0o644)
}

// Validate rejects unknown bands and modes.
func (f *Filter) Validate() error {
	for _, b := range f.Bands {
		if !spot.IsValidBand(spot.NormalizeBand(b)) {
			return fmt.Errorf("unknown band %q", b)
		}
	}
	for _, m := range f.Modes {
		if !IsSupportedMode(m) {
			return fmt.Errorf("unsupported mode %q", m)
		}
	}
	return nil
}

// IsSupportedMode returns true if the given mode is in the supported list.
func IsSupportedMode(mode string) bool {
	mode = strings.ToUpper(strings.TrimSpace(mode))
	for _, m := range SupportedModes {
		if m == mode {
			return true
		}
	}
	return false
}

func (f *Filter) compile() {
	f.bandSet = make(map[string]bool, len(f.Bands))
	for _, b := range f.Bands {
		if n := spot.NormalizeBand(b); n != "" {
			f.bandSet[n] = true
		}
	}
	f.modeSet = make(map[string]bool, len(f.Modes))
	for _, m := range f.Modes {
		f.modeSet[strings.ToUpper(strings.TrimSpace(m))] = true
	}
	f.continentSet = make(map[string]bool, len(f.DXContinents))
	for _, c := range f.DXContinents {
		f.continentSet[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	for i, p := range f.Callsigns {
		f.Callsigns[i] = strings.ToUpper(strings.TrimSpace(p))
	}
}

// SetBand enables or disables one band.
func (f *Filter) SetBand(band string, enabled bool) {
	normalized := spot.NormalizeBand(band)
	if normalized == "" || !spot.IsValidBand(normalized) {
		return
	}
	f.Bands = toggle(f.Bands, normalized, enabled)
	f.compile()
}

// SetMode enables or disables one mode.
func (f *Filter) SetMode(mode string, enabled bool) {
	f.Modes = toggle(f.Modes, strings.ToUpper(strings.TrimSpace(mode)), enabled)
	f.compile()
}

// AddCallsignPattern adds an exact call or a pattern with a leading or
// trailing '*'.
func (f *Filter) AddCallsignPattern(pattern string) {
	f.Callsigns = append(f.Callsigns, strings.ToUpper(strings.TrimSpace(pattern)))
	f.compile()
}

func toggle(list []string, value string, enabled bool) []string {
	out := list[:0:0]
	for _, v := range list {
		if !strings.EqualFold(v, value) {
			out = append(out, v)
		}
	}
	if enabled {
		out = append(out, value)
	}
	return out
}

// Matches returns true if the spot passes all active filters.
func (f *Filter) Matches(s *spot.Spot) bool {
	if f.bandSet == nil {
		f.compile()
	}
	if f.SkipSkimmers && s.SourceType == spot.SourceSkimmer {
		return false
	}
	if len(f.bandSet) > 0 {
		band := spot.NormalizeBand(s.Band)
		if band == "" || !f.bandSet[band] {
			return false
		}
	}
	if len(f.modeSet) > 0 && !f.modeSet[strings.ToUpper(s.Mode)] {
		return false
	}
	if len(f.continentSet) > 0 && !f.continentSet[s.DXMetadata.Continent] {
		return false
	}
	if len(f.Callsigns) > 0 {
		matched := false
		for _, pattern := range f.Callsigns {
			if matchesCallsignPattern(s.DXCall, pattern) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// matchesCallsignPattern checks if a callsign matches a pattern with wildcards.
//
//	matchesCallsignPattern("W1ABC", "W1*")   → true
//	matchesCallsignPattern("W1ABC", "*ABC")  → true
//	matchesCallsignPattern("W1ABC", "LZ5VV") → false
func matchesCallsignPattern(callsign, pattern string) bool {
	callsign = strings.ToUpper(callsign)
	pattern = strings.ToUpper(pattern)
	if callsign == pattern {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(callsign, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(callsign, strings.TrimPrefix(pattern, "*"))
	}
	return false
}

// String returns a human-readable description of the active filters.
func (f *Filter) String() string {
	var parts []string
	describe := func(label string, values []string) {
		if len(values) == 0 {
			return
		}
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		parts = append(parts, label+": "+strings.Join(sorted, ", "))
	}
	describe("Bands", f.Bands)
	describe("Modes", f.Modes)
	describe("Callsigns", f.Callsigns)
	describe("DX continents", f.DXContinents)
	if f.SkipSkimmers {
		parts = append(parts, "No skimmers")
	}
	if len(parts) == 0 {
		return "No active filters"
	}
	return strings.Join(parts, " | ")
}
