package facet

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrUnknownOption is returned when a filter value was never observed as a
// valid option for its dimension.
var ErrUnknownOption = errors.New("unknown filter option")

// Dimension identifies a multi-select facet.
type Dimension int

const (
	DimStance Dimension = iota
	DimEvidenceRich
	DimTheme
)

func (d Dimension) String() string {
	switch d {
	case DimStance:
		return "stance"
	case DimEvidenceRich:
		return "evidence-rich"
	case DimTheme:
		return "theme"
	default:
		return "unknown"
	}
}

// Set is an unordered collection of option values. It always serializes
// sorted so that equal sets produce equal bytes.
type Set map[string]struct{}

func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s Set) Sorted() []string {
	out := slices.Collect(maps.Keys(s))
	slices.Sort(out)
	return out
}

func (s Set) clone() Set {
	if len(s) == 0 {
		return nil
	}
	return maps.Clone(s)
}

func (s Set) MarshalJSON() ([]byte, error) {
	values := s.Sorted()
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if len(values) == 0 {
		*s = nil
		return nil
	}
	*s = NewSet(values...)
	return nil
}

// FilterState is the complete set of active constraints. Empty collections
// mean no constraint on that dimension.
type FilterState struct {
	SearchText   string         `json:"search_text,omitempty"`
	Stances      Set            `json:"stances,omitempty"`
	EvidenceRich Set            `json:"evidence_rich,omitempty"`
	Themes       Set            `json:"themes,omitempty"`
	Demographics map[string]Set `json:"demographics,omitempty"`
}

// Clone returns a deep copy.
func (f FilterState) Clone() FilterState {
	out := FilterState{
		SearchText:   f.SearchText,
		Stances:      f.Stances.clone(),
		EvidenceRich: f.EvidenceRich.clone(),
		Themes:       f.Themes.clone(),
	}
	for cat, values := range f.Demographics {
		if len(values) == 0 {
			continue
		}
		if out.Demographics == nil {
			out.Demographics = make(map[string]Set, len(f.Demographics))
		}
		out.Demographics[cat] = values.clone()
	}
	return out
}

// Equal compares two states by their effective constraints.
func (f FilterState) Equal(o FilterState) bool {
	if strings.TrimSpace(f.SearchText) != strings.TrimSpace(o.SearchText) {
		return false
	}
	if !setEqual(f.Stances, o.Stances) || !setEqual(f.EvidenceRich, o.EvidenceRich) || !setEqual(f.Themes, o.Themes) {
		return false
	}
	if countNonEmpty(f.Demographics) != countNonEmpty(o.Demographics) {
		return false
	}
	for cat, values := range f.Demographics {
		if !setEqual(values, o.Demographics[cat]) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no constraint is active.
func (f FilterState) IsEmpty() bool {
	return f.Equal(FilterState{})
}

// Values returns the selected set for a dimension.
func (f FilterState) Values(dim Dimension) Set {
	switch dim {
	case DimStance:
		return f.Stances
	case DimEvidenceRich:
		return f.EvidenceRich
	case DimTheme:
		return f.Themes
	default:
		return nil
	}
}

// Toggle adds value to dim when absent and removes it when present.
// Adding requires value to be a known option.
func (f *FilterState) Toggle(dim Dimension, value string, opts Options) error {
	if f.Values(dim).Has(value) {
		f.remove(dim, value)
		return nil
	}
	if !opts.Allows(dim, value) {
		return fmt.Errorf("%w: %s %q", ErrUnknownOption, dim, value)
	}
	f.setValues(dim, addTo(f.Values(dim), value))
	return nil
}

// SetValues replaces the selection of dim. Every value must be known.
func (f *FilterState) SetValues(dim Dimension, values []string, opts Options) error {
	for _, v := range values {
		if !opts.Allows(dim, v) {
			return fmt.Errorf("%w: %s %q", ErrUnknownOption, dim, v)
		}
	}
	if len(values) == 0 {
		f.setValues(dim, nil)
		return nil
	}
	f.setValues(dim, NewSet(values...))
	return nil
}

// ToggleDemographic flips a single value within a demographic category.
// The category disappears once its last value is removed.
func (f *FilterState) ToggleDemographic(category, value string, opts Options) error {
	if f.Demographics[category].Has(value) {
		delete(f.Demographics[category], value)
		if len(f.Demographics[category]) == 0 {
			delete(f.Demographics, category)
		}
		return nil
	}
	if !opts.AllowsDemographic(category, value) {
		return fmt.Errorf("%w: demographic %s=%q", ErrUnknownOption, category, value)
	}
	if f.Demographics == nil {
		f.Demographics = make(map[string]Set)
	}
	f.Demographics[category] = addTo(f.Demographics[category], value)
	return nil
}

// SetDemographic replaces the selection of one category. An empty list
// removes the category.
func (f *FilterState) SetDemographic(category string, values []string, opts Options) error {
	for _, v := range values {
		if !opts.AllowsDemographic(category, v) {
			return fmt.Errorf("%w: demographic %s=%q", ErrUnknownOption, category, v)
		}
	}
	if len(values) == 0 {
		delete(f.Demographics, category)
		return nil
	}
	if f.Demographics == nil {
		f.Demographics = make(map[string]Set)
	}
	f.Demographics[category] = NewSet(values...)
	return nil
}

// Validate checks every selected value against opts.
func (f FilterState) Validate(opts Options) error {
	for _, dim := range []Dimension{DimStance, DimEvidenceRich, DimTheme} {
		for v := range f.Values(dim) {
			if !opts.Allows(dim, v) {
				return fmt.Errorf("%w: %s %q", ErrUnknownOption, dim, v)
			}
		}
	}
	for cat, values := range f.Demographics {
		for v := range values {
			if !opts.AllowsDemographic(cat, v) {
				return fmt.Errorf("%w: demographic %s=%q", ErrUnknownOption, cat, v)
			}
		}
	}
	return nil
}

func (f *FilterState) remove(dim Dimension, value string) {
	s := f.Values(dim)
	delete(s, value)
	if len(s) == 0 {
		f.setValues(dim, nil)
	}
}

func (f *FilterState) setValues(dim Dimension, s Set) {
	switch dim {
	case DimStance:
		f.Stances = s
	case DimEvidenceRich:
		f.EvidenceRich = s
	case DimTheme:
		f.Themes = s
	}
}

func addTo(s Set, v string) Set {
	if s == nil {
		s = make(Set, 1)
	}
	s[v] = struct{}{}
	return s
}

func setEqual(a, b Set) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b.Has(v) {
			return false
		}
	}
	return true
}

func countNonEmpty(m map[string]Set) int {
	n := 0
	for _, s := range m {
		if len(s) > 0 {
			n++
		}
	}
	return n
}
