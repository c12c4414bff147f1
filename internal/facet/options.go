package facet

import (
	_ "embed"
	"fmt"
	"maps"
	"slices"

	"github.com/pelletier/go-toml/v2"
)

//go:embed stances.toml
var stancesTOML []byte

// EvidenceRichValue is the single toggle value of the evidence-rich facet.
const EvidenceRichValue = "evidence-rich"

// StanceOption is a sentiment-position code with its display label.
type StanceOption struct {
	Code  string `toml:"code"`
	Label string `toml:"label"`
}

type stanceCatalogue struct {
	Stances []StanceOption `toml:"stance"`
}

// Theme describes a theme a response can be mapped to.
type Theme struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Options holds every value observed as valid for each facet.
type Options struct {
	Stances      []StanceOption
	Themes       []Theme
	Demographics map[string][]string
}

// DefaultStances returns the embedded stance catalogue.
func DefaultStances() ([]StanceOption, error) {
	var cat stanceCatalogue
	if err := toml.Unmarshal(stancesTOML, &cat); err != nil {
		return nil, fmt.Errorf("parsing stances.toml: %w", err)
	}
	return cat.Stances, nil
}

// NewOptions returns options seeded with the stance catalogue. Themes and
// demographics are learned later through Observe.
func NewOptions() Options {
	stances, err := DefaultStances()
	if err != nil {
		// The catalogue is compiled in; a parse failure is a build defect.
		panic(err)
	}
	return Options{Stances: stances}
}

// Observe replaces the theme and demographic options with metadata
// reported by the backend. Nil arguments keep the current values.
func (o *Options) Observe(themes []Theme, demographics map[string][]string) {
	if themes != nil {
		o.Themes = slices.Clone(themes)
	}
	if demographics != nil {
		o.Demographics = make(map[string][]string, len(demographics))
		for cat, values := range demographics {
			o.Demographics[cat] = slices.Clone(values)
		}
	}
}

// Clone returns a deep copy.
func (o Options) Clone() Options {
	out := Options{
		Stances: slices.Clone(o.Stances),
		Themes:  slices.Clone(o.Themes),
	}
	if o.Demographics != nil {
		out.Demographics = make(map[string][]string, len(o.Demographics))
		for cat, values := range o.Demographics {
			out.Demographics[cat] = slices.Clone(values)
		}
	}
	return out
}

func (o Options) Allows(dim Dimension, value string) bool {
	switch dim {
	case DimStance:
		return slices.ContainsFunc(o.Stances, func(s StanceOption) bool { return s.Code == value })
	case DimEvidenceRich:
		return value == EvidenceRichValue
	case DimTheme:
		return slices.ContainsFunc(o.Themes, func(t Theme) bool { return t.ID == value })
	default:
		return false
	}
}

func (o Options) AllowsDemographic(category, value string) bool {
	return slices.Contains(o.Demographics[category], value)
}

// Categories returns demographic category names in sorted order.
func (o Options) Categories() []string {
	out := slices.Collect(maps.Keys(o.Demographics))
	slices.Sort(out)
	return out
}

// StanceLabel returns the display label for a stance code, or the code
// itself when unknown.
func (o Options) StanceLabel(code string) string {
	for _, s := range o.Stances {
		if s.Code == code {
			return s.Label
		}
	}
	return code
}

// ThemeName returns the name of a theme id, or the id when unknown.
func (o Options) ThemeName(id string) string {
	for _, t := range o.Themes {
		if t.ID == id {
			return t.Name
		}
	}
	return id
}
