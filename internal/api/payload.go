package api

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/pders01/consult/internal/facet"
)

// Kind tags which backend contract a Payload came from.
type Kind int

const (
	KindModular Kind = iota
	KindLegacy
)

func (k Kind) String() string {
	switch k {
	case KindModular:
		return "modular"
	case KindLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseKind maps a configuration value onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "modular":
		return KindModular, nil
	case "legacy":
		return KindLegacy, nil
	default:
		return 0, fmt.Errorf("unknown source %q (want modular or legacy)", s)
	}
}

type responsesBody struct {
	AllRespondents   []ResponseRecord `json:"all_respondents"`
	RespondentsTotal int              `json:"respondents_total"`
	FilteredTotal    int              `json:"filtered_total"`
	HasMorePages     bool             `json:"has_more_pages"`
}

type aggregationsBody struct {
	ThemeAggregations map[string]int `json:"theme_aggregations"`
}

type themeInfoBody struct {
	Themes []facet.Theme `json:"themes"`
}

type demographicsBody struct {
	DemographicOptions map[string][]string `json:"demographic_options"`
}

type themeMapping struct {
	Value facet.ID `json:"value"`
	Label string   `json:"label"`
	Count int      `json:"count"`
}

type legacyBody struct {
	responsesBody
	ThemeMappings      []themeMapping      `json:"theme_mappings"`
	DemographicOptions map[string][]string `json:"demographic_options"`
}

// Payload is the raw decoded body of one page request. Exactly the fields
// belonging to Kind are populated; Normalize turns it into a Page.
type Payload struct {
	Kind Kind

	// KindModular
	Responses    *responsesBody
	Aggregations *aggregationsBody
	ThemeInfo    *themeInfoBody
	Demographics *demographicsBody

	// KindLegacy
	Legacy *legacyBody
}

// Normalize converts either backend shape into a Page. withMeta controls
// whether first-page metadata is attached.
func Normalize(p Payload, withMeta bool) (*Page, error) {
	switch p.Kind {
	case KindModular:
		if p.Responses == nil {
			return nil, fmt.Errorf("%w: modular payload without responses", ErrDecode)
		}
		page := pageFrom(p.Responses)
		if withMeta {
			meta := &Metadata{}
			if p.ThemeInfo != nil {
				meta.Themes = p.ThemeInfo.Themes
			}
			if p.Aggregations != nil {
				meta.Aggregations = p.Aggregations.ThemeAggregations
			}
			if p.Demographics != nil {
				meta.Demographics = p.Demographics.DemographicOptions
			}
			page.Meta = fillMeta(meta)
		}
		return page, nil

	case KindLegacy:
		if p.Legacy == nil {
			return nil, fmt.Errorf("%w: legacy payload without body", ErrDecode)
		}
		page := pageFrom(&p.Legacy.responsesBody)
		if withMeta {
			meta := &Metadata{
				Aggregations: make(map[string]int, len(p.Legacy.ThemeMappings)),
				Demographics: p.Legacy.DemographicOptions,
			}
			for _, m := range p.Legacy.ThemeMappings {
				id := string(m.Value)
				meta.Themes = append(meta.Themes, facet.Theme{ID: id, Name: m.Label})
				meta.Aggregations[id] = m.Count
			}
			page.Meta = fillMeta(meta)
		}
		return page, nil

	default:
		return nil, fmt.Errorf("%w: unknown payload kind %d", ErrDecode, p.Kind)
	}
}

func pageFrom(b *responsesBody) *Page {
	records := b.AllRespondents
	if records == nil {
		records = []ResponseRecord{}
	}
	return &Page{
		Records:          records,
		RespondentsTotal: b.RespondentsTotal,
		FilteredTotal:    b.FilteredTotal,
		HasMorePages:     b.HasMorePages,
	}
}

// fillMeta ensures metadata collections are non-nil so that a first page
// always replaces the previous session's metadata. Demographic values are
// copied because the bodies may be shared through the metadata cache.
func fillMeta(m *Metadata) *Metadata {
	if m.Themes == nil {
		m.Themes = []facet.Theme{}
	}
	if m.Aggregations == nil {
		m.Aggregations = map[string]int{}
	}
	demographics := make(map[string][]string, len(m.Demographics))
	for cat, values := range m.Demographics {
		demographics[cat] = slices.Clone(values)
	}
	m.Demographics = demographics
	return m
}

func decodeInto(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}
