package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/pders01/consult/internal/dashboard"
	"github.com/pders01/consult/internal/facet"
)

// facetItem is one selectable option in the facet picker.
type facetItem struct {
	group    string
	dim      facet.Dimension
	category string // demographic category; empty for the fixed dimensions
	value    string
	label    string
	count    int
	hasCount bool
	selected bool
}

func (i facetItem) Title() string {
	if i.selected {
		return SelectedFacetStyle.Render("[x] " + i.label)
	}
	return "[ ] " + i.label
}

func (i facetItem) Description() string {
	desc := i.group
	if i.hasCount {
		desc += fmt.Sprintf(" • %d", i.count)
	}
	return renderMuted(desc)
}

func (i facetItem) FilterValue() string { return i.label }

// buildFacetItems lists every observed option in a stable order: stances,
// evidence-rich, themes, then demographics by category.
func buildFacetItems(s dashboard.Snapshot) []list.Item {
	var items []list.Item
	f := s.Filters

	for _, st := range s.Options.Stances {
		items = append(items, facetItem{
			group:    "Stance",
			dim:      facet.DimStance,
			value:    st.Code,
			label:    st.Label,
			selected: f.Stances.Has(st.Code),
		})
	}

	items = append(items, facetItem{
		group:    "Evidence",
		dim:      facet.DimEvidenceRich,
		value:    facet.EvidenceRichValue,
		label:    "Evidence-rich only",
		selected: f.EvidenceRich.Has(facet.EvidenceRichValue),
	})

	for _, t := range s.Options.Themes {
		count, ok := s.Aggregations[t.ID]
		label := t.Name
		if label == "" {
			label = t.ID
		}
		items = append(items, facetItem{
			group:    "Theme",
			dim:      facet.DimTheme,
			value:    t.ID,
			label:    label,
			count:    count,
			hasCount: ok,
			selected: f.Themes.Has(t.ID),
		})
	}

	for _, cat := range s.Options.Categories() {
		for _, v := range s.Options.Demographics[cat] {
			items = append(items, facetItem{
				group:    "Demographic: " + cat,
				category: cat,
				value:    v,
				label:    v,
				selected: f.Demographics[cat].Has(v),
			})
		}
	}
	return items
}

// toggleFacet flips the selected option through the controller, which
// resets the session and schedules a debounced fetch.
func (a *App) toggleFacet(item facetItem) {
	var err error
	if item.category != "" {
		err = a.ctrl.ToggleDemographic(item.category, item.value)
	} else {
		err = a.ctrl.Toggle(item.dim, item.value)
	}
	if err != nil {
		a.setStatus(wrapErr("filter", err).Error(), StatusError)
		return
	}
	a.clearStatus()
	// Reflect the change before the controller's snapshot arrives.
	a.snap = a.ctrl.Snapshot()
	a.refreshFacets()
}
