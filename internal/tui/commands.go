package tui

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/dashboard"
	"github.com/pders01/consult/internal/debuglog"
	"github.com/pders01/consult/internal/facet"
	"github.com/pders01/consult/internal/search"
	"github.com/pders01/consult/internal/storage"
)

var errNoStore = errors.New(MsgNoStore)

type snapshotMsg struct {
	snap dashboard.Snapshot
}

type snapshotsClosedMsg struct{}

type favouritesLoadedMsg struct {
	ids map[string]bool
}

type favouriteToggledMsg struct {
	id    string
	added bool
	err   error
}

type presetsLoadedMsg struct {
	presets []*storage.Preset
}

type presetSavedMsg struct {
	name string
	err  error
}

type presetDeletedMsg struct {
	err error
}

type lastFiltersMsg struct {
	filters facet.FilterState
}

type detailRenderedMsg struct {
	id      string
	content string
}

type errorMsg struct {
	err error
}

// wrapErr formats an error with a contextual prefix.
func wrapErr(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// waitForSnapshot blocks until the controller publishes a new state.
func waitForSnapshot(ch <-chan dashboard.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return snapshotsClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

func (a *App) loadFavourites() tea.Cmd {
	if a.store == nil {
		return nil
	}
	return func() tea.Msg {
		ids, err := a.store.FavouriteIDs(a.consultation, a.question)
		if err != nil {
			return errorMsg{err: wrapErr("loading favourites", err)}
		}
		return favouritesLoadedMsg{ids: ids}
	}
}

func (a *App) toggleFavourite(rec api.ResponseRecord) tea.Cmd {
	return func() tea.Msg {
		if a.store == nil {
			return favouriteToggledMsg{id: rec.Identifier, err: errNoStore}
		}
		added, err := a.store.ToggleFavourite(&storage.Favourite{
			Consultation: a.consultation,
			Question:     a.question,
			ResponseID:   rec.Identifier,
			Excerpt:      search.Snippet(rec.FreeText, "", a.config.UI.Detail.MaxPreviewLength),
		})
		return favouriteToggledMsg{id: rec.Identifier, added: added, err: err}
	}
}

func (a *App) loadPresets() tea.Cmd {
	return func() tea.Msg {
		if a.store == nil {
			return errorMsg{err: errNoStore}
		}
		presets, err := a.store.Presets(a.consultation, a.question)
		if err != nil {
			return errorMsg{err: wrapErr("loading presets", err)}
		}
		return presetsLoadedMsg{presets: presets}
	}
}

func (a *App) savePreset(name string, f facet.FilterState) tea.Cmd {
	return func() tea.Msg {
		if a.store == nil {
			return presetSavedMsg{name: name, err: errNoStore}
		}
		p := &storage.Preset{
			Name:         name,
			Consultation: a.consultation,
			Question:     a.question,
			Filters:      f,
		}
		err := a.store.SavePreset(p)
		return presetSavedMsg{name: p.Name, err: err}
	}
}

func (a *App) deletePreset(name string) tea.Cmd {
	return func() tea.Msg {
		if a.store == nil {
			return presetDeletedMsg{err: errNoStore}
		}
		return presetDeletedMsg{err: a.store.DeletePreset(a.consultation, a.question, name)}
	}
}

func (a *App) loadLastFilters() tea.Cmd {
	if a.store == nil {
		return nil
	}
	return func() tea.Msg {
		f, found, err := a.store.LastFilters(a.consultation, a.question)
		if err != nil {
			debuglog.Warnf("loading last filters: %v", err)
			return nil
		}
		if !found || f.IsEmpty() {
			return nil
		}
		return lastFiltersMsg{filters: f}
	}
}

// saveLastFilters runs synchronously on quit, when commands no longer run.
func (a *App) saveLastFilters() {
	if a.store == nil {
		return
	}
	if err := a.store.SaveLastFilters(a.consultation, a.question, a.snap.Filters); err != nil {
		debuglog.Warnf("saving last filters: %v", err)
	}
}

func (a *App) renderDetail(rec api.ResponseRecord) tea.Cmd {
	opts := a.snap.Options
	favourite := a.favourites[rec.Identifier]
	return func() tea.Msg {
		md := detailMarkdown(rec, opts, favourite)

		r, err := a.getRenderer()
		if err != nil {
			return detailRenderedMsg{id: rec.Identifier, content: "Error initializing renderer: " + err.Error()}
		}
		rendered, err := r.Render(md)
		if err != nil {
			// Fall back to the raw markdown so the loading state always clears.
			return detailRenderedMsg{id: rec.Identifier, content: md}
		}
		return detailRenderedMsg{id: rec.Identifier, content: rendered}
	}
}

func detailMarkdown(rec api.ResponseRecord, opts facet.Options, favourite bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Response %s\n\n", rec.Identifier)
	if favourite {
		b.WriteString("★ *favourite*\n\n")
	}
	if rec.Sentiment != "" {
		fmt.Fprintf(&b, "**Stance:** %s  \n", opts.StanceLabel(rec.Sentiment))
	}
	evidence := "no"
	if rec.EvidenceRich {
		evidence = "yes"
	}
	fmt.Fprintf(&b, "**Evidence-rich:** %s  \n", evidence)

	if len(rec.Themes) > 0 {
		names := make([]string, 0, len(rec.Themes))
		for _, t := range rec.Themes {
			name := opts.ThemeName(t.ID)
			if name == t.ID && t.Name != "" {
				name = t.Name
			}
			names = append(names, name)
		}
		fmt.Fprintf(&b, "**Themes:** %s  \n", strings.Join(names, ", "))
	}
	if len(rec.Demographics) > 0 {
		pairs := make([]string, 0, len(rec.Demographics))
		for cat, v := range rec.Demographics {
			pairs = append(pairs, cat+": "+v)
		}
		slices.Sort(pairs)
		fmt.Fprintf(&b, "**Demographics:** %s  \n", strings.Join(pairs, ", "))
	}
	if len(rec.MultipleChoice) > 0 {
		fmt.Fprintf(&b, "**Multiple choice:** %s  \n", strings.Join(rec.MultipleChoice, ", "))
	}

	b.WriteString("\n---\n\n")
	if strings.TrimSpace(rec.FreeText) == "" {
		b.WriteString("*No free-text answer.*\n")
	} else {
		b.WriteString(rec.FreeText)
		b.WriteString("\n")
	}
	return b.String()
}

// summarizeFilters describes a filter state in one line.
func summarizeFilters(f facet.FilterState, opts facet.Options) string {
	var parts []string
	if s := strings.TrimSpace(f.SearchText); s != "" {
		parts = append(parts, fmt.Sprintf("%q", s))
	}
	if len(f.Stances) > 0 {
		labels := make([]string, 0, len(f.Stances))
		for _, code := range f.Stances.Sorted() {
			labels = append(labels, opts.StanceLabel(code))
		}
		parts = append(parts, strings.Join(labels, "/"))
	}
	if f.EvidenceRich.Has(facet.EvidenceRichValue) {
		parts = append(parts, "evidence-rich")
	}
	switch n := len(f.Themes); {
	case n == 1:
		parts = append(parts, "theme "+opts.ThemeName(f.Themes.Sorted()[0]))
	case n > 1:
		parts = append(parts, fmt.Sprintf("%d themes", n))
	}
	cats := make([]string, 0, len(f.Demographics))
	for cat, values := range f.Demographics {
		if len(values) > 0 {
			cats = append(cats, cat+": "+strings.Join(values.Sorted(), ","))
		}
	}
	slices.Sort(cats)
	parts = append(parts, cats...)

	if len(parts) == 0 {
		return "no filters"
	}
	return strings.Join(parts, " • ")
}
