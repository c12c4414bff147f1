package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/consult/internal/config"
)

const maxSearchLength = 256

// keyMap holds the resolved key strings, as reported by tea.KeyMsg.String.
type keyMap struct {
	quit       string
	search     string
	facets     string
	loadMore   string
	favourite  string
	retry      string
	presets    string
	savePreset string
	back       string
}

// newKeyMap prefixes single-character bindings with the modifier. Quit and
// named keys such as "esc" are used as written.
func newKeyMap(cfg *config.Config) keyMap {
	modifier := cfg.Keys.Modifier
	bind := func(k string) string {
		if len([]rune(k)) == 1 && modifier != "" {
			return modifier + "+" + k
		}
		return k
	}
	b := cfg.Keys.Bindings
	return keyMap{
		quit:       b.Quit,
		search:     bind(b.Search),
		facets:     bind(b.Facets),
		loadMore:   bind(b.LoadMore),
		favourite:  bind(b.Favourite),
		retry:      bind(b.Retry),
		presets:    bind(b.Presets),
		savePreset: bind(b.SavePreset),
		back:       b.Back,
	}
}

type KeyHandler struct {
	app         *App
	config      *config.Config
	modifierKey string
	keys        keyMap
}

func NewKeyHandler(app *App, cfg *config.Config) *KeyHandler {
	return &KeyHandler{
		app:         app,
		config:      cfg,
		modifierKey: cfg.Keys.Modifier + "+",
		keys:        newKeyMap(cfg),
	}
}

func (kh *KeyHandler) HandleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return kh.app.quit()
	}

	if kh.isInTextInputMode() {
		return kh.handleTextInputMode(msg)
	}

	if model, cmd, handled := kh.handleCustomKeys(key); handled {
		return model, cmd
	}

	return kh.delegateToCharm(msg)
}

func (kh *KeyHandler) isInTextInputMode() bool {
	switch kh.app.view {
	case ViewSearch:
		return kh.app.searchInput.Focused()
	case ViewSavePreset:
		return kh.app.nameInput.Focused()
	default:
		return false
	}
}

func (kh *KeyHandler) handleTextInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case kh.keys.back, "esc":
		return kh.navigateBack()
	case "enter":
		return kh.handleTextInputEnter()
	case "down", "tab":
		if kh.app.view == ViewSearch && len(kh.app.responseList.Items()) > 0 {
			kh.app.searchInput.Blur()
			return kh.app, nil
		}
		return kh.delegateToTextInput(msg)
	default:
		return kh.delegateToTextInput(msg)
	}
}

func (kh *KeyHandler) handleTextInputEnter() (tea.Model, tea.Cmd) {
	switch kh.app.view {
	case ViewSearch:
		kh.app.searchInput.Blur()
		kh.app.view = ViewResponses
		return kh.app, nil

	case ViewSavePreset:
		name := strings.TrimSpace(kh.app.nameInput.Value())
		if name == "" {
			return kh.app, nil
		}
		return kh.app, kh.app.savePreset(name, kh.app.snap.Filters)

	default:
		return kh.app, nil
	}
}

func (kh *KeyHandler) delegateToTextInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch kh.app.view {
	case ViewSearch:
		prev := sanitizeSearchInput(kh.app.searchInput.Value())
		var cmd tea.Cmd
		kh.app.searchInput, cmd = kh.app.searchInput.Update(msg)

		// The controller debounces, so every edit can be forwarded.
		if next := sanitizeSearchInput(kh.app.searchInput.Value()); next != prev {
			if err := kh.app.ctrl.SetSearchText(next); err != nil {
				kh.app.setStatus(wrapErr("search", err).Error(), StatusError)
			} else {
				kh.app.clearStatus()
			}
		}
		return kh.app, cmd

	case ViewSavePreset:
		var cmd tea.Cmd
		kh.app.nameInput, cmd = kh.app.nameInput.Update(msg)
		return kh.app, cmd

	default:
		return kh.app, nil
	}
}

// handleCustomKeys handles our action keys before the bubbles components
// see them.
func (kh *KeyHandler) handleCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case kh.keys.quit:
		model, cmd := kh.app.quit()
		return model, cmd, true
	case kh.keys.back:
		model, cmd := kh.navigateBack()
		return model, cmd, true
	case kh.keys.search:
		model, cmd := kh.enterSearchMode()
		return model, cmd, true
	case kh.keys.facets:
		return kh.openFacets(), nil, true
	case kh.keys.presets:
		model, cmd := kh.openPresets()
		return model, cmd, true
	case kh.keys.savePreset:
		return kh.openSavePreset(), nil, true
	case kh.keys.retry:
		kh.retry()
		return kh.app, nil, true
	case kh.keys.loadMore:
		kh.loadMore()
		return kh.app, nil, true
	}

	switch kh.app.view {
	case ViewResponses, ViewSearch:
		return kh.handleResponsesCustomKeys(key)
	case ViewDetail:
		return kh.handleDetailCustomKeys(key)
	case ViewFacets:
		return kh.handleFacetsCustomKeys(key)
	case ViewPresets:
		return kh.handlePresetsCustomKeys(key)
	default:
		return kh.app, nil, false
	}
}

func (kh *KeyHandler) handleResponsesCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case kh.keys.favourite:
		if rec, ok := kh.app.selectedResponse(); ok {
			return kh.app, kh.app.toggleFavourite(rec), true
		}
		return kh.app, nil, true
	case "enter":
		if rec, ok := kh.app.selectedResponse(); ok {
			kh.app.current = &rec
			kh.app.previousView = kh.app.view
			kh.app.view = ViewDetail
			kh.app.loadingDetail = true
			return kh.app, kh.app.renderDetail(rec), true
		}
		return kh.app, nil, true
	case "/":
		model, cmd := kh.enterSearchMode()
		return model, cmd, true
	}
	return kh.app, nil, false
}

func (kh *KeyHandler) handleDetailCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	if key == kh.keys.favourite && kh.app.current != nil {
		return kh.app, kh.app.toggleFavourite(*kh.app.current), true
	}
	return kh.app, nil, false
}

func (kh *KeyHandler) handleFacetsCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case "enter", " ":
		if item, ok := kh.app.facetList.SelectedItem().(facetItem); ok {
			kh.app.toggleFacet(item)
		}
		return kh.app, nil, true
	case "c":
		if err := kh.app.ctrl.ClearFilters(); err != nil {
			kh.app.setStatus(wrapErr("clear filters", err).Error(), StatusError)
		} else {
			kh.app.setStatus(MsgFiltersCleared, StatusSuccess)
			kh.app.snap = kh.app.ctrl.Snapshot()
			kh.app.refreshFacets()
		}
		return kh.app, nil, true
	}
	return kh.app, nil, false
}

func (kh *KeyHandler) handlePresetsCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	item, ok := kh.app.presetList.SelectedItem().(presetItem)
	switch key {
	case "enter":
		if !ok {
			return kh.app, nil, true
		}
		// One filter change: a single reset and a single debounced fetch.
		if err := kh.app.ctrl.ApplyFilters(item.preset.Filters); err != nil {
			kh.app.setStatus(wrapErr("preset "+item.preset.Name, err).Error(), StatusError)
			return kh.app, nil, true
		}
		kh.app.view = ViewResponses
		kh.app.setStatus(MsgPresetApplied(item.preset.Name), StatusSuccess)
		return kh.app, nil, true
	case "d", "delete":
		if !ok {
			return kh.app, nil, true
		}
		return kh.app, kh.app.deletePreset(item.preset.Name), true
	}
	return kh.app, nil, false
}

// delegateToCharm lets the bubbles components handle all keys we don't
// intercept.
func (kh *KeyHandler) delegateToCharm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch kh.app.view {
	case ViewResponses, ViewSearch:
		if kh.app.view == ViewSearch && (msg.String() == "tab" || msg.String() == "shift+tab") {
			kh.app.searchInput.Focus()
			return kh.app, nil
		}
		kh.app.responseList, cmd = kh.app.responseList.Update(msg)
		// Reaching the last item pages in more responses.
		if n := len(kh.app.responseList.Items()); n > 0 && kh.app.responseList.Index() == n-1 {
			kh.app.maybeLoadMore()
		}
		return kh.app, cmd

	case ViewDetail:
		kh.app.viewport, cmd = kh.app.viewport.Update(msg)
		return kh.app, cmd

	case ViewFacets:
		kh.app.facetList, cmd = kh.app.facetList.Update(msg)
		return kh.app, cmd

	case ViewPresets:
		kh.app.presetList, cmd = kh.app.presetList.Update(msg)
		return kh.app, cmd

	default:
		return kh.app, nil
	}
}

// navigateBack returns to the responses list. On the list itself it
// cancels a request in flight.
func (kh *KeyHandler) navigateBack() (tea.Model, tea.Cmd) {
	switch kh.app.view {
	case ViewSavePreset:
		kh.app.view = kh.app.previousView
		kh.app.nameInput.Reset()
		kh.app.nameInput.Blur()
	case ViewSearch:
		kh.app.searchInput.Blur()
		kh.app.view = ViewResponses
	case ViewDetail:
		kh.app.view = kh.app.previousView
		if kh.app.view == ViewDetail {
			kh.app.view = ViewResponses
		}
		kh.app.current = nil
		kh.app.loadingDetail = false
	case ViewFacets, ViewPresets:
		kh.app.view = ViewResponses
	case ViewResponses:
		if kh.app.snap.Loading {
			kh.app.ctrl.Abort()
		}
	}
	return kh.app, nil
}

func (kh *KeyHandler) enterSearchMode() (tea.Model, tea.Cmd) {
	if kh.app.view != ViewSearch {
		kh.app.previousView = kh.app.view
	}
	kh.app.view = ViewSearch
	kh.app.searchInput.SetValue(kh.app.snap.Filters.SearchText)
	kh.app.searchInput.CursorEnd()
	return kh.app, kh.app.searchInput.Focus()
}

func (kh *KeyHandler) openFacets() *App {
	kh.app.previousView = kh.app.view
	kh.app.view = ViewFacets
	kh.app.refreshFacets()
	return kh.app
}

func (kh *KeyHandler) openPresets() (tea.Model, tea.Cmd) {
	if kh.app.store == nil {
		kh.app.setStatus(MsgNoStore, StatusWarn)
		return kh.app, nil
	}
	kh.app.previousView = kh.app.view
	kh.app.view = ViewPresets
	kh.app.presetList.SetItems([]list.Item{})
	return kh.app, kh.app.loadPresets()
}

func (kh *KeyHandler) openSavePreset() *App {
	if kh.app.store == nil {
		kh.app.setStatus(MsgNoStore, StatusWarn)
		return kh.app
	}
	if kh.app.view != ViewSavePreset {
		kh.app.previousView = kh.app.view
	}
	kh.app.view = ViewSavePreset
	kh.app.nameInput.Reset()
	kh.app.nameInput.Focus()
	return kh.app
}

func (kh *KeyHandler) retry() {
	if kh.app.snap.Err == nil {
		kh.app.setStatus("Nothing to retry", StatusInfo)
		return
	}
	kh.app.clearStatus()
	kh.app.ctrl.Retry()
	kh.app.snap.Loading = true
}

func (kh *KeyHandler) loadMore() {
	if !kh.app.snap.HasMore {
		kh.app.setStatus("All responses loaded", StatusInfo)
		return
	}
	kh.app.maybeLoadMore()
}

// GetHelpForCurrentView lists the key hints for the status bar.
func (kh *KeyHandler) GetHelpForCurrentView() []string {
	k := kh.keys
	switch kh.app.view {
	case ViewResponses:
		return []string{
			"enter open",
			k.search + " search",
			k.facets + " filters",
			k.loadMore + " more",
			k.favourite + " ★",
			k.presets + " presets",
			k.savePreset + " save",
			k.quit + " quit",
		}
	case ViewDetail:
		return []string{"↑↓ scroll", k.favourite + " ★", k.back + " back"}
	case ViewSearch:
		return []string{"enter results", "tab list", k.back + " back"}
	case ViewFacets:
		return []string{"enter/space toggle", "c clear all", k.back + " back"}
	case ViewPresets:
		return []string{"enter apply", "d delete", k.back + " back"}
	case ViewSavePreset:
		return []string{"enter save", k.back + " cancel"}
	default:
		return nil
	}
}

// sanitizeSearchInput trims, collapses whitespace and limits the query
// length.
func sanitizeSearchInput(input string) string {
	input = strings.Join(strings.Fields(input), " ")
	if r := []rune(input); len(r) > maxSearchLength {
		input = strings.TrimSpace(string(r[:maxSearchLength]))
	}
	return input
}
