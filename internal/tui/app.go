package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/config"
	"github.com/pders01/consult/internal/dashboard"
	"github.com/pders01/consult/internal/facet"
	"github.com/pders01/consult/internal/search"
	"github.com/pders01/consult/internal/storage"
)

// Dashboard is the part of dashboard.Controller the TUI drives.
type Dashboard interface {
	Snapshot() dashboard.Snapshot
	Subscribe() <-chan dashboard.Snapshot
	Start()
	FetchPage()
	Retry()
	Abort()
	SetSearchText(text string) error
	Toggle(dim facet.Dimension, value string) error
	ToggleDemographic(category, value string) error
	ApplyFilters(next facet.FilterState) error
	ClearFilters() error
}

type AppOption func(*App)

// WithIndexStats shows the client-side index size in the search view.
func WithIndexStats(s search.DebugStatser) AppOption {
	return func(a *App) { a.index = s }
}

type App struct {
	config       *config.Config
	ctrl         Dashboard
	store        *storage.Store
	consultation string
	question     string
	index        search.DebugStatser
	keyHandler   *KeyHandler

	responseList list.Model
	facetList    list.Model
	presetList   list.Model
	searchInput  textinput.Model
	nameInput    textinput.Model
	viewport     viewport.Model
	spinner      spinner.Model
	spinning     bool

	view          View
	previousView  View
	snap          dashboard.Snapshot
	sub           <-chan dashboard.Snapshot
	favourites    map[string]bool
	presets       []*storage.Preset
	current       *api.ResponseRecord
	restore       *facet.FilterState
	loadingDetail bool

	status     string
	statusKind StatusKind

	width           int
	height          int
	glamourRenderer *glamour.TermRenderer
	rendererWidth   int
}

// NewApp builds the dashboard UI for one question. store may be nil, in
// which case favourites and presets are disabled.
func NewApp(ctrl Dashboard, store *storage.Store, cfg *config.Config, consultation, question string, opts ...AppOption) *App {
	responseList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	responseList.Title = listTitle(consultation, question, 0)
	responseList.SetShowStatusBar(false)
	responseList.SetFilteringEnabled(false)
	responseList.SetShowHelp(false)

	facetList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	facetList.Title = "› filters"
	facetList.SetShowStatusBar(false)
	facetList.SetFilteringEnabled(false)
	facetList.SetShowHelp(false)

	presetList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	presetList.Title = "› presets"
	presetList.SetShowStatusBar(false)
	presetList.SetFilteringEnabled(false)
	presetList.SetShowHelp(false)

	si := textinput.New()
	si.Placeholder = "Search free-text answers..."
	si.CharLimit = maxSearchLength

	ni := textinput.New()
	ni.Placeholder = "Preset name..."
	ni.CharLimit = 64

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(AccentColor)

	app := &App{
		config:       cfg,
		ctrl:         ctrl,
		store:        store,
		consultation: consultation,
		question:     question,
		responseList: responseList,
		facetList:    facetList,
		presetList:   presetList,
		searchInput:  si,
		nameInput:    ni,
		viewport:     viewport.New(0, 0),
		spinner:      sp,
		view:         ViewResponses,
		previousView: ViewResponses,
		snap:         ctrl.Snapshot(),
		favourites:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(app)
	}

	app.keyHandler = NewKeyHandler(app, cfg)

	return app
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	maxWidth := a.config.UI.Detail.WordWrapMaxWidth
	minWidth := a.config.UI.Detail.WordWrapMinWidth

	wordWrapWidth := (a.width * 9) / 10
	if maxWidth > 0 && wordWrapWidth > maxWidth {
		wordWrapWidth = maxWidth
	}
	if wordWrapWidth < minWidth {
		wordWrapWidth = minWidth
	}
	if a.width < 50 {
		wordWrapWidth = max(a.width-4, 20)
	}

	if a.glamourRenderer == nil || abs(a.rendererWidth-wordWrapWidth) > 10 {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wordWrapWidth),
		)
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = wordWrapWidth
	}

	return a.glamourRenderer, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (a *App) Init() tea.Cmd {
	a.sub = a.ctrl.Subscribe()
	a.ctrl.Start()
	return tea.Batch(
		waitForSnapshot(a.sub),
		a.loadFavourites(),
		a.loadLastFilters(),
	)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		return a.keyHandler.HandleKey(msg)

	case snapshotMsg:
		return a, tea.Batch(a.applySnapshot(msg.snap), waitForSnapshot(a.sub))

	case snapshotsClosedMsg:
		a.sub = nil
		return a, nil

	case spinner.TickMsg:
		if !a.snap.Loading {
			a.spinning = false
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case favouritesLoadedMsg:
		a.favourites = msg.ids
		a.refreshResponses()

	case favouriteToggledMsg:
		if msg.err != nil {
			a.setStatus(wrapErr("favourite", msg.err).Error(), StatusError)
			break
		}
		if msg.added {
			a.favourites[msg.id] = true
		} else {
			delete(a.favourites, msg.id)
		}
		a.refreshResponses()
		a.setStatus(MsgFavourite(msg.added), StatusSuccess)

	case presetsLoadedMsg:
		a.presets = msg.presets
		a.refreshPresets()
		if len(msg.presets) == 0 && a.view == ViewPresets {
			a.setStatus(MsgNoPresets, StatusInfo)
		}

	case presetSavedMsg:
		if msg.err != nil {
			a.setStatus(wrapErr("saving preset", msg.err).Error(), StatusError)
			break
		}
		a.view = a.previousView
		a.nameInput.Reset()
		a.nameInput.Blur()
		a.setStatus(MsgPresetSaved+": "+msg.name, StatusSuccess)

	case presetDeletedMsg:
		if msg.err != nil {
			a.setStatus(wrapErr("deleting preset", msg.err).Error(), StatusError)
			break
		}
		a.setStatus(MsgPresetDeleted, StatusSuccess)
		return a, a.loadPresets()

	case lastFiltersMsg:
		f := msg.filters
		a.restore = &f
		a.maybeRestore()

	case detailRenderedMsg:
		if a.view == ViewDetail && a.current != nil && a.current.Identifier == msg.id {
			a.viewport.SetContent(msg.content)
			a.viewport.GotoTop()
			a.loadingDetail = false
		}

	case errorMsg:
		a.setStatus(msg.err.Error(), StatusError)
	}

	switch a.view {
	case ViewResponses, ViewSearch:
		var cmd tea.Cmd
		a.responseList, cmd = a.responseList.Update(msg)
		cmds = append(cmds, cmd)
	case ViewFacets:
		var cmd tea.Cmd
		a.facetList, cmd = a.facetList.Update(msg)
		cmds = append(cmds, cmd)
	case ViewPresets:
		var cmd tea.Cmd
		a.presetList, cmd = a.presetList.Update(msg)
		cmds = append(cmds, cmd)
	case ViewDetail:
		switch msg.(type) {
		case tea.WindowSizeMsg, tea.MouseMsg:
			var cmd tea.Cmd
			a.viewport, cmd = a.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return a, tea.Batch(cmds...)
}

// listTitle names the question, shortening long slugs from the middle.
func listTitle(consultation, question string, width int) string {
	title := fmt.Sprintf("%s / %s", consultation, question)
	if width > 8 {
		title = truncateMiddle(title, width-8)
	}
	return "› " + title
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height
	a.responseList.Title = listTitle(a.consultation, a.question, width)
	// Title, separator and two status lines.
	a.responseList.SetSize(width, height-4)
	a.facetList.SetSize(width, height-4)
	a.presetList.SetSize(width, height-4)
	a.viewport.Width = width
	a.viewport.Height = height - 4

	inputWidth := width - 8
	if inputWidth < 20 {
		inputWidth = width
	}
	a.searchInput.Width = inputWidth
	a.nameInput.Width = inputWidth
}

// applySnapshot takes the latest controller state into the views.
func (a *App) applySnapshot(s dashboard.Snapshot) tea.Cmd {
	a.snap = s
	a.refreshResponses()
	if a.view == ViewFacets {
		a.refreshFacets()
	}
	a.maybeRestore()

	if s.Loading && !a.spinning {
		a.spinning = true
		return a.spinner.Tick
	}
	return nil
}

// maybeRestore applies the remembered filters once the first page has
// reported the valid options.
func (a *App) maybeRestore() {
	if a.restore == nil || a.snap.Phase != dashboard.PhaseSuccess {
		return
	}
	f := *a.restore
	a.restore = nil
	if err := a.ctrl.ApplyFilters(f); err != nil {
		a.setStatus(wrapErr("restoring last filters", err).Error(), StatusWarn)
	}
}

func (a *App) refreshResponses() {
	maxPreview := a.config.UI.Detail.MaxPreviewLength
	items := make([]list.Item, len(a.snap.Visible))
	for i, rec := range a.snap.Visible {
		items[i] = responseItem{
			rec:       rec,
			favourite: a.favourites[rec.Identifier],
			stance:    a.snap.Options.StanceLabel(rec.Sentiment),
			preview:   singleLine(search.Snippet(rec.FreeText, a.snap.Filters.SearchText, maxPreview)),
		}
	}
	idx := a.responseList.Index()
	a.responseList.SetItems(items)
	if idx < len(items) {
		a.responseList.Select(idx)
	}
}

func (a *App) refreshFacets() {
	idx := a.facetList.Index()
	items := buildFacetItems(a.snap)
	a.facetList.SetItems(items)
	if idx < len(items) {
		a.facetList.Select(idx)
	}
}

func (a *App) refreshPresets() {
	items := make([]list.Item, len(a.presets))
	for i, p := range a.presets {
		items[i] = presetItem{preset: p, summary: summarizeFilters(p.Filters, a.snap.Options)}
	}
	a.presetList.SetItems(items)
}

func (a *App) setStatus(text string, kind StatusKind) {
	a.status = text
	a.statusKind = kind
}

func (a *App) clearStatus() {
	a.status = ""
	a.statusKind = StatusInfo
}

// maybeLoadMore fetches the next page when one exists and nothing is in
// flight. It reports whether a fetch was started.
func (a *App) maybeLoadMore() bool {
	if !a.snap.HasMore || a.snap.Loading || a.snap.Err != nil {
		return false
	}
	a.ctrl.FetchPage()
	// The controller publishes Loading right away; mirror it so repeated
	// key presses before the snapshot arrives do not refetch.
	a.snap.Loading = true
	return true
}

func (a *App) selectedResponse() (api.ResponseRecord, bool) {
	if i, ok := a.responseList.SelectedItem().(responseItem); ok {
		return i.rec, true
	}
	return api.ResponseRecord{}, false
}

func (a *App) quit() (tea.Model, tea.Cmd) {
	a.saveLastFilters()
	return a, tea.Quit
}

func (a *App) View() string {
	bodyHeight := a.height - 4
	var content string

	switch a.view {
	case ViewResponses:
		if len(a.snap.Visible) == 0 {
			hint := MsgLoading
			if !a.snap.Loading {
				hint = MsgNoMatches
			}
			content = renderCentered(a.width, bodyHeight, GetWelcomeMessage(hint))
		} else {
			content = a.responseList.View()
		}

	case ViewDetail:
		if a.loadingDetail {
			content = renderCentered(a.width, bodyHeight, renderMuted("Rendering response…"))
		} else {
			content = a.viewport.View()
		}

	case ViewSearch:
		header := "› search"
		if a.index != nil {
			if n, err := a.index.DocCount(); err == nil {
				header = fmt.Sprintf("› search • idx: %d docs", n)
			}
		}
		content = lipgloss.NewStyle().
			Width(a.width).
			Height(bodyHeight).
			MaxHeight(bodyHeight).
			Render(lipgloss.JoinVertical(
				lipgloss.Top,
				renderHeader(header, summarizeFilters(a.snap.Filters, a.snap.Options), a.width),
				renderInputFrame(a.searchInput.View(), a.searchInput.Focused(), a.searchInput.Width),
				renderHelp("Type to filter", "Enter: results", a.keyHandler.keys.back+": back"),
				"",
				a.responseList.View(),
			))

	case ViewFacets:
		content = lipgloss.JoinVertical(
			lipgloss.Top,
			renderMuted(truncateEnd(summarizeFilters(a.snap.Filters, a.snap.Options), a.width-2)),
			a.facetList.View(),
		)

	case ViewPresets:
		if len(a.presets) == 0 {
			content = renderCentered(a.width, bodyHeight, renderMuted(MsgNoPresets))
		} else {
			content = a.presetList.View()
		}

	case ViewSavePreset:
		content = renderCentered(a.width, bodyHeight, lipgloss.JoinVertical(
			lipgloss.Center,
			TitleStyle.Render("› save preset"),
			"",
			renderMuted(summarizeFilters(a.snap.Filters, a.snap.Options)),
			"",
			renderInputFrame(a.nameInput.View(), a.nameInput.Focused(), a.nameInput.Width),
			"",
			renderHelp("Enter: save", a.keyHandler.keys.back+": cancel"),
		))
	}

	separator := SeparatorStyle.Render(strings.Repeat("─", max(a.width-1, 0)))
	return lipgloss.JoinVertical(lipgloss.Top, content, separator, a.statusLine(), a.helpLine())
}

// statusLine shows the transient status, or the session state when there
// is none.
func (a *App) statusLine() string {
	text, kind := a.status, a.statusKind
	sessionText, sessionKind := sessionStatus(a.snap, a.keyHandler.keys.retry)
	// Fetch errors and loading always win over stale transient messages.
	if text == "" || a.snap.Err != nil || a.snap.Loading {
		text, kind = sessionText, sessionKind
	}
	if kind == StatusError {
		text = "✗ " + text
	}
	if a.snap.Loading {
		text = a.spinner.View() + " " + text
	}
	return StatusBarStyle.Width(a.width).Render(kind.style().Render(truncateEnd(text, a.width-2)))
}

func (a *App) helpLine() string {
	commands := a.keyHandler.GetHelpForCurrentView()
	if len(commands) == 0 {
		return ""
	}
	return StatusBarStyle.Width(a.width).Render(truncateEnd(strings.Join(commands, " • "), a.width-2))
}

type responseItem struct {
	rec       api.ResponseRecord
	favourite bool
	stance    string
	preview   string
}

func (i responseItem) Title() string {
	title := i.rec.Identifier
	if i.stance != "" {
		title += " " + stanceStyle(i.rec.Sentiment).Render("["+i.stance+"]")
	}
	if i.rec.EvidenceRich {
		title += " " + renderMuted("evidence-rich")
	}
	if i.favourite {
		return FavouriteStyle.Render("★ ") + title
	}
	return title
}

func (i responseItem) Description() string {
	if i.preview == "" {
		return renderMuted("(no free-text answer)")
	}
	return renderMuted(i.preview)
}

func (i responseItem) FilterValue() string { return i.rec.FreeText }

type presetItem struct {
	preset  *storage.Preset
	summary string
}

func (i presetItem) Title() string { return i.preset.Name }

func (i presetItem) Description() string {
	return renderMuted(i.summary + " • " + i.preset.SavedAt.Format("Jan 2, 15:04"))
}

func (i presetItem) FilterValue() string { return i.preset.Name }
