package tui

import (
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/config"
	"github.com/pders01/consult/internal/dashboard"
	"github.com/pders01/consult/internal/facet"
	"github.com/pders01/consult/internal/storage"
)

// fakeDashboard records the calls the UI makes and lets tests publish
// snapshots directly.
type fakeDashboard struct {
	snap     dashboard.Snapshot
	started  int
	fetches  int
	retries  int
	aborts   int
	cleared  int
	searches []string
	toggles  []string
	applied  []facet.FilterState
	applyErr error
}

func newFakeDashboard() *fakeDashboard {
	return &fakeDashboard{snap: dashboard.NewStore().Snapshot()}
}

func (f *fakeDashboard) Snapshot() dashboard.Snapshot { return f.snap }

func (f *fakeDashboard) Subscribe() <-chan dashboard.Snapshot {
	ch := make(chan dashboard.Snapshot, 1)
	ch <- f.snap
	return ch
}

func (f *fakeDashboard) Start()     { f.started++ }
func (f *fakeDashboard) FetchPage() { f.fetches++ }
func (f *fakeDashboard) Retry()     { f.retries++ }
func (f *fakeDashboard) Abort()     { f.aborts++ }

func (f *fakeDashboard) SetSearchText(text string) error {
	f.searches = append(f.searches, text)
	f.snap.Filters.SearchText = text
	return nil
}

func (f *fakeDashboard) Toggle(dim facet.Dimension, value string) error {
	if !f.snap.Options.Allows(dim, value) {
		return facet.ErrUnknownOption
	}
	f.toggles = append(f.toggles, dim.String()+"="+value)
	return f.snap.Filters.Toggle(dim, value, f.snap.Options)
}

func (f *fakeDashboard) ToggleDemographic(category, value string) error {
	f.toggles = append(f.toggles, category+"="+value)
	return f.snap.Filters.ToggleDemographic(category, value, f.snap.Options)
}

func (f *fakeDashboard) ApplyFilters(next facet.FilterState) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, next)
	f.snap.Filters = next.Clone()
	return nil
}

func (f *fakeDashboard) ClearFilters() error {
	f.cleared++
	f.snap.Filters = facet.FilterState{}
	return nil
}

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "tui.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestApp(t *testing.T) (*App, *fakeDashboard) {
	t.Helper()
	ctrl := newFakeDashboard()
	app := NewApp(ctrl, testStore(t), config.TestConfig(), "c1", "q1")
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return app, ctrl
}

// loadedSnapshot is a settled first page with theme and demographic
// options observed.
func loadedSnapshot(hasMore bool, ids ...string) dashboard.Snapshot {
	s := dashboard.NewStore().Snapshot()
	s.Options.Observe(
		[]facet.Theme{{ID: "t1", Name: "Cost"}, {ID: "t2", Name: "Access"}},
		map[string][]string{"region": {"north", "south"}},
	)
	s.Aggregations = map[string]int{"t1": 3}
	for _, id := range ids {
		s.Records = append(s.Records, api.ResponseRecord{Identifier: id, FreeText: "answer " + id, Sentiment: "AGREEMENT"})
	}
	s.Visible = s.Records
	s.FilteredTotal = len(ids)
	s.HasMore = hasMore
	s.Page = 2
	s.Phase = dashboard.PhaseSuccess
	s.Version = 3
	return s
}

// publish delivers a snapshot the way the subscription command would.
func publish(app *App, ctrl *fakeDashboard, s dashboard.Snapshot) {
	ctrl.snap = s
	app.Update(snapshotMsg{snap: s})
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "ctrl+f":
		return tea.KeyMsg{Type: tea.KeyCtrlF}
	case "ctrl+l":
		return tea.KeyMsg{Type: tea.KeyCtrlL}
	case "ctrl+b":
		return tea.KeyMsg{Type: tea.KeyCtrlB}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "ctrl+p":
		return tea.KeyMsg{Type: tea.KeyCtrlP}
	case "ctrl+w":
		return tea.KeyMsg{Type: tea.KeyCtrlW}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// run executes a command and feeds its message back, one level deep.
func run(app *App, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			run(app, c)
		}
		return
	}
	if msg != nil {
		app.Update(msg)
	}
}
