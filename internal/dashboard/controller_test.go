package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/facet"
)

func TestController_InitialState(t *testing.T) {
	ctrl := newTestController(t, newFakeSource())

	s := ctrl.Snapshot()
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, 1, s.Page)
	assert.True(t, s.HasMore)
	assert.Empty(t, s.Records)
	assert.False(t, s.Loading)
	assert.False(t, s.Empty())
}

func TestController_PagingScenario(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	s := startWith(t, ctrl, src, firstPage(true, "r1", "r2"))
	assert.Equal(t, []string{"r1", "r2"}, ids(s.Records))
	assert.Equal(t, 2, s.Page)
	assert.True(t, s.HasMore)
	assert.Equal(t, 10, s.RespondentsTotal)
	assert.Equal(t, 10, s.FilteredTotal)

	ctrl.FetchPage()
	call := src.next(t)
	assert.Equal(t, 2, call.req.Page)
	assert.Equal(t, "page=2&page_size=50", call.req.Query())
	call.succeed(page(false, "r3"))

	s = waitFor(t, ctrl, func(s Snapshot) bool { return s.Page == 3 })
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(s.Records))
	assert.False(t, s.HasMore)
	assert.False(t, s.Loading)

	// No more pages: state unchanged and no call made.
	before := ctrl.Snapshot()
	ctrl.FetchPage()
	ctrl.FetchPage()
	src.none(t, 50*time.Millisecond)
	after := ctrl.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Records, after.Records)
}

func TestController_LoadingSetSynchronously(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	ctrl.Start()
	s := ctrl.Snapshot()
	assert.True(t, s.Loading)
	assert.Equal(t, PhaseLoading, s.Phase)
	assert.NotEmpty(t, s.RequestID)

	src.next(t).succeed(page(false))
	s = waitFor(t, ctrl, settled)
	assert.Empty(t, s.RequestID)
}

func TestController_ResetBeforeFetchResolves(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src, WithDebounce(200*time.Millisecond))

	startWith(t, ctrl, src, firstPage(true, "r1", "r2"))

	changes := []func() error{
		func() error { return ctrl.SetSearchText("rail") },
		func() error { return ctrl.Toggle(facet.DimStance, "AGREEMENT") },
		func() error { return ctrl.Toggle(facet.DimEvidenceRich, facet.EvidenceRichValue) },
		func() error { return ctrl.Toggle(facet.DimTheme, "t1") },
		func() error { return ctrl.ToggleDemographic("region", "north") },
	}
	for i, change := range changes {
		require.NoError(t, change(), "change %d", i)

		s := ctrl.Snapshot()
		assert.Equal(t, 1, s.Page, "change %d", i)
		assert.Empty(t, s.Records, "change %d", i)
		assert.True(t, s.HasMore, "change %d", i)
		assert.True(t, s.Loading, "change %d", i)
		assert.Equal(t, ErrNone, s.ErrKind, "change %d", i)
		assert.Equal(t, PhaseLoading, s.Phase, "change %d", i)
	}
	src.none(t, 50*time.Millisecond)
}

func TestController_DebounceIssuesOneFetchWithLastState(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src, WithDebounce(80*time.Millisecond))

	for _, text := range []string{"r", "ra", "rai", "rail"} {
		require.NoError(t, ctrl.SetSearchText(text))
		time.Sleep(5 * time.Millisecond)
	}

	call := src.next(t)
	assert.Equal(t, "rail", call.req.Filters.SearchText)
	assert.Equal(t, "searchValue=rail&page=1&page_size=50", call.req.Query())
	src.none(t, 100*time.Millisecond)

	call.succeed(page(false, "r9"))
	s := waitFor(t, ctrl, settled)
	assert.Equal(t, []string{"r9"}, ids(s.Records))
}

func TestController_StaleResultNeverApplied(t *testing.T) {
	src := newFakeSource()
	src.ignoreCancel = true
	ctrl := newTestController(t, src)

	ctrl.Start()
	callA := src.next(t)

	require.NoError(t, ctrl.SetSearchText("b"))
	callB := src.next(t)
	assert.Equal(t, "b", callB.req.Filters.SearchText)

	// A's context was cancelled when B superseded it.
	select {
	case <-callA.ctx.Done():
	case <-time.After(waitTimeout):
		t.Fatal("superseded request was not cancelled")
	}

	callB.succeed(firstPage(true, "b1"))
	waitFor(t, ctrl, func(s Snapshot) bool { return s.Phase == PhaseSuccess })

	// A resolves after B was applied.
	callA.succeed(firstPage(true, "a1", "a2"))
	ctrl.Wait()

	s := ctrl.Snapshot()
	assert.Equal(t, []string{"b1"}, ids(s.Records))
	assert.Equal(t, "b", s.Filters.SearchText)
	assert.Equal(t, 2, s.Page)
	assert.False(t, s.Loading)
}

func TestController_SupersededFailureIsSilent(t *testing.T) {
	src := newFakeSource()
	src.ignoreCancel = true
	ctrl := newTestController(t, src)

	startWith(t, ctrl, src, firstPage(true, "r1"))

	ctrl.FetchPage()
	first := src.next(t)
	ctrl.FetchPage()
	second := src.next(t)
	assert.Equal(t, 2, second.req.Page)

	first.fail(errors.New("connection reset"))
	second.succeed(page(false, "r2"))
	waitFor(t, ctrl, settled)
	ctrl.Wait()

	s := ctrl.Snapshot()
	assert.Equal(t, ErrNone, s.ErrKind)
	assert.Equal(t, PhaseSuccess, s.Phase)
	assert.Equal(t, []string{"r1", "r2"}, ids(s.Records))
}

func TestController_AbortDuringSecondPage(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	startWith(t, ctrl, src, firstPage(true, "r1", "r2"))

	ctrl.FetchPage()
	src.next(t)
	ctrl.Abort()

	s := waitFor(t, ctrl, settled)
	assert.Equal(t, []string{"r1", "r2"}, ids(s.Records))
	assert.False(t, s.Loading)
	assert.Equal(t, ErrNone, s.ErrKind)
	assert.NoError(t, s.Err)
	assert.Equal(t, PhaseCancelled, s.Phase)
	assert.True(t, s.HasMore)
	assert.Equal(t, 2, s.Page)
}

func TestController_TransportAbortClearsLoading(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	startWith(t, ctrl, src, firstPage(true, "r1"))

	ctrl.FetchPage()
	src.next(t).fail(fmt.Errorf("fetching: %w", context.Canceled))

	s := waitFor(t, ctrl, settled)
	assert.Equal(t, []string{"r1"}, ids(s.Records))
	assert.Equal(t, ErrNone, s.ErrKind)
	assert.Equal(t, PhaseCancelled, s.Phase)
}

func TestController_FailureKeepsRecordsAndRetry(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	startWith(t, ctrl, src, firstPage(true, "r1", "r2"))

	ctrl.FetchPage()
	src.next(t).fail(&api.StatusError{StatusCode: http.StatusBadGateway, URL: "/x"})

	s := waitFor(t, ctrl, settled)
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.Equal(t, ErrServer, s.ErrKind)
	require.Error(t, s.Err)
	assert.Equal(t, []string{"r1", "r2"}, ids(s.Records))
	assert.True(t, s.HasMore)
	assert.Equal(t, 2, s.Page)
	assert.False(t, s.Empty())

	ctrl.Retry()
	assert.Equal(t, ErrNone, ctrl.Snapshot().ErrKind)
	call := src.next(t)
	assert.Equal(t, 2, call.req.Page)
	call.succeed(page(false, "r3"))

	s = waitFor(t, ctrl, func(s Snapshot) bool { return s.Phase == PhaseSuccess })
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(s.Records))
}

func TestController_FilterChangeClearsError(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	ctrl.Start()
	src.next(t).fail(errors.New("dial tcp: connection refused"))
	s := waitFor(t, ctrl, settled)
	assert.Equal(t, ErrNetwork, s.ErrKind)

	require.NoError(t, ctrl.SetSearchText("x"))
	s = ctrl.Snapshot()
	assert.Equal(t, ErrNone, s.ErrKind)
	assert.NoError(t, s.Err)
	assert.True(t, s.Loading)

	src.next(t).succeed(page(false))
	s = waitFor(t, ctrl, settled)
	assert.True(t, s.Empty())
}

func TestController_EqualFilterDoesNotReset(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	require.NoError(t, ctrl.SetSearchText("rail"))
	src.next(t).succeed(page(true, "r1"))
	before := waitFor(t, ctrl, settled)

	require.NoError(t, ctrl.SetSearchText("  rail "))
	require.NoError(t, ctrl.SetValues(facet.DimTheme, nil))
	require.NoError(t, ctrl.SetDemographic("region", nil))

	src.none(t, 60*time.Millisecond)
	after := ctrl.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, []string{"r1"}, ids(after.Records))
}

func TestController_UnknownOptionRejected(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	before := ctrl.Snapshot()
	err := ctrl.Toggle(facet.DimTheme, "t1")
	assert.ErrorIs(t, err, facet.ErrUnknownOption)
	assert.ErrorIs(t, ctrl.ToggleDemographic("region", "north"), facet.ErrUnknownOption)
	assert.ErrorIs(t, ctrl.Toggle(facet.DimStance, "MAYBE"), facet.ErrUnknownOption)

	after := ctrl.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, after.Filters.IsEmpty())
	src.none(t, 50*time.Millisecond)
}

func TestController_ObservesOptionsFromFirstPage(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src, WithDebounce(100*time.Millisecond))

	s := startWith(t, ctrl, src, firstPage(true, "r1"))
	assert.Equal(t, map[string]int{"t1": 3, "t2": 1}, s.Aggregations)
	assert.Equal(t, "Cost", s.Options.ThemeName("t1"))
	assert.Equal(t, []string{"region"}, s.Options.Categories())

	require.NoError(t, ctrl.Toggle(facet.DimTheme, "t2"))
	require.NoError(t, ctrl.Toggle(facet.DimTheme, "t1"))
	require.NoError(t, ctrl.SetDemographic("region", []string{"south", "north"}))

	call := src.next(t)
	assert.Equal(t, "themeFilters=t1%2Ct2&demographicFilters%5Bregion%5D=north%2Csouth&page=1&page_size=50", call.req.Query())

	call.succeed(page(false, "r5"))
	s = waitFor(t, ctrl, settled)
	assert.Equal(t, []string{"r5"}, ids(s.Records))
	// Later pages without metadata keep what page 1 reported.
	assert.Equal(t, "Cost", s.Options.ThemeName("t1"))
}

func TestController_ApplyFiltersIsOneChange(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	startWith(t, ctrl, src, firstPage(true, "r1"))
	start := ctrl.Snapshot().Version

	preset := facet.FilterState{
		SearchText:   "bus",
		Stances:      facet.NewSet("DISAGREEMENT"),
		Themes:       facet.NewSet("t2"),
		Demographics: map[string]facet.Set{"region": facet.NewSet("south")},
	}
	require.NoError(t, ctrl.ApplyFilters(preset))
	assert.Equal(t, start+1, ctrl.Snapshot().Version)

	call := src.next(t)
	assert.True(t, preset.Equal(call.req.Filters))
	src.none(t, 50*time.Millisecond)
	call.succeed(page(false))

	bad := facet.FilterState{Themes: facet.NewSet("unknown")}
	assert.ErrorIs(t, ctrl.ApplyFilters(bad), facet.ErrUnknownOption)
}

func TestController_ClearFilters(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	require.NoError(t, ctrl.SetSearchText("x"))
	src.next(t).succeed(page(false, "r1"))
	waitFor(t, ctrl, settled)

	require.NoError(t, ctrl.ClearFilters())
	call := src.next(t)
	assert.True(t, call.req.Filters.IsEmpty())
	call.succeed(page(false))
}

func TestController_ExplicitFetchCancelsPendingDebounce(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src, WithDebounce(80*time.Millisecond))

	require.NoError(t, ctrl.SetSearchText("x"))
	ctrl.FetchPage()
	call := src.next(t)
	assert.Equal(t, "x", call.req.Filters.SearchText)
	src.none(t, 150*time.Millisecond)
	call.succeed(page(false))
}

func TestController_LateDebouncedFetchYieldsToNewChange(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src, WithDebounce(150*time.Millisecond))

	require.NoError(t, ctrl.SetSearchText("ra"))
	ctrl.debounce.mu.Lock()
	old := ctrl.debounce.gen
	ctrl.debounce.mu.Unlock()

	// The first timer fired, but the callback got the lock only after the
	// next keystroke re-armed the debouncer.
	require.NoError(t, ctrl.SetSearchText("rail"))
	ctrl.fetchDebounced(old)

	assert.True(t, ctrl.debounce.Pending(), "quiet period still running")
	src.none(t, 50*time.Millisecond)

	call := src.next(t)
	assert.Equal(t, "rail", call.req.Filters.SearchText)
	src.none(t, 50*time.Millisecond)
	call.succeed(page(false))
}

type agreementOnly struct{}

func (agreementOnly) Visible(recs []api.ResponseRecord, _ facet.FilterState) ([]api.ResponseRecord, error) {
	var out []api.ResponseRecord
	for _, r := range recs {
		if r.Sentiment == "AGREEMENT" {
			out = append(out, r)
		}
	}
	return out, nil
}

type brokenFilter struct{}

func (brokenFilter) Visible([]api.ResponseRecord, facet.FilterState) ([]api.ResponseRecord, error) {
	return nil, errors.New("index unavailable")
}

func TestController_VisibilityFilter(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src, WithVisibilityFilter(agreementOnly{}))

	p := page(false, "r1", "r2", "r3")
	p.Records[1].Sentiment = "AGREEMENT"
	s := startWith(t, ctrl, src, p)

	assert.Len(t, s.Records, 3)
	assert.Equal(t, []string{"r2"}, ids(s.Visible))
}

func TestController_VisibilityFilterErrorShowsAll(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src, WithVisibilityFilter(brokenFilter{}))

	s := startWith(t, ctrl, src, page(false, "r1", "r2"))
	assert.Equal(t, []string{"r1", "r2"}, ids(s.Visible))
}

func TestController_CloseStopsEverything(t *testing.T) {
	src := newFakeSource()
	ctrl := newTestController(t, src)

	sub := ctrl.Subscribe()
	ctrl.Start()
	call := src.next(t)

	require.NoError(t, ctrl.SetSearchText("pending"))
	ctrl.Close()

	select {
	case <-call.ctx.Done():
	case <-time.After(waitTimeout):
		t.Fatal("in-flight request not cancelled by Close")
	}
	assert.ErrorIs(t, ctrl.SetSearchText("later"), ErrClosed)
	ctrl.FetchPage()
	src.none(t, 60*time.Millisecond)

	// Drain then observe the closed channel.
	for range sub {
	}
	ctrl.Close()
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"status", fmt.Errorf("fetch: %w", &api.StatusError{StatusCode: 503}), ErrServer},
		{"not found", &api.StatusError{StatusCode: 404}, ErrServer},
		{"decode", fmt.Errorf("%w: unexpected EOF", api.ErrDecode), ErrDecode},
		{"network", errors.New("dial tcp: i/o timeout"), ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}
