package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/debuglog"
	"github.com/pders01/consult/internal/facet"
)

// ErrClosed is returned by mutations after Close.
var ErrClosed = errors.New("dashboard closed")

// VisibilityFilter narrows accumulated records on the client, for backends
// that ignore some filter parameters.
type VisibilityFilter interface {
	Visible(records []api.ResponseRecord, f facet.FilterState) ([]api.ResponseRecord, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce sets the quiet period between a filter change and its fetch.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = NewDebouncer(d) }
}

// WithPageSize sets the number of records requested per page.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithVisibilityFilter enables client-side filtering of accumulated records.
func WithVisibilityFilter(v VisibilityFilter) Option {
	return func(c *Controller) { c.visibility = v }
}

// WithStore injects the state container, mainly for tests.
func WithStore(s *Store) Option {
	return func(c *Controller) { c.store = s }
}

// Controller drives paginated, filtered fetches for one question. Filter
// changes reset the session and are debounced; page fetches supersede any
// request still in flight. It is safe for concurrent use.
type Controller struct {
	mu           sync.Mutex
	src          api.Source
	consultation string
	question     string
	pageSize     int
	store        *Store
	debounce     *Debouncer
	visibility   VisibilityFilter

	ctx    context.Context
	cancel context.CancelFunc
	active *token
	wg     sync.WaitGroup
	closed bool
}

// New creates a controller for one consultation question. Nothing is
// fetched until Start or a filter change.
func New(src api.Source, consultation, question string, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		src:          src,
		consultation: consultation,
		question:     question,
		pageSize:     facet.DefaultPageSize,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewStore()
	}
	if c.debounce == nil {
		c.debounce = NewDebouncer(DefaultDebounce)
	}
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	return c.store.Snapshot()
}

// Subscribe returns a channel of state snapshots, latest value wins.
func (c *Controller) Subscribe() <-chan Snapshot {
	return c.store.Subscribe()
}

// Start fetches the first page of the current filter state immediately.
func (c *Controller) Start() {
	c.FetchPage()
}

// FetchPage requests the next page of the current session. It is a no-op
// when the server reported no further pages. A request still in flight is
// cancelled and its result discarded.
func (c *Controller) FetchPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchLocked()
}

// fetchDebounced is the debounced form of FetchPage. It gives way when the
// filters changed again while it waited for the lock.
func (c *Controller) fetchDebounced(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.debounce.Current(gen) {
		debuglog.Debugf("debounced fetch superseded (generation %d)", gen)
		return
	}
	c.fetchLocked()
}

func (c *Controller) fetchLocked() {
	if c.closed {
		return
	}
	sess, filters, _ := c.store.read()
	if !sess.HasMore {
		return
	}
	// An explicit fetch makes a pending debounced one redundant.
	c.debounce.Stop()
	c.supersedeLocked()

	tok := newToken(c.ctx)
	c.active = tok
	c.store.begin(tok.id.String())

	req := api.PageRequest{
		Consultation: c.consultation,
		Question:     c.question,
		Filters:      filters,
		Page:         sess.Page,
		PageSize:     c.pageSize,
	}
	debuglog.WithFields(map[string]interface{}{
		"token": tok.String(),
		"page":  req.Page,
	}).Debugf("fetching %s/%s", c.consultation, c.question)

	c.wg.Add(1)
	go c.run(tok, req)
}

// Retry re-issues the current page after a failure. Accumulated records
// are kept.
func (c *Controller) Retry() {
	c.FetchPage()
}

// Abort cancels the in-flight request without starting another. The
// session keeps its records and leaves the loading state.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.cancel()
	}
}

func (c *Controller) run(tok *token, req api.PageRequest) {
	defer c.wg.Done()

	page, err := c.src.FetchPage(tok.ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if tok.stale {
		debuglog.Debugf("discarding superseded page %d (token %s)", req.Page, tok)
		return
	}
	c.active = nil
	tok.cancel()

	switch {
	case err == nil:
		c.store.apply(page, c.visible)
	case api.IsCancelled(err):
		debuglog.Infof("page %d aborted (token %s)", req.Page, tok)
		c.store.abort()
	default:
		kind := classify(err)
		debuglog.WithFields(map[string]interface{}{
			"token": tok.String(),
			"page":  req.Page,
			"kind":  kind.String(),
		}).Warnf("fetch failed: %v", err)
		c.store.fail(kind, err)
	}
}

func (c *Controller) visible(records []api.ResponseRecord, f facet.FilterState) []api.ResponseRecord {
	if c.visibility == nil {
		return records
	}
	out, err := c.visibility.Visible(records, f)
	if err != nil {
		debuglog.Warnf("client-side filter failed, showing all records: %v", err)
		return records
	}
	return out
}

func classify(err error) ErrorKind {
	var se *api.StatusError
	switch {
	case errors.As(err, &se):
		return ErrServer
	case errors.Is(err, api.ErrDecode):
		return ErrDecode
	default:
		return ErrNetwork
	}
}

// supersedeLocked cancels the active request, if any, so that its result
// is never applied.
func (c *Controller) supersedeLocked() {
	if c.active == nil {
		return
	}
	debuglog.Debugf("superseding token %s", c.active)
	c.active.supersede()
	c.active = nil
}

// SetSearchText replaces the free-text search.
func (c *Controller) SetSearchText(text string) error {
	return c.change(func(f *facet.FilterState, _ facet.Options) error {
		f.SearchText = text
		return nil
	})
}

// Toggle flips one value of a stance, evidence-rich or theme facet.
func (c *Controller) Toggle(dim facet.Dimension, value string) error {
	return c.change(func(f *facet.FilterState, opts facet.Options) error {
		return f.Toggle(dim, value, opts)
	})
}

// SetValues replaces the selection of one facet.
func (c *Controller) SetValues(dim facet.Dimension, values []string) error {
	return c.change(func(f *facet.FilterState, opts facet.Options) error {
		return f.SetValues(dim, values, opts)
	})
}

// ToggleDemographic flips one value within a demographic category.
func (c *Controller) ToggleDemographic(category, value string) error {
	return c.change(func(f *facet.FilterState, opts facet.Options) error {
		return f.ToggleDemographic(category, value, opts)
	})
}

// SetDemographic replaces the selection of one demographic category.
func (c *Controller) SetDemographic(category string, values []string) error {
	return c.change(func(f *facet.FilterState, opts facet.Options) error {
		return f.SetDemographic(category, values, opts)
	})
}

// ApplyFilters replaces the whole filter state in one change, as when a
// preset is loaded. Every value must be a known option.
func (c *Controller) ApplyFilters(next facet.FilterState) error {
	return c.change(func(f *facet.FilterState, opts facet.Options) error {
		if err := next.Validate(opts); err != nil {
			return err
		}
		*f = next.Clone()
		return nil
	})
}

// ClearFilters removes every constraint.
func (c *Controller) ClearFilters() error {
	return c.change(func(f *facet.FilterState, _ facet.Options) error {
		*f = facet.FilterState{}
		return nil
	})
}

// change applies mutate to a copy of the filter state. A result equal to
// the current state is not a change; otherwise the session is reset and a
// debounced fetch is scheduled.
func (c *Controller) change(mutate func(*facet.FilterState, facet.Options) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	_, current, opts := c.store.read()
	next := current.Clone()
	if err := mutate(&next, opts); err != nil {
		return err
	}
	if next.Equal(current) {
		return nil
	}

	c.supersedeLocked()
	c.store.reset(next)
	c.debounce.Trigger(c.fetchDebounced)
	return nil
}

// Close cancels in-flight work, stops the debounce timer and closes
// subscriber channels. It does not wait; see Wait.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.debounce.Stop()
	c.supersedeLocked()
	c.cancel()
	c.mu.Unlock()

	c.store.Close()
}

// Wait blocks until any fired debounce callback and every fetch goroutine
// has returned.
func (c *Controller) Wait() {
	c.debounce.Wait()
	c.wg.Wait()
}
