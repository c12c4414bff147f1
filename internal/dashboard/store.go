package dashboard

import (
	"slices"
	"sync"

	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/facet"
)

// Phase is the coarse state of the current fetch session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseCancelled
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseCancelled:
		return "cancelled"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrorKind classifies the last fetch failure for display.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrNetwork
	ErrServer
	ErrDecode
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrNetwork:
		return "network"
	case ErrServer:
		return "server"
	case ErrDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Session is one paging sequence for a fixed filter state.
type Session struct {
	Page             int
	HasMore          bool
	Records          []api.ResponseRecord
	Loading          bool
	ErrKind          ErrorKind
	Err              error
	RespondentsTotal int
	FilteredTotal    int
	Themes           []facet.Theme
	Aggregations     map[string]int
	Demographics     map[string][]string
	// RequestID names the in-flight request, empty when none.
	RequestID string
}

func freshSession() Session {
	return Session{
		Page:         1,
		HasMore:      true,
		Records:      []api.ResponseRecord{},
		Aggregations: map[string]int{},
		Demographics: map[string][]string{},
	}
}

// Snapshot is an immutable view of the store. Slices and maps are shared
// with later snapshots and must not be modified.
type Snapshot struct {
	Session
	Filters facet.FilterState
	Options facet.Options
	// Visible holds the records that pass the client-side filter, or all
	// records when none is configured.
	Visible []api.ResponseRecord
	Phase   Phase
	Version uint64
}

// Empty reports a successfully settled session that matched nothing.
func (s Snapshot) Empty() bool {
	return s.Phase == PhaseSuccess && !s.Loading && len(s.Visible) == 0
}

// Store holds the state of one dashboard view. Writers are serialized by
// the owning controller; readers may call Snapshot and Subscribe from any
// goroutine.
type Store struct {
	mu      sync.Mutex
	session Session
	filters facet.FilterState
	options facet.Options
	visible []api.ResponseRecord
	phase   Phase
	version uint64
	subs    []chan Snapshot
	closed  bool
}

// NewStore returns an idle store seeded with the stance catalogue.
func NewStore() *Store {
	s := &Store{
		session: freshSession(),
		options: facet.NewOptions(),
	}
	s.visible = s.session.Records
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives the latest snapshot after each
// change. A slow reader only ever sees the most recent value. The channel
// is closed by Close.
func (s *Store) Subscribe() <-chan Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if s.closed {
		close(ch)
		return ch
	}
	ch <- s.snapshotLocked()
	s.subs = append(s.subs, ch)
	return ch
}

// Close closes every subscriber channel. Later mutations are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}

func (s *Store) snapshotLocked() Snapshot {
	sess := s.session
	sess.Records = slices.Clip(sess.Records)
	return Snapshot{
		Session: sess,
		Filters: s.filters.Clone(),
		Options: s.options.Clone(),
		Visible: slices.Clip(s.visible),
		Phase:   s.phase,
		Version: s.version,
	}
}

// mutate applies fn and publishes the result.
func (s *Store) mutate(fn func(*Store)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn(s)
	s.version++
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Replace the unread value; only mutate sends, under s.mu.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *Store) read() (Session, facet.FilterState, facet.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.filters.Clone(), s.options
}

// reset starts a fresh session for f.
func (s *Store) reset(f facet.FilterState) {
	s.mutate(func(s *Store) {
		s.filters = f.Clone()
		s.session = freshSession()
		s.session.Loading = true
		s.visible = s.session.Records
		s.phase = PhaseLoading
	})
}

func (s *Store) begin(requestID string) {
	s.mutate(func(s *Store) {
		s.session.Loading = true
		s.session.ErrKind = ErrNone
		s.session.Err = nil
		s.session.RequestID = requestID
		s.phase = PhaseLoading
	})
}

func (s *Store) apply(page *api.Page, visible func([]api.ResponseRecord, facet.FilterState) []api.ResponseRecord) {
	s.mutate(func(s *Store) {
		sess := &s.session
		sess.Records = append(sess.Records, page.Records...)
		sess.RespondentsTotal = page.RespondentsTotal
		sess.FilteredTotal = page.FilteredTotal
		if page.Meta != nil {
			sess.Themes = page.Meta.Themes
			sess.Aggregations = page.Meta.Aggregations
			sess.Demographics = page.Meta.Demographics
			s.options.Observe(page.Meta.Themes, page.Meta.Demographics)
		}
		sess.HasMore = page.HasMorePages
		sess.Page++
		sess.Loading = false
		sess.RequestID = ""
		s.visible = visible(sess.Records, s.filters)
		s.phase = PhaseSuccess
	})
}

func (s *Store) abort() {
	s.mutate(func(s *Store) {
		s.session.Loading = false
		s.session.RequestID = ""
		s.phase = PhaseCancelled
	})
}

func (s *Store) fail(kind ErrorKind, err error) {
	s.mutate(func(s *Store) {
		s.session.Loading = false
		s.session.RequestID = ""
		s.session.ErrKind = kind
		s.session.Err = err
		s.phase = PhaseFailed
	})
}
