package search

import (
	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/facet"
)

// Filter selects the accumulated records that satisfy a filter state.
// The returned slice preserves input order.
type Filter interface {
	Visible(records []api.ResponseRecord, f facet.FilterState) ([]api.ResponseRecord, error)
}

// DebugStatser provides lightweight stats for visibility/debugging.
type DebugStatser interface {
	DocCount() (int, error)
}
