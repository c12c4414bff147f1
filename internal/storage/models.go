package storage

import (
	"time"

	"github.com/pders01/consult/internal/facet"
)

// Favourite is a bookmarked response within one question.
type Favourite struct {
	Consultation string    `json:"consultation"`
	Question     string    `json:"question"`
	ResponseID   string    `json:"response_id"`
	Excerpt      string    `json:"excerpt,omitempty"`
	AddedAt      time.Time `json:"added_at"`
}

// Preset is a named filter state saved for one question.
type Preset struct {
	Name         string            `json:"name"`
	Consultation string            `json:"consultation"`
	Question     string            `json:"question"`
	Filters      facet.FilterState `json:"filters"`
	SavedAt      time.Time         `json:"saved_at"`
}
