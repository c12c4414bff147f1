package api

import (
	"encoding/json"

	"github.com/pders01/consult/internal/facet"
)

// ResponseRecord is one respondent's answer to a question.
type ResponseRecord struct {
	Identifier     string            `json:"identifier" yaml:"identifier"`
	FreeText       string            `json:"free_text_answer_text" yaml:"free_text"`
	Themes         []facet.Theme     `json:"themes" yaml:"themes,omitempty"`
	Demographics   map[string]string `json:"demographic_data" yaml:"demographics,omitempty"`
	Sentiment      string            `json:"sentiment_position" yaml:"sentiment_position,omitempty"`
	EvidenceRich   bool              `json:"evidence_rich" yaml:"evidence_rich"`
	MultipleChoice []string          `json:"multiple_choice_answer" yaml:"multiple_choice,omitempty"`
}

// UnmarshalJSON decodes a record whose identifier may be numeric.
func (r *ResponseRecord) UnmarshalJSON(data []byte) error {
	type plain ResponseRecord
	aux := struct {
		*plain
		Identifier facet.ID `json:"identifier"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Identifier = string(aux.Identifier)
	return nil
}

// HasTheme reports whether the record is mapped to the theme id.
func (r ResponseRecord) HasTheme(id string) bool {
	for _, t := range r.Themes {
		if t.ID == id {
			return true
		}
	}
	return false
}

// Metadata carries the facet summaries returned for the first page of a
// session.
type Metadata struct {
	Themes       []facet.Theme
	Aggregations map[string]int
	Demographics map[string][]string
}

// Page is the normalized result of one page request, independent of which
// backend shape produced it.
type Page struct {
	Records          []ResponseRecord
	RespondentsTotal int
	FilteredTotal    int
	HasMorePages     bool
	// Meta is set only for page 1.
	Meta *Metadata
}

// PageRequest identifies one page of a filtered question.
type PageRequest struct {
	Consultation string
	Question     string
	Filters      facet.FilterState
	Page         int
	PageSize     int
}

// Query returns the projected query string for the request.
func (r PageRequest) Query() string {
	return facet.BuildQuery(r.Filters, r.Page, r.PageSize)
}
