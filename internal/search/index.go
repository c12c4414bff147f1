package search

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/debuglog"
	"github.com/pders01/consult/internal/facet"
)

const (
	textAnalyzer = "consult_text"
	textField    = "text"
)

// Index is an in-memory bleve index over the free-text answers of one
// session. Documents are keyed by record identifier. A session only ever
// appends, so each call indexes just the new tail; input whose prefix no
// longer matches the indexed records is a new session and triggers a
// rebuild.
type Index struct {
	mu      sync.Mutex
	idx     bleve.Index
	indexed []string
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	return &Index{idx: idx}, nil
}

func newMemIndex() (bleve.Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating search index: %w", err)
	}
	return idx, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	// Unicode word tokens, lowercased, no stop words or stemming, so a
	// prefix query sees every typed word.
	_ = im.AddCustomAnalyzer(textAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	im.DefaultAnalyzer = textAnalyzer

	dm := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = textAnalyzer
	text.Store = false
	text.IncludeTermVectors = false

	dm.AddFieldMappingsAt(textField, text)
	im.DefaultMapping = dm
	return im
}

// Visible returns the records that satisfy f: every search word must
// appear in the free text, as a word or a word prefix, and the record must
// belong to every selected facet.
func (x *Index) Visible(records []api.ResponseRecord, f facet.FilterState) ([]api.ResponseRecord, error) {
	if f.IsEmpty() {
		return records, nil
	}

	var hits map[string]bool
	if terms := tokenize(f.SearchText); len(terms) > 0 {
		var err error
		hits, err = x.match(records, terms)
		if err != nil {
			return nil, err
		}
	}

	out := make([]api.ResponseRecord, 0, len(records))
	for i, r := range records {
		if hits != nil && !hits[docID(i, r)] {
			continue
		}
		if !facetMatch(r, f) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (x *Index) match(records []api.ResponseRecord, terms []string) (map[string]bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.syncLocked(records); err != nil {
		return nil, err
	}

	qs := make([]bleveQuery.Query, 0, len(terms))
	for _, tok := range terms {
		qm := bleve.NewMatchQuery(tok)
		qm.SetField(textField)
		qp := bleve.NewPrefixQuery(tok)
		qp.SetField(textField)
		qs = append(qs, bleve.NewDisjunctionQuery(qm, qp))
	}
	q := bleve.NewConjunctionQuery(qs...)

	size := len(x.indexed)
	if size == 0 {
		return map[string]bool{}, nil
	}
	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	hits := make(map[string]bool, len(res.Hits))
	for _, h := range res.Hits {
		hits[h.ID] = true
	}
	return hits, nil
}

// docID keys a record by its identifier, or by position when the backend
// sent none.
func docID(pos int, r api.ResponseRecord) string {
	if r.Identifier != "" {
		return r.Identifier
	}
	return "#" + strconv.Itoa(pos)
}

// syncLocked brings the index in line with records.
func (x *Index) syncLocked(records []api.ResponseRecord) error {
	if !x.extendsLocked(records) {
		debuglog.Debugf("search: rebuilding index (%d -> %d records)", len(x.indexed), len(records))
		if err := x.rebuildLocked(); err != nil {
			return err
		}
	}
	if len(records) == len(x.indexed) {
		return nil
	}

	batch := x.idx.NewBatch()
	for i := len(x.indexed); i < len(records); i++ {
		id := docID(i, records[i])
		if err := batch.Index(id, map[string]any{
			textField: records[i].FreeText,
		}); err != nil {
			return fmt.Errorf("indexing record %s: %w", id, err)
		}
	}
	if err := x.idx.Batch(batch); err != nil {
		return fmt.Errorf("indexing batch: %w", err)
	}
	for i := len(x.indexed); i < len(records); i++ {
		x.indexed = append(x.indexed, docID(i, records[i]))
	}
	return nil
}

// extendsLocked reports whether records starts with every indexed record,
// in order.
func (x *Index) extendsLocked(records []api.ResponseRecord) bool {
	if len(records) < len(x.indexed) {
		return false
	}
	for i, id := range x.indexed {
		if docID(i, records[i]) != id {
			return false
		}
	}
	return true
}

func (x *Index) rebuildLocked() error {
	idx, err := newMemIndex()
	if err != nil {
		return err
	}
	_ = x.idx.Close()
	x.idx = idx
	x.indexed = nil
	return nil
}

// DocCount reports total documents in the index.
func (x *Index) DocCount() (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n, err := x.idx.DocCount()
	return int(n), err
}

// Close releases the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx.Close()
}

func facetMatch(r api.ResponseRecord, f facet.FilterState) bool {
	if len(f.Stances) > 0 && !f.Stances.Has(r.Sentiment) {
		return false
	}
	if f.EvidenceRich.Has(facet.EvidenceRichValue) && !r.EvidenceRich {
		return false
	}
	if len(f.Themes) > 0 {
		found := false
		for id := range f.Themes {
			if r.HasTheme(id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for cat, values := range f.Demographics {
		if len(values) == 0 {
			continue
		}
		if !values.Has(r.Demographics[cat]) {
			return false
		}
	}
	return true
}
