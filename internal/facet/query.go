package facet

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultPageSize is the number of records requested per page.
const DefaultPageSize = 50

// Query parameter names understood by the backend.
const (
	ParamSearch       = "searchValue"
	ParamStances      = "sentimentFilters"
	ParamThemes       = "themeFilters"
	ParamEvidenceRich = "evidenceRichFilter"
	ParamDemographic  = "demographicFilters"
	ParamPage         = "page"
	ParamPageSize     = "page_size"
)

type param struct {
	key   string
	value string
}

// BuildQuery projects f plus a pagination cursor onto a query string.
// Empty dimensions are omitted. The output is byte-identical for equal
// inputs: parameters appear in a fixed order, set values and demographic
// categories are sorted.
func BuildQuery(f FilterState, page, pageSize int) string {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	params := facetParams(f)
	params = append(params,
		param{ParamPage, strconv.Itoa(page)},
		param{ParamPageSize, strconv.Itoa(pageSize)},
	)
	return encode(params)
}

// FacetQuery projects only the filter dimensions, without pagination.
func FacetQuery(f FilterState) string {
	return encode(facetParams(f))
}

// DemographicKey returns the bracket-qualified parameter name for a category.
func DemographicKey(category string) string {
	return ParamDemographic + "[" + category + "]"
}

func facetParams(f FilterState) []param {
	var params []param
	if s := strings.TrimSpace(f.SearchText); s != "" {
		params = append(params, param{ParamSearch, s})
	}
	if len(f.Stances) > 0 {
		params = append(params, param{ParamStances, strings.Join(f.Stances.Sorted(), ",")})
	}
	if len(f.Themes) > 0 {
		params = append(params, param{ParamThemes, strings.Join(f.Themes.Sorted(), ",")})
	}
	if len(f.EvidenceRich) > 0 {
		params = append(params, param{ParamEvidenceRich, strings.Join(f.EvidenceRich.Sorted(), ",")})
	}
	for _, cat := range sortedCategories(f.Demographics) {
		values := f.Demographics[cat]
		if len(values) == 0 {
			continue
		}
		params = append(params, param{DemographicKey(cat), strings.Join(values.Sorted(), ",")})
	}
	return params
}

func sortedCategories(m map[string]Set) []string {
	s := make(Set, len(m))
	for cat := range m {
		s[cat] = struct{}{}
	}
	return s.Sorted()
}

func encode(params []param) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}
