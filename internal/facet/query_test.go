package facet

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		filters  FilterState
		page     int
		pageSize int
		expected string
	}{
		{
			name:     "no filters",
			filters:  FilterState{},
			page:     1,
			pageSize: 50,
			expected: "page=1&page_size=50",
		},
		{
			name:     "search and themes",
			filters:  FilterState{SearchText: "test", Themes: NewSet("a", "b")},
			page:     2,
			pageSize: 50,
			expected: "searchValue=test&themeFilters=a%2Cb&page=2&page_size=50",
		},
		{
			name:     "theme values are sorted",
			filters:  FilterState{Themes: NewSet("b", "a", "c")},
			page:     1,
			pageSize: 50,
			expected: "themeFilters=a%2Cb%2Cc&page=1&page_size=50",
		},
		{
			name:     "whitespace search omitted",
			filters:  FilterState{SearchText: "   "},
			page:     1,
			pageSize: 50,
			expected: "page=1&page_size=50",
		},
		{
			name:     "search is trimmed and escaped",
			filters:  FilterState{SearchText: "  bus lanes & cycling "},
			page:     1,
			pageSize: 50,
			expected: "searchValue=bus+lanes+%26+cycling&page=1&page_size=50",
		},
		{
			name: "every dimension in fixed order",
			filters: FilterState{
				SearchText:   "x",
				Stances:      NewSet("DISAGREEMENT", "AGREEMENT"),
				EvidenceRich: NewSet(EvidenceRichValue),
				Themes:       NewSet("t1"),
				Demographics: map[string]Set{
					"region": NewSet("south", "north"),
					"age":    NewSet("18-24"),
				},
			},
			page:     3,
			pageSize: 25,
			expected: "searchValue=x" +
				"&sentimentFilters=AGREEMENT%2CDISAGREEMENT" +
				"&themeFilters=t1" +
				"&evidenceRichFilter=evidence-rich" +
				"&demographicFilters%5Bage%5D=18-24" +
				"&demographicFilters%5Bregion%5D=north%2Csouth" +
				"&page=3&page_size=25",
		},
		{
			name:     "defaults for invalid cursor",
			filters:  FilterState{},
			page:     0,
			pageSize: 0,
			expected: "page=1&page_size=50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildQuery(tt.filters, tt.page, tt.pageSize))
		})
	}
}

func TestBuildQuery_Deterministic(t *testing.T) {
	f := FilterState{
		SearchText: "test",
		Themes:     NewSet("a", "b", "c", "d", "e"),
		Demographics: map[string]Set{
			"region": NewSet("north", "south", "east"),
			"age":    NewSet("18-24", "25-34"),
			"sector": NewSet("public"),
		},
	}
	first := BuildQuery(f, 2, DefaultPageSize)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, BuildQuery(f.Clone(), 2, DefaultPageSize))
	}
}

func TestBuildQuery_DemographicRoundTrip(t *testing.T) {
	opts := NewOptions()
	opts.Observe(nil, map[string][]string{"region": {"north", "south", "east"}})

	var f FilterState
	require.NoError(t, f.SetDemographic("region", []string{"north", "south"}, opts))

	q := BuildQuery(f, 1, DefaultPageSize)
	assert.Contains(t, q, "demographicFilters%5Bregion%5D=north%2Csouth")

	parsed, err := url.ParseQuery(q)
	require.NoError(t, err)
	assert.Equal(t, "north,south", parsed.Get("demographicFilters[region]"))

	require.NoError(t, f.SetDemographic("region", nil, opts))
	q = BuildQuery(f, 1, DefaultPageSize)
	assert.NotContains(t, q, "demographicFilters")
	assert.Equal(t, "page=1&page_size=50", q)
}

func TestBuildQuery_EmptyDemographicCategoryOmitted(t *testing.T) {
	f := FilterState{Demographics: map[string]Set{"region": {}}}
	assert.Equal(t, "page=1&page_size=50", BuildQuery(f, 1, 50))
}

func TestFacetQuery(t *testing.T) {
	assert.Equal(t, "", FacetQuery(FilterState{}))
	assert.Equal(t, "sentimentFilters=UNCLEAR", FacetQuery(FilterState{Stances: NewSet("UNCLEAR")}))
}
