// Package export pages through every response of a filtered question and
// renders the records as CSV, JSON or YAML.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/debuglog"
	"github.com/pders01/consult/internal/facet"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts csv, json, yaml (and yml).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// maxPages stops a backend that never reports the last page.
const maxPages = 10000

// Result is every record of a filtered question plus the first page's
// metadata.
type Result struct {
	Records          []api.ResponseRecord `json:"responses" yaml:"responses"`
	RespondentsTotal int                  `json:"respondents_total" yaml:"respondents_total"`
	FilteredTotal    int                  `json:"filtered_total" yaml:"filtered_total"`
	Meta             *api.Metadata        `json:"-" yaml:"-"`
}

// Collect fetches pages starting at page 1 until the backend reports no
// more pages. req.Page is ignored.
func Collect(ctx context.Context, src api.Source, req api.PageRequest) (*Result, error) {
	res := &Result{Records: []api.ResponseRecord{}}
	log := debuglog.WithFields(map[string]interface{}{
		"component":    "export",
		"consultation": req.Consultation,
		"question":     req.Question,
	})

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req.Page = page
		p, err := src.FetchPage(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", page, err)
		}
		if page == 1 {
			res.Meta = p.Meta
		}
		res.Records = append(res.Records, p.Records...)
		res.RespondentsTotal = p.RespondentsTotal
		res.FilteredTotal = p.FilteredTotal
		log.Debugf("page %d: %d records", page, len(p.Records))

		if !p.HasMorePages {
			log.Infof("collected %d records in %d pages", len(res.Records), page)
			return res, nil
		}
	}
	return nil, fmt.Errorf("backend still reports more pages after %d", maxPages)
}

var csvHeader = []string{"identifier", "sentiment_position", "evidence_rich", "themes", "demographics", "free_text"}

// Write renders res to w in the given format.
func Write(w io.Writer, format Format, res *Result) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, res)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Records)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res.Records); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func writeCSV(w io.Writer, res *Result) error {
	names := themeNames(res.Meta)
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range res.Records {
		row := []string{
			r.Identifier,
			r.Sentiment,
			strconv.FormatBool(r.EvidenceRich),
			themeCell(r.Themes, names),
			demographicCell(r.Demographics),
			r.FreeText,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func themeNames(meta *api.Metadata) map[string]string {
	names := map[string]string{}
	if meta == nil {
		return names
	}
	for _, t := range meta.Themes {
		if t.Name != "" {
			names[t.ID] = t.Name
		}
	}
	return names
}

func themeCell(themes []facet.Theme, names map[string]string) string {
	parts := make([]string, 0, len(themes))
	for _, t := range themes {
		switch {
		case names[t.ID] != "":
			parts = append(parts, names[t.ID])
		case t.Name != "":
			parts = append(parts, t.Name)
		default:
			parts = append(parts, t.ID)
		}
	}
	return strings.Join(parts, "; ")
}

func demographicCell(d map[string]string) string {
	pairs := make([]string, 0, len(d))
	for cat, v := range d {
		pairs = append(pairs, cat+"="+v)
	}
	slices.Sort(pairs)
	return strings.Join(pairs, "; ")
}
