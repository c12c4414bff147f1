package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/config"
	"github.com/pders01/consult/internal/debuglog"
	"github.com/pders01/consult/internal/export"
	"github.com/pders01/consult/internal/facet"
	"github.com/pders01/consult/internal/storage"
	"github.com/pders01/consult/internal/validation"
)

type exportFlags struct {
	consultation string
	question     string
	search       string
	themes       []string
	stances      []string
	evidenceRich bool
	demographics []string
	preset       string
	format       string
	output       string
}

var exportOpts exportFlags

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every response matching the filters",
	Long: `Export pages through all responses of a question that match the given
filters and writes them as CSV, JSON or YAML.

Filters may come from flags or from a preset saved in the dashboard. Flags
are added on top of the preset.`,
	Example: `  consult export --consultation transport --question q1 --stance AGREEMENT
  consult export --consultation transport --question q1 --demographic region=north --format json -o north.json`,
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportOpts.consultation, "consultation", "", "Consultation slug")
	f.StringVar(&exportOpts.question, "question", "", "Question slug")
	f.StringVar(&exportOpts.search, "search", "", "Free-text search")
	f.StringArrayVar(&exportOpts.themes, "theme", nil, "Theme id (repeatable)")
	f.StringArrayVar(&exportOpts.stances, "stance", nil, "Stance code (repeatable)")
	f.BoolVar(&exportOpts.evidenceRich, "evidence-rich", false, "Only evidence-rich responses")
	f.StringArrayVar(&exportOpts.demographics, "demographic", nil, "Demographic filter as category=value (repeatable)")
	f.StringVar(&exportOpts.preset, "preset", "", "Start from a saved preset")
	f.StringVar(&exportOpts.format, "format", "csv", "Output format: csv, json or yaml")
	f.StringVarP(&exportOpts.output, "output", "o", "", "Output file (default stdout)")
	f.StringVar(&dbPath, "db", "", "Path to database file, used with --preset")

	_ = exportCmd.MarkFlagRequired("consultation")
	_ = exportCmd.MarkFlagRequired("question")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportOpts.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debuglog.Close()

	c, q, err := target(cfg, exportOpts.consultation, exportOpts.question)
	if err != nil {
		return err
	}

	var base facet.FilterState
	if exportOpts.preset != "" {
		if base, err = loadPresetFilters(cfg, c, q, exportOpts.preset); err != nil {
			return err
		}
	}
	filters, err := exportFilters(base, exportOpts)
	if err != nil {
		return err
	}

	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	res, err := export.Collect(cmd.Context(), src, api.PageRequest{
		Consultation: c,
		Question:     q,
		Filters:      filters,
		PageSize:     cfg.Fetch.PageSize,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if exportOpts.output != "" {
		path, err := validation.NewFilePathValidator().ValidateFile(exportOpts.output)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer file.Close()
		w = file
	}
	if err := export.Write(w, format, res); err != nil {
		return err
	}
	if exportOpts.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d of %d responses to %s\n",
			len(res.Records), res.RespondentsTotal, exportOpts.output)
	}
	return nil
}

func loadPresetFilters(cfg *config.Config, consultation, question, name string) (facet.FilterState, error) {
	if dbPath != "" {
		cfg.Database.Path = config.ExpandPath(dbPath)
	}
	path, err := validation.NewFilePathValidator().DBPath(cfg.Database.Path)
	if err != nil {
		return facet.FilterState{}, fmt.Errorf("database path: %w", err)
	}
	store, err := storage.NewStore(path, cfg.Database.Timeout)
	if err != nil {
		return facet.FilterState{}, err
	}
	defer store.Close()

	p, err := store.LoadPreset(consultation, question, name)
	if err != nil {
		return facet.FilterState{}, err
	}
	return p.Filters, nil
}

// exportFilters adds the flag filters to base. Stances are checked against
// the catalogue; themes and demographics are only known to the backend.
func exportFilters(base facet.FilterState, o exportFlags) (facet.FilterState, error) {
	f := base.Clone()
	if s := strings.TrimSpace(o.search); s != "" {
		f.SearchText = s
	}

	stances, err := facet.DefaultStances()
	if err != nil {
		return f, err
	}
	for _, code := range o.stances {
		code = strings.ToUpper(strings.TrimSpace(code))
		if !slices.ContainsFunc(stances, func(s facet.StanceOption) bool { return s.Code == code }) {
			return f, fmt.Errorf("%w: stance %q", facet.ErrUnknownOption, code)
		}
		f.Stances = addValue(f.Stances, code)
	}
	for _, id := range o.themes {
		if id = strings.TrimSpace(id); id != "" {
			f.Themes = addValue(f.Themes, id)
		}
	}
	if o.evidenceRich {
		f.EvidenceRich = addValue(f.EvidenceRich, facet.EvidenceRichValue)
	}
	for _, d := range o.demographics {
		cat, val, err := parseDemographic(d)
		if err != nil {
			return f, err
		}
		if f.Demographics == nil {
			f.Demographics = map[string]facet.Set{}
		}
		f.Demographics[cat] = addValue(f.Demographics[cat], val)
	}
	return f, nil
}

func addValue(s facet.Set, v string) facet.Set {
	if s == nil {
		s = facet.Set{}
	}
	s[v] = struct{}{}
	return s
}

// parseDemographic splits a category=value flag.
func parseDemographic(s string) (string, string, error) {
	cat, val, ok := strings.Cut(s, "=")
	cat, val = strings.TrimSpace(cat), strings.TrimSpace(val)
	if !ok || cat == "" || val == "" {
		return "", "", fmt.Errorf("invalid demographic %q: want category=value", s)
	}
	return cat, val, nil
}
