package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pders01/consult/internal/api"
	"github.com/pders01/consult/internal/config"
	"github.com/pders01/consult/internal/dashboard"
	"github.com/pders01/consult/internal/debuglog"
	"github.com/pders01/consult/internal/search"
	"github.com/pders01/consult/internal/storage"
	"github.com/pders01/consult/internal/tui"
	"github.com/pders01/consult/internal/validation"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	configPath   string
	dbPath       string
	quiet        bool
	consultation string
	question     string
)

var rootCmd = &cobra.Command{
	Use:   "consult",
	Short: "Browse consultation responses in the terminal",
	Long: `consult explores the free-text responses to one consultation question.

Responses are fetched page by page from the consultation backend and can be
narrowed by search text, stance, evidence-rich flag, themes and
demographics. Favourites and filter presets are kept in a local database.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runDashboard,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "consult %s\n", Version)
		fmt.Fprintln(out, tui.Tagline)
		fmt.Fprintln(out, "github.com/pders01/consult")
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configGenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the default configuration to ~/.config/consult/config.toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("finding home directory: %w", err)
		}
		configFile := filepath.Join(home, ".config", "consult", "config.toml")
		if err := config.GenerateDefaultConfig(configFile); err != nil {
			return fmt.Errorf("failed to generate config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration at: %s\n", configFile)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "Path to database file (overrides config)")
	rootCmd.Flags().BoolVar(&quiet, "quiet", false, "Skip startup banner")
	rootCmd.Flags().StringVar(&consultation, "consultation", "", "Consultation slug")
	rootCmd.Flags().StringVar(&question, "question", "", "Question slug")

	configCmd.AddCommand(configGenCmd)
	rootCmd.AddCommand(versionCmd, configCmd, exportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the configuration and starts file logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	debuglog.SetFormat(cfg.Log.Format)
	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.Path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// target validates the question slugs and the backend URL.
func target(cfg *config.Config, consultation, question string) (string, string, error) {
	c, err := validation.ValidateSlug("consultation", consultation)
	if err != nil {
		return "", "", err
	}
	q, err := validation.ValidateSlug("question", question)
	if err != nil {
		return "", "", err
	}
	baseURL, err := validation.NewBaseURLValidator(cfg.API.AllowLocalhost).ValidateAndNormalize(cfg.API.BaseURL)
	if err != nil {
		return "", "", fmt.Errorf("api.base_url: %w", err)
	}
	cfg.API.BaseURL = baseURL
	return c, q, nil
}

func newSource(cfg *config.Config) (api.Source, error) {
	kind, err := api.ParseKind(cfg.API.Source)
	if err != nil {
		return nil, err
	}
	return api.NewSource(kind, api.NewClient(cfg.API)), nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	if consultation == "" || question == "" {
		return errors.New("--consultation and --question are required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debuglog.Close()

	tui.ApplyColors(cfg.UI.Colors)
	if !quiet {
		tui.ShowBanner(cmd.OutOrStdout(), Version)
	}

	c, q, err := target(cfg, consultation, question)
	if err != nil {
		return err
	}

	if dbPath != "" {
		cfg.Database.Path = config.ExpandPath(dbPath)
	}
	path, err := validation.NewFilePathValidator().DBPath(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("database path: %w", err)
	}
	store, err := storage.NewStore(path, cfg.Database.Timeout)
	if err != nil {
		return err
	}
	defer store.Close()

	src, err := newSource(cfg)
	if err != nil {
		return err
	}

	ctrlOpts := []dashboard.Option{
		dashboard.WithDebounce(cfg.Fetch.Debounce),
		dashboard.WithPageSize(cfg.Fetch.PageSize),
	}
	var appOpts []tui.AppOption
	if cfg.Fetch.ClientFilter {
		idx, err := search.NewIndex()
		if err != nil {
			return fmt.Errorf("creating search index: %w", err)
		}
		defer idx.Close()
		ctrlOpts = append(ctrlOpts, dashboard.WithVisibilityFilter(idx))
		appOpts = append(appOpts, tui.WithIndexStats(idx))
	}

	ctrl := dashboard.New(src, c, q, ctrlOpts...)
	defer func() {
		ctrl.Close()
		ctrl.Wait()
	}()

	debuglog.WithFields(map[string]interface{}{
		"consultation": c,
		"question":     q,
		"source":       cfg.API.Source,
	}).Infof("starting dashboard")

	app := tui.NewApp(ctrl, store, cfg, c, q, appOpts...)
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
