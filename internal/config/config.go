package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	UI       UIConfig       `mapstructure:"ui"`
	Keys     KeyConfig      `mapstructure:"keys"`
}

type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Source         string        `mapstructure:"source"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Burst          int           `mapstructure:"burst"`
	MetadataTTL    time.Duration `mapstructure:"metadata_ttl"`
	AllowLocalhost bool          `mapstructure:"allow_localhost"`
}

type FetchConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	PageSize     int           `mapstructure:"page_size"`
	ClientFilter bool          `mapstructure:"client_filter"`
}

type DatabaseConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

type UIConfig struct {
	Colors UIColors     `mapstructure:"colors"`
	Detail DetailConfig `mapstructure:"detail"`
}

type UIColors struct {
	Primary    string `mapstructure:"primary"`
	Secondary  string `mapstructure:"secondary"`
	Accent     string `mapstructure:"accent"`
	Background string `mapstructure:"background"`
	Surface    string `mapstructure:"surface"`
	Text       string `mapstructure:"text"`
	Muted      string `mapstructure:"muted"`
	Error      string `mapstructure:"error"`
	Success    string `mapstructure:"success"`
}

type DetailConfig struct {
	MaxPreviewLength int `mapstructure:"max_preview_length"`
	WordWrapMaxWidth int `mapstructure:"word_wrap_max_width"`
	WordWrapMinWidth int `mapstructure:"word_wrap_min_width"`
}

type KeyConfig struct {
	Modifier string      `mapstructure:"modifier"`
	Bindings KeyBindings `mapstructure:"bindings"`
}

type KeyBindings struct {
	Quit       string `mapstructure:"quit"`
	Search     string `mapstructure:"search"`
	Facets     string `mapstructure:"facets"`
	LoadMore   string `mapstructure:"load_more"`
	Favourite  string `mapstructure:"favourite"`
	Retry      string `mapstructure:"retry"`
	Presets    string `mapstructure:"presets"`
	SavePreset string `mapstructure:"save_preset"`
	Back       string `mapstructure:"back"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		API: APIConfig{
			BaseURL:     "https://consult.ai.cabinetoffice.gov.uk",
			Source:      "modular",
			HTTPTimeout: 30 * time.Second,
			UserAgent:   "consult/1.0 (https://github.com/pders01/consult)",
			RateLimit:   10,
			Burst:       4,
			MetadataTTL: 10 * time.Minute,
		},
		Fetch: FetchConfig{
			Debounce: 500 * time.Millisecond,
			PageSize: 50,
		},
		Database: DatabaseConfig{
			Path:    filepath.Join(homeDir, ".consult.db"),
			Timeout: 1 * time.Second,
		},
		Log: LogConfig{
			Level:  "off",
			Path:   filepath.Join(homeDir, ".consult", "consult.log"),
			Format: "console",
		},
		UI: UIConfig{
			Colors: UIColors{
				Primary:    "#FF6B6B",
				Secondary:  "#4ECDC4",
				Accent:     "#95E1D3",
				Background: "#1A1A2E",
				Surface:    "#16213E",
				Text:       "#EAEAEA",
				Muted:      "#94A3B8",
				Error:      "#F87171",
				Success:    "#4ADE80",
			},
			Detail: DetailConfig{
				MaxPreviewLength: 120,
				WordWrapMaxWidth: 120,
				WordWrapMinWidth: 40,
			},
		},
		Keys: KeyConfig{
			Modifier: "ctrl",
			Bindings: KeyBindings{
				Quit:       "q",
				Search:     "s",
				Facets:     "f",
				LoadMore:   "l",
				Favourite:  "b",
				Retry:      "r",
				Presets:    "p",
				SavePreset: "w",
				Back:       "esc",
			},
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Nested map defaults let a partial section in the file merge with
	// the remaining defaults key by key.
	for section, values := range settings(defaultConfig()) {
		v.SetDefault(section, values)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "consult")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CONSULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	// Expand paths after loading
	expandPaths(&config)

	return &config, nil
}

func (c *Config) validate() error {
	if c.Fetch.PageSize <= 0 {
		return fmt.Errorf("fetch.page_size must be positive, got %d", c.Fetch.PageSize)
	}
	if c.Fetch.Debounce < 0 {
		return fmt.Errorf("fetch.debounce must not be negative, got %s", c.Fetch.Debounce)
	}
	switch c.API.Source {
	case "modular", "legacy":
	default:
		return fmt.Errorf("api.source must be modular or legacy, got %q", c.API.Source)
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand tilde
	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	// Convert to absolute path if not already absolute
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

// ExpandPath is the exported form of expandPath for command-line overrides.
func ExpandPath(path string) string {
	return expandPath(path)
}

// expandPaths expands all paths in the config
func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

// settings converts a config into the nested key layout used on disk.
func settings(config *Config) map[string]interface{} {
	// Convert durations to strings for TOML readability
	apiCfg := map[string]interface{}{
		"base_url":        config.API.BaseURL,
		"source":          config.API.Source,
		"http_timeout":    config.API.HTTPTimeout.String(),
		"user_agent":      config.API.UserAgent,
		"rate_limit":      config.API.RateLimit,
		"burst":           config.API.Burst,
		"metadata_ttl":    config.API.MetadataTTL.String(),
		"allow_localhost": config.API.AllowLocalhost,
	}

	fetchCfg := map[string]interface{}{
		"debounce":      config.Fetch.Debounce.String(),
		"page_size":     config.Fetch.PageSize,
		"client_filter": config.Fetch.ClientFilter,
	}

	dbCfg := map[string]interface{}{
		"path":    config.Database.Path,
		"timeout": config.Database.Timeout.String(),
	}

	logCfg := map[string]interface{}{
		"level":  config.Log.Level,
		"path":   config.Log.Path,
		"format": config.Log.Format,
	}

	c := config.UI.Colors
	uiCfg := map[string]interface{}{
		"colors": map[string]interface{}{
			"primary":    c.Primary,
			"secondary":  c.Secondary,
			"accent":     c.Accent,
			"background": c.Background,
			"surface":    c.Surface,
			"text":       c.Text,
			"muted":      c.Muted,
			"error":      c.Error,
			"success":    c.Success,
		},
		"detail": map[string]interface{}{
			"max_preview_length":  config.UI.Detail.MaxPreviewLength,
			"word_wrap_max_width": config.UI.Detail.WordWrapMaxWidth,
			"word_wrap_min_width": config.UI.Detail.WordWrapMinWidth,
		},
	}

	b := config.Keys.Bindings
	keysCfg := map[string]interface{}{
		"modifier": config.Keys.Modifier,
		"bindings": map[string]interface{}{
			"quit":        b.Quit,
			"search":      b.Search,
			"facets":      b.Facets,
			"load_more":   b.LoadMore,
			"favourite":   b.Favourite,
			"retry":       b.Retry,
			"presets":     b.Presets,
			"save_preset": b.SavePreset,
			"back":        b.Back,
		},
	}

	return map[string]interface{}{
		"api":      apiCfg,
		"fetch":    fetchCfg,
		"database": dbCfg,
		"log":      logCfg,
		"ui":       uiCfg,
		"keys":     keysCfg,
	}
}

func Save(config *Config, path string) error {
	v := viper.New()
	for section, values := range settings(config) {
		v.Set(section, values)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
