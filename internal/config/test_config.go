package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://127.0.0.1",
			Source:         "modular",
			HTTPTimeout:    5 * time.Second,
			UserAgent:      "consult-test/1.0",
			MetadataTTL:    time.Minute,
			AllowLocalhost: true,
		},
		Fetch: FetchConfig{
			Debounce: 20 * time.Millisecond, // Short enough to keep tests fast
			PageSize: 50,
		},
		Database: DatabaseConfig{
			Path:    ":memory:",
			Timeout: 1 * time.Second,
		},
		Log:  LogConfig{Level: "off"},
		UI:   defaultConfig().UI,
		Keys: defaultConfig().Keys,
	}
}
