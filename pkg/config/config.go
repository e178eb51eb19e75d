package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"PharmacyScanner/internal/models"
	"PharmacyScanner/utils"
)

// ScannerConfig holds the scan loop settings.
type ScannerConfig struct {
	PollIntervalSeconds int              `yaml:"poll_interval_seconds"`
	RunOnce             bool             `yaml:"run_once"`
	Products            []models.Product `yaml:"products"`
	ProfilesDir         string           `yaml:"profiles_dir"`
	// Workers is "1" (default), a number of site lanes, or "auto".
	Workers string `yaml:"workers"`
	// MaxRetries is the number of extra navigation attempts after a
	// timeout or session failure. Defaults to 2.
	MaxRetries   int `yaml:"max_retries"`
	RetryDelayMs int `yaml:"retry_delay_ms"`
}

// BrowserConfig holds headless Chrome settings.
type BrowserConfig struct {
	Headless  bool   `yaml:"headless"`
	RemoteURL string `yaml:"remote_url"`
	Proxy     string `yaml:"proxy"`
}

// SinkConfig points at the downstream availability endpoint.
type SinkConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// Optional basic auth credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// JournalConfig locates the local append-only outbox.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// LogConfig selects slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

// Config is the complete structure for the config.yml file.
type Config struct {
	Scanner ScannerConfig `yaml:"scanner"`
	Browser BrowserConfig `yaml:"browser"`
	Sink    SinkConfig    `yaml:"sink"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{Scanner: ScannerConfig{MaxRetries: defaultMaxRetries}, Browser: BrowserConfig{Headless: true}}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML config file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Scanner: ScannerConfig{MaxRetries: defaultMaxRetries}, Browser: BrowserConfig{Headless: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const defaultMaxRetries = 2

func (c *Config) applyDefaults() {
	if c.Scanner.PollIntervalSeconds <= 0 {
		c.Scanner.PollIntervalSeconds = 900
	}
	if c.Scanner.ProfilesDir == "" {
		c.Scanner.ProfilesDir = "profiles"
	}
	if c.Scanner.RetryDelayMs <= 0 {
		c.Scanner.RetryDelayMs = 1000
	}
	if c.Scanner.Workers == "" {
		c.Scanner.Workers = "1"
	}
	if c.Sink.TimeoutSeconds <= 0 {
		c.Sink.TimeoutSeconds = 15
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/outbox.ndjson"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate rejects products without an id or query, duplicate ids and a
// negative retry count.
func (c *Config) Validate() error {
	if c.Scanner.MaxRetries < 0 {
		return fmt.Errorf("scanner.max_retries: must not be negative")
	}
	ids := make([]string, 0, len(c.Scanner.Products))
	for i, p := range c.Scanner.Products {
		if p.ID == "" || p.Query == "" {
			return fmt.Errorf("scanner.products[%d]: id and query are required", i)
		}
		ids = append(ids, p.ID)
	}
	if len(utils.UniqueStrings(ids)) != len(ids) {
		return fmt.Errorf("scanner.products: duplicate product id")
	}
	return nil
}

// PollInterval is the pause between two full passes.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scanner.PollIntervalSeconds) * time.Second
}

// RetryDelay is the pause between two navigation attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Scanner.RetryDelayMs) * time.Millisecond
}

// SinkTimeout is the HTTP client timeout for deliveries.
func (c *Config) SinkTimeout() time.Duration {
	return time.Duration(c.Sink.TimeoutSeconds) * time.Second
}
