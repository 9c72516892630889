package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for the vault indexer.
type Config struct {
	ListenAddress string        `yaml:"listen"`
	NodeURL       string        `yaml:"node_url"`
	DatabaseDSN   string        `yaml:"database"`
	AuditPath     string        `yaml:"audit_db"`
	Log           LogConfig     `yaml:"log"`
	Poll          PollConfig    `yaml:"poll"`
	API           APIConfig     `yaml:"api"`
	Archive       ArchiveConfig `yaml:"archive"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Env    string `yaml:"env"`
}

// PollConfig tunes the event ingestion loop.
type PollConfig struct {
	Interval  Duration `yaml:"interval"`
	BatchSize int      `yaml:"batch_size"`
}

// APIConfig controls the REST surface.
type APIConfig struct {
	AuthEnabled    bool     `yaml:"auth_enabled"`
	HMACSecret     string   `yaml:"hmac_secret"`
	Issuer         string   `yaml:"issuer"`
	Audience       string   `yaml:"audience"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RatePerSecond  float64  `yaml:"rate_per_second"`
	Burst          int      `yaml:"burst"`
	LogRequests    bool     `yaml:"log_requests"`
}

// ArchiveConfig controls the nightly parquet export.
type ArchiveConfig struct {
	Enabled   bool     `yaml:"enabled"`
	OutputDir string   `yaml:"output_dir"`
	RunHour   int      `yaml:"run_hour"`
	RunMinute int      `yaml:"run_minute"`
	Window    Duration `yaml:"window"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddress: ":8180",
		NodeURL:       "http://127.0.0.1:8080",
		DatabaseDSN:   "",
		AuditPath:     "stakevault-indexer-audit.db",
		Poll: PollConfig{
			Interval:  Duration{2 * time.Second},
			BatchSize: 200,
		},
		API: APIConfig{
			Issuer:        "stakevault",
			Audience:      "indexer",
			RatePerSecond: 50,
			Burst:         100,
		},
		Archive: ArchiveConfig{
			OutputDir: "stakevault-archive",
			RunHour:   2,
			Window:    Duration{24 * time.Hour},
		},
	}
}

// Load reads the YAML configuration from disk. An empty path yields the
// defaults so the service can start without a file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return normalize(cfg)
}

func normalize(cfg Config) (Config, error) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8180"
	}
	if cfg.NodeURL == "" {
		cfg.NodeURL = "http://127.0.0.1:8080"
	}
	if cfg.Poll.Interval.Duration <= 0 {
		cfg.Poll.Interval = Duration{2 * time.Second}
	}
	if cfg.Poll.BatchSize <= 0 {
		cfg.Poll.BatchSize = 200
	}
	if cfg.API.Issuer == "" {
		cfg.API.Issuer = "stakevault"
	}
	if cfg.API.Audience == "" {
		cfg.API.Audience = "indexer"
	}
	if cfg.API.RatePerSecond <= 0 {
		cfg.API.RatePerSecond = 50
	}
	if cfg.API.Burst <= 0 {
		cfg.API.Burst = 100
	}
	if cfg.API.AuthEnabled && strings.TrimSpace(cfg.API.HMACSecret) == "" {
		return Config{}, fmt.Errorf("api auth enabled without hmac_secret")
	}
	if cfg.Archive.OutputDir == "" {
		cfg.Archive.OutputDir = "stakevault-archive"
	}
	if cfg.Archive.RunHour < 0 || cfg.Archive.RunHour > 23 {
		return Config{}, fmt.Errorf("archive run_hour %d out of range", cfg.Archive.RunHour)
	}
	if cfg.Archive.RunMinute < 0 || cfg.Archive.RunMinute > 59 {
		return Config{}, fmt.Errorf("archive run_minute %d out of range", cfg.Archive.RunMinute)
	}
	if cfg.Archive.Window.Duration <= 0 {
		cfg.Archive.Window = Duration{24 * time.Hour}
	}
	return cfg, nil
}
