package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Version is stamped into the default User-Agent. Overridden at build time
// with -ldflags "-X carimages/internal/config.Version=...".
var Version = "dev"

const (
	defaultPort       = 8080
	defaultDataDir    = "data"
	defaultOutputDir  = "public/cars"
	defaultCatalogDir = "catalogs"

	defaultMinBytes int64 = 5000
	defaultMaxBytes int64 = 50 << 20

	defaultLookupEndpoint = "https://en.wikipedia.org/w/api.php"
	defaultThumbSize      = 1280
	defaultLookupTimeout  = 30 * time.Second
	defaultLookupInterval = time.Second
	defaultFetchTimeout   = 60 * time.Second
	defaultDirectDelay    = 300 * time.Millisecond
	defaultLookupDelay    = 2 * time.Second

	defaultLogLevel      = "info"
	defaultLogMaxSizeMB  = 10
	defaultLogMaxBackups = 2
	defaultLogMaxAgeDays = 28

	userAgentName    = "carimages"
	userAgentContact = "https://github.com/edgarmonza/monza-Cars-marketplace"
	userAgentLibrary = "Go-HTTP-Client"
)

// Config describes runtime configuration for the fetcher and the service.
type Config struct {
	Port              int      `yaml:"port"`
	DataDir           string   `yaml:"data_dir"`
	OutputDir         string   `yaml:"output_dir"`
	CatalogDir        string   `yaml:"catalog_dir"`
	MinBytes          int64    `yaml:"min_bytes"`
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	UserAgent         string   `yaml:"user_agent"`
	VerifyImages      bool     `yaml:"verify_images"`
	Lookup            Lookup   `yaml:"lookup"`
	Fetch             Fetch    `yaml:"fetch"`
	Delays            Delays   `yaml:"delays"`
	Log               Log      `yaml:"log"`
}

// Lookup configures the MediaWiki topic resolver.
type Lookup struct {
	Endpoint  string        `yaml:"endpoint"`
	ThumbSize int           `yaml:"thumb_size"`
	Timeout   time.Duration `yaml:"timeout"`
	// Interval is the minimum spacing between two queries.
	Interval time.Duration `yaml:"interval"`
}

type Fetch struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Delays are the politeness pauses applied after a task that touched the network.
type Delays struct {
	Direct time.Duration `yaml:"direct"`
	Lookup time.Duration `yaml:"lookup"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:              defaultPort,
		DataDir:           defaultDataDir,
		OutputDir:         defaultOutputDir,
		CatalogDir:        defaultCatalogDir,
		MinBytes:          defaultMinBytes,
		MaxBytes:          defaultMaxBytes,
		AllowedExtensions: defaultExtensions(),
		UserAgent:         DefaultUserAgent(),
		Lookup: Lookup{
			Endpoint:  defaultLookupEndpoint,
			ThumbSize: defaultThumbSize,
			Timeout:   defaultLookupTimeout,
			Interval:  defaultLookupInterval,
		},
		Fetch: Fetch{Timeout: defaultFetchTimeout},
		Delays: Delays{
			Direct: defaultDirectDelay,
			Lookup: defaultLookupDelay,
		},
		Log: Log{
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}

// DefaultUserAgent follows the Wikimedia User-Agent policy:
// <client>/<version> (<contact>) <library>/<version>
func DefaultUserAgent() string {
	return fmt.Sprintf("%s/%s (%s) %s/%s",
		userAgentName, Version, userAgentContact, userAgentLibrary, runtime.Version())
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	normalize(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// normalize fills zero values left by a partial file.
func normalize(cfg *Config) {
	def := Default()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		cfg.OutputDir = def.OutputDir
	}
	if strings.TrimSpace(cfg.CatalogDir) == "" {
		cfg.CatalogDir = def.CatalogDir
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Lookup.Endpoint == "" {
		cfg.Lookup.Endpoint = def.Lookup.Endpoint
	}
	if cfg.Lookup.ThumbSize == 0 {
		cfg.Lookup.ThumbSize = def.Lookup.ThumbSize
	}
	if cfg.Lookup.Timeout == 0 {
		cfg.Lookup.Timeout = def.Lookup.Timeout
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = def.Fetch.Timeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.AllowedExtensions = normalizeExtensions(cfg.AllowedExtensions)
}

func validate(cfg Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.MinBytes < 0 {
		return fmt.Errorf("invalid min_bytes: %d (must be >= 0)", cfg.MinBytes)
	}
	if cfg.MaxBytes <= cfg.MinBytes {
		return fmt.Errorf("invalid max_bytes: %d (must be > min_bytes %d)", cfg.MaxBytes, cfg.MinBytes)
	}
	if cfg.Lookup.ThumbSize < 1 {
		return fmt.Errorf("invalid lookup.thumb_size: %d (must be >= 1)", cfg.Lookup.ThumbSize)
	}
	durations := map[string]time.Duration{
		"lookup.timeout":  cfg.Lookup.Timeout,
		"lookup.interval": cfg.Lookup.Interval,
		"fetch.timeout":   cfg.Fetch.Timeout,
		"delays.direct":   cfg.Delays.Direct,
		"delays.lookup":   cfg.Delays.Lookup,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("invalid %s: %s (must not be negative)", name, d)
		}
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", cfg.Log.Level, err)
	}
	return nil
}

func defaultExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".webp"}
}

func normalizeExtensions(in []string) []string {
	if len(in) == 0 {
		return defaultExtensions()
	}
	seen := make(map[string]struct{}, len(in))
	normalized := make([]string, 0, len(in))
	for _, ext := range in {
		e := strings.ToLower(strings.TrimSpace(ext))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		normalized = append(normalized, e)
	}
	return normalized
}
