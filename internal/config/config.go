// Package config loads, validates and persists the per-repository isg
// configuration stored in .isg/config.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	burnt "github.com/BurntSushi/toml"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"isg/internal/paths"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// Config represents the complete isg configuration
type Config struct {
	Version int `toml:"version" json:"version" mapstructure:"version"`

	// Languages restricts extraction to these languages. Empty means all.
	Languages []string `toml:"languages" json:"languages" mapstructure:"languages"`
	// IgnorePatterns are gitignore-style patterns applied on top of .gitignore.
	IgnorePatterns []string `toml:"ignorePatterns" json:"ignorePatterns" mapstructure:"ignorePatterns"`

	Index   IndexConfig   `toml:"index" json:"index" mapstructure:"index"`
	Watch   WatchConfig   `toml:"watch" json:"watch" mapstructure:"watch"`
	Query   QueryConfig   `toml:"query" json:"query" mapstructure:"query"`
	Cache   CacheConfig   `toml:"cache" json:"cache" mapstructure:"cache"`
	Logging LoggingConfig `toml:"logging" json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics" mapstructure:"metrics"`
}

// IndexConfig controls bulk ingestion and per-file extraction.
type IndexConfig struct {
	Workers          int   `toml:"workers" json:"workers" mapstructure:"workers"`
	ParseTimeoutMs   int   `toml:"parseTimeoutMs" json:"parseTimeoutMs" mapstructure:"parseTimeoutMs"`
	MaxFileSizeBytes int64 `toml:"maxFileSizeBytes" json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	// AllowPartial extracts what parses from a file with syntax errors and
	// records a warning. When false such a file fails as a whole.
	AllowPartial bool `toml:"allowPartial" json:"allowPartial" mapstructure:"allowPartial"`
	// CoverageDepth groups the ingest coverage report by this many leading
	// directories.
	CoverageDepth int `toml:"coverageDepth" json:"coverageDepth" mapstructure:"coverageDepth"`
}

// WatchConfig controls the file watcher.
type WatchConfig struct {
	DebounceMs          int     `toml:"debounceMs" json:"debounceMs" mapstructure:"debounceMs"`
	MaxReindexPerSecond float64 `toml:"maxReindexPerSecond" json:"maxReindexPerSecond" mapstructure:"maxReindexPerSecond"`
}

// QueryConfig holds defaults for read operations.
type QueryConfig struct {
	DefaultPageSize      int `toml:"defaultPageSize" json:"defaultPageSize" mapstructure:"defaultPageSize"`
	MaxPageSize          int `toml:"maxPageSize" json:"maxPageSize" mapstructure:"maxPageSize"`
	DefaultHops          int `toml:"defaultHops" json:"defaultHops" mapstructure:"defaultHops"`
	ClusterMaxIterations int `toml:"clusterMaxIterations" json:"clusterMaxIterations" mapstructure:"clusterMaxIterations"`
}

// CacheConfig sizes the in-process caches.
type CacheConfig struct {
	EntityCacheSize int `toml:"entityCacheSize" json:"entityCacheSize" mapstructure:"entityCacheSize"`
}

// LoggingConfig sets the global level and optional per-subsystem overrides
// (extract, storage, incremental, watcher, query).
type LoggingConfig struct {
	Level      string            `toml:"level" json:"level" mapstructure:"level"`
	Subsystems map[string]string `toml:"subsystems" json:"subsystems" mapstructure:"subsystems"`
}

// MetricsConfig controls the Prometheus endpoint served by `isg watch`.
type MetricsConfig struct {
	Addr string `toml:"addr" json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:        CurrentVersion,
		Languages:      []string{},
		IgnorePatterns: []string{"vendor/**", "node_modules/**", "*.min.js"},
		Index: IndexConfig{
			Workers:          runtime.NumCPU(),
			ParseTimeoutMs:   10000,
			MaxFileSizeBytes: 2 << 20,
			AllowPartial:     true,
			CoverageDepth:    2,
		},
		Watch: WatchConfig{
			DebounceMs:          100,
			MaxReindexPerSecond: 50,
		},
		Query: QueryConfig{
			DefaultPageSize:      100,
			MaxPageSize:          1000,
			DefaultHops:          3,
			ClusterMaxIterations: 10,
		},
		Cache: CacheConfig{
			EntityCacheSize: 4096,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Subsystems: map[string]string{},
		},
	}
}

// setDefaults registers every key with viper so that environment
// overrides (ISG_INDEX_WORKERS and so on) are honored by Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("languages", d.Languages)
	v.SetDefault("ignorePatterns", d.IgnorePatterns)
	v.SetDefault("index.workers", d.Index.Workers)
	v.SetDefault("index.parseTimeoutMs", d.Index.ParseTimeoutMs)
	v.SetDefault("index.maxFileSizeBytes", d.Index.MaxFileSizeBytes)
	v.SetDefault("index.allowPartial", d.Index.AllowPartial)
	v.SetDefault("index.coverageDepth", d.Index.CoverageDepth)
	v.SetDefault("watch.debounceMs", d.Watch.DebounceMs)
	v.SetDefault("watch.maxReindexPerSecond", d.Watch.MaxReindexPerSecond)
	v.SetDefault("query.defaultPageSize", d.Query.DefaultPageSize)
	v.SetDefault("query.maxPageSize", d.Query.MaxPageSize)
	v.SetDefault("query.defaultHops", d.Query.DefaultHops)
	v.SetDefault("query.clusterMaxIterations", d.Query.ClusterMaxIterations)
	v.SetDefault("cache.entityCacheSize", d.Cache.EntityCacheSize)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.subsystems", d.Logging.Subsystems)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// LoadConfig loads configuration from .isg/config.toml, falling back to
// defaults when the file does not exist. ISG_* environment variables
// override both.
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(paths.StateDir(repoRoot))

	v.SetEnvPrefix("ISG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Logging.Subsystems == nil {
		cfg.Logging.Subsystems = map[string]string{}
	}
	return &cfg, nil
}

// Save writes the configuration to .isg/config.toml
func (c *Config) Save(repoRoot string) error {
	if _, err := paths.EnsureStateDir(repoRoot); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(paths.ConfigPath(repoRoot), data, 0644)
}

// CheckUnknownKeys decodes the TOML file at path and returns every key that
// does not map onto a Config field, sorted. Viper silently ignores these, so
// typos like "debounce_ms" would otherwise go unnoticed.
func CheckUnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := burnt.DecodeFile(filepath.Clean(path), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	undecoded := md.Undecoded()
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		// Subsystem levels are a free-form table.
		if len(k) > 2 && k[0] == "logging" && k[1] == "subsystems" {
			continue
		}
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported config version %d", c.Version)}
	}
	if c.Index.Workers < 1 {
		return &ConfigError{Field: "index.workers", Message: "must be at least 1"}
	}
	if c.Index.ParseTimeoutMs <= 0 {
		return &ConfigError{Field: "index.parseTimeoutMs", Message: "must be positive"}
	}
	if c.Watch.DebounceMs < 0 {
		return &ConfigError{Field: "watch.debounceMs", Message: "must not be negative"}
	}
	if c.Query.DefaultPageSize < 1 || c.Query.DefaultPageSize > c.Query.MaxPageSize {
		return &ConfigError{Field: "query.defaultPageSize", Message: "must be between 1 and query.maxPageSize"}
	}
	if c.Query.DefaultHops < 0 {
		return &ConfigError{Field: "query.defaultHops", Message: "must not be negative"}
	}
	if c.Query.ClusterMaxIterations < 1 {
		return &ConfigError{Field: "query.clusterMaxIterations", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
