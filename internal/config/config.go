// Package config handles loading and validating testguard configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jkaninda/testguard/internal/pathguard"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for the harness.
type Config struct {
	RepoRoot       string           `json:"repo_root,omitempty" yaml:"repo_root,omitempty"`               // Repository root. Default: working directory. Override: TESTGUARD_REPO_ROOT.
	TempRoot       string           `json:"temp_root,omitempty" yaml:"temp_root,omitempty"`               // Sandbox temp root. Default: <repo_root>/tmp. Override: TESTGUARD_TEMP_ROOT.
	MockStaticRoot string           `json:"mock_static_root,omitempty" yaml:"mock_static_root,omitempty"` // Static fixture base. Default: <repo_root>/testdata/mock.
	Safety         *SafetyConfig    `json:"safety,omitempty" yaml:"safety,omitempty"`                     // nil = built-in path rules only
	Storage        *StorageConfig   `json:"storage,omitempty" yaml:"storage,omitempty"`                   // nil = SQLite default (derived from repo root)
	Provision      *ProvisionConfig `json:"provision,omitempty" yaml:"provision,omitempty"`               // nil = no readiness waits
	Janitor        *JanitorConfig   `json:"janitor,omitempty" yaml:"janitor,omitempty"`                   // nil = janitor defaults
	Metrics        *MetricsConfig   `json:"metrics,omitempty" yaml:"metrics,omitempty"`                   // nil = metrics disabled
}

// SafetyConfig extends the built-in path validation rules.
type SafetyConfig struct {
	ContainerWorkspaceRoots []string `json:"container_workspace_roots,omitempty" yaml:"container_workspace_roots,omitempty"` // Replaces the defaults when set.
	CIRunnerTempRoots       []string `json:"ci_runner_temp_roots,omitempty" yaml:"ci_runner_temp_roots,omitempty"`           // Replaces the defaults when set.
	ExtraProtectedRoots     []string `json:"extra_protected_roots,omitempty" yaml:"extra_protected_roots,omitempty"`         // Appended to the defaults.
	SuiteMarker             string   `json:"suite_marker,omitempty" yaml:"suite_marker,omitempty"`                           // Default: "testguard-".
}

// StorageConfig configures the run-history backend.
// When nil, defaults to SQLite with the database path derived from the repo root.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from repo root.
}

// PostgresStorageConfig holds PostgreSQL-specific settings, for sharded
// pipelines aggregating into one shared store.
type PostgresStorageConfig struct {
	DSN string `json:"dsn" yaml:"dsn"` // Override: TESTGUARD_DB_DSN.
}

// ProvisionConfig configures readiness waits for container dependencies.
type ProvisionConfig struct {
	IntervalSeconds int      `json:"interval_s" yaml:"interval_s"`               // Default: 2.
	MaxAttempts     int      `json:"max_attempts" yaml:"max_attempts"`           // Default: 30.
	Services        []string `json:"services,omitempty" yaml:"services,omitempty"` // host:port readiness probes.
	Files           []string `json:"files,omitempty" yaml:"files,omitempty"`       // marker file readiness probes.
}

// Interval returns the retry interval.
func (p *ProvisionConfig) Interval() time.Duration {
	if p != nil && p.IntervalSeconds > 0 {
		return time.Duration(p.IntervalSeconds) * time.Second
	}
	return 2 * time.Second
}

// Attempts returns the retry budget.
func (p *ProvisionConfig) Attempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 30
}

// JanitorConfig configures the orphaned-sandbox sweeper.
type JanitorConfig struct {
	Schedule      string `json:"schedule" yaml:"schedule"`               // Cron spec. Default: "*/10 * * * *".
	MaxAgeMinutes int    `json:"max_age_minutes" yaml:"max_age_minutes"` // Default: 120.
}

// CronSchedule returns the sweep schedule.
func (j *JanitorConfig) CronSchedule() string {
	if j != nil && j.Schedule != "" {
		return j.Schedule
	}
	return "*/10 * * * *"
}

// MaxAge returns the age past which a sandbox counts as orphaned.
func (j *JanitorConfig) MaxAge() time.Duration {
	if j != nil && j.MaxAgeMinutes > 0 {
		return time.Duration(j.MaxAgeMinutes) * time.Minute
	}
	return 2 * time.Hour
}

// MetricsConfig enables harness metrics in the summary output.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// MetricsEnabled reports whether metrics are on.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics != nil && c.Metrics.Enabled
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnvOverrides()
	cfg.resolveDefaults()
	return cfg
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML,
// everything else for JSON. Environment variables take precedence over
// file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolveDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TESTGUARD_REPO_ROOT"); v != "" {
		c.RepoRoot = v
	}
	if v := os.Getenv("TESTGUARD_TEMP_ROOT"); v != "" {
		c.TempRoot = v
	}
	if v := os.Getenv("TESTGUARD_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Driver = "postgres"
		c.Storage.Postgres.DSN = v
	}
}

func (c *Config) resolveDefaults() {
	if c.RepoRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			c.RepoRoot = wd
		} else {
			c.RepoRoot = "."
		}
	}
	if abs, err := filepath.Abs(c.RepoRoot); err == nil {
		c.RepoRoot = abs
	}
	if c.TempRoot == "" {
		c.TempRoot = filepath.Join(c.RepoRoot, "tmp")
	}
	if c.MockStaticRoot == "" {
		c.MockStaticRoot = filepath.Join(c.RepoRoot, "testdata", "mock")
	}
}

func (c *Config) validate() error {
	if c.Storage != nil {
		switch driver := c.Storage.StorageDriver(); driver {
		case "sqlite":
		case "postgres":
			if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
				return fmt.Errorf("storage driver postgres requires a DSN")
			}
		default:
			return fmt.Errorf("unknown storage driver %q", driver)
		}
	}
	if c.Janitor != nil && c.Janitor.MaxAgeMinutes < 0 {
		return fmt.Errorf("janitor max_age_minutes must not be negative")
	}
	return nil
}

// HistoryPath returns the SQLite run-history path, outside the temp root
// so the janitor never sweeps it.
func (c *Config) HistoryPath() string {
	if c.Storage != nil && c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.RepoRoot, ".testguard", "history.db")
}

// Rules builds the path validation rules: the built-in defaults for the
// repo root, adjusted by the safety section.
func (c *Config) Rules() pathguard.Rules {
	rules := pathguard.DefaultRules(c.RepoRoot)
	rules.RepoTempRoot = c.TempRoot

	if s := c.Safety; s != nil {
		if len(s.ContainerWorkspaceRoots) > 0 {
			rules.ContainerWorkspaceRoots = s.ContainerWorkspaceRoots
		}
		if len(s.CIRunnerTempRoots) > 0 {
			rules.CIRunnerTempRoots = s.CIRunnerTempRoots
		}
		rules.ProtectedRoots = append(rules.ProtectedRoots, s.ExtraProtectedRoots...)
		if s.SuiteMarker != "" {
			rules.SuiteMarker = s.SuiteMarker
		}
	}
	return rules
}
