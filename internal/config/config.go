package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// appName is the directory name under the user config directory.
const appName = "procwatch"

// configFileName is the file name inside the user config directory.
const configFileName = "config.yaml"

// fallbackPaths are tried, in order, after the user config directory.
var fallbackPaths = []string{
	filepath.Join("config", "procwatch.yaml"),
	"procwatch.yaml",
}

// Loader handles configuration loading with Viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new [Loader] with defaults and environment overrides
// registered.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("PROCWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("catalog.authoritative_path", d.Catalog.AuthoritativePath)
	v.SetDefault("catalog.process_paths", d.Catalog.ProcessPaths)
	v.SetDefault("catalog.roles_path", d.Catalog.RolesPath)
	v.SetDefault("catalog.reserved_synonyms", d.Catalog.ReservedSynonyms)
	v.SetDefault("catalog.alias_score", d.Catalog.AliasScore)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.init_fresh", d.Store.InitFresh)
	v.SetDefault("store.lock", d.Store.Lock)
	v.SetDefault("store.namespace", d.Store.Namespace)

	v.SetDefault("scope.processes", d.Scope.Processes)

	v.SetDefault("match.process_fuzzy", d.Match.ProcessFuzzy)
	v.SetDefault("match.step_fuzzy", d.Match.StepFuzzy)
	v.SetDefault("match.display_name_fuzzy", d.Match.DisplayNameFuzzy)
	v.SetDefault("match.min_fuzzy_length", d.Match.MinFuzzyLength)

	v.SetDefault("health.at_risk_after_days", d.Health.AtRiskAfterDays)
	v.SetDefault("health.stale_after_days", d.Health.StaleAfterDays)

	v.SetDefault("reports.dir", d.Reports.Dir)
	v.SetDefault("reports.catalog_file", d.Reports.CatalogFile)
	v.SetDefault("reports.coverage_file", d.Reports.CoverageFile)
	v.SetDefault("reports.reconciliation_file", d.Reports.ReconciliationFile)
	v.SetDefault("reports.drift_file", d.Reports.DriftFile)
	v.SetDefault("reports.snapshot_file", d.Reports.SnapshotFile)

	v.SetDefault("concurrency.workers", d.Concurrency.Workers)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load discovers and loads the configuration following the priority order
// in the package documentation. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv("PROCWATCH_CONFIG_PATH"); path != "" {
		return l.LoadFromFile(path)
	}

	candidates := fallbackPaths
	if userPath, err := DefaultConfigPath(); err == nil {
		candidates = append([]string{userPath}, fallbackPaths...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return l.LoadFromFile(path)
		}
	}

	return l.unmarshal()
}

// LoadFromFile loads configuration from a specific file. The format is
// taken from the file extension.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	// Defaults are registered with viper, so decoding starts from zero.
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := NewLoader().Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// ConfigDir returns the procwatch directory under the user config directory.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigPath returns the user-level config file path.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// EnsureConfigDir creates the user config directory if needed.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports every invalid setting at once. Matching thresholds are
// validated again by the rules they feed.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Catalog.AuthoritativePath) == "" {
		errs = append(errs, errors.New("catalog.authoritative_path is required"))
	}
	if c.Catalog.AliasScore <= 0 || c.Catalog.AliasScore >= 1 {
		errs = append(errs, fmt.Errorf("catalog.alias_score (%g) must be between 0 and 1 exclusive", c.Catalog.AliasScore))
	}
	if c.Match.MinFuzzyLength < 1 {
		errs = append(errs, fmt.Errorf("match.min_fuzzy_length (%d) must be at least 1", c.Match.MinFuzzyLength))
	}
	if c.Health.AtRiskAfterDays < 0 {
		errs = append(errs, fmt.Errorf("health.at_risk_after_days (%d) must not be negative", c.Health.AtRiskAfterDays))
	}
	if c.Health.StaleAfterDays < c.Health.AtRiskAfterDays {
		errs = append(errs, fmt.Errorf("health.stale_after_days (%d) must be >= at_risk_after_days (%d)", c.Health.StaleAfterDays, c.Health.AtRiskAfterDays))
	}
	if c.Concurrency.Workers < 1 {
		errs = append(errs, fmt.Errorf("concurrency.workers (%d) must be at least 1", c.Concurrency.Workers))
	}
	if c.Store.Namespace != "" {
		if _, err := uuid.Parse(c.Store.Namespace); err != nil {
			errs = append(errs, fmt.Errorf("store.namespace is not a UUID: %w", err))
		}
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}
	return errors.Join(errs...)
}
