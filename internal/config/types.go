// Package config provides configuration loading and management for procwatch.
//
// Configuration is loaded using Viper, supporting YAML config files and environment
// variable overrides. The defaults work out of the box for a catalog under
// ./catalog and a store under ./data.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//   - [CatalogConfig] names the catalog sources
//   - [MatchConfig] toggles the fuzzy matching tiers
//
// Configuration priority (highest to lowest):
//  1. Environment variables (PROCWATCH_ prefix, e.g. PROCWATCH_STORE_PATH)
//  2. Config file specified by PROCWATCH_CONFIG_PATH
//  3. User config directory (platform-standard):
//     - Linux: ~/.config/procwatch/config.yaml
//     - macOS: ~/Library/Application Support/procwatch/config.yaml
//     - Windows: %APPDATA%\procwatch\config.yaml
//  4. ./config/procwatch.yaml
//  5. ./procwatch.yaml
//  6. [DefaultConfig] defaults
package config

// Config represents the root configuration structure.
//
// This is the main configuration container loaded by [Loader]. Use
// [DefaultConfig] to get the defaults.
type Config struct {
	// Catalog names the process and role definitions.
	Catalog CatalogConfig `mapstructure:"catalog"`

	// Store configures the persistent workflow store.
	Store StoreConfig `mapstructure:"store"`

	// Scope selects which canonical processes populate the store.
	Scope ScopeConfig `mapstructure:"scope"`

	// Match toggles the fuzzy matching tiers.
	Match MatchConfig `mapstructure:"match"`

	// Health sets the recency thresholds.
	Health HealthConfig `mapstructure:"health"`

	// Reports names the per-run report files.
	Reports ReportsConfig `mapstructure:"reports"`

	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`

	Log LogConfig `mapstructure:"log"`
}

// CatalogConfig names the catalog sources.
type CatalogConfig struct {
	// AuthoritativePath is the authoritative process definition. Required.
	AuthoritativePath string `mapstructure:"authoritative_path"`

	// ProcessPaths are independent process catalogs, merged in order.
	ProcessPaths []string `mapstructure:"process_paths"`

	// RolesPath is the role table. Optional.
	RolesPath string `mapstructure:"roles_path"`

	// ReservedSynonyms always resolve to the authoritative process.
	// Default: recruiting, recruitment, hiring, talent acquisition
	ReservedSynonyms []string `mapstructure:"reserved_synonyms"`

	// AliasScore is the score of an alias step match.
	// Default: 0.9
	AliasScore float64 `mapstructure:"alias_score"`
}

// StoreConfig configures the workflow store.
type StoreConfig struct {
	// Path is the store file. Can be overridden with PROCWATCH_STORE_PATH.
	// Default: "data/workflows.json"
	Path string `mapstructure:"path"`

	// InitFresh replaces a corrupt store with an empty one instead of failing.
	InitFresh bool `mapstructure:"init_fresh"`

	// Lock takes an advisory lock so a second writer fails fast.
	// Default: true
	Lock bool `mapstructure:"lock"`

	// Namespace is the UUID namespace workflow ids are derived in. Empty
	// uses the built-in namespace. Changing it changes every new id.
	Namespace string `mapstructure:"namespace"`
}

// ScopeConfig selects the processes written to the store.
type ScopeConfig struct {
	// Processes are canonical process ids. Empty means the authoritative
	// process only.
	Processes []string `mapstructure:"processes"`
}

// MatchConfig toggles the fuzzy tiers.
type MatchConfig struct {
	ProcessFuzzy     bool `mapstructure:"process_fuzzy"`
	StepFuzzy        bool `mapstructure:"step_fuzzy"`
	DisplayNameFuzzy bool `mapstructure:"display_name_fuzzy"`

	// MinFuzzyLength is the shortest label a containment match accepts.
	// Default: 3
	MinFuzzyLength int `mapstructure:"min_fuzzy_length"`
}

// HealthConfig sets the age thresholds, in days.
type HealthConfig struct {
	AtRiskAfterDays int `mapstructure:"at_risk_after_days"`
	StaleAfterDays  int `mapstructure:"stale_after_days"`
}

// ReportsConfig names the report files. Reports of a run are written to
// Dir/<run id>/. An empty file name skips that report.
type ReportsConfig struct {
	Dir                string `mapstructure:"dir"`
	CatalogFile        string `mapstructure:"catalog_file"`
	CoverageFile       string `mapstructure:"coverage_file"`
	ReconciliationFile string `mapstructure:"reconciliation_file"`
	DriftFile          string `mapstructure:"drift_file"`
	SnapshotFile       string `mapstructure:"snapshot_file"`
}

// ConcurrencyConfig bounds parallel canonicalization.
type ConcurrencyConfig struct {
	// Workers is the number of canonicalization goroutines.
	// Default: 4
	Workers int `mapstructure:"workers"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: "info"
	Level string `mapstructure:"level"`

	// Format is console or json. Default: "console"
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a new [Config] with the defaults.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			AuthoritativePath: "catalog/recruiting.yaml",
			ProcessPaths:      []string{},
			ReservedSynonyms:  []string{"recruiting", "recruitment", "hiring", "talent acquisition"},
			AliasScore:        0.9,
		},
		Store: StoreConfig{
			Path: "data/workflows.json",
			Lock: true,
		},
		Scope: ScopeConfig{
			Processes: []string{},
		},
		Match: MatchConfig{
			ProcessFuzzy:     true,
			StepFuzzy:        true,
			DisplayNameFuzzy: true,
			MinFuzzyLength:   3,
		},
		Health: HealthConfig{
			AtRiskAfterDays: 7,
			StaleAfterDays:  14,
		},
		Reports: ReportsConfig{
			Dir:                "reports",
			CatalogFile:        "catalog.json",
			CoverageFile:       "coverage.json",
			ReconciliationFile: "reconciliation.json",
			DriftFile:          "drift.json",
			SnapshotFile:       "store_snapshot.json",
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
