package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with no config environment.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("PROCWATCH_CONFIG_PATH", "")
	t.Setenv("PROCWATCH_STORE_PATH", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "catalog/recruiting.yaml", cfg.Catalog.AuthoritativePath)
	assert.Equal(t, []string{"recruiting", "recruitment", "hiring", "talent acquisition"}, cfg.Catalog.ReservedSynonyms)
	assert.Equal(t, 0.9, cfg.Catalog.AliasScore)
	assert.Equal(t, "data/workflows.json", cfg.Store.Path)
	assert.True(t, cfg.Store.Lock)
	assert.False(t, cfg.Store.InitFresh)
	assert.True(t, cfg.Match.ProcessFuzzy)
	assert.True(t, cfg.Match.StepFuzzy)
	assert.True(t, cfg.Match.DisplayNameFuzzy)
	assert.Equal(t, 3, cfg.Match.MinFuzzyLength)
	assert.Equal(t, 7, cfg.Health.AtRiskAfterDays)
	assert.Equal(t, 14, cfg.Health.StaleAfterDays)
	assert.Equal(t, "coverage.json", cfg.Reports.CoverageFile)
	assert.Equal(t, 4, cfg.Concurrency.Workers)
	assert.NoError(t, cfg.Validate())
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	assert.NotNil(t, loader)
	assert.NotNil(t, loader.v)
}

func TestLoader_LoadFromFile(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "procwatch.yaml")

	configContent := `
catalog:
  authoritative_path: defs/recruiting.yaml
  process_paths: [defs/other.yaml]
  reserved_synonyms: [hiring]
store:
  path: /var/lib/procwatch/workflows.json
  init_fresh: true
scope:
  processes: [recruiting, onboarding]
match:
  display_name_fuzzy: false
health:
  at_risk_after_days: 3
  stale_after_days: 10
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := NewLoader().LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "defs/recruiting.yaml", cfg.Catalog.AuthoritativePath)
	assert.Equal(t, []string{"defs/other.yaml"}, cfg.Catalog.ProcessPaths)
	assert.Equal(t, []string{"hiring"}, cfg.Catalog.ReservedSynonyms)
	assert.Equal(t, "/var/lib/procwatch/workflows.json", cfg.Store.Path)
	assert.True(t, cfg.Store.InitFresh)
	assert.True(t, cfg.Store.Lock, "unset keys keep their defaults")
	assert.Equal(t, []string{"recruiting", "onboarding"}, cfg.Scope.Processes)
	assert.False(t, cfg.Match.DisplayNameFuzzy)
	assert.True(t, cfg.Match.StepFuzzy)
	assert.Equal(t, 3, cfg.Health.AtRiskAfterDays)
	assert.Equal(t, 10, cfg.Health.StaleAfterDays)
}

func TestLoader_LoadFromFile_NonExistent(t *testing.T) {
	_, err := NewLoader().LoadFromFile("/nonexistent/path/procwatch.yaml")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoader_LoadFromFile_InvalidStructure(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidContent := `
health:
  - this is not a mapping
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidContent), 0o644))

	_, err := NewLoader().LoadFromFile(configPath)
	assert.Error(t, err)
}

func TestLoader_LoadFromFile_JSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "procwatch.json")
	jsonContent := `{"store": {"path": "/json/workflows.json"}}`
	require.NoError(t, os.WriteFile(configPath, []byte(jsonContent), 0o644))

	cfg, err := NewLoader().LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/json/workflows.json", cfg.Store.Path)
}

func TestLoader_Load_DefaultsWithNoConfigFile(t *testing.T) {
	isolate(t)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	want := DefaultConfig()
	assert.Equal(t, want.Catalog.AuthoritativePath, cfg.Catalog.AuthoritativePath)
	assert.Equal(t, want.Catalog.ReservedSynonyms, cfg.Catalog.ReservedSynonyms)
	assert.Equal(t, want.Store, cfg.Store)
	assert.Equal(t, want.Match, cfg.Match)
	assert.Equal(t, want.Health, cfg.Health)
	assert.Equal(t, want.Reports, cfg.Reports)
	assert.Equal(t, want.Log, cfg.Log)
	assert.Empty(t, cfg.Scope.Processes)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_Load_FallbackFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.MkdirAll("config", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("config", "procwatch.yaml"), []byte("concurrency:\n  workers: 2\n"), 0o644))

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Concurrency.Workers)
}

func TestLoader_Load_WithConfigPathEnv(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store:\n  path: /from/file.json\n"), 0o644))
	t.Setenv("PROCWATCH_CONFIG_PATH", configPath)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "/from/file.json", cfg.Store.Path)
}

func TestLoader_Load_EnvOverridesTakePrecedence(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store:\n  path: /from/file.json\n"), 0o644))
	t.Setenv("PROCWATCH_CONFIG_PATH", configPath)
	t.Setenv("PROCWATCH_STORE_PATH", "/from/env.json")
	t.Setenv("PROCWATCH_MATCH_STEP_FUZZY", "false")
	t.Setenv("PROCWATCH_LOG_LEVEL", "debug")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "/from/env.json", cfg.Store.Path)
	assert.False(t, cfg.Match.StepFuzzy)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestMustLoad_Success(t *testing.T) {
	isolate(t)

	assert.NotPanics(t, func() {
		assert.NotNil(t, MustLoad())
	})
}

func TestConfigDir(t *testing.T) {
	configDir, err := ConfigDir()
	require.NoError(t, err)
	assert.Contains(t, configDir, "procwatch")

	configPath, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Contains(t, configPath, "procwatch")
	assert.Contains(t, configPath, "config.yaml")
}

func TestEnsureConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, EnsureConfigDir())
	dir, err := ConfigDir()
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "missing authoritative path",
			mutate:  func(c *Config) { c.Catalog.AuthoritativePath = " " },
			wantErr: "catalog.authoritative_path is required",
		},
		{
			name:    "alias score out of range",
			mutate:  func(c *Config) { c.Catalog.AliasScore = 1 },
			wantErr: "catalog.alias_score",
		},
		{
			name:    "stale before at risk",
			mutate:  func(c *Config) { c.Health.StaleAfterDays = 3 },
			wantErr: "health.stale_after_days (3) must be >= at_risk_after_days (7)",
		},
		{
			name:    "no workers",
			mutate:  func(c *Config) { c.Concurrency.Workers = 0 },
			wantErr: "concurrency.workers",
		},
		{
			name:    "bad namespace",
			mutate:  func(c *Config) { c.Store.Namespace = "not-a-uuid" },
			wantErr: "store.namespace",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Validate_ReportsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency.Workers = 0
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency.workers")
	assert.Contains(t, err.Error(), "log.format")
}
