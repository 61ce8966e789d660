package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"procwatch/internal/canonical"
	"procwatch/internal/catalog"
	"procwatch/internal/config"
	"procwatch/internal/instance"
	"procwatch/internal/matcher"
	"procwatch/internal/report"
	"procwatch/internal/store"
)

func loadCatalog(cfg *config.Config) (*catalog.Unified, error) {
	return catalog.Load(catalog.Sources{
		AuthoritativePath: cfg.Catalog.AuthoritativePath,
		ProcessPaths:      cfg.Catalog.ProcessPaths,
		RolesPath:         cfg.Catalog.RolesPath,
	}, catalog.Options{ReservedSynonyms: cfg.Catalog.ReservedSynonyms})
}

func rulesFromConfig(cfg *config.Config) canonical.Rules {
	return canonical.Rules{
		AliasScore:      cfg.Catalog.AliasScore,
		ProcessFuzzy:    cfg.Match.ProcessFuzzy,
		StepFuzzy:       cfg.Match.StepFuzzy,
		MinFuzzyLength:  cfg.Match.MinFuzzyLength,
		AtRiskAfterDays: cfg.Health.AtRiskAfterDays,
		StaleAfterDays:  cfg.Health.StaleAfterDays,
	}
}

func matcherOptions(cfg *config.Config) (matcher.Options, error) {
	opts := matcher.Options{
		DisplayNameFuzzy: cfg.Match.DisplayNameFuzzy,
		MinFuzzyLength:   cfg.Match.MinFuzzyLength,
	}
	if cfg.Store.Namespace != "" {
		ns, err := uuid.Parse(cfg.Store.Namespace)
		if err != nil {
			return opts, fmt.Errorf("store.namespace is not a UUID: %w", err)
		}
		opts.Namespace = ns
	}
	return opts, nil
}

// scopeFor returns the processes allowed into the store: the override when
// given, the configured processes otherwise, and the authoritative process
// when neither names any. Every id must be a canonical process id of the
// catalog.
func scopeFor(cfg *config.Config, u *catalog.Unified, override []string) (store.Scope, error) {
	processes := override
	if len(processes) == 0 {
		processes = cfg.Scope.Processes
	}
	if len(processes) == 0 {
		processes = []string{u.AuthoritativeID}
	}
	for _, id := range processes {
		if _, ok := u.Process(id); ok {
			continue
		}
		if current, ok := u.ResolveLegacy(id); ok {
			return store.Scope{}, fmt.Errorf("unknown scope process %q (did you mean %q?)", id, current)
		}
		return store.Scope{}, fmt.Errorf("unknown scope process %q", id)
	}
	return store.NewScope(processes...), nil
}

func reportFiles(cfg *config.Config) report.Files {
	return report.Files{
		Catalog:        cfg.Reports.CatalogFile,
		Coverage:       cfg.Reports.CoverageFile,
		Reconciliation: cfg.Reports.ReconciliationFile,
		Drift:          cfg.Reports.DriftFile,
	}
}

// parseAsOf parses the --as-of flag. Empty means now.
func parseAsOf(value string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return now.UTC(), nil
	}
	t, err := instance.ParseTimestamp(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: %w", value, err)
	}
	return t, nil
}
