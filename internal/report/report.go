// Package report derives the per-run coverage, reconciliation and drift
// reports.
//
// Every report is a pure function of [Input]: the canonicalized instances of
// the run, the matcher decisions, the store before and after the run and the
// catalog. Nothing in this package mutates the store.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"procwatch/internal/canonical"
	"procwatch/internal/catalog"
	"procwatch/internal/matcher"
	"procwatch/internal/store"
)

// Entry is one instance of the run as seen by the reports.
type Entry struct {
	Instance *canonical.Instance

	// InScope is true when the instance was applied to the store.
	InScope bool

	// Decision is nil for out-of-scope instances.
	Decision *matcher.Decision
}

// Input is everything a run hands to the reporter.
type Input struct {
	RunID   string
	AsOf    time.Time
	Catalog *catalog.Unified
	Scope   store.Scope
	Entries []Entry

	// Before is the store after legacy migration and before any instance
	// was applied. After is the store at the end of the run.
	Before *store.Store
	After  *store.Store

	Migrations []store.Migration
}

// Set bundles the reports of one run.
type Set struct {
	Catalog        CatalogDump
	Coverage       Coverage
	Reconciliation Reconciliation
	Drift          Drift
}

// Build computes every report of a run.
func Build(in Input) Set {
	return Set{
		Catalog:        BuildCatalogDump(in.Catalog),
		Coverage:       BuildCoverage(in),
		Reconciliation: BuildReconciliation(in),
		Drift:          BuildDrift(in),
	}
}

// Files names the report files inside a report directory.
type Files struct {
	Catalog        string
	Coverage       string
	Reconciliation string
	Drift          string
}

// Write writes every report of the set into dir. Empty names are skipped.
func (s Set) Write(dir string, files Files) error {
	for _, f := range []struct {
		name string
		v    any
	}{
		{files.Catalog, s.Catalog},
		{files.Coverage, s.Coverage},
		{files.Reconciliation, s.Reconciliation},
		{files.Drift, s.Drift},
	} {
		if f.name == "" {
			continue
		}
		if err := WriteJSON(filepath.Join(dir, f.name), f.v); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", filepath.Base(path), err)
	}
	return nil
}

func evidenceOf(ci *canonical.Instance) []string {
	return append([]string{}, ci.EvidenceMessageIDs...)
}
