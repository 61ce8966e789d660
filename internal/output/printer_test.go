package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"procwatch/internal/canonical"
	"procwatch/internal/catalog"
	"procwatch/internal/matcher"
	"procwatch/internal/report"
)

func sampleSet(persisted bool) report.Set {
	return report.Set{
		Coverage: report.Coverage{
			RunID:               "20240510_120000",
			TotalInstances:      4,
			InScopeInstances:    3,
			OutOfScopeInstances: 1,
			Global: report.FieldCoverage{
				Process: report.Ratio{Count: 3, Total: 4, Fraction: 0.75},
				Client:  report.Ratio{Count: 2, Total: 4, Fraction: 0.5},
				Role:    report.Ratio{Count: 4, Total: 4, Fraction: 1},
				All:     report.Ratio{Count: 2, Total: 4, Fraction: 0.5},
			},
			StepMatchTypes: map[canonical.MatchType]int{canonical.MatchExact: 2, canonical.MatchAlias: 1},
			Health:         map[canonical.Health]int{canonical.HealthOnTrack: 3},
		},
		Reconciliation: report.Reconciliation{
			RunID:           "20240510_120000",
			Persisted:       persisted,
			WorkflowsBefore: 1,
			WorkflowsAfter:  3,
			Created:         2,
			Updated:         1,
		},
		Drift: report.Drift{
			Counts: map[string]int{report.DriftStepRegressed: 1, report.DriftProcessReclassified: 2},
		},
	}
}

func TestPrinter_RunSummary(t *testing.T) {
	tests := []struct {
		name      string
		persisted bool
		dryRun    bool
		expected  string
	}{
		{name: "persisted", persisted: true, expected: "✓ RECONCILIATION COMPLETE"},
		{name: "persist failed", persisted: false, expected: "✗ STORE NOT PERSISTED"},
		{name: "dry run", dryRun: true, expected: "○ DRY RUN COMPLETE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			p := NewPrinterWithWriter(buf)

			p.RunSummary(sampleSet(tt.persisted), tt.dryRun, "reports/20240510_120000")

			out := buf.String()
			assert.Contains(t, out, tt.expected)
			assert.Contains(t, out, "20240510_120000")
			assert.Contains(t, out, "3/4 (75.0%)")
			assert.Contains(t, out, "exact 2 | alias 1 | fuzzy 0 | none 0")
			assert.Contains(t, out, "1 → 3")
			assert.Contains(t, out, "created 2 | updated 1 | unchanged 0")
			assert.Contains(t, out, "process_reclassified")
			assert.Contains(t, out, "step_regressed")
			assert.Contains(t, out, "reports/20240510_120000")
		})
	}
}

func TestPrinter_RunSummary_NoDrift(t *testing.T) {
	buf := &bytes.Buffer{}
	set := sampleSet(true)
	set.Drift.Counts = map[string]int{}

	NewPrinterWithWriter(buf).RunSummary(set, false, "")

	assert.Contains(t, buf.String(), "none")
	assert.NotContains(t, buf.String(), "Reports")
}

func TestPrinter_RunHeader(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinterWithWriter(buf)

	p.RunHeader("run-1", 12, []string{"onboarding", "recruiting"}, true)

	out := buf.String()
	assert.Contains(t, out, "procwatch reconcile: run-1")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "onboarding, recruiting")
	assert.Contains(t, out, "Dry run")
}

func TestPrinter_Progress(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinterWithWriter(buf)

	p.Progress(2, 5, matcher.Decision{
		InstanceID: "inst-7",
		Outcome:    matcher.OutcomeCreated,
		WorkflowID: "0f8b6d1e-5c3a-5b9e-8c1d-2a4f6e8b0c12",
	})

	assert.Equal(t, "  [2/5] inst-7 → created 0f8b6d1e\n", buf.String())
}

func TestPrinter_CatalogSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinterWithWriter(buf)

	p.CatalogSummary(report.CatalogDump{
		Summary: catalog.Summary{
			AuthoritativeID:  "recruiting",
			ReservedSynonyms: []string{"hiring", "recruiting"},
			Processes: []catalog.ProcessSummary{
				{ID: "recruiting", Authoritative: true, Phases: 3, Steps: 6, StepAliasCount: 9},
				{ID: "onboarding", Phases: 1, Steps: 3},
			},
			RoleCount:      2,
			RoleAliasCount: 1,
			Conflicts:      []catalog.Conflict{{}},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Catalog: recruiting")
	assert.Contains(t, out, "hiring, recruiting")
	assert.Contains(t, out, "* recruiting")
	assert.Contains(t, out, "step aliases 9")
	assert.Contains(t, out, "onboarding")
	assert.Contains(t, out, "1 conflicts, 0 skipped entries")
}

func TestPrinter_Messages(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinterWithWriter(buf)

	p.Error("store %s is locked", "data/workflows.json")
	p.Warning("started with a fresh store")

	assert.Contains(t, buf.String(), "✗ store data/workflows.json is locked")
	assert.Contains(t, buf.String(), "! started with a fresh store")
}
