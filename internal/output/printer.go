// Package output renders the terminal view of procwatch runs.
//
// The [Printer] writes boxed summaries styled with lipgloss. Styles are
// bound to the printer's writer, so output to a file or buffer carries no
// color codes.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"procwatch/internal/canonical"
	"procwatch/internal/matcher"
	"procwatch/internal/report"
)

// Printer writes run summaries to a terminal or any other writer.
type Printer struct {
	out    io.Writer
	styles styles
}

type styles struct {
	box     lipgloss.Style
	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
}

// NewPrinter creates a [Printer] writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a [Printer] writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		out: w,
		styles: styles{
			box:     r.NewStyle().Border(lipgloss.DoubleBorder()).Padding(0, 1),
			title:   r.NewStyle().Bold(true),
			label:   r.NewStyle().Bold(true),
			muted:   r.NewStyle().Faint(true),
			success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
			failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
			warning: r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		},
	}
}

// RunHeader prints the banner shown before a reconciliation run.
func (p *Printer) RunHeader(runID string, instances int, scope []string, dryRun bool) {
	lines := []string{
		p.styles.title.Render("procwatch reconcile: " + runID),
		p.row("Instances", fmt.Sprintf("%d", instances)),
		p.row("Scope", strings.Join(scope, ", ")),
	}
	if dryRun {
		lines = append(lines, p.styles.warning.Render("Dry run: the store will not be written"))
	}
	p.box(lines)
}

// Progress prints one applied instance.
func (p *Printer) Progress(index, total int, d matcher.Decision) {
	fmt.Fprintf(p.out, "  [%d/%d] %s %s %s\n",
		index, total, d.InstanceID,
		p.styles.muted.Render("→"),
		fmt.Sprintf("%s %s", d.Outcome, shortID(d.WorkflowID)))
}

// RunSummary prints the coverage, reconciliation and drift counts of a run.
func (p *Printer) RunSummary(set report.Set, dryRun bool, runDir string) {
	rec := set.Reconciliation
	cov := set.Coverage

	var status string
	switch {
	case dryRun:
		status = p.styles.warning.Render("○ DRY RUN COMPLETE")
	case rec.Persisted:
		status = p.styles.success.Render("✓ RECONCILIATION COMPLETE")
	default:
		status = p.styles.failure.Render("✗ STORE NOT PERSISTED")
	}

	lines := []string{
		status,
		p.row("Run", rec.RunID),
		"",
		p.styles.title.Render("Instances"),
		p.row("Total", fmt.Sprintf("%d", cov.TotalInstances)),
		p.row("In scope", fmt.Sprintf("%d", cov.InScopeInstances)),
		p.row("Out of scope", fmt.Sprintf("%d", cov.OutOfScopeInstances)),
		"",
		p.styles.title.Render("Coverage"),
		p.row("Process", formatRatio(cov.Global.Process)),
		p.row("Client", formatRatio(cov.Global.Client)),
		p.row("Role", formatRatio(cov.Global.Role)),
		p.row("All three", formatRatio(cov.Global.All)),
		p.row("Step matches", formatCounts(matchTypeCounts(cov.StepMatchTypes))),
		p.row("Health", formatCounts(healthCounts(cov.Health))),
		"",
		p.styles.title.Render("Workflows"),
		p.row("Store", fmt.Sprintf("%d → %d", rec.WorkflowsBefore, rec.WorkflowsAfter)),
		p.row("Changes", fmt.Sprintf("created %d | updated %d | unchanged %d", rec.Created, rec.Updated, rec.Unchanged)),
	}
	if len(rec.Migrations) > 0 {
		lines = append(lines, p.row("Migrated", fmt.Sprintf("%d", len(rec.Migrations))))
	}

	lines = append(lines, "", p.styles.title.Render("Drift"))
	if len(set.Drift.Counts) == 0 {
		lines = append(lines, p.styles.muted.Render("none"))
	} else {
		for _, kind := range sortedKeys(set.Drift.Counts) {
			lines = append(lines, p.row(kind, fmt.Sprintf("%d", set.Drift.Counts[kind])))
		}
	}

	if runDir != "" {
		lines = append(lines, "", p.row("Reports", runDir))
	}
	p.box(lines)
}

// CatalogSummary prints the processes of a compiled catalog.
func (p *Printer) CatalogSummary(dump report.CatalogDump) {
	lines := []string{
		p.styles.title.Render("Catalog: " + dump.AuthoritativeID),
		p.row("Reserved", strings.Join(dump.ReservedSynonyms, ", ")),
		p.row("Roles", fmt.Sprintf("%d (%d aliases)", dump.RoleCount, dump.RoleAliasCount)),
		"",
	}
	for _, proc := range dump.Processes {
		marker := " "
		if proc.Authoritative {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %-20s phases %d | steps %d | step aliases %d | process aliases %d",
			marker, proc.ID, proc.Phases, proc.Steps, proc.StepAliasCount, proc.ProcessAliasCount))
	}
	if len(dump.Conflicts) > 0 || len(dump.Skipped) > 0 {
		lines = append(lines, "",
			p.styles.warning.Render(fmt.Sprintf("%d conflicts, %d skipped entries", len(dump.Conflicts), len(dump.Skipped))))
	}
	p.box(lines)
}

// Error prints a failure message.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.out, p.styles.failure.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message.
func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.out, p.styles.warning.Render("! "+fmt.Sprintf(format, args...)))
}

func (p *Printer) box(lines []string) {
	fmt.Fprintln(p.out, p.styles.box.Render(strings.Join(lines, "\n")))
}

func (p *Printer) row(label, value string) string {
	return p.styles.label.Render(fmt.Sprintf("%-16s", label)) + " " + value
}

func formatRatio(r report.Ratio) string {
	return fmt.Sprintf("%d/%d (%.1f%%)", r.Count, r.Total, r.Fraction*100)
}

type count struct {
	name string
	n    int
}

func formatCounts(counts []count) string {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s %d", c.name, c.n))
	}
	return strings.Join(parts, " | ")
}

func matchTypeCounts(m map[canonical.MatchType]int) []count {
	types := []canonical.MatchType{canonical.MatchExact, canonical.MatchAlias, canonical.MatchFuzzy, canonical.MatchNone}
	out := make([]count, 0, len(types))
	for _, t := range types {
		out = append(out, count{string(t), m[t]})
	}
	return out
}

func healthCounts(m map[canonical.Health]int) []count {
	levels := []canonical.Health{canonical.HealthOnTrack, canonical.HealthAtRisk, canonical.HealthStale, canonical.HealthUnknown}
	out := make([]count, 0, len(levels))
	for _, h := range levels {
		out = append(out, count{string(h), m[h]})
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
