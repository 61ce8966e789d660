package report

import (
	"time"

	"procwatch/internal/canonical"
)

// Ratio is a count out of a total.
type Ratio struct {
	Count    int     `json:"count"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

func ratio(count, total int) Ratio {
	r := Ratio{Count: count, Total: total}
	if total > 0 {
		r.Fraction = float64(count) / float64(total)
	}
	return r
}

// FieldCoverage is the share of instances with a non-null canonical value,
// per field and for all three identity fields together.
type FieldCoverage struct {
	Process Ratio `json:"process"`
	Client  Ratio `json:"client"`
	Role    Ratio `json:"role"`
	All     Ratio `json:"all"`
}

// Coverage is the canonicalization coverage of one run.
type Coverage struct {
	RunID               string    `json:"run_id"`
	AsOf                time.Time `json:"as_of"`
	ScopeProcesses      []string  `json:"scope_processes"`
	TotalInstances      int       `json:"total_instances"`
	InScopeInstances    int       `json:"in_scope_instances"`
	OutOfScopeInstances int       `json:"out_of_scope_instances"`

	Global FieldCoverage `json:"global"`
	Scoped FieldCoverage `json:"scoped"`

	StepMatchTypes map[canonical.MatchType]int `json:"step_match_types"`
	Health         map[canonical.Health]int    `json:"health"`
	QualityIssues  map[string]int              `json:"quality_issues"`

	// Processes counts instances per canonical process; unknown processes
	// are counted in UnknownProcess.
	Processes      map[string]int `json:"processes"`
	UnknownProcess int            `json:"unknown_process"`
}

type fieldCounts struct {
	total, process, client, role, all int
}

func (c *fieldCounts) add(ci *canonical.Instance) {
	c.total++
	if ci.CanonicalProcess != nil {
		c.process++
	}
	if ci.CanonicalClient != nil {
		c.client++
	}
	if ci.CanonicalRole != nil {
		c.role++
	}
	if ci.CanonicalProcess != nil && ci.CanonicalClient != nil && ci.CanonicalRole != nil {
		c.all++
	}
}

func (c fieldCounts) coverage() FieldCoverage {
	return FieldCoverage{
		Process: ratio(c.process, c.total),
		Client:  ratio(c.client, c.total),
		Role:    ratio(c.role, c.total),
		All:     ratio(c.all, c.total),
	}
}

// BuildCoverage computes global and scoped coverage. Out-of-scope instances
// count towards global coverage only.
func BuildCoverage(in Input) Coverage {
	cov := Coverage{
		RunID:          in.RunID,
		AsOf:           in.AsOf,
		ScopeProcesses: in.Scope.Processes(),
		StepMatchTypes: map[canonical.MatchType]int{
			canonical.MatchExact: 0,
			canonical.MatchAlias: 0,
			canonical.MatchFuzzy: 0,
			canonical.MatchNone:  0,
		},
		Health:        make(map[canonical.Health]int),
		QualityIssues: make(map[string]int),
		Processes:     make(map[string]int),
	}
	if cov.ScopeProcesses == nil {
		cov.ScopeProcesses = []string{}
	}

	var global, scoped fieldCounts
	for _, e := range in.Entries {
		ci := e.Instance
		global.add(ci)
		if e.InScope {
			scoped.add(ci)
			cov.InScopeInstances++
		} else {
			cov.OutOfScopeInstances++
		}

		cov.StepMatchTypes[ci.CanonicalCurrentStepMatchType]++
		cov.Health[ci.Health]++
		for _, issue := range ci.QualityIssues {
			cov.QualityIssues[issue]++
		}
		if ci.CanonicalProcess != nil {
			cov.Processes[*ci.CanonicalProcess]++
		} else {
			cov.UnknownProcess++
		}
	}

	cov.TotalInstances = global.total
	cov.Global = global.coverage()
	cov.Scoped = scoped.coverage()
	return cov
}
