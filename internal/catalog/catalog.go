// Package catalog compiles process definitions into the controlled
// vocabulary that canonicalization resolves free text against.
//
// A run builds exactly one [Unified] catalog from configuration:
//
//  1. [Compile] turns the authoritative process definition into an ordered
//     [Process] and seeds its step and process alias maps.
//  2. [Merge] adds every other catalog-defined process, dropping entries that
//     would redefine the authoritative process and rejecting duplicate ids.
//  3. [Load] wires both steps to the YAML sources read by [ReadDefinitionFromFile],
//     [ReadProcessesFromFile] and [ReadRolesFromFile].
//
// The unified catalog is immutable once built. All alias keys are in the
// normal form defined by the normalize package.
//
// Key types:
//   - [Process], [Phase], [Step] - the ordered step vocabulary of one process
//   - [Alias] - a normalized label pointing at a process, step or role
//   - [Unified] - every process plus its alias tables
//   - [RoleTable] - exact-only role vocabulary
//   - [ConfigError] - fatal configuration problems
package catalog

import (
	"sort"

	"procwatch/internal/normalize"
)

// TargetKind is what an [Alias] resolves to.
type TargetKind string

const (
	TargetProcess TargetKind = "process"
	TargetStep    TargetKind = "step"
	TargetRole    TargetKind = "role"
)

// Alias sources, recorded for the catalog debug dump.
const (
	SourceID        = "id"
	SourceName      = "name"
	SourceShortName = "short_name"
	SourceSynonym   = "synonym"
	SourceReserved  = "reserved"
	SourceOverride  = "override"
)

// Alias maps one normalized label to a target id.
type Alias struct {
	Key        string     `json:"key"`
	TargetKind TargetKind `json:"target_kind"`
	TargetID   string     `json:"target_id"`
	Source     string     `json:"source"`
}

// Step is one step of a process. Order is 1-based and global within the
// process: phase order first, then step order inside the phase.
type Step struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name,omitempty"`
	PhaseID   string `json:"phase_id"`
	Order     int    `json:"order"`
}

// Phase groups consecutive steps.
type Phase struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
	Steps []Step `json:"steps"`
}

// Process is a compiled process: its phases and the flattened step chain.
type Process struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Authoritative bool    `json:"authoritative"`
	Phases        []Phase `json:"phases"`
	Steps         []Step  `json:"steps"`
	Source        string  `json:"source,omitempty"`

	// stepIndex maps step id -> index into Steps.
	stepIndex map[string]int

	// idKeys maps a normalized step id -> step id for the exact tier.
	idKeys map[string]string
}

func newProcess(id, name string, authoritative bool, phases []Phase, source string) *Process {
	p := &Process{
		ID:            id,
		Name:          name,
		Authoritative: authoritative,
		Phases:        phases,
		Source:        source,
		stepIndex:     make(map[string]int),
		idKeys:        make(map[string]string),
	}
	for _, ph := range phases {
		p.Steps = append(p.Steps, ph.Steps...)
	}
	for i, s := range p.Steps {
		p.stepIndex[s.ID] = i
		p.idKeys[normalize.Normalize(s.ID)] = s.ID
	}
	return p
}

// Step returns the step with the given id.
func (p *Process) Step(id string) (Step, bool) {
	i, ok := p.stepIndex[id]
	if !ok {
		return Step{}, false
	}
	return p.Steps[i], true
}

// StepOrder returns the 1-based order of a step, or false if the step is not
// part of the process.
func (p *Process) StepOrder(id string) (int, bool) {
	s, ok := p.Step(id)
	return s.Order, ok
}

// StepByNormalizedID resolves a normalized step id to the step id.
func (p *Process) StepByNormalizedID(key string) (string, bool) {
	id, ok := p.idKeys[key]
	return id, ok
}

// Conflict records an alias that could not be registered as requested.
// Conflicts are informational; fatal problems are returned as [ConfigError].
type Conflict struct {
	Kind     string `json:"kind"`
	Scope    string `json:"scope"`
	Key      string `json:"key"`
	Kept     string `json:"kept"`
	Rejected string `json:"rejected"`
	Source   string `json:"source,omitempty"`
}

// Conflict kinds.
const (
	ConflictStepAliasSeed = "step_alias_seed"
	ConflictOverrideRemap = "override_remap"
	ConflictProcessAlias  = "process_alias"
)

// Skip records a non-authoritative process that was dropped while merging.
type Skip struct {
	ProcessID string `json:"process_id"`
	Source    string `json:"source"`
	Reason    string `json:"reason"`
}

// Unified is the merged catalog used for one run.
type Unified struct {
	AuthoritativeID string

	// Processes lists the authoritative process first, then the others in
	// source order.
	Processes []*Process

	// StepAliases maps process id -> normalized alias -> step id.
	StepAliases map[string]map[string]string

	// ProcessAliases maps normalized alias -> process id.
	ProcessAliases map[string]string

	// ReservedSynonyms are the normalized labels that always mean the
	// authoritative process, in registration order.
	ReservedSynonyms []string

	// LegacyProcessIDs maps a normalized legacy process id to the current id.
	LegacyProcessIDs map[string]string

	Roles     *RoleTable
	Conflicts []Conflict
	Skipped   []Skip

	aliases        map[string][]Alias
	processAliases []Alias
	processIndex   map[string]int
}

// Process returns the process with the given id.
func (u *Unified) Process(id string) (*Process, bool) {
	i, ok := u.processIndex[id]
	if !ok {
		return nil, false
	}
	return u.Processes[i], true
}

// Authoritative returns the authoritative process.
func (u *Unified) Authoritative() *Process {
	p, _ := u.Process(u.AuthoritativeID)
	return p
}

// IsReserved reports whether text normalizes to a reserved synonym of the
// authoritative process.
func (u *Unified) IsReserved(text string) bool {
	key := normalize.Normalize(text)
	for _, s := range u.ReservedSynonyms {
		if s == key {
			return true
		}
	}
	return false
}

// ResolveLegacy maps a stored process id to its current id. It returns false
// when the id is not a legacy value.
func (u *Unified) ResolveLegacy(processID string) (string, bool) {
	current, ok := u.LegacyProcessIDs[normalize.Normalize(processID)]
	if !ok || current == processID {
		return "", false
	}
	return current, true
}

// StepAliasList returns the step aliases of a process in registration order.
func (u *Unified) StepAliasList(processID string) []Alias {
	return u.aliases[processID]
}

// ProcessAliasList returns all process aliases in registration order.
func (u *Unified) ProcessAliasList() []Alias {
	return u.processAliases
}

// ProcessSummary is the per-process entry of [Summary].
type ProcessSummary struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Authoritative     bool     `json:"authoritative"`
	Source            string   `json:"source,omitempty"`
	Phases            int      `json:"phases"`
	Steps             int      `json:"steps"`
	StepAliasCount    int      `json:"step_alias_count"`
	ProcessAliasCount int      `json:"process_alias_count"`
	ProcessAliases    []string `json:"process_aliases"`
}

// Summary is the debugging view of a unified catalog.
type Summary struct {
	AuthoritativeID  string           `json:"authoritative_id"`
	ReservedSynonyms []string         `json:"reserved_synonyms"`
	Processes        []ProcessSummary `json:"processes"`
	RoleCount        int              `json:"role_count"`
	RoleAliasCount   int              `json:"role_alias_count"`
	Conflicts        []Conflict       `json:"conflicts"`
	Skipped          []Skip           `json:"skipped"`
}

// Summary returns per-process alias counts plus the recorded conflicts and
// skips.
func (u *Unified) Summary() Summary {
	s := Summary{
		AuthoritativeID:  u.AuthoritativeID,
		ReservedSynonyms: append([]string{}, u.ReservedSynonyms...),
		Conflicts:        append([]Conflict{}, u.Conflicts...),
		Skipped:          append([]Skip{}, u.Skipped...),
	}

	byProcess := make(map[string][]string)
	for _, a := range u.processAliases {
		byProcess[a.TargetID] = append(byProcess[a.TargetID], a.Key)
	}

	for _, p := range u.Processes {
		aliases := byProcess[p.ID]
		sort.Strings(aliases)
		if aliases == nil {
			aliases = []string{}
		}
		s.Processes = append(s.Processes, ProcessSummary{
			ID:                p.ID,
			Name:              p.Name,
			Authoritative:     p.Authoritative,
			Source:            p.Source,
			Phases:            len(p.Phases),
			Steps:             len(p.Steps),
			StepAliasCount:    len(u.StepAliases[p.ID]),
			ProcessAliasCount: len(aliases),
			ProcessAliases:    aliases,
		})
	}

	if u.Roles != nil {
		s.RoleCount = len(u.Roles.Canonical())
		s.RoleAliasCount = u.Roles.Len()
	}
	return s
}
