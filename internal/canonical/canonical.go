// Package canonical resolves the free-text fields of an instance to the
// controlled vocabulary of a unified catalog.
//
// Every field is resolved independently:
//   - process: alias equality, then the reserved-synonym rule, then an
//     optional whole-word containment tier
//   - client: whitespace collapse only, there is no client catalog
//   - role: exact lookup in the role table, never fuzzy
//   - step: exact id, then alias, then containment; ambiguity yields none
//
// Values that cannot be resolved stay nil. A nil canonical value always
// means "unknown", never "empty".
package canonical

import (
	"time"

	"procwatch/internal/catalog"
	"procwatch/internal/instance"
	"procwatch/internal/normalize"
)

// Quality issues recorded on an [Instance]. None of them is fatal.
const (
	IssueMissingInstanceID    = "missing_instance_id"
	IssueMissingProcess       = "missing_process"
	IssueMissingClient        = "missing_client"
	IssueUnmatchedRole        = "unmatched_role"
	IssueAmbiguousStep        = "ambiguous_step"
	IssueUnmatchedStep        = "unmatched_step"
	IssueUnparseableTimestamp = "unparseable_timestamp"
)

// StepSource tells which instance field produced the step match.
const (
	SourceStep    = "step"
	SourceSummary = "summary"
)

// Step progress values.
const (
	StepDone    = "done"
	StepPending = "pending"
	StepUnknown = "unknown"
)

// StepState is the derived progress of one catalog step.
type StepState struct {
	StepID   string `json:"step_id"`
	Name     string `json:"name"`
	PhaseID  string `json:"phase_id"`
	Order    int    `json:"order"`
	Status   string `json:"status"`
	Inferred bool   `json:"inferred"`
}

// Instance is an upstream instance plus its canonical values.
type Instance struct {
	instance.Instance

	CanonicalProcess                 *string      `json:"canonical_process"`
	CanonicalClient                  *string      `json:"canonical_client"`
	CanonicalRole                    *string      `json:"canonical_role"`
	CanonicalCurrentStepID           *string      `json:"canonical_current_step_id"`
	CanonicalCurrentStepMatchType    MatchType    `json:"canonical_current_step_match_type"`
	CanonicalCurrentStepMatchScore   *float64     `json:"canonical_current_step_match_score"`
	CanonicalCurrentStepMatchedAlias *string      `json:"canonical_current_step_matched_alias"`
	CanonicalCurrentStepSource       *string      `json:"canonical_current_step_source"`
	CanonicalPhaseID                 *string      `json:"canonical_phase_id"`
	StepsState                       []StepState  `json:"steps_state"`
	PhasesState                      []PhaseState `json:"phases_state"`
	StepsTotal                       int          `json:"steps_total"`
	StepsDone                        int          `json:"steps_done"`
	Health                           Health       `json:"health"`
	Confidence                       *float64     `json:"confidence"`
	QualityIssues                    []string     `json:"quality_issues"`

	// AmbiguousSteps lists the step ids that tied in the fuzzy tier.
	AmbiguousSteps []string `json:"ambiguous_steps,omitempty"`

	// Timestamp is the parsed instance timestamp, nil when absent or
	// unparseable.
	Timestamp *time.Time `json:"-"`
}

// Key returns the normalized identity tuple (client, role, process). Empty
// strings stand for unknown values.
func (ci *Instance) Key() (client, role, process string) {
	return normalize.Ptr(ci.CanonicalClient), normalize.Ptr(ci.CanonicalRole), deref(ci.CanonicalProcess)
}

// Canonicalizer applies one catalog and one set of rules to instances. It is
// safe for concurrent use.
type Canonicalizer struct {
	catalog *catalog.Unified
	rules   Rules

	// candidates holds, per process, every fuzzy label of every step.
	candidates map[string][]stepCandidates
}

type stepCandidates struct {
	stepID string
	keys   []string
}

// New creates a [Canonicalizer].
func New(u *catalog.Unified, rules Rules) *Canonicalizer {
	c := &Canonicalizer{
		catalog:    u,
		rules:      rules,
		candidates: make(map[string][]stepCandidates, len(u.Processes)),
	}

	for _, p := range u.Processes {
		byStep := make(map[string][]string, len(p.Steps))
		for _, a := range u.StepAliasList(p.ID) {
			byStep[a.TargetID] = append(byStep[a.TargetID], a.Key)
		}

		list := make([]stepCandidates, 0, len(p.Steps))
		for _, s := range p.Steps {
			keys := []string{normalize.Normalize(s.ID)}
			for _, k := range byStep[s.ID] {
				if k != keys[0] {
					keys = append(keys, k)
				}
			}
			list = append(list, stepCandidates{stepID: s.ID, keys: keys})
		}
		c.candidates[p.ID] = list
	}
	return c
}

// Catalog returns the catalog the canonicalizer resolves against.
func (c *Canonicalizer) Catalog() *catalog.Unified {
	return c.catalog
}

// Canonicalize resolves every canonical field of one instance. asOf is the
// reference time for health.
func (c *Canonicalizer) Canonicalize(in instance.Instance, asOf time.Time) Instance {
	out := Instance{
		Instance:      in,
		QualityIssues: []string{},
		StepsState:    []StepState{},
		PhasesState:   []PhaseState{},
	}

	if normalize.Collapse(in.InstanceID) == "" {
		out.addIssue(IssueMissingInstanceID)
	}

	if pid, ok := c.ResolveProcess(in.CandidateProcessRaw); ok {
		out.CanonicalProcess = &pid
	} else {
		out.addIssue(IssueMissingProcess)
	}

	if client, ok := ResolveClient(in.CandidateClientRaw); ok {
		out.CanonicalClient = &client
	} else {
		out.addIssue(IssueMissingClient)
	}

	if role, ok := c.catalog.Roles.Lookup(in.CandidateRoleRaw); ok {
		out.CanonicalRole = &role
	} else {
		out.addIssue(IssueUnmatchedRole)
	}

	c.resolveStep(&out)

	if ts := in.UpdatedAt(); ts != "" {
		if t, err := instance.ParseTimestamp(ts); err == nil {
			out.Timestamp = &t
		} else {
			out.addIssue(IssueUnparseableTimestamp)
		}
	}
	out.Health = ClassifyHealth(out.Timestamp, asOf, c.rules)

	if in.State.Confidence != nil {
		v := *in.State.Confidence
		out.Confidence = &v
	} else if out.CanonicalCurrentStepMatchScore != nil {
		v := *out.CanonicalCurrentStepMatchScore
		out.Confidence = &v
	}

	return out
}

func (c *Canonicalizer) resolveStep(out *Instance) {
	out.CanonicalCurrentStepMatchType = MatchNone
	if out.CanonicalProcess == nil {
		return
	}
	p, ok := c.catalog.Process(*out.CanonicalProcess)
	if !ok {
		return
	}

	text, source := out.State.Step, SourceStep
	if normalize.Normalize(text) == "" {
		text, source = out.State.Summary, SourceSummary
	}

	m := c.MatchStep(p.ID, text)
	switch {
	case m.Type != MatchNone:
		step, _ := p.Step(m.StepID)
		out.CanonicalCurrentStepID = ptr(step.ID)
		out.CanonicalCurrentStepMatchType = m.Type
		out.CanonicalCurrentStepMatchScore = &m.Score
		out.CanonicalCurrentStepMatchedAlias = ptr(m.MatchedAlias)
		out.CanonicalCurrentStepSource = ptr(source)
		out.CanonicalPhaseID = ptr(step.PhaseID)
	case len(m.Ambiguous) > 0:
		out.AmbiguousSteps = m.Ambiguous
		out.addIssue(IssueAmbiguousStep)
	default:
		out.addIssue(IssueUnmatchedStep)
	}

	out.StepsState = DeriveStepsState(p, out.CanonicalCurrentStepID)
	out.PhasesState = DerivePhasesState(p, out.StepsState)
	out.StepsTotal = len(out.StepsState)
	for _, s := range out.StepsState {
		if s.Status == StepDone {
			out.StepsDone++
		}
	}
}

// DeriveStepsState infers step progress from the current step: every step up
// to and including it is done, later steps are pending. Without a current
// step every step is unknown.
func DeriveStepsState(p *catalog.Process, currentStepID *string) []StepState {
	current := 0
	if currentStepID != nil {
		current, _ = p.StepOrder(*currentStepID)
	}

	states := make([]StepState, 0, len(p.Steps))
	for _, s := range p.Steps {
		st := StepState{StepID: s.ID, Name: s.Name, PhaseID: s.PhaseID, Order: s.Order, Status: StepUnknown}
		if current > 0 {
			st.Inferred = true
			st.Status = StepPending
			if s.Order <= current {
				st.Status = StepDone
			}
		}
		states = append(states, st)
	}
	return states
}

// PhaseState is the derived progress of one phase.
type PhaseState struct {
	PhaseID string `json:"phase_id"`
	Name    string `json:"name"`
	Order   int    `json:"order"`
	Status  string `json:"status"`
}

// Phase progress values in addition to the step values.
const PhaseInProgress = "in_progress"

// DerivePhasesState rolls step progress up to phases: done when every step
// is done, in progress when some are, pending when none are and unknown when
// the steps are unknown.
func DerivePhasesState(p *catalog.Process, steps []StepState) []PhaseState {
	byPhase := make(map[string][]StepState, len(p.Phases))
	for _, s := range steps {
		byPhase[s.PhaseID] = append(byPhase[s.PhaseID], s)
	}

	states := make([]PhaseState, 0, len(p.Phases))
	for _, ph := range p.Phases {
		st := PhaseState{PhaseID: ph.ID, Name: ph.Name, Order: ph.Order, Status: StepUnknown}
		done, pending := 0, 0
		for _, s := range byPhase[ph.ID] {
			switch s.Status {
			case StepDone:
				done++
			case StepPending:
				pending++
			}
		}
		switch {
		case done > 0 && pending == 0:
			st.Status = StepDone
		case done > 0:
			st.Status = PhaseInProgress
		case pending > 0:
			st.Status = StepPending
		}
		states = append(states, st)
	}
	return states
}

// clientPlaceholders are normalized client values that mean "unknown".
var clientPlaceholders = map[string]bool{
	"unknown":        true,
	"unknown client": true,
	"n/a":            true,
	"na":             true,
	"none":           true,
	"null":           true,
	"tbd":            true,
}

// ResolveClient returns the whitespace-collapsed client name. Empty values
// and explicit unknown placeholders resolve to nothing.
func ResolveClient(raw string) (string, bool) {
	client := normalize.Collapse(raw)
	if client == "" || clientPlaceholders[normalize.Normalize(client)] {
		return "", false
	}
	return client, true
}

func (ci *Instance) addIssue(issue string) {
	ci.QualityIssues = append(ci.QualityIssues, issue)
}

func ptr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
