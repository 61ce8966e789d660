package store

import (
	"fmt"
	"sort"

	"procwatch/internal/canonical"
	"procwatch/internal/matcher"
)

// Scope is the set of canonical process ids allowed to write to the store.
type Scope struct {
	processes map[string]bool
	ids       []string
}

// NewScope creates a scope over the given process ids.
func NewScope(processIDs ...string) Scope {
	s := Scope{processes: make(map[string]bool, len(processIDs))}
	for _, id := range processIDs {
		if id == "" || s.processes[id] {
			continue
		}
		s.processes[id] = true
		s.ids = append(s.ids, id)
	}
	sort.Strings(s.ids)
	return s
}

// Allows reports whether an instance with the given canonical process may be
// applied. An unknown process is never in scope.
func (s Scope) Allows(processID *string) bool {
	return processID != nil && s.processes[*processID]
}

// Processes returns the sorted process ids of the scope.
func (s Scope) Processes() []string {
	return append([]string(nil), s.ids...)
}

// Apply merges a canonicalized instance into the workflow chosen by the
// matcher and returns a copy of the result.
//
// Structural fields are overwritten by the instance, except that an unknown
// client or role keeps the stored value. Evidence and source instance ids are
// merged as sorted sets. last_updated_at only moves forward.
func (s *Store) Apply(ci *canonical.Instance, d matcher.Decision, scope Scope) (*Workflow, error) {
	if !scope.Allows(ci.CanonicalProcess) {
		return nil, fmt.Errorf("%w: instance %q", ErrOutOfScope, ci.InstanceID)
	}
	if d.WorkflowID == "" {
		return nil, fmt.Errorf("%w: empty workflow id for instance %q", ErrUnknownWorkflow, ci.InstanceID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.workflows[d.WorkflowID]
	if !exists {
		if d.Outcome.IsMatch() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, d.WorkflowID)
		}
		w = &Workflow{
			WorkflowID:  d.WorkflowID,
			IdentityKey: d.IdentityKey,
			Observability: Observability{
				EvidenceMessageIDs: []string{},
				SourceInstanceIDs:  []string{},
			},
		}
		s.workflows[w.WorkflowID] = w
		s.index(w)
	}

	if matcher.IsCompleteKey(d.IdentityKey) && d.IdentityKey != w.IdentityKey {
		s.unindex(w)
		w.IdentityKey = d.IdentityKey
		s.index(w)
	}

	w.ProcessID = *ci.CanonicalProcess
	w.PhaseID = clonePtr(ci.CanonicalPhaseID)
	// Client and role are part of the identity; an unknown value never
	// replaces a known one.
	if ci.CanonicalClient != nil {
		w.Client = clonePtr(ci.CanonicalClient)
	}
	if ci.CanonicalRole != nil {
		w.Role = clonePtr(ci.CanonicalRole)
	}
	w.CurrentStepID = clonePtr(ci.CanonicalCurrentStepID)
	w.Steps = append([]canonical.StepState(nil), ci.StepsState...)
	w.Phases = append([]canonical.PhaseState(nil), ci.PhasesState...)
	if name := displayName(w, ci); name != "" {
		w.DisplayName = name
	}

	o := &w.Observability
	o.EvidenceMessageIDs = union(o.EvidenceMessageIDs, ci.EvidenceMessageIDs)
	o.SourceInstanceIDs = union(o.SourceInstanceIDs, []string{ci.InstanceID})
	if ci.Timestamp != nil && (o.LastUpdatedAt == nil || ci.Timestamp.After(*o.LastUpdatedAt)) {
		t := *ci.Timestamp
		o.LastUpdatedAt = &t
	}
	o.Health = ci.Health
	o.Confidence = clonePtr(ci.Confidence)
	o.ReconciliationMeta = ReconciliationMeta{
		SourceInstanceID: ci.InstanceID,
		RawProcess:       ci.CandidateProcessRaw,
		StepText:         stepText(ci),
		StepSource:       clonePtr(ci.CanonicalCurrentStepSource),
		StepMatchType:    ci.CanonicalCurrentStepMatchType,
		StepMatchScore:   clonePtr(ci.CanonicalCurrentStepMatchScore),
		StepMatchedAlias: clonePtr(ci.CanonicalCurrentStepMatchedAlias),
	}

	return w.Clone(), nil
}

// displayName is the matcher's display name over the merged client and role.
func displayName(w *Workflow, ci *canonical.Instance) string {
	merged := *ci
	merged.CanonicalClient = w.Client
	merged.CanonicalRole = w.Role
	return matcher.DisplayName(&merged)
}

func stepText(ci *canonical.Instance) string {
	if ci.CanonicalCurrentStepSource != nil && *ci.CanonicalCurrentStepSource == canonical.SourceSummary {
		return ci.State.Summary
	}
	return ci.State.Step
}

// union returns the sorted set union of a and b without empty values.
func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
