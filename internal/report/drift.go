package report

import (
	"fmt"
	"strings"

	"procwatch/internal/catalog"
	"procwatch/internal/store"
)

// Drift kinds.
const (
	DriftProcessReclassified = "process_reclassified"
	DriftStepRegressed       = "step_regressed"
	DriftCatalogConflict     = "catalog_conflict"
)

// DriftEntry is one detected change or inconsistency. Instance-level entries
// carry the evidence of the instance that triggered them.
type DriftEntry struct {
	Kind               string   `json:"kind"`
	InstanceID         string   `json:"instance_id,omitempty"`
	WorkflowID         string   `json:"workflow_id,omitempty"`
	WorkflowIDs        []string `json:"workflow_ids,omitempty"`
	From               string   `json:"from,omitempty"`
	To                 string   `json:"to,omitempty"`
	Detail             string   `json:"detail"`
	EvidenceMessageIDs []string `json:"evidence_message_ids,omitempty"`
}

// Drift lists the reclassifications, step regressions and consistency
// anomalies of a run.
type Drift struct {
	RunID   string         `json:"run_id"`
	Counts  map[string]int `json:"counts"`
	Entries []DriftEntry   `json:"entries"`
}

// BuildDrift compares each instance with the prior stored state.
//
// An instance is reclassified when a workflow it was linked to before, or the
// workflow it matched, had a different process. Workflows that merely share
// the instance's client and role are not compared: the same client and role
// may run through several processes at once. A step regressed when the matched workflow's prior current step comes later
// in the process than the instance's current step.
func BuildDrift(in Input) Drift {
	d := Drift{RunID: in.RunID, Counts: make(map[string]int), Entries: []DriftEntry{}}
	add := func(e DriftEntry) {
		d.Counts[e.Kind]++
		d.Entries = append(d.Entries, e)
	}

	prior := newPriorIndex(in.Before)
	for _, e := range in.Entries {
		ci := e.Instance
		if ci.CanonicalProcess == nil {
			continue
		}
		matched := ""
		if e.Decision != nil && e.Decision.Outcome.IsMatch() {
			matched = e.Decision.WorkflowID
		}
		for _, w := range prior.related(ci.InstanceID, matched) {
			if w.ProcessID == *ci.CanonicalProcess {
				continue
			}
			add(DriftEntry{
				Kind:               DriftProcessReclassified,
				InstanceID:         ci.InstanceID,
				WorkflowID:         w.WorkflowID,
				From:               w.ProcessID,
				To:                 *ci.CanonicalProcess,
				Detail:             fmt.Sprintf("instance classified as %s, stored workflow is %s", *ci.CanonicalProcess, w.ProcessID),
				EvidenceMessageIDs: evidenceOf(ci),
			})
		}

		if e.Decision == nil || !e.Decision.Outcome.IsMatch() || ci.CanonicalCurrentStepID == nil || in.Catalog == nil {
			continue
		}
		w, ok := prior.byID[e.Decision.WorkflowID]
		if !ok || w.CurrentStepID == nil {
			continue
		}
		p, ok := in.Catalog.Process(*ci.CanonicalProcess)
		if !ok {
			continue
		}
		order, ok := p.StepOrder(*ci.CanonicalCurrentStepID)
		if ok && order < w.CurrentStepOrder() {
			add(DriftEntry{
				Kind:               DriftStepRegressed,
				InstanceID:         ci.InstanceID,
				WorkflowID:         w.WorkflowID,
				From:               *w.CurrentStepID,
				To:                 *ci.CanonicalCurrentStepID,
				Detail:             fmt.Sprintf("step order %d is before stored step order %d", order, w.CurrentStepOrder()),
				EvidenceMessageIDs: evidenceOf(ci),
			})
		}
	}

	seen := make(map[string]bool)
	for _, e := range in.Entries {
		if e.Decision == nil {
			continue
		}
		for _, a := range e.Decision.Anomalies {
			sig := a.Kind + "\x00" + a.Key + "\x00" + strings.Join(a.WorkflowIDs, ",")
			if seen[sig] {
				continue
			}
			seen[sig] = true
			add(DriftEntry{
				Kind:               a.Kind,
				InstanceID:         e.Instance.InstanceID,
				WorkflowIDs:        append([]string(nil), a.WorkflowIDs...),
				Detail:             fmt.Sprintf("key %q resolves to %d workflows", a.Key, len(a.WorkflowIDs)),
				EvidenceMessageIDs: evidenceOf(e.Instance),
			})
		}
	}

	if in.Catalog != nil {
		for _, c := range in.Catalog.Conflicts {
			add(conflictEntry(c))
		}
	}
	return d
}

func conflictEntry(c catalog.Conflict) DriftEntry {
	detail := fmt.Sprintf("%s alias %q in %s kept %s, rejected %s", c.Kind, c.Key, c.Scope, c.Kept, c.Rejected)
	if c.Source != "" {
		detail += " (" + c.Source + ")"
	}
	return DriftEntry{Kind: DriftCatalogConflict, From: c.Rejected, To: c.Kept, Detail: detail}
}

// priorIndex answers "which stored workflows relate to this instance" over
// the store as it was before the run.
type priorIndex struct {
	byID       map[string]*store.Workflow
	byInstance map[string][]*store.Workflow
	ordered    []*store.Workflow
}

func newPriorIndex(st *store.Store) *priorIndex {
	p := &priorIndex{
		byID:       make(map[string]*store.Workflow),
		byInstance: make(map[string][]*store.Workflow),
	}
	if st == nil {
		return p
	}
	for _, w := range st.Workflows() {
		p.ordered = append(p.ordered, w)
		p.byID[w.WorkflowID] = w
		for _, id := range w.Observability.SourceInstanceIDs {
			p.byInstance[id] = append(p.byInstance[id], w)
		}
	}
	return p
}

// related returns the workflows linked to the instance id plus the matched
// workflow, in workflow id order without duplicates.
func (p *priorIndex) related(instanceID, workflowID string) []*store.Workflow {
	hit := make(map[string]bool)
	if instanceID != "" {
		for _, w := range p.byInstance[instanceID] {
			hit[w.WorkflowID] = true
		}
	}
	if _, ok := p.byID[workflowID]; ok {
		hit[workflowID] = true
	}

	var out []*store.Workflow
	for _, w := range p.ordered {
		if hit[w.WorkflowID] {
			out = append(out, w)
		}
	}
	return out
}
