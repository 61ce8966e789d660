package report

import (
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"procwatch/internal/matcher"
	"procwatch/internal/store"
)

// InstanceDecision is the reconciliation outcome of one instance.
type InstanceDecision struct {
	InstanceID         string            `json:"instance_id"`
	CanonicalProcess   *string           `json:"canonical_process"`
	InScope            bool              `json:"in_scope"`
	Outcome            matcher.Outcome   `json:"outcome,omitempty"`
	WorkflowID         string            `json:"workflow_id,omitempty"`
	IdentityKey        string            `json:"identity_key,omitempty"`
	Score              float64           `json:"score,omitempty"`
	Anomalies          []matcher.Anomaly `json:"anomalies,omitempty"`
	EvidenceMessageIDs []string          `json:"evidence_message_ids"`
}

// WorkflowChange names a workflow that differs between the store before and
// after the run, and the fields that changed.
type WorkflowChange struct {
	WorkflowID string   `json:"workflow_id"`
	Created    bool     `json:"created"`
	Fields     []string `json:"fields,omitempty"`
}

// Reconciliation summarizes what a run did to the store.
type Reconciliation struct {
	RunID string `json:"run_id"`

	// Persisted is false when the run was a dry run or the store could not
	// be written.
	Persisted bool `json:"persisted"`

	WorkflowsBefore int `json:"workflows_before"`
	WorkflowsAfter  int `json:"workflows_after"`

	// Created and Updated count workflows. Unchanged counts workflows that
	// were matched this run but did not change. Skipped counts out-of-scope
	// instances.
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`

	Outcomes   map[matcher.Outcome]int `json:"outcomes"`
	Changes    []WorkflowChange        `json:"changes"`
	Decisions  []InstanceDecision      `json:"decisions"`
	Migrations []store.Migration       `json:"migrations"`
}

// Changed reports whether the run changed the store.
func (r Reconciliation) Changed() bool {
	return len(r.Changes) > 0 || len(r.Migrations) > 0
}

var workflowCmpOpts = cmp.Options{cmpopts.EquateEmpty()}

// BuildReconciliation compares the store before and after the run.
func BuildReconciliation(in Input) Reconciliation {
	r := Reconciliation{
		RunID:      in.RunID,
		Outcomes:   make(map[matcher.Outcome]int),
		Changes:    []WorkflowChange{},
		Decisions:  make([]InstanceDecision, 0, len(in.Entries)),
		Migrations: append([]store.Migration{}, in.Migrations...),
	}

	touched := make(map[string]bool)
	for _, e := range in.Entries {
		d := InstanceDecision{
			InstanceID:         e.Instance.InstanceID,
			CanonicalProcess:   e.Instance.CanonicalProcess,
			InScope:            e.InScope,
			EvidenceMessageIDs: evidenceOf(e.Instance),
		}
		if !e.InScope || e.Decision == nil {
			r.Skipped++
			r.Decisions = append(r.Decisions, d)
			continue
		}
		d.Outcome = e.Decision.Outcome
		d.WorkflowID = e.Decision.WorkflowID
		d.IdentityKey = e.Decision.IdentityKey
		d.Score = e.Decision.Score
		d.Anomalies = e.Decision.Anomalies
		r.Outcomes[d.Outcome]++
		touched[d.WorkflowID] = true
		r.Decisions = append(r.Decisions, d)
	}

	before := indexWorkflows(in.Before)
	after := indexWorkflows(in.After)
	r.WorkflowsBefore = len(before)
	r.WorkflowsAfter = len(after)

	ids := make([]string, 0, len(after))
	for id := range after {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		prev, ok := before[id]
		if !ok {
			r.Created++
			r.Changes = append(r.Changes, WorkflowChange{WorkflowID: id, Created: true})
			continue
		}
		if fields := ChangedFields(prev, after[id]); len(fields) > 0 {
			r.Updated++
			r.Changes = append(r.Changes, WorkflowChange{WorkflowID: id, Fields: fields})
			continue
		}
		if touched[id] {
			r.Unchanged++
		}
	}
	return r
}

func indexWorkflows(st *store.Store) map[string]*store.Workflow {
	out := make(map[string]*store.Workflow)
	if st == nil {
		return out
	}
	for _, w := range st.Workflows() {
		out[w.WorkflowID] = w
	}
	return out
}

// ChangedFields returns the JSON names of the workflow fields that differ.
// observability.health is left out: it is derived from the run's as-of time,
// so a later run over the same instances refreshes it without an update.
func ChangedFields(a, b *store.Workflow) []string {
	var fields []string
	check := func(name string, x, y any) {
		if !cmp.Equal(x, y, workflowCmpOpts) {
			fields = append(fields, name)
		}
	}

	check("identity_key", a.IdentityKey, b.IdentityKey)
	check("process_id", a.ProcessID, b.ProcessID)
	check("phase_id", a.PhaseID, b.PhaseID)
	check("display_name", a.DisplayName, b.DisplayName)
	check("client", a.Client, b.Client)
	check("role", a.Role, b.Role)
	check("current_step_id", a.CurrentStepID, b.CurrentStepID)
	check("steps", a.Steps, b.Steps)
	check("phases", a.Phases, b.Phases)

	ao, bo := a.Observability, b.Observability
	check("observability.confidence", ao.Confidence, bo.Confidence)
	check("observability.evidence_message_ids", ao.EvidenceMessageIDs, bo.EvidenceMessageIDs)
	check("observability.source_instance_ids", ao.SourceInstanceIDs, bo.SourceInstanceIDs)
	check("observability.last_updated_at", ao.LastUpdatedAt, bo.LastUpdatedAt)
	check("observability.reconciliation_meta", ao.ReconciliationMeta, bo.ReconciliationMeta)
	return fields
}
