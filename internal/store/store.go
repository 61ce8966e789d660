// Package store owns the persistent workflow collection.
//
// The store is a map of workflow id to [Workflow] plus a schema version. It
// is loaded once per run, mutated in memory through [Store.Apply] and
// [Store.Migrate], and published atomically by [Session.Commit]. A workflow
// is never deleted and its evidence never shrinks.
//
// Key types:
//   - [Store] - the in-memory collection; implements matcher.Index
//   - [Workflow] - one persistent workflow
//   - [Session] - locked load, mutate, commit-or-discard cycle
//   - [Scope] - which canonical processes may write to the store
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"procwatch/internal/canonical"
	"procwatch/internal/matcher"
)

// SchemaVersion is the version written to new store files.
const SchemaVersion = 1

// Sentinel errors for store operations.
var (
	// ErrCorruptStore is returned when an existing store file is empty, is
	// not valid JSON or does not match the store schema. It is fatal unless
	// the caller asked to initialize a fresh store.
	ErrCorruptStore = errors.New("store file is corrupt")

	// ErrStoreLocked is returned when another writer holds the store lock.
	ErrStoreLocked = errors.New("store is locked by another writer")

	// ErrOutOfScope is returned by [Store.Apply] for an instance whose
	// canonical process is outside the configured scope.
	ErrOutOfScope = errors.New("instance is out of scope")

	// ErrUnknownWorkflow is returned by [Store.Apply] when a decision refers
	// to a workflow the store does not have.
	ErrUnknownWorkflow = errors.New("unknown workflow")
)

// ReconciliationMeta records how the last applied instance was resolved.
// It holds instance-derived values only, so applying the same instance twice
// leaves it unchanged.
type ReconciliationMeta struct {
	SourceInstanceID string              `json:"source_instance_id"`
	RawProcess       string              `json:"raw_process,omitempty"`
	StepText         string              `json:"step_text,omitempty"`
	StepSource       *string             `json:"step_source"`
	StepMatchType    canonical.MatchType `json:"step_match_type"`
	StepMatchScore   *float64            `json:"step_match_score"`
	StepMatchedAlias *string             `json:"step_matched_alias"`
}

// Observability is the evidence and freshness of a workflow.
type Observability struct {
	Health             canonical.Health   `json:"health"`
	Confidence         *float64           `json:"confidence"`
	EvidenceMessageIDs []string           `json:"evidence_message_ids"`
	SourceInstanceIDs  []string           `json:"source_instance_ids"`
	LastUpdatedAt      *time.Time         `json:"last_updated_at"`
	ReconciliationMeta ReconciliationMeta `json:"reconciliation_meta"`
}

// Workflow is the persistent cross-run record of one process occurrence.
type Workflow struct {
	WorkflowID    string                 `json:"workflow_id"`
	IdentityKey   string                 `json:"identity_key"`
	ProcessID     string                 `json:"process_id"`
	PhaseID       *string                `json:"phase_id"`
	DisplayName   string                 `json:"display_name"`
	Client        *string                `json:"client"`
	Role          *string                `json:"role"`
	CurrentStepID *string                `json:"current_step_id"`
	Steps         []canonical.StepState  `json:"steps"`
	Phases        []canonical.PhaseState `json:"phases"`
	Observability Observability          `json:"observability"`
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	c := *w
	c.PhaseID = clonePtr(w.PhaseID)
	c.Client = clonePtr(w.Client)
	c.Role = clonePtr(w.Role)
	c.CurrentStepID = clonePtr(w.CurrentStepID)
	c.Steps = append([]canonical.StepState(nil), w.Steps...)
	c.Phases = append([]canonical.PhaseState(nil), w.Phases...)

	o := &c.Observability
	o.Confidence = clonePtr(w.Observability.Confidence)
	o.EvidenceMessageIDs = append([]string{}, w.Observability.EvidenceMessageIDs...)
	o.SourceInstanceIDs = append([]string{}, w.Observability.SourceInstanceIDs...)
	o.LastUpdatedAt = clonePtr(w.Observability.LastUpdatedAt)

	m := &o.ReconciliationMeta
	m.StepSource = clonePtr(w.Observability.ReconciliationMeta.StepSource)
	m.StepMatchScore = clonePtr(w.Observability.ReconciliationMeta.StepMatchScore)
	m.StepMatchedAlias = clonePtr(w.Observability.ReconciliationMeta.StepMatchedAlias)
	return &c
}

// CurrentStepOrder returns the order of the current step within the stored
// steps, or 0 when the workflow has no current step.
func (w *Workflow) CurrentStepOrder() int {
	if w.CurrentStepID == nil {
		return 0
	}
	for _, s := range w.Steps {
		if s.StepID == *w.CurrentStepID {
			return s.Order
		}
	}
	return 0
}

// Store is the in-memory workflow collection. It is safe for concurrent use;
// all writes go through [Store.Apply] and [Store.Migrate].
type Store struct {
	mu            sync.RWMutex
	schemaVersion int
	workflows     map[string]*Workflow

	// keyIndex maps an identity key, complete or fallback -> workflow ids.
	keyIndex map[string][]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		schemaVersion: SchemaVersion,
		workflows:     make(map[string]*Workflow),
		keyIndex:      make(map[string][]string),
	}
}

func newFromWorkflows(version int, workflows map[string]*Workflow) *Store {
	s := New()
	s.schemaVersion = version
	for id, w := range workflows {
		s.workflows[id] = w
		s.index(w)
	}
	return s
}

// SchemaVersion returns the schema version the store was loaded with.
func (s *Store) SchemaVersion() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemaVersion
}

// Len returns the number of workflows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}

// Get returns a copy of the workflow with the given id.
func (s *Store) Get(id string) (*Workflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	return w.Clone(), ok
}

// Workflows returns copies of all workflows sorted by id.
func (s *Store) Workflows() []*Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Workflow, 0, len(s.workflows))
	for _, id := range s.sortedIDs() {
		out = append(out, s.workflows[id].Clone())
	}
	return out
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflows := make(map[string]*Workflow, len(s.workflows))
	for id, w := range s.workflows {
		workflows[id] = w.Clone()
	}
	return newFromWorkflows(s.schemaVersion, workflows)
}

// LookupKey implements matcher.Index.
func (s *Store) LookupKey(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.keyIndex[key]...)
}

// Candidates implements matcher.Index.
func (s *Store) Candidates(processID string) []matcher.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []matcher.Candidate
	for _, id := range s.sortedIDs() {
		w := s.workflows[id]
		if w.ProcessID != processID {
			continue
		}
		out = append(out, matcher.Candidate{WorkflowID: w.WorkflowID, DisplayName: w.DisplayName, IdentityKey: w.IdentityKey})
	}
	return out
}

// Has implements matcher.Index.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.workflows[id]
	return ok
}

func (s *Store) sortedIDs() []string {
	ids := make([]string, 0, len(s.workflows))
	for id := range s.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) index(w *Workflow) {
	if w.IdentityKey == "" {
		return
	}
	ids := s.keyIndex[w.IdentityKey]
	for _, id := range ids {
		if id == w.WorkflowID {
			return
		}
	}
	ids = append(ids, w.WorkflowID)
	sort.Strings(ids)
	s.keyIndex[w.IdentityKey] = ids
}

func (s *Store) unindex(w *Workflow) {
	ids := s.keyIndex[w.IdentityKey]
	for i, id := range ids {
		if id == w.WorkflowID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.keyIndex, w.IdentityKey)
		return
	}
	s.keyIndex[w.IdentityKey] = ids
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
