// Package matcher decides which persistent workflow a canonicalized instance
// belongs to.
//
// The policy runs in order and stops at the first hit:
//  1. exact identity key (client, role, process), all three known
//  2. fuzzy display name within the same process, when enabled
//  3. create, with an id derived from the identity key or a fallback key
//
// Workflow ids are name-based UUIDs (version 5) of the key, so the same
// inputs always produce the same id. When a stored workflow already carries
// the fallback key, or the derived id already exists, the decision is a
// match on that id, which makes incomplete keys idempotent across runs.
// Migrated workflows keep their id under a rebuilt key, so the key lookup
// comes first.
package matcher

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"procwatch/internal/canonical"
	"procwatch/internal/normalize"
)

// Outcome is the kind of a [Decision].
type Outcome string

const (
	OutcomeExactKey    Outcome = "matched_exact_key"
	OutcomeDisplayName Outcome = "matched_display_name"
	OutcomeID          Outcome = "matched_id"
	OutcomeCreated     Outcome = "created"
)

// IsMatch reports whether the outcome refers to an existing workflow.
func (o Outcome) IsMatch() bool {
	return o != OutcomeCreated
}

// Anomaly kinds.
const (
	AnomalyDuplicateIdentityKey = "duplicate_identity_key"
	AnomalyAmbiguousDisplayName = "ambiguous_display_name"
)

// Anomaly is a store inconsistency found while matching. Anomalies never
// stop reconciliation.
type Anomaly struct {
	Kind        string   `json:"kind"`
	Key         string   `json:"key"`
	WorkflowIDs []string `json:"workflow_ids"`
}

// Decision is the matcher's verdict for one instance.
type Decision struct {
	InstanceID  string    `json:"instance_id"`
	Outcome     Outcome   `json:"outcome"`
	WorkflowID  string    `json:"workflow_id"`
	IdentityKey string    `json:"identity_key"`
	Score       float64   `json:"score"`
	Anomalies   []Anomaly `json:"anomalies,omitempty"`
}

// Candidate is a stored workflow as seen by the display-name tier.
type Candidate struct {
	WorkflowID  string
	DisplayName string
	IdentityKey string
}

// Index is the read side of the workflow store the matcher needs.
type Index interface {
	// LookupKey returns the ids of workflows with the given identity key,
	// complete or fallback, sorted.
	LookupKey(key string) []string

	// Candidates returns the workflows of a process.
	Candidates(processID string) []Candidate

	// Has reports whether a workflow id exists.
	Has(workflowID string) bool
}

// DefaultNamespace is the UUID namespace workflow ids are derived in.
var DefaultNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("procwatch:workflow"))

// Options configures a [Matcher].
type Options struct {
	// DisplayNameFuzzy enables the display-name tier.
	DisplayNameFuzzy bool

	// MinFuzzyLength is the shortest display name the fuzzy tier compares.
	MinFuzzyLength int

	// Namespace for workflow ids. Zero means [DefaultNamespace].
	Namespace uuid.UUID
}

// Matcher applies the matching policy.
type Matcher struct {
	opts Options
}

// New creates a [Matcher].
func New(opts Options) *Matcher {
	if opts.Namespace == uuid.Nil {
		opts.Namespace = DefaultNamespace
	}
	return &Matcher{opts: opts}
}

// Match resolves a canonicalized instance against the index.
func (m *Matcher) Match(ci *canonical.Instance, idx Index) Decision {
	d := Decision{InstanceID: ci.InstanceID}
	client, role, process := ci.Key()
	key, complete := IdentityKey(client, role, process)

	if complete {
		ids := idx.LookupKey(key)
		if len(ids) > 1 {
			d.Anomalies = append(d.Anomalies, Anomaly{Kind: AnomalyDuplicateIdentityKey, Key: key, WorkflowIDs: ids})
		}
		if len(ids) > 0 {
			d.Outcome = OutcomeExactKey
			d.WorkflowID = ids[0]
			d.IdentityKey = key
			d.Score = 1.0
			return d
		}
	}

	if m.opts.DisplayNameFuzzy && process != "" {
		id, score, anomaly := m.matchDisplayName(ci, key, complete, idx)
		if anomaly != nil {
			d.Anomalies = append(d.Anomalies, *anomaly)
		}
		if id != "" {
			d.Outcome = OutcomeDisplayName
			d.WorkflowID = id
			d.IdentityKey = key
			d.Score = score
			return d
		}
	}

	if !complete {
		key = FallbackKey(process, client, role, ci.InstanceID)
		if ids := idx.LookupKey(key); len(ids) > 0 {
			d.Outcome = OutcomeID
			d.WorkflowID = ids[0]
			d.IdentityKey = key
			d.Score = 1.0
			return d
		}
	}
	d.IdentityKey = key
	d.WorkflowID = WorkflowID(m.opts.Namespace, key)
	d.Outcome = OutcomeCreated
	if idx.Has(d.WorkflowID) {
		d.Outcome = OutcomeID
		d.Score = 1.0
	}
	return d
}

// tieEpsilon is the score distance under which two candidates tie.
const tieEpsilon = 1e-9

func (m *Matcher) matchDisplayName(ci *canonical.Instance, key string, complete bool, idx Index) (string, float64, *Anomaly) {
	name := DisplayName(ci)
	if name == "" {
		return "", 0, nil
	}

	candidates := idx.Candidates(*ci.CanonicalProcess)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].WorkflowID < candidates[j].WorkflowID })

	client, role, _ := ci.Key()
	best := 0.0
	var top []string
	for _, c := range candidates {
		// Two complete, different identities are different workflows no
		// matter how similar their names are.
		if complete && IsCompleteKey(c.IdentityKey) && c.IdentityKey != key {
			continue
		}
		// A known client or role never overrides a different known one.
		cClient, cRole := keyParts(c.IdentityKey)
		if conflicts(client, cClient) || conflicts(role, cRole) {
			continue
		}
		if !normalize.Contains(c.DisplayName, name, m.opts.MinFuzzyLength) {
			continue
		}
		score := normalize.LengthRatio(c.DisplayName, name)
		switch {
		case score > best+tieEpsilon:
			best = score
			top = []string{c.WorkflowID}
		case math.Abs(score-best) <= tieEpsilon:
			top = append(top, c.WorkflowID)
		}
	}

	switch len(top) {
	case 0:
		return "", 0, nil
	case 1:
		return top[0], best, nil
	default:
		return "", 0, &Anomaly{Kind: AnomalyAmbiguousDisplayName, Key: normalize.Normalize(name), WorkflowIDs: top}
	}
}

// DisplayName is "<role> - <client>" built from the canonical role (or the
// raw role text) and the canonical client. Unknown parts are left out.
func DisplayName(ci *canonical.Instance) string {
	role := normalize.Collapse(ci.CandidateRoleRaw)
	if ci.CanonicalRole != nil {
		role = *ci.CanonicalRole
	}
	client := ""
	if ci.CanonicalClient != nil {
		client = *ci.CanonicalClient
	}

	var parts []string
	for _, p := range []string{role, client} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " - ")
}

// fallbackPrefix marks identity keys built from incomplete fields.
const fallbackPrefix = "fallback"

// IdentityKey builds the identity key from the normalized client and role
// and the process id. complete is false when any part is unknown.
func IdentityKey(client, role, process string) (key string, complete bool) {
	if client == "" || role == "" || process == "" {
		return "", false
	}
	return client + "|" + role + "|" + process, true
}

// FallbackKey is the identity key of an instance with unknown fields. The
// instance id keeps unrelated incomplete instances apart.
func FallbackKey(process, client, role, instanceID string) string {
	return strings.Join([]string{fallbackPrefix, process, client, role, normalize.Collapse(instanceID)}, "|")
}

// RebuildKey returns key with its process part replaced by process.
func RebuildKey(key, process string) string {
	if strings.HasPrefix(key, fallbackPrefix+"|") {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) == 3 {
			return parts[0] + "|" + process + "|" + parts[2]
		}
		return key
	}
	if i := strings.LastIndex(key, "|"); i >= 0 {
		return key[:i+1] + process
	}
	return key
}

// IsCompleteKey reports whether key is a complete identity key rather than a
// fallback key.
func IsCompleteKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, fallbackPrefix+"|")
}

// keyParts returns the normalized client and role recorded in an identity
// key. Unknown or unparsable parts are empty.
func keyParts(key string) (client, role string) {
	if strings.HasPrefix(key, fallbackPrefix+"|") {
		parts := strings.SplitN(key, "|", 5)
		if len(parts) == 5 {
			return parts[2], parts[3]
		}
		return "", ""
	}
	parts := strings.Split(key, "|")
	if len(parts) == 3 {
		return parts[0], parts[1]
	}
	return "", ""
}

func conflicts(a, b string) bool {
	return a != "" && b != "" && a != b
}

// WorkflowID derives the workflow id of an identity key.
func WorkflowID(namespace uuid.UUID, key string) string {
	return uuid.NewSHA1(namespace, []byte(key)).String()
}
