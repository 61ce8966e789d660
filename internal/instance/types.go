// Package instance reads the per-run process instance records produced by
// the upstream extraction stage.
//
// An instance is one inferred observation of a real-world process: raw
// client, process and role labels, a free-text step and summary, and the ids
// of the messages that support it. Instances are read-only; canonicalization
// derives new values from them without changing them.
//
// Two input layouts are accepted: a JSON document of the form
// {"instances": [...]} (or a bare JSON array), and JSON lines with one
// instance object per line. See [ReadFromFile].
package instance

import (
	"errors"
	"strings"
	"time"
)

// ErrNoTimestamp is returned by [ParseTimestamp] for an empty value.
var ErrNoTimestamp = errors.New("no timestamp")

// State is the inferred state of an instance.
type State struct {
	Step          string   `json:"step,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	LastUpdatedAt string   `json:"last_updated_at,omitempty"`
}

// Instance is one upstream process instance record.
type Instance struct {
	InstanceID          string   `json:"instance_id"`
	CandidateClientRaw  string   `json:"candidate_client_raw,omitempty"`
	CandidateProcessRaw string   `json:"candidate_process_raw,omitempty"`
	CandidateRoleRaw    string   `json:"candidate_role_raw,omitempty"`
	Status              string   `json:"status,omitempty"`
	State               State    `json:"state"`
	EvidenceMessageIDs  []string `json:"evidence_message_ids"`
	LastUpdatedAt       string   `json:"last_updated_at,omitempty"`
}

// UpdatedAt returns the instance timestamp: the top-level value, falling back
// to the state's.
func (i *Instance) UpdatedAt() string {
	if ts := strings.TrimSpace(i.LastUpdatedAt); ts != "" {
		return ts
	}
	return strings.TrimSpace(i.State.LastUpdatedAt)
}

// timestampLayouts are tried in order by ParseTimestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO 8601 timestamp. Values without a zone are
// taken as UTC. The result is always in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrNoTimestamp
	}
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
