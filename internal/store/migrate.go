package store

import (
	"procwatch/internal/matcher"
)

// LegacyResolver maps a stored process id to its canonical replacement.
// catalog.Unified implements it.
type LegacyResolver interface {
	ResolveLegacy(processID string) (string, bool)
}

// Migration records one rewritten workflow.
type Migration struct {
	WorkflowID     string `json:"workflow_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	OldIdentityKey string `json:"old_identity_key"`
	NewIdentityKey string `json:"new_identity_key"`
}

// Migrate rewrites legacy process ids to their canonical id and rebuilds the
// affected identity keys. It runs right after load and before any matching.
// Workflow ids are kept, so references from earlier reports stay valid.
func (s *Store) Migrate(r LegacyResolver) []Migration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Migration
	for _, id := range s.sortedIDs() {
		w := s.workflows[id]
		to, ok := r.ResolveLegacy(w.ProcessID)
		if !ok {
			continue
		}

		m := Migration{
			WorkflowID:     w.WorkflowID,
			From:           w.ProcessID,
			To:             to,
			OldIdentityKey: w.IdentityKey,
		}
		s.unindex(w)
		w.ProcessID = to
		if w.IdentityKey != "" {
			w.IdentityKey = matcher.RebuildKey(w.IdentityKey, to)
		}
		s.index(w)
		m.NewIdentityKey = w.IdentityKey
		out = append(out, m)
	}
	return out
}
