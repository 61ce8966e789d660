package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procwatch/internal/canonical"
	"procwatch/internal/instance"
	"procwatch/internal/matcher"
)

var _ matcher.Index = (*Store)(nil)

func strPtr(s string) *string { return &s }

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func instanceFor(id, client, role, step string, updated *time.Time, evidence ...string) *canonical.Instance {
	ci := &canonical.Instance{
		Instance: instance.Instance{
			InstanceID:          id,
			CandidateClientRaw:  client,
			CandidateRoleRaw:    role,
			CandidateProcessRaw: "recruiting",
			State:               instance.State{Step: step},
			EvidenceMessageIDs:  evidence,
		},
		CanonicalProcess:              strPtr("recruiting"),
		CanonicalCurrentStepMatchType: canonical.MatchNone,
		Health:                        canonical.HealthUnknown,
		Timestamp:                     updated,
	}
	if client != "" {
		ci.CanonicalClient = strPtr(client)
	}
	if role != "" {
		ci.CanonicalRole = strPtr(role)
	}
	if step != "" {
		ci.CanonicalCurrentStepID = strPtr(step)
		ci.CanonicalCurrentStepMatchType = canonical.MatchExact
	}
	return ci
}

var recruiting = NewScope("recruiting")

func applyMatched(t *testing.T, st *Store, ci *canonical.Instance) *Workflow {
	t.Helper()
	d := matcher.New(matcher.Options{DisplayNameFuzzy: true, MinFuzzyLength: 3}).Match(ci, st)
	w, err := st.Apply(ci, d, recruiting)
	require.NoError(t, err)
	return w
}

func TestApply_CreateThenUpdate(t *testing.T) {
	st := New()

	first := applyMatched(t, st, instanceFor("i1", "AcmeCo", "Backend Engineer", "sourcing", ts("2024-05-01T10:00:00Z"), "m2", "m1"))
	assert.Equal(t, "acmeco|backend engineer|recruiting", first.IdentityKey)
	assert.Equal(t, "Backend Engineer - AcmeCo", first.DisplayName)
	assert.Equal(t, []string{"m1", "m2"}, first.Observability.EvidenceMessageIDs)
	assert.Equal(t, []string{"i1"}, first.Observability.SourceInstanceIDs)

	second := applyMatched(t, st, instanceFor("i2", "AcmeCo", "Backend Engineer", "onsite", ts("2024-05-03T10:00:00Z"), "m3", "m2"))
	assert.Equal(t, first.WorkflowID, second.WorkflowID)
	assert.Equal(t, []string{"m1", "m2", "m3"}, second.Observability.EvidenceMessageIDs)
	assert.Equal(t, []string{"i1", "i2"}, second.Observability.SourceInstanceIDs)
	assert.Equal(t, "onsite", *second.CurrentStepID)
	assert.Equal(t, ts("2024-05-03T10:00:00Z"), second.Observability.LastUpdatedAt)
	assert.Equal(t, 1, st.Len())
}

func TestApply_EvidenceNeverShrinks(t *testing.T) {
	st := New()
	applyMatched(t, st, instanceFor("i1", "AcmeCo", "Backend Engineer", "", nil, "m1", "m2", "m3"))
	w := applyMatched(t, st, instanceFor("i1", "AcmeCo", "Backend Engineer", "", nil))

	assert.Equal(t, []string{"m1", "m2", "m3"}, w.Observability.EvidenceMessageIDs)
	assert.Equal(t, []string{"i1"}, w.Observability.SourceInstanceIDs)
}

func TestApply_TimestampOnlyMovesForward(t *testing.T) {
	st := New()
	applyMatched(t, st, instanceFor("i1", "AcmeCo", "Backend Engineer", "", ts("2024-05-03T10:00:00Z")))

	w := applyMatched(t, st, instanceFor("i2", "AcmeCo", "Backend Engineer", "", ts("2024-05-01T10:00:00Z")))
	assert.Equal(t, ts("2024-05-03T10:00:00Z"), w.Observability.LastUpdatedAt)

	w = applyMatched(t, st, instanceFor("i3", "AcmeCo", "Backend Engineer", "", nil))
	assert.Equal(t, ts("2024-05-03T10:00:00Z"), w.Observability.LastUpdatedAt)
}

func TestApply_IsIdempotent(t *testing.T) {
	st := New()
	ci := instanceFor("i1", "AcmeCo", "Backend Engineer", "sourcing", ts("2024-05-01T10:00:00Z"), "m1")
	applyMatched(t, st, ci)
	before, err := st.Encode()
	require.NoError(t, err)

	applyMatched(t, st, ci)
	after, err := st.Encode()
	require.NoError(t, err)

	assert.Equal(t, string(before), string(after))
}

func TestApply_OutOfScope(t *testing.T) {
	st := New()
	ci := instanceFor("i1", "AcmeCo", "Backend Engineer", "", nil)
	ci.CanonicalProcess = strPtr("onboarding")

	_, err := st.Apply(ci, matcher.Decision{WorkflowID: "w1", Outcome: matcher.OutcomeCreated}, recruiting)
	assert.ErrorIs(t, err, ErrOutOfScope)

	ci.CanonicalProcess = nil
	_, err = st.Apply(ci, matcher.Decision{WorkflowID: "w1", Outcome: matcher.OutcomeCreated}, recruiting)
	assert.ErrorIs(t, err, ErrOutOfScope)
	assert.Equal(t, 0, st.Len())
}

func TestApply_UnknownWorkflow(t *testing.T) {
	st := New()
	ci := instanceFor("i1", "AcmeCo", "Backend Engineer", "", nil)

	_, err := st.Apply(ci, matcher.Decision{WorkflowID: "missing", Outcome: matcher.OutcomeExactKey}, recruiting)
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestApply_CompleteKeyReplacesFallback(t *testing.T) {
	st := New()
	partial := applyMatched(t, st, instanceFor("i1", "AcmeCo", "", "", nil, "m1"))
	assert.Equal(t, "fallback|recruiting|acmeco||i1", partial.IdentityKey)
	assert.Equal(t, []string{partial.WorkflowID}, st.LookupKey(partial.IdentityKey))

	full := applyMatched(t, st, instanceFor("i2", "AcmeCo", "Backend Engineer", "", nil, "m2"))
	assert.Equal(t, partial.WorkflowID, full.WorkflowID, "display name should link the instances")
	assert.Equal(t, "acmeco|backend engineer|recruiting", full.IdentityKey)
	assert.Equal(t, []string{full.WorkflowID}, st.LookupKey(full.IdentityKey))
	assert.Empty(t, st.LookupKey(partial.IdentityKey), "fallback key is unindexed")
}

func TestCandidates_FilteredByProcessAndSorted(t *testing.T) {
	st := New()
	applyMatched(t, st, instanceFor("i1", "Zeta", "Designer", "", nil))
	applyMatched(t, st, instanceFor("i2", "AcmeCo", "Designer", "", nil))

	got := st.Candidates("recruiting")
	require.Len(t, got, 2)
	assert.Less(t, got[0].WorkflowID, got[1].WorkflowID)
	assert.Empty(t, st.Candidates("onboarding"))
}

type legacyMap map[string]string

func (m legacyMap) ResolveLegacy(id string) (string, bool) {
	to, ok := m[id]
	return to, ok && to != id
}

func TestMigrate(t *testing.T) {
	st := New()
	ci := instanceFor("i1", "AcmeCo", "Backend Engineer", "", nil, "m1")
	ci.CanonicalProcess = strPtr("hiring")
	w, err := st.Apply(ci, matcher.New(matcher.Options{}).Match(ci, st), NewScope("hiring"))
	require.NoError(t, err)

	migrations := st.Migrate(legacyMap{"hiring": "recruiting"})
	require.Len(t, migrations, 1)
	assert.Equal(t, Migration{
		WorkflowID:     w.WorkflowID,
		From:           "hiring",
		To:             "recruiting",
		OldIdentityKey: "acmeco|backend engineer|hiring",
		NewIdentityKey: "acmeco|backend engineer|recruiting",
	}, migrations[0])

	got, ok := st.Get(w.WorkflowID)
	require.True(t, ok)
	assert.Equal(t, "recruiting", got.ProcessID)
	assert.Equal(t, []string{w.WorkflowID}, st.LookupKey("acmeco|backend engineer|recruiting"))
	assert.Empty(t, st.LookupKey("acmeco|backend engineer|hiring"))

	// A new instance of the same identity now lands on the migrated workflow.
	d := matcher.New(matcher.Options{}).Match(instanceFor("i2", "AcmeCo", "Backend Engineer", "", nil), st)
	assert.Equal(t, matcher.OutcomeExactKey, d.Outcome)
	assert.Equal(t, w.WorkflowID, d.WorkflowID)

	assert.Empty(t, st.Migrate(legacyMap{"hiring": "recruiting"}), "second migration is a no-op")
}

func TestMigrate_FallbackKeyStaysMatchable(t *testing.T) {
	st := New()
	m := matcher.New(matcher.Options{DisplayNameFuzzy: true, MinFuzzyLength: 3})
	ci := instanceFor("i9", "", "", "", nil, "m1")
	ci.CanonicalProcess = strPtr("hiring")
	w, err := st.Apply(ci, m.Match(ci, st), NewScope("hiring"))
	require.NoError(t, err)
	assert.Equal(t, "fallback|hiring|||i9", w.IdentityKey)

	migrations := st.Migrate(legacyMap{"hiring": "recruiting"})
	require.Len(t, migrations, 1)
	assert.Equal(t, "fallback|recruiting|||i9", migrations[0].NewIdentityKey)
	assert.Equal(t, []string{w.WorkflowID}, st.LookupKey("fallback|recruiting|||i9"))
	assert.Empty(t, st.LookupKey("fallback|hiring|||i9"))

	ci.CanonicalProcess = strPtr("recruiting")
	d := m.Match(ci, st)
	assert.Equal(t, matcher.OutcomeID, d.Outcome)
	assert.Equal(t, w.WorkflowID, d.WorkflowID)

	_, err = st.Apply(ci, d, recruiting)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Len())
}

func TestEncodeDecode(t *testing.T) {
	st := New()
	applyMatched(t, st, instanceFor("i1", "AcmeCo", "Backend Engineer", "sourcing", ts("2024-05-01T10:00:00Z"), "m1"))
	applyMatched(t, st, instanceFor("i2", "Globex", "", "", nil, "m9"))

	data, err := st.Encode()
	require.NoError(t, err)

	loaded, err := Decode(data)
	require.NoError(t, err)
	again, err := loaded.Encode()
	require.NoError(t, err)

	assert.Equal(t, string(data), string(again))
	assert.Equal(t, st.Len(), loaded.Len())
	assert.Equal(t, st.LookupKey("acmeco|backend engineer|recruiting"), loaded.LookupKey("acmeco|backend engineer|recruiting"))
}

func TestDecode_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: "   \n"},
		{name: "invalid json", data: `{"schema_version": 1, "workflows": {`},
		{name: "not an object", data: `[]`},
		{name: "missing workflows", data: `{"schema_version": 1}`},
		{name: "newer schema", data: `{"schema_version": 99, "workflows": {}}`},
		{name: "bad workflow", data: `{"schema_version": 1, "workflows": {"w1": {"workflow_id": "w1"}}}`},
		{
			name: "duplicate evidence",
			data: `{"schema_version": 1, "workflows": {"w1": {"workflow_id": "w1", "identity_key": "", "process_id": "recruiting",
				"observability": {"evidence_message_ids": ["m1", "m1"], "source_instance_ids": []}}}}`,
		},
		{
			name: "key mismatch",
			data: `{"schema_version": 1, "workflows": {"w1": {"workflow_id": "w2", "identity_key": "", "process_id": "recruiting",
				"observability": {"evidence_message_ids": [], "source_instance_ids": []}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, ErrCorruptStore)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file is an empty store", func(t *testing.T) {
		st, fresh, err := Load(filepath.Join(t.TempDir(), "workflows.json"), false)
		require.NoError(t, err)
		assert.False(t, fresh)
		assert.Equal(t, 0, st.Len())
	})

	t.Run("corrupt file is fatal", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "workflows.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		_, _, err := Load(path, false)
		assert.ErrorIs(t, err, ErrCorruptStore)
	})

	t.Run("corrupt file with init fresh", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "workflows.json")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		st, fresh, err := Load(path, true)
		require.NoError(t, err)
		assert.True(t, fresh)
		assert.Equal(t, 0, st.Len())
	})
}

func TestSession_CommitAndDiscard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "workflows.json")

	s, err := Open(path, SessionOptions{Lock: true})
	require.NoError(t, err)
	applyMatched(t, s.Store(), instanceFor("i1", "AcmeCo", "Backend Engineer", "", nil, "m1"))
	require.NoError(t, s.Commit())
	require.NoError(t, s.Release())
	require.NoError(t, s.Release())

	// Changes without Commit are discarded.
	s, err = Open(path, SessionOptions{Lock: true})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Store().Len())
	applyMatched(t, s.Store(), instanceFor("i2", "Globex", "Designer", "", nil, "m2"))
	require.NoError(t, s.Release())

	s, err = Open(path, SessionOptions{})
	require.NoError(t, err)
	defer s.Release()
	assert.Equal(t, 1, s.Store().Len())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp.", "temp files should not be left behind")
	}
}

func TestSession_SecondWriterFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.json")

	first, err := Open(path, SessionOptions{Lock: true})
	require.NoError(t, err)
	defer first.Release()

	_, err = Open(path, SessionOptions{Lock: true})
	assert.ErrorIs(t, err, ErrStoreLocked)

	require.NoError(t, first.Release())
	second, err := Open(path, SessionOptions{Lock: true})
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestSession_CorruptStoreReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := Open(path, SessionOptions{Lock: true})
	require.ErrorIs(t, err, ErrCorruptStore)

	s, err := Open(path, SessionOptions{Lock: true, InitFresh: true})
	require.NoError(t, err)
	defer s.Release()
	assert.True(t, s.Fresh())
}

func TestWriteSnapshot_IsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "r1", "store_snapshot.json")
	st := New()
	applyMatched(t, st, instanceFor("i1", "AcmeCo", "Backend Engineer", "", nil))

	require.NoError(t, WriteSnapshot(path, st))
	assert.Error(t, WriteSnapshot(path, st))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	loaded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestResolvePath(t *testing.T) {
	t.Setenv("PROCWATCH_STORE_PATH", "")
	assert.Equal(t, DefaultPath, ResolvePath(""))
	assert.Equal(t, "custom.json", ResolvePath("custom.json"))

	t.Setenv("PROCWATCH_STORE_PATH", "/env/store.json")
	assert.Equal(t, "/env/store.json", ResolvePath("custom.json"))
}

func TestScope(t *testing.T) {
	s := NewScope("recruiting", "onboarding", "recruiting", "")
	assert.Equal(t, []string{"onboarding", "recruiting"}, s.Processes())
	assert.True(t, s.Allows(strPtr("onboarding")))
	assert.False(t, s.Allows(strPtr("sales")))
	assert.False(t, s.Allows(nil))
}
