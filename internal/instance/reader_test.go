package instance

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_Document(t *testing.T) {
	input := `{
  "instances": [
    {
      "instance_id": "i1",
      "candidate_client_raw": "AcmeCo",
      "candidate_process_raw": "Hiring for Acme",
      "candidate_role_raw": "Backend Engineer",
      "status": "active",
      "state": {"step": "phone screen", "summary": "screen booked", "confidence": 0.8},
      "evidence_message_ids": ["m1", "m2"],
      "last_updated_at": "2024-03-01T10:00:00Z"
    },
    {"instance_id": "i2", "state": {"last_updated_at": "2024-03-02"}, "evidence_message_ids": []}
  ]
}`
	batch, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, batch.Instances, 2)
	assert.Empty(t, batch.Skipped)

	first := batch.Instances[0]
	assert.Equal(t, "i1", first.InstanceID)
	assert.Equal(t, "AcmeCo", first.CandidateClientRaw)
	assert.Equal(t, "phone screen", first.State.Step)
	require.NotNil(t, first.State.Confidence)
	assert.InDelta(t, 0.8, *first.State.Confidence, 1e-9)
	assert.Equal(t, []string{"m1", "m2"}, first.EvidenceMessageIDs)
	assert.Equal(t, "2024-03-01T10:00:00Z", first.UpdatedAt())

	assert.Equal(t, "2024-03-02", batch.Instances[1].UpdatedAt())
}

func TestRead_Array(t *testing.T) {
	batch, err := Read(strings.NewReader(`[{"instance_id":"a"},{"instance_id":"b"}]`))
	require.NoError(t, err)
	require.Len(t, batch.Instances, 2)
	assert.Equal(t, "b", batch.Instances[1].InstanceID)
}

func TestRead_JSONLines(t *testing.T) {
	input := strings.Join([]string{
		`{"instance_id":"a","state":{"step":"intake"}}`,
		``,
		`{"instance_id":"b"`,
		`   `,
		`{"instance_id":"c"}`,
	}, "\n")

	batch, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, batch.Instances, 2)
	assert.Equal(t, "a", batch.Instances[0].InstanceID)
	assert.Equal(t, "intake", batch.Instances[0].State.Step)
	assert.Equal(t, "c", batch.Instances[1].InstanceID)

	require.Len(t, batch.Skipped, 1)
	assert.Equal(t, 3, batch.Skipped[0].Line)
}

func TestRead_SingleJSONLine(t *testing.T) {
	batch, err := Read(strings.NewReader(`{"instance_id":"solo"}`))
	require.NoError(t, err)
	require.Len(t, batch.Instances, 1)
	assert.Equal(t, "solo", batch.Instances[0].InstanceID)
}

func TestRead_Empty(t *testing.T) {
	batch, err := Read(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, batch.Instances)
}

func TestRead_BadArray(t *testing.T) {
	_, err := Read(strings.NewReader(`[{"instance_id":}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse instances array")
}

func TestParser_LineTooLong(t *testing.T) {
	p := &Parser{BufferSize: 16}
	_, err := p.Parse(strings.NewReader(`{"instance_id":"much-too-long-for-the-buffer"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestReadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"instance_id\":\"x\"}\n"), 0644))

	batch, err := ReadFromFile(path)
	require.NoError(t, err)
	require.Len(t, batch.Instances, 1)

	_, err = ReadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open instances")
}

func TestParseLine(t *testing.T) {
	inst, err := ParseLine([]byte(`{"instance_id":"x","evidence_message_ids":["m1"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, inst.EvidenceMessageIDs)

	_, err = ParseLine([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-03-01T10:00:00Z", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2024-03-01T12:00:00+02:00", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2024-03-01T10:00:00.250Z", want: time.Date(2024, 3, 1, 10, 0, 0, 250000000, time.UTC)},
		{in: "2024-03-01T10:00:00", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2024-03-01 10:00:00", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{in: " 2024-03-01 ", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: "yesterday", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := ParseTimestamp("")
	assert.ErrorIs(t, err, ErrNoTimestamp)
}
