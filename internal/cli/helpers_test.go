package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"procwatch/internal/config"
	"procwatch/internal/output"
)

const recruitingYAML = `id: recruiting
name: Recruiting
deprecated_ids: [hiring-v1]
phases:
  - id: search
    name: Search
    steps:
      - id: intake
        name: Intake Call
      - id: sourcing
        name: Candidate Sourcing
      - id: client-profile-feedback
        name: Client Profile Feedback
  - id: interviewing
    name: Interviewing
    steps:
      - id: phone-screen
        name: Phone Screen
      - id: onsite
        name: Onsite Interview
step_aliases:
  client-profile-feedback: [client feedback on profiles]
`

const processesYAML = `processes:
  - id: onboarding
    name: Onboarding
    steps: [paperwork, equipment, first-day]
`

const rolesYAML = `roles:
  canonical: [Backend Engineer, Data Scientist]
  aliases:
    Backend Engineer: [backend dev]
`

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// testEnv is an isolated working directory with a catalog, a config pointing
// at it and an App writing to buffers.
type testEnv struct {
	dir    string
	cfg    *config.Config
	app    *App
	output *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("PROCWATCH_STORE_PATH", "")
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "catalog", "recruiting.yaml"), recruitingYAML)
	writeFile(t, filepath.Join(dir, "catalog", "processes.yaml"), processesYAML)
	writeFile(t, filepath.Join(dir, "catalog", "roles.yaml"), rolesYAML)

	cfg := config.DefaultConfig()
	cfg.Catalog.AuthoritativePath = filepath.Join(dir, "catalog", "recruiting.yaml")
	cfg.Catalog.ProcessPaths = []string{filepath.Join(dir, "catalog", "processes.yaml")}
	cfg.Catalog.RolesPath = filepath.Join(dir, "catalog", "roles.yaml")
	cfg.Store.Path = filepath.Join(dir, "data", "workflows.json")
	cfg.Reports.Dir = filepath.Join(dir, "reports")

	buf := &bytes.Buffer{}
	return &testEnv{
		dir: dir,
		cfg: cfg,
		app: &App{
			Config:  cfg,
			Logger:  zap.NewNop(),
			Printer: output.NewPrinterWithWriter(buf),
			Now:     func() time.Time { return testNow },
		},
		output: buf,
	}
}

// execute runs the command line and returns the command's stdout.
func (e *testEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(e.app)
	stdout := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stdout)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// writeInstances writes JSON lines to a file in the environment.
func (e *testEnv) writeInstances(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	writeFile(t, path, strings.Join(lines, "\n")+"\n")
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
