package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/civicstore/internal/paths"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

const permitsConfig = `lists:
  - display_name: Permits
    columns:
      - name: Title
        kind: text
        required: true
      - name: Status
        kind: choice
        choices: [Open, Closed]
        default: Open
log:
  level: error
`

type env struct {
	configDir string
	dataDir   string
}

func newEnv(t *testing.T, config string) env {
	t.Helper()
	e := env{configDir: t.TempDir(), dataDir: t.TempDir()}
	if config != "" {
		require.NoError(t, os.WriteFile(filepath.Join(e.configDir, paths.ConfigFile), []byte(config), 0o644))
	}
	return e
}

// run executes one command against e and returns stdout.
func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, "civicstore %v", args)
	return out
}

func TestVersionNeedsNoConfig(t *testing.T) {
	e := env{configDir: filepath.Join(t.TempDir(), "never"), dataDir: t.TempDir()}
	out := e.mustRun(t, "version")
	assert.Contains(t, out, "civicstore v"+Version)
	assert.NoDirExists(t, e.configDir)
}

func TestInitWritesDefaultConfig(t *testing.T) {
	e := newEnv(t, "")
	out := e.mustRun(t, "init")
	assert.Contains(t, out, e.dataDir)
	assert.FileExists(t, filepath.Join(e.configDir, paths.ConfigFile))
	assert.FileExists(t, filepath.Join(e.dataDir, "remote.db"))

	cfg, err := loadConfig(e.configDir)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultConfig(), cfg)
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	e := newEnv(t, "cache:\n  ttl: 10s\n")
	t.Setenv("CIVICSTORE_CACHE_TTL", "30s")
	cfg, err := loadConfig(e.configDir)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	e := newEnv(t, "queue:\n  backend: redis\n")
	_, err := e.run(t, "provision")
	assert.ErrorIs(t, err, types.ErrQueueBackendUnknown)
}

func TestRecordLifecycle(t *testing.T) {
	e := newEnv(t, permitsConfig)

	var created types.Record
	out := e.mustRun(t, "--json", "create", "Permits", "--field", "Title=Fence")
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.NotEmpty(t, created.RemoteItemID)
	assert.Equal(t, "Open", created.Fields["Status"])

	e.mustRun(t, "update", "Permits", created.RemoteItemID, "--field", "Status=Closed")

	var listed []types.Record
	out = e.mustRun(t, "--json", "list", "Permits", "--filter", "Status=Closed")
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Fence", listed[0].Fields["Title"])

	out = e.mustRun(t, "get", "Permits", created.RemoteItemID)
	assert.Contains(t, out, "Closed")

	e.mustRun(t, "delete", "Permits", created.RemoteItemID)
	_, err := e.run(t, "get", "Permits", created.RemoteItemID)
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestCreateWithoutRequiredField(t *testing.T) {
	e := newEnv(t, permitsConfig)
	_, err := e.run(t, "create", "Permits", "--field", "Status=Open")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestUnregisteredList(t *testing.T) {
	e := newEnv(t, permitsConfig)
	_, err := e.run(t, "list", "Invoices")
	assert.ErrorIs(t, err, types.ErrListNotRegistered)
}

func TestBadAssignments(t *testing.T) {
	e := newEnv(t, permitsConfig)
	_, err := e.run(t, "create", "Permits", "--field", "Title")
	assert.ErrorIs(t, err, errUsage)
	_, err = e.run(t, "list", "Permits", "--filter", "=x")
	assert.ErrorIs(t, err, errUsage)
}

func TestIntake(t *testing.T) {
	e := newEnv(t, "log:\n  level: error\n")
	out := e.mustRun(t, "--json", "intake",
		"--name", "Ada Lovelace",
		"--email", "ada@example.org",
		"--request", "Council minutes for January",
		"--date", "2024-03-01",
		"--submission-id", "sub-1",
	)
	var res types.IntakeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, types.IntakeRecorded, res.State)
	assert.Equal(t, "PRR-20240301-0001", res.CaseID)
	assert.Equal(t, "Public Records/General/FY2023-24", res.FolderPath)
	assert.Equal(t, "2024-03-15", res.Deadline.Format(dateLayout))

	// Resubmitting the same draft reuses the case.
	out = e.mustRun(t, "--json", "intake",
		"--name", "Ada Lovelace",
		"--email", "ada@example.org",
		"--request", "Council minutes for January",
		"--date", "2024-03-01",
		"--submission-id", "sub-1",
	)
	var again types.IntakeResult
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Equal(t, res.CaseID, again.CaseID)
}

func TestIntakeRejectsBadEmail(t *testing.T) {
	e := newEnv(t, "log:\n  level: error\n")
	_, err := e.run(t, "intake", "--name", "A", "--email", "nope", "--request", "x")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestQueueCommandsOnEmptyQueue(t *testing.T) {
	e := newEnv(t, "log:\n  level: error\n")
	out := e.mustRun(t, "--json", "queue", "list")
	assert.JSONEq(t, "[]", out)

	out = e.mustRun(t, "--json", "queue", "replay")
	var v replayView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Zero(t, v.Replayed)
	assert.Empty(t, v.Failed)
	assert.Zero(t, v.Remaining)
}

func TestBadgerQueueBackend(t *testing.T) {
	e := newEnv(t, "queue:\n  backend: badger\nlog:\n  level: error\n")
	e.mustRun(t, "init")
	assert.DirExists(t, filepath.Join(e.dataDir, queueBadgerDir))
}

func TestDerivationCommands(t *testing.T) {
	e := newEnv(t, "")
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"deadline", "2024-03-01", "10"}, "2024-03-15\n"},
		{[]string{"deadline", "2024-03-01"}, "2024-03-15\n"},
		{[]string{"case-id", "2024-03-01", "7"}, "PRR-20240301-0007\n"},
		{[]string{"fiscal-year", "2024-03-01"}, "FY2023-24\tPublic Records/General/FY2023-24\n"},
		{[]string{"fiscal-year", "2024-07-01", "--category", "Police"}, "FY2024-25\tPublic Records/Police/FY2024-25\n"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			assert.Equal(t, tt.want, e.mustRun(t, tt.args...))
		})
	}

	_, err := e.run(t, "deadline", "03/01/2024")
	assert.ErrorIs(t, err, errUsage)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitUserError, exitCode(usageErr("bad")))
	assert.Equal(t, exitUserError, exitCode(types.ErrNotFound))
	assert.Equal(t, exitSysError, exitCode(types.ErrTransient))
	assert.Equal(t, exitSysError, exitCode(os.ErrPermission))
}
