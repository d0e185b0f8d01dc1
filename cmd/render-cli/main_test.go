package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testProject struct {
	root       string
	configPath string
	characters string
	output     string
	jobsDB     string
}

// newTestProject writes a project.toml that keeps every path inside a temp dir and
// points the binaries at files that do not exist.
func newTestProject(t *testing.T) testProject {
	t.Helper()

	root := t.TempDir()
	project := testProject{
		root:       root,
		configPath: filepath.Join(root, "project.toml"),
		characters: filepath.Join(root, "characters"),
		output:     filepath.Join(root, "output"),
		jobsDB:     filepath.Join(root, "jobs.db"),
	}

	content := fmt.Sprintf(`
[paths]
base_logs_dir = %q
characters_dir = %q
jobs_db = %q

[timeline]
output_dir = %q

[tts]
gtts_path = %q

[encoder]
ffmpeg_path = %q
ffprobe_path = %q
`,
		filepath.Join(root, "logs"), project.characters, project.jobsDB, project.output,
		filepath.Join(root, "no-gtts"), filepath.Join(root, "no-ffmpeg"), filepath.Join(root, "no-ffprobe"),
	)
	require.NoError(t, os.WriteFile(project.configPath, []byte(content), 0o600))

	return project
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestRender_RequiresScript(t *testing.T) {
	t.Parallel()

	project := newTestProject(t)

	_, err := execute(t, "render", "--config", project.configPath)
	require.ErrorIs(t, err, ErrMissingScript)
}

func TestRender_MissingScriptFile(t *testing.T) {
	t.Parallel()

	project := newTestProject(t)

	_, err := execute(t, "render", "--config", project.configPath,
		"--script", filepath.Join(project.root, "missing.json"))
	require.Error(t, err)
}

func TestRender_RejectsBadPolicy(t *testing.T) {
	t.Parallel()

	project := newTestProject(t)
	scriptPath := filepath.Join(project.root, "script.json")
	require.NoError(t, os.WriteFile(scriptPath, []byte(`{"lines":[{"text":"hi"}]}`), 0o600))

	_, err := execute(t, "render", "--config", project.configPath,
		"--script", scriptPath, "--policy", "retry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure policy")
}

func TestConfig_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "characters", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestCharacters_Lists(t *testing.T) {
	t.Parallel()

	project := newTestProject(t)

	for _, id := range []string{"alice", "bob"} {
		dir := filepath.Join(project.characters, id)
		require.NoError(t, os.MkdirAll(dir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "00.png"), []byte("png"), 0o600))
	}

	out, err := execute(t, "characters", "--config", project.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "bob")
}

func TestDoctor_FailsWithoutBinaries(t *testing.T) {
	t.Parallel()

	project := newTestProject(t)

	out, err := execute(t, "doctor", "--config", project.configPath)
	require.ErrorIs(t, err, ErrChecksFailed)
	assert.Contains(t, out, checkFailLabel)
	assert.Contains(t, out, checkPassLabel, "the output dir check still passes")
}

func TestSweep_RemovesLeftovers(t *testing.T) {
	t.Parallel()

	project := newTestProject(t)
	require.NoError(t, os.MkdirAll(project.output, 0o750))

	leftover := filepath.Join(project.output, ".abc.mp4.partial")
	require.NoError(t, os.WriteFile(leftover, []byte("x"), 0o600))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(leftover, old, old))

	out, err := execute(t, "sweep", "--config", project.configPath, "--max-age", "1m")
	require.NoError(t, err)
	assert.Contains(t, out, "1 removed")
	assert.NoFileExists(t, leftover)
}

func TestJobs_ListsRecent(t *testing.T) {
	t.Parallel()

	project := newTestProject(t)

	log, err := logger.New(t.TempDir(), "jobs-seed.log")
	require.NoError(t, err)

	ledger, err := jobs.Open(project.jobsDB, log)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ledger.Create(ctx, jobs.Job{ID: "job-1", ScriptKey: "s.json"}))
	require.NoError(t, ledger.Finish(ctx, "job-1", "wf/out.mp4", 3, 4.5))
	require.NoError(t, ledger.Close())

	out, err := execute(t, "jobs", "--config", project.configPath, "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "wf/out.mp4")
	assert.Contains(t, out, string(jobs.StatusDone))
}
