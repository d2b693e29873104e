package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceDump = `{
  "blog": {"name": "alice"},
  "posts": [
    {"id": 1001, "type": "text", "blog": {"name": "alice"}, "timestamp": 1700000000, "title": "Hello", "tags": ["intro"]},
    {"id": "1002", "type": "text", "blog": {"name": "alice"}, "timestamp": 1700000100, "title": "Again"}
  ]
}`

type cliEnv struct {
	dumps   string
	db      string
	envFile string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	dumps := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dumps, "alice.json"), []byte(aliceDump), 0o644))

	work := t.TempDir()
	envFile := filepath.Join(work, "empty.env")
	require.NoError(t, os.WriteFile(envFile, nil, 0o644))

	return &cliEnv{dumps: dumps, db: filepath.Join(work, "archive.db"), envFile: envFile}
}

// run executes the root command against the env's database.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append(args, "--db", e.db, "--env-file", e.envFile))

	err := cmd.Execute()
	return stdout.String(), err
}

func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()

	resp := CLIResponse{Data: data}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestImportDir(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "import", "dir", env.dumps, "--format", "json", "--workers", "2")
	require.NoError(t, err)

	var summary struct {
		Batches int `json:"batches"`
		Failed  int `json:"failed"`
		Stats   struct {
			Posts    int `json:"posts"`
			NewPosts int `json:"new_posts"`
		} `json:"stats"`
	}
	resp := decodeResponse(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, summary.Batches)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 2, summary.Stats.Posts)
	assert.Equal(t, 2, summary.Stats.NewPosts)
}

func TestImportDir_TextSummary(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "import", "dir", env.dumps)
	require.NoError(t, err)
	assert.Contains(t, out, "Run 1 (import_finished): 1 batches, ok")
	assert.Contains(t, out, "2 seen, 2 new, 0 revisited, 0 archived")
}

func TestImportDir_FailedBatchExitCode(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.dumps, "broken.json"), []byte("{not json"), 0o644))

	out, err := env.run(t, "import", "dir", env.dumps)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 batches failed")
	assert.Contains(t, out, "1 failed")
}

func TestImportDir_MissingSource(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "import", "dir", filepath.Join(env.dumps, "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunsList(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs")

	_, err = env.run(t, "import", "dir", env.dumps)
	require.NoError(t, err)

	out, err = env.run(t, "runs", "list", "--format", "json")
	require.NoError(t, err)

	var runs []struct {
		ID         int64  `json:"id"`
		Phase      string `json:"phase"`
		Watermarks struct {
			PostID int64 `json:"post_id"`
		} `json:"watermarks"`
	}
	decodeResponse(t, out, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(1), runs[0].ID)
	assert.Equal(t, "import_finished", runs[0].Phase)
	assert.Equal(t, int64(2), runs[0].Watermarks.PostID)
}

func TestHistory(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "import", "dir", env.dumps)
	require.NoError(t, err)

	out, err := env.run(t, "history", "1001")
	require.NoError(t, err)
	assert.Contains(t, out, `Post 1001 (id 1) "Hello"`)
	assert.Contains(t, out, "no archived changes")

	out, err = env.run(t, "history", "1002", "--format", "json")
	require.NoError(t, err)
	var view HistoryView
	decodeResponse(t, out, &view)
	assert.Equal(t, "Again", view.Title)
	assert.Empty(t, view.History)
}

func TestHistory_NotFound(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "history", "42", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestLink(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "import", "dir", env.dumps)
	require.NoError(t, err)

	out, err := env.run(t, "link", "alice", "alice-art", "--note", "moved")
	require.NoError(t, err)
	assert.Equal(t, "linked alice -> alice-art\n", out)

	out, err = env.run(t, "link", "alice", "alice-art", "--format", "json")
	require.NoError(t, err)
	var result LinkResult
	decodeResponse(t, out, &result)
	assert.Equal(t, LinkResult{From: "alice", To: "alice-art", Inserted: false}, result)
}

func TestLink_NoRuns(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "link", "a", "b")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}

func TestBadConfigIsCommandError(t *testing.T) {
	env := newCLIEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("workers: 0\n"), 0o644))

	_, err := env.run(t, "runs", "list", "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
