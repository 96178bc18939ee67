package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/devdash/command"
	"github.com/grovetools/devdash/command/commandtest"
	"github.com/grovetools/devdash/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryParsesAllFields(t *testing.T) {
	rec := commandtest.New().
		On("git rev-parse --abbrev-ref HEAD", "feature/x\n").
		On("git status --porcelain", " M a.go\n?? b.go\n\n").
		On("git log -1", "abc123\x1fAdd thing\x1f1700000000\n").
		On("git rev-list --left-right --count origin/feature/x...HEAD", "2\t5\n")

	status, err := Query(context.Background(), rec, "/repo", time.Second)
	require.NoError(t, err)

	assert.Equal(t, "feature/x", status.Branch)
	assert.Equal(t, 2, status.UncommittedChanges)
	assert.Equal(t, 5, status.Ahead)
	assert.Equal(t, 2, status.Behind)
	require.NotNil(t, status.LastCommit)
	assert.Equal(t, "abc123", status.LastCommit.Hash)
	assert.Equal(t, "Add thing", status.LastCommit.Message)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), status.LastCommit.Timestamp)

	for _, c := range rec.Calls() {
		assert.Equal(t, "/repo", c.Dir)
	}
}

func TestQueryPartialFailureDefaults(t *testing.T) {
	rec := commandtest.New().
		OnError("git rev-parse", errors.New("boom")).
		On("git status --porcelain", "").
		OnError("git log", errors.New("no commits"))

	status, err := Query(context.Background(), rec, "/repo", time.Second)
	require.NoError(t, err)

	assert.Equal(t, UnknownBranch, status.Branch)
	assert.Zero(t, status.UncommittedChanges)
	assert.Nil(t, status.LastCommit)
	assert.Zero(t, status.Ahead)
	assert.Zero(t, status.Behind)
	assert.Zero(t, rec.Count("git rev-list"), "no upstream query without a branch")
}

func TestQueryNoUpstreamDefaultsToZero(t *testing.T) {
	rec := commandtest.New().
		On("git rev-parse", "main\n").
		On("git status", "").
		On("git log", "h\x1fm\x1f1\n").
		OnError("git rev-list", errors.New("unknown revision"))

	status, err := Query(context.Background(), rec, "/repo", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "main", status.Branch)
	assert.Zero(t, status.Ahead)
	assert.Zero(t, status.Behind)
}

func TestQuerySkipsUpstreamForUnsafeBranch(t *testing.T) {
	for _, branch := range []string{"--output=/tmp/x", "main..HEAD", "feat;rm"} {
		t.Run(branch, func(t *testing.T) {
			rec := commandtest.New().
				On("git rev-parse", branch+"\n").
				On("git status", "").
				On("git log", "h\x1fm\x1f1\n").
				On("git rev-list", "1\t1\n")

			status, err := Query(context.Background(), rec, "/repo", time.Second)
			require.NoError(t, err)
			assert.Equal(t, branch, status.Branch)
			assert.Zero(t, status.Ahead)
			assert.Zero(t, status.Behind)
			assert.Zero(t, rec.Count("git rev-list"))
		})
	}
}

func TestQueryAllFail(t *testing.T) {
	rec := commandtest.New()

	status, err := Query(context.Background(), rec, "/repo", time.Second)
	assert.Error(t, err)
	assert.Nil(t, status)
}

func TestParseHelpers(t *testing.T) {
	l, r := parseLeftRight("3\t4")
	assert.Equal(t, 3, l)
	assert.Equal(t, 4, r)

	l, r = parseLeftRight("garbage")
	assert.Zero(t, l)
	assert.Zero(t, r)

	_, err := parseCommit("only-hash")
	assert.Error(t, err)

	assert.Equal(t, 0, countLines("\n\n"))
}

func TestIsGitRepo(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IsGitRepo(dir))

	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0755))
	assert.True(t, IsGitRepo(dir))
}

func TestQueryRealRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	testutil.InitGitRepo(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("x"), 0644))

	status, err := Query(context.Background(), command.NewSafeBuilder(), dir, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "main", status.Branch)
	assert.Equal(t, 1, status.UncommittedChanges)
	require.NotNil(t, status.LastCommit)
	assert.Equal(t, "Initial commit", status.LastCommit.Message)
	assert.Zero(t, status.Ahead, "no origin remote")
}
