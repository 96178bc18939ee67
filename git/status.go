// Package git runs the read-only git queries behind a project's git status.
package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/devdash/command"
)

// UnknownBranch is reported when the branch query fails.
const UnknownBranch = "unknown"

// Commit describes the most recent commit.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is a snapshot of a working tree.
type Status struct {
	Branch             string  `json:"branch"`
	UncommittedChanges int     `json:"uncommittedChanges"`
	Ahead              int     `json:"ahead"`
	Behind             int     `json:"behind"`
	LastCommit         *Commit `json:"lastCommit,omitempty"`
}

// IsGitRepo reports whether dir contains a .git entry. Worktrees and
// submodules use a .git file, so any entry counts.
func IsGitRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// Query collects the status of the repository at dir. The branch, change
// count and last commit are queried concurrently, each under timeout, and a
// failed query leaves its field at the default. Ahead/behind against
// origin/<branch> is queried last and defaults to zero. An error is returned
// only when every query fails.
func Query(ctx context.Context, runner command.Runner, dir string, timeout time.Duration) (*Status, error) {
	var (
		wg                   sync.WaitGroup
		branch               string
		changes              int
		commit               *Commit
		branchErr, changeErr error
		commitErr            error
	)

	run := func(args ...string) ([]byte, error) {
		qctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return runner.Run(qctx, dir, "git", args...)
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		out, err := run("rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			branchErr = err
			return
		}
		branch = strings.TrimSpace(string(out))
		if branch == "" {
			branchErr = fmt.Errorf("empty branch name")
		}
	}()
	go func() {
		defer wg.Done()
		out, err := run("status", "--porcelain")
		if err != nil {
			changeErr = err
			return
		}
		changes = countLines(string(out))
	}()
	go func() {
		defer wg.Done()
		out, err := run("log", "-1", "--format=%H%x1f%s%x1f%ct")
		if err != nil {
			commitErr = err
			return
		}
		commit, commitErr = parseCommit(string(out))
	}()
	wg.Wait()

	if branchErr != nil && changeErr != nil && commitErr != nil {
		return nil, fmt.Errorf("git status of %s: %w", dir, branchErr)
	}

	status := &Status{
		Branch:             UnknownBranch,
		UncommittedChanges: changes,
		LastCommit:         commit,
	}
	if branchErr == nil {
		status.Branch = branch
	}

	// The branch is spliced into a revision range, so anything that is not a
	// plain ref name leaves ahead/behind at zero.
	if branchErr == nil && branch != "HEAD" && command.Validate(command.GitRef, branch) == nil {
		if out, err := run("rev-list", "--left-right", "--count", "origin/"+branch+"...HEAD"); err == nil {
			status.Behind, status.Ahead = parseLeftRight(string(out))
		}
	}

	return status, nil
}

func countLines(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func parseCommit(out string) (*Commit, error) {
	fields := strings.Split(strings.TrimSpace(out), "\x1f")
	if len(fields) != 3 || fields[0] == "" {
		return nil, fmt.Errorf("unexpected git log output: %q", out)
	}
	epoch, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse commit time: %w", err)
	}
	return &Commit{
		Hash:      fields[0],
		Message:   fields[1],
		Timestamp: time.Unix(epoch, 0).UTC(),
	}, nil
}

// parseLeftRight parses "<left>\t<right>" from rev-list --left-right --count.
func parseLeftRight(out string) (left, right int) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0
	}
	l, err1 := strconv.Atoi(fields[0])
	r, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return l, r
}
