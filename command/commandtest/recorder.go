// Package commandtest provides a recording fake for command.Runner and
// command.Executor.
package commandtest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Call is one recorded invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// Line returns the call as a single space separated command line.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type response struct {
	prefix string
	out    []byte
	err    error
}

// Recorder records every command it is asked to run. Run answers with the
// response registered for the longest matching command-line prefix, or with
// an error when nothing matches. CommandContext records the call and returns
// a harmless command that exits immediately, unless Spawn is set.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	responses []response

	// Spawn, when set, builds the exec.Cmd returned by Command/CommandContext.
	Spawn func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// On registers output for every command line starting with prefix.
func (r *Recorder) On(prefix string, out string) *Recorder {
	return r.OnResult(prefix, []byte(out), nil)
}

// OnError registers a failure for every command line starting with prefix.
func (r *Recorder) OnError(prefix string, err error) *Recorder {
	return r.OnResult(prefix, nil, err)
}

// OnResult registers output and error for every command line starting with prefix.
func (r *Recorder) OnResult(prefix string, out []byte, err error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, response{prefix: prefix, out: out, err: err})
	return r
}

// Run implements command.Runner.
func (r *Recorder) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	var best *response
	line := call.Line()
	for i := range r.responses {
		resp := &r.responses[i]
		if strings.HasPrefix(line, resp.prefix) && (best == nil || len(resp.prefix) > len(best.prefix)) {
			best = resp
		}
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if best == nil {
		return nil, fmt.Errorf("commandtest: no response registered for %q", line)
	}
	return best.out, best.err
}

// Command implements command.Executor.
func (r *Recorder) Command(name string, args ...string) *exec.Cmd {
	return r.CommandContext(context.Background(), name, args...)
}

// CommandContext implements command.Executor.
func (r *Recorder) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	spawn := r.Spawn
	r.mu.Unlock()

	if spawn != nil {
		return spawn(ctx, name, args...)
	}
	// Re-running the test binary with no matching tests exits 0 on every platform.
	return exec.CommandContext(ctx, os.Args[0], "-test.run=^$")
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many recorded calls start with prefix.
func (r *Recorder) Count(prefix string) int {
	n := 0
	for _, c := range r.Calls() {
		if strings.HasPrefix(c.Line(), prefix) {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls but keeps registered responses.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
