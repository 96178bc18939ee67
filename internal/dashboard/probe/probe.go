// Package probe answers "is it running, how big is it, what branch is it
// on" for a project. Every probe maps failure to a benign default and only
// logs the cause.
package probe

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/grovetools/devdash/command"
	"github.com/grovetools/devdash/git"
	"github.com/grovetools/devdash/internal/daemon/metrics"
	"github.com/grovetools/devdash/pkg/platform"
	"github.com/grovetools/devdash/pkg/process"
	"github.com/sirupsen/logrus"
)

// Options configures a Prober.
type Options struct {
	// Timeout bounds the port and process probes.
	Timeout time.Duration
	// GitTimeout bounds each git query.
	GitTimeout time.Duration
	// Alive reports whether a PID exists. Defaults to process.IsAlive.
	Alive func(pid int) bool
}

// Prober runs the status probes through a platform adapter.
type Prober struct {
	adapter platform.Adapter
	runner  command.Runner
	opts    Options
	logger  *logrus.Entry
	metrics metrics.Recorder
}

// New creates a Prober.
func New(adapter platform.Adapter, runner command.Runner, opts Options, logger *logrus.Entry, rec metrics.Recorder) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.GitTimeout <= 0 {
		opts.GitTimeout = 5 * time.Second
	}
	if opts.Alive == nil {
		opts.Alive = process.IsAlive
	}
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &Prober{adapter: adapter, runner: runner, opts: opts, logger: logger, metrics: rec}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case stderrors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeFailed
	}
}

func (p *Prober) observe(name string, start time.Time, err error) {
	p.metrics.ProbeObserved(name, outcome(err), time.Since(start))
}

// PortInUse reports whether anything listens on port.
func (p *Prober) PortInUse(ctx context.Context, port int) bool {
	if port <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	start := time.Now()
	pids, err := p.adapter.ListeningPIDs(ctx, port)
	p.observe("port", start, err)
	if err != nil {
		p.logger.WithError(err).WithField("port", port).Debug("Port probe failed")
		return false
	}
	return len(pids) > 0
}

// ProcessRunning reports whether a node-like process mentions name. When the
// process search fails or times out, or name is not a valid project name,
// the port probe on fallbackPort decides.
func (p *Prober) ProcessRunning(ctx context.Context, name string, fallbackPort int) bool {
	if err := command.Validate(command.ProjectName, name); err != nil {
		p.logger.WithError(err).Debug("Refusing process search, falling back to port probe")
		return p.PortInUse(ctx, fallbackPort)
	}

	pctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	start := time.Now()
	found, err := p.adapter.NodeProcessMatches(pctx, name)
	p.observe("process", start, err)
	if err == nil {
		return found
	}
	p.logger.WithError(err).WithField("project", name).Debug("Process search failed, falling back to port probe")
	return p.PortInUse(ctx, fallbackPort)
}

// Memory returns the resident bytes of the tracked PID's tree, or of the
// process listening on port when no live PID is tracked.
func (p *Prober) Memory(ctx context.Context, trackedPID, port int) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	start := time.Now()
	pid := 0
	if trackedPID > 0 && p.opts.Alive(trackedPID) {
		pid = trackedPID
	} else if port > 0 {
		pids, err := p.adapter.ListeningPIDs(ctx, port)
		if err == nil && len(pids) > 0 {
			pid = pids[0]
		}
	}
	if pid == 0 {
		return 0, false
	}

	bytes, err := p.adapter.ResidentBytes(ctx, pid)
	p.observe("memory", start, err)
	if err != nil || bytes <= 0 {
		p.logger.WithError(err).WithField("pid", pid).Debug("Memory lookup failed")
		return 0, false
	}
	return bytes, true
}

// Git returns the repository status of path, nil when path is not a git
// repository or nothing could be queried.
func (p *Prober) Git(ctx context.Context, path string) *git.Status {
	if !git.IsGitRepo(path) {
		return nil
	}
	start := time.Now()
	status, err := git.Query(ctx, p.runner, path, p.opts.GitTimeout)
	p.observe("git", start, err)
	if err != nil {
		p.logger.WithError(err).WithField("path", path).Debug("Git status failed")
		return nil
	}
	return status
}
