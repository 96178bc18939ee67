package lifecycle

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/grovetools/devdash/command"
	"github.com/grovetools/devdash/internal/daemon/metrics"
	"github.com/grovetools/devdash/pkg/platform"
	"github.com/sirupsen/logrus"
)

// Target identifies what to close.
type Target struct {
	Name       string
	Path       string
	Port       int
	TrackedPID int
}

// Killer runs the force close routine.
type Killer struct {
	adapter platform.Adapter
	timeout time.Duration
	logger  *logrus.Entry
	metrics metrics.Recorder

	// killGroup, when set, is tried first on the tracked PID, which leads
	// the process group of a background launch.
	killGroup func(pid int) error
}

// NewKiller creates a Killer. timeout bounds the whole routine.
func NewKiller(adapter platform.Adapter, timeout time.Duration, logger *logrus.Entry, rec metrics.Recorder) *Killer {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &Killer{adapter: adapter, timeout: timeout, logger: logger, metrics: rec}
}

// WithGroupKill makes ForceClose signal the tracked launch's process group
// with fn before falling back to a tree kill.
func (k *Killer) WithGroupKill(fn func(pid int) error) *Killer {
	k.killGroup = fn
	return k
}

// ForceClose gathers candidate PIDs from the port table, from command lines
// containing the project path and from command lines containing the project
// name, adds the tracked PID, and kills each candidate's tree. Failures are
// logged and skipped. It returns the number of successful kills and never
// fails; zero means nothing was found or nothing could be killed.
func (k *Killer) ForceClose(ctx context.Context, t Target) int {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	log := k.logger.WithField("project", t.Name)

	var (
		mu         sync.Mutex
		candidates [][]int
		wg         sync.WaitGroup
	)
	collect := func(strategy string, find func() ([]int, error)) {
		defer wg.Done()
		pids, err := find()
		if err != nil {
			log.WithError(err).WithField("strategy", strategy).Debug("PID discovery failed")
			return
		}
		mu.Lock()
		candidates = append(candidates, pids)
		mu.Unlock()
	}

	if t.Port > 0 {
		wg.Add(1)
		go collect("port", func() ([]int, error) { return k.adapter.ListeningPIDs(ctx, t.Port) })
	}
	// Command line needles must pass the argument validators; a rejected
	// needle only drops its own strategy.
	if t.Path != "" {
		if err := command.Validate(command.FileName, t.Path); err != nil {
			log.WithError(err).Debug("Skipping path strategy")
		} else {
			wg.Add(1)
			go collect("path", func() ([]int, error) { return k.adapter.FindPIDs(ctx, t.Path) })
		}
	}
	if t.Name != "" {
		if err := command.Validate(command.ProjectName, t.Name); err != nil {
			log.WithError(err).Debug("Skipping name strategy")
		} else {
			wg.Add(1)
			go collect("name", func() ([]int, error) { return k.adapter.FindPIDs(ctx, t.Name) })
		}
	}
	wg.Wait()

	if t.TrackedPID > 0 {
		candidates = append(candidates, []int{t.TrackedPID})
	}

	self := os.Getpid()
	parent := os.Getppid()
	killed := 0
	for _, pid := range platform.Dedup(candidates...) {
		if pid == self || pid == parent {
			continue
		}
		if pid == t.TrackedPID && k.killGroup != nil {
			if err := k.killGroup(pid); err == nil {
				killed++
				continue
			}
			log.WithField("pid", pid).Debug("Group kill failed, killing tree")
		}
		if err := k.adapter.KillTree(ctx, pid); err != nil {
			log.WithError(err).WithField("pid", pid).Debug("Kill failed")
			continue
		}
		killed++
	}

	log.WithField("killed", killed).Info("Force close finished")
	k.metrics.ProcessesKilled(killed)
	return killed
}
