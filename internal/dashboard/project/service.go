package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/devdash/config"
	"github.com/grovetools/devdash/errors"
	"github.com/grovetools/devdash/git"
	"github.com/grovetools/devdash/internal/daemon/metrics"
	"github.com/grovetools/devdash/internal/dashboard/cache"
	"github.com/grovetools/devdash/internal/dashboard/lifecycle"
	"github.com/grovetools/devdash/internal/dashboard/probe"
	"github.com/grovetools/devdash/util/pathutil"
	"github.com/grovetools/devdash/util/sanitize"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Manifest is the file a project needs before it can be launched.
const Manifest = "package.json"

// snapshotConcurrency bounds parallel metadata composition in Snapshot.
const snapshotConcurrency = 4

// Options wires a Service.
type Options struct {
	Root     string
	Ignore   []string
	Grace    time.Duration
	Ports    *Ports
	Cache    *cache.Cache
	Tracker  *lifecycle.Tracker
	Prober   *probe.Prober
	Killer   *lifecycle.Killer
	Launcher Launcher
	// LogPath locates the captured output of a launch.
	LogPath func(name string) string
	Logger  *logrus.Entry
	Metrics metrics.Recorder
	Now     func() time.Time
}

// Service implements the project operations behind the HTTP API.
type Service struct {
	mu     sync.RWMutex
	root   string
	ignore *patternmatcher.PatternMatcher
	grace  time.Duration

	ports    *Ports
	cache    *cache.Cache
	tracker  *lifecycle.Tracker
	prober   *probe.Prober
	killer   *lifecycle.Killer
	launcher Launcher
	logPath  func(string) string
	logger   *logrus.Entry
	metrics  metrics.Recorder
	now      func() time.Time
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	ignore, err := compileIgnore(opts.Ignore)
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.LogPath == nil {
		opts.LogPath = func(string) string { return "" }
	}
	return &Service{
		root:     filepath.Clean(opts.Root),
		ignore:   ignore,
		grace:    opts.Grace,
		ports:    opts.Ports,
		cache:    opts.Cache,
		tracker:  opts.Tracker,
		prober:   opts.Prober,
		killer:   opts.Killer,
		launcher: opts.Launcher,
		logPath:  opts.LogPath,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}, nil
}

func (s *Service) settings() (string, *patternmatcher.PatternMatcher, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root, s.ignore, s.grace
}

// Root returns the projects root.
func (s *Service) Root() string {
	root, _, _ := s.settings()
	return root
}

// Reconfigure applies a reloaded configuration: root, ignore patterns, port
// table, TTLs, launch settings and grace period.
func (s *Service) Reconfigure(cfg *config.Config) error {
	ignore, err := compileIgnore(cfg.Ignore)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.root = filepath.Clean(cfg.ProjectsRoot)
	s.ignore = ignore
	s.grace = cfg.Launch.Grace.Std()
	s.mu.Unlock()

	s.ports.Replace(cfg.Ports, cfg.DefaultPort)
	s.cache.SetTTL(cache.Metadata, cfg.Cache.MetadataTTL.Std())
	s.cache.SetTTL(cache.Git, cfg.Cache.GitTTL.Std())
	if c, ok := s.launcher.(interface{ Configure(config.LaunchConfig) }); ok {
		c.Configure(cfg.Launch)
	}
	return nil
}

// Resolve validates raw and returns the project it names. Nothing touches
// the filesystem or runs a command before both checks pass.
func (s *Service) Resolve(raw string) (Project, error) {
	name, err := sanitize.StrictProjectName(raw)
	if err != nil {
		return Project{}, err
	}
	path, err := pathutil.ResolveUnder(s.Root(), name)
	if err != nil {
		return Project{}, err
	}
	return Project{Name: name, Path: path}, nil
}

func (s *Service) existing(raw string) (Project, error) {
	p, err := s.Resolve(raw)
	if err != nil {
		return Project{}, err
	}
	if !pathutil.IsDir(p.Path) {
		return Project{}, errors.ProjectNotFound(p.Name)
	}
	return p, nil
}

// List returns the project directories under the root.
func (s *Service) List(ctx context.Context) ([]Project, error) {
	root, ignore, _ := s.settings()
	projects, err := discover(root, ignore)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to read projects directory")
	}
	return projects, nil
}

// Status reports whether the project's dev server is running. It is not cached.
func (s *Service) Status(ctx context.Context, raw string) (bool, error) {
	p, err := s.existing(raw)
	if err != nil {
		return false, err
	}
	return s.prober.ProcessRunning(ctx, p.Name, s.ports.Lookup(p.Name)), nil
}

// Metadata returns the composed metadata of a project. Composition is cached
// under the metadata category; uptime is recomputed on every call.
func (s *Service) Metadata(ctx context.Context, raw string) (*Metadata, error) {
	p, err := s.existing(raw)
	if err != nil {
		return nil, err
	}

	m, err := cache.Load(ctx, s.cache, p.Name, cache.Metadata, func(ctx context.Context) (*Metadata, error) {
		return s.compose(ctx, p), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to read project metadata")
	}

	out := *m
	if out.Status.State == StateRunning {
		since := *out.Status.Since
		uptime, ok := s.tracker.Uptime(p.Name)
		if !ok {
			uptime = s.now().Sub(since)
		}
		out.Status = Running(since, uptime)
	}
	return &out, nil
}

func (s *Service) compose(ctx context.Context, p Project) *Metadata {
	_, _, grace := s.settings()
	port := s.ports.Lookup(p.Name)
	m := &Metadata{
		Name:   p.Name,
		Path:   p.Path,
		Port:   port,
		Status: Stopped(),
		URL:    URLFor(port),
	}

	rec, tracked := s.tracker.Get(p.Name)
	if tracked {
		started := rec.StartTime
		m.LastStarted = &started
	}

	now := s.now()
	switch running := s.prober.ProcessRunning(ctx, p.Name, port); {
	case running:
		since := now
		if tracked {
			since = rec.StartTime
		}
		m.Status = Running(since, now.Sub(since))
		if mem, ok := s.prober.Memory(ctx, rec.PID, port); ok {
			m.Memory = &mem
		}
	case tracked && rec.Exited && rec.ExitErr != nil:
		m.Status = Errored(fmt.Sprintf("Dev server exited: %v", rec.ExitErr), ExitedCode)
	case tracked && !rec.Exited && now.Sub(rec.StartTime) < grace:
		m.Status = Launching()
	}

	status, err := cache.Load(ctx, s.cache, p.Name, cache.Git, func(ctx context.Context) (*git.Status, error) {
		return s.prober.Git(ctx, p.Path), nil
	})
	if err == nil {
		m.Git = status
	}
	return m
}

// Launch starts a project's dev server.
func (s *Service) Launch(ctx context.Context, raw string) (*LaunchResult, error) {
	p, err := s.existing(raw)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(p.Path, Manifest)); err != nil {
		return nil, errors.ManifestNotFound(p.Name, Manifest)
	}

	port := s.ports.Lookup(p.Name)
	log := s.logger.WithFields(logrus.Fields{"project": p.Name, "port": port})

	rec := s.tracker.RecordLaunch(p.Name)
	s.cache.Invalidate(p.Name)

	spawned, err := s.launcher.Launch(ctx, p.Name, p.Path, port)
	if err != nil {
		s.tracker.ClearLaunch(p.Name, rec.LaunchID)
		s.cache.Invalidate(p.Name)
		s.metrics.LaunchObserved(metrics.OutcomeFailed)
		log.WithError(err).Error("Launch failed")
		return nil, errors.SpawnFailed(p.Name, err)
	}

	if spawned.Tracked {
		s.tracker.SetPID(p.Name, rec.LaunchID, spawned.PID)
	}
	go func() {
		err := spawned.Wait()
		if !spawned.Tracked {
			return
		}
		log.WithError(err).WithField("pid", spawned.PID).Info("Dev server exited")
		s.tracker.MarkExited(p.Name, rec.LaunchID, err)
		s.cache.Invalidate(p.Name)
	}()

	s.metrics.LaunchObserved(metrics.OutcomeOK)
	log.WithField("pid", spawned.PID).Info("Launched project")
	return &LaunchResult{
		Success: true,
		Message: fmt.Sprintf("Launching %s...", p.Name),
		Port:    port,
		URL:     URLFor(port),
	}, nil
}

// Close force closes every process belonging to the project. Once the name
// is valid it always succeeds; Killed may be zero.
func (s *Service) Close(ctx context.Context, raw string) (*CloseResult, error) {
	p, err := s.Resolve(raw)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(p.Name)
	rec, _ := s.tracker.Get(p.Name)
	s.tracker.Clear(p.Name)

	killed := s.killer.ForceClose(ctx, lifecycle.Target{
		Name:       p.Name,
		Path:       p.Path,
		Port:       s.ports.Lookup(p.Name),
		TrackedPID: rec.PID,
	})
	// A metadata read racing the kill may have cached "running".
	s.cache.Invalidate(p.Name)

	msg := fmt.Sprintf("Stopped %s", p.Name)
	if killed == 0 {
		msg = fmt.Sprintf("No running processes found for %s", p.Name)
	}
	return &CloseResult{Success: true, Message: msg, Killed: killed}, nil
}

// Restart closes then launches a project.
func (s *Service) Restart(ctx context.Context, raw string) (*LaunchResult, error) {
	if _, err := s.existing(raw); err != nil {
		return nil, err
	}
	if _, err := s.Close(ctx, raw); err != nil {
		return nil, err
	}
	return s.Launch(ctx, raw)
}

// Snapshot returns the metadata of every listed project. Projects whose
// names cannot be served by the API are skipped.
func (s *Service) Snapshot(ctx context.Context) ([]*Metadata, error) {
	projects, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*Metadata, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotConcurrency)
	for i, p := range projects {
		g.Go(func() error {
			m, err := s.Metadata(gctx, p.Name)
			if err != nil {
				s.logger.WithError(err).WithField("project", p.Name).Debug("Skipping project in snapshot")
				return nil
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := results[:0]
	for _, m := range results {
		if m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}
