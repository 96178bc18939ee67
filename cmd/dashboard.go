package cmd

import (
	"runtime"
	"time"

	"github.com/grovetools/devdash/command"
	"github.com/grovetools/devdash/config"
	"github.com/grovetools/devdash/internal/daemon/metrics"
	"github.com/grovetools/devdash/internal/daemon/server"
	"github.com/grovetools/devdash/internal/dashboard/cache"
	"github.com/grovetools/devdash/internal/dashboard/lifecycle"
	"github.com/grovetools/devdash/internal/dashboard/probe"
	"github.com/grovetools/devdash/internal/dashboard/project"
	"github.com/grovetools/devdash/logging"
	"github.com/grovetools/devdash/pkg/memoryshack"
	"github.com/grovetools/devdash/pkg/platform"
	"github.com/grovetools/devdash/pkg/process"
	"github.com/grovetools/devdash/version"
)

// dashboard is the set of components behind a running `devdash serve`.
type dashboard struct {
	projects *project.Service
	memory   *memoryshack.Client
	server   *server.Server
	metrics  *metrics.Prometheus
	started  time.Time
}

// newDashboard builds every component from cfg. logDir receives the
// captured output of background launches.
func newDashboard(cfg *config.Config, logDir string) (*dashboard, error) {
	prom := metrics.NewPrometheus("devdash")
	builder := command.NewSafeBuilder().WithDefaultTimeout(cfg.Probe.Timeout.Std())
	adapter := platform.Detect(runtime.GOOS, builder)

	c := cache.New(map[cache.Category]time.Duration{
		cache.Metadata: cfg.Cache.MetadataTTL.Std(),
		cache.Git:      cfg.Cache.GitTTL.Std(),
	}, cache.WithMetrics(prom))

	prober := probe.New(adapter, builder, probe.Options{
		Timeout:    cfg.Probe.Timeout.Std(),
		GitTimeout: cfg.Probe.GitTimeout.Std(),
	}, logging.NewLogger("probe"), prom)

	launcher := project.NewProcessLauncher(builder.Executor(), adapter, cfg.Launch, logDir, logging.NewLogger("launcher"))

	killer := lifecycle.NewKiller(adapter, cfg.Probe.KillTimeout.Std(), logging.NewLogger("killer"), prom).
		WithGroupKill(process.KillGroup)

	svc, err := project.New(project.Options{
		Root:     cfg.ProjectsRoot,
		Ignore:   cfg.Ignore,
		Grace:    cfg.Launch.Grace.Std(),
		Ports:    project.NewPorts(cfg.Ports, cfg.DefaultPort),
		Cache:    c,
		Tracker:  lifecycle.NewTracker(nil),
		Prober:   prober,
		Killer:   killer,
		Launcher: launcher,
		LogPath:  launcher.LogPath,
		Logger:   logging.NewLogger("projects"),
		Metrics:  prom,
	})
	if err != nil {
		return nil, err
	}

	mem := memoryshack.New(cfg.MemoryShack, logging.NewLogger("memoryshack"), memoryshack.WithMetrics(prom))

	srv := server.New(server.Options{
		Projects:       svc,
		Memory:         mem,
		Metrics:        prom.Handler(),
		StaticDir:      cfg.StaticDir,
		StreamInterval: cfg.Stream.Interval.Std(),
		Logger:         logging.NewLogger("server"),
	})

	d := &dashboard{projects: svc, memory: mem, server: srv, metrics: prom, started: time.Now()}
	d.publish(cfg)
	return d, nil
}

// reload applies a changed configuration file. The listen address, static
// directory, stream interval and memory_shack section need a restart.
func (d *dashboard) reload(cfg *config.Config) error {
	if err := d.projects.Reconfigure(cfg); err != nil {
		return err
	}
	d.publish(cfg)
	return nil
}

func (d *dashboard) publish(cfg *config.Config) {
	d.server.SetRunningConfig(&server.RunningConfig{
		ConfigFile: cfg.Path(),
		StartedAt:  d.started,
		Version:    version.Version,
		Config:     cfg.Redacted(),
	})
}
