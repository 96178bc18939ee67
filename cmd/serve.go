package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/devdash/cli"
	"github.com/grovetools/devdash/config"
	"github.com/grovetools/devdash/internal/daemon/pidfile"
	"github.com/grovetools/devdash/internal/daemon/watcher"
	"github.com/grovetools/devdash/logging"
	"github.com/grovetools/devdash/pkg/paths"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the graceful stop of the HTTP server.
const shutdownTimeout = 5 * time.Second

// NewServeCmd returns the command that runs the dashboard in the foreground.
func NewServeCmd() *cobra.Command {
	var overrides *config.Overrides

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API",
		Long: `Serve the dashboard HTTP API and UI in the foreground.

The configuration file is watched; changes to the projects root, ignore
patterns, port table, cache lifetimes and launch settings apply without a
restart.

Examples:
  # Serve projects from a sibling directory
  devdash serve --root ../projects

  # Listen on all interfaces
  devdash serve --listen 0.0.0.0:3001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, overrides)
		},
	}
	overrides = config.BindFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, overrides *config.Overrides) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	if err := overrides.Apply(cfg); err != nil {
		return err
	}
	logger := cli.GetLogger(cmd, "devdash")

	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create state directories: %w", err)
	}

	pidPath := paths.PidFilePath()
	if err := pidfile.Acquire(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	d, err := newDashboard(cfg, paths.ProjectLogDir())
	if err != nil {
		return err
	}
	defer d.memory.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path := cfg.Path(); path != "" {
		onReload := func(next *config.Config) {
			if err := overrides.Apply(next); err != nil {
				logger.WithError(err).Error("Ignoring reloaded config")
				return
			}
			if err := d.reload(next); err != nil {
				logger.WithError(err).Error("Ignoring reloaded config")
				return
			}
			logger.WithField("projects_root", next.ProjectsRoot).Info("Configuration reloaded")
		}
		w, err := watcher.New(path, watcher.DefaultDebounce, onReload, logging.NewLogger("watcher"))
		if err != nil {
			logger.WithError(err).Warn("Config file will not be watched")
		} else {
			defer w.Close()
			go w.Start(ctx)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.server.ListenAndServe(cfg.Listen)
	}()

	logger.WithFields(logrus.Fields{
		"pid":           os.Getpid(),
		"projects_root": cfg.ProjectsRoot,
	}).Info("Starting dashboard")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Received stop signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}
	select {
	case err := <-errCh:
		return err
	case <-shutdownCtx.Done():
		return nil
	}
}
