package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/grovetools/devdash/cli"
	"github.com/grovetools/devdash/internal/daemon/pidfile"
	"github.com/grovetools/devdash/pkg/dashclient"
	"github.com/grovetools/devdash/pkg/paths"
	"github.com/spf13/cobra"
)

// NewStopCmd returns the command that stops a running dashboard.
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}

			out := cmd.OutOrStdout()
			if !running {
				fmt.Fprintln(out, "Dashboard is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Fprintf(out, "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

// NewStatusCmd returns the command that reports whether the dashboard runs.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check dashboard status",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			out := cmd.OutOrStdout()
			if !running {
				fmt.Fprintln(out, "Stopped")
				os.Exit(1) // non-zero for scripts
			}

			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
			defer cancel()

			health := "responding"
			if err := dashclient.New(cfg.Listen).Health(ctx); err != nil {
				health = "not responding: " + err.Error()
			}
			fmt.Fprintf(out, "Running (PID: %d)\nListen: %s (%s)\n", pid, cfg.Listen, health)
			return nil
		},
	}
}
