package command

import (
	"context"
	"os/exec"
)

// Executor is the seam between devdash and os/exec. Probes and launches
// create their processes through it so tests can substitute a recorder
// that never spawns anything real.
type Executor interface {
	// Command returns a process that outlives any request, such as a
	// terminal window or a detached dev server.
	Command(name string, args ...string) *exec.Cmd

	// CommandContext returns a process killed when ctx ends.
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

// OSExecutor spawns real processes.
type OSExecutor struct{}

// Command implements Executor.
func (OSExecutor) Command(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}

// CommandContext implements Executor.
func (OSExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}
