//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// signalZero checks for existence without delivering a signal.
func signalZero(p *os.Process) error {
	return p.Signal(syscall.Signal(0))
}

// Detach starts cmd in its own process group so the whole tree it spawns
// (npm -> node -> vite) can be signalled together and outlives request contexts.
func Detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// KillGroup sends SIGKILL to the process group led by pid.
func KillGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
