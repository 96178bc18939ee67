//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func signalZero(p *os.Process) error {
	return nil
}

// Detach starts cmd in a new process group, detached from the dashboard console.
func Detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// KillGroup is not available on Windows; callers fall back to taskkill /T.
func KillGroup(pid int) error {
	return errors.New("process groups are not supported on windows")
}
