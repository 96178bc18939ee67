package process

import (
	"os"
	"runtime"
)

// IsAlive checks if a process with the given PID is still running.
// On Unix it uses a signal-0 probe; on Windows FindProcess opens a handle and
// fails for a PID that no longer exists.
func IsAlive(pid int) bool {
	// PID 0 or less is invalid.
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	if runtime.GOOS == "windows" {
		_ = process.Release()
		return true
	}

	// err == nil means process is alive and we have permission.
	// os.IsPermission(err) means process is alive but we don't have permission (e.g., owned by root).
	err = signalZero(process)
	return err == nil || os.IsPermission(err)
}
