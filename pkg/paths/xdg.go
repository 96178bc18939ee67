// Package paths provides XDG-compliant path resolution for devdash.
//
// Resolution order:
// 1. DEVDASH_HOME (portable root) → $DEVDASH_HOME/{config,state}
// 2. XDG env vars → $XDG_*_HOME/devdash
// 3. Platform defaults → ~/.config/devdash, ~/.local/state/devdash
package paths

import (
	"os"
	"path/filepath"
)

const appName = "devdash"

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if home := os.Getenv("DEVDASH_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if home := os.Getenv("DEVDASH_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the devdash configuration directory.
// Used for devdash.yml / devdash.toml.
func ConfigDir() string {
	if os.Getenv("DEVDASH_HOME") != "" {
		return getConfigHome()
	}
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// StateDir returns the devdash state directory.
// Used for the pid file and logs.
func StateDir() string {
	if os.Getenv("DEVDASH_HOME") != "" {
		return getStateHome()
	}
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// LogDir returns the directory for the dashboard's own logs.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// ProjectLogDir returns the directory holding captured output of launched projects.
func ProjectLogDir() string {
	return filepath.Join(LogDir(), "projects")
}

// PidFilePath returns the path to the dashboard PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "devdash.pid")
}

// EnsureDirs creates all devdash directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		StateDir(),
		ProjectLogDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
