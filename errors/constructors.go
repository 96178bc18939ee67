package errors

import (
	"fmt"
	"os/exec"
)

// InvalidName creates an error for a project name that fails sanitization
func InvalidName(raw string, reason string) *DashError {
	return New(ErrCodeInvalidName, fmt.Sprintf("invalid project name: %s", reason)).
		WithDetail("name", raw)
}

// PathEscape creates an error for a project path resolving outside the projects root
func PathEscape(name string) *DashError {
	return New(ErrCodePathEscape, "project path escapes the projects root").
		WithDetail("name", name)
}

// ProjectNotFound creates a project not found error
func ProjectNotFound(name string) *DashError {
	return New(ErrCodeProjectNotFound, "Project not found").
		WithDetail("name", name)
}

// ManifestNotFound creates an error for a project without a package manifest
func ManifestNotFound(name, manifest string) *DashError {
	return New(ErrCodeManifestNotFound, fmt.Sprintf("No %s found in project", manifest)).
		WithDetail("name", name).
		WithDetail("manifest", manifest)
}

// SpawnFailed creates a launch failure error
func SpawnFailed(name string, err error) *DashError {
	return Wrap(err, ErrCodeSpawnFailed, "Failed to launch project").
		WithDetail("name", name)
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *DashError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *DashError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// ToolNotAllowed creates an error for a memory tool outside the allow-list
func ToolNotAllowed(tool string) *DashError {
	return New(ErrCodeToolNotAllowed, fmt.Sprintf("tool '%s' is not allowed", tool)).
		WithDetail("tool", tool)
}

// CommandFailed creates a command execution failure error
func CommandFailed(cmd string, err error) *DashError {
	dashErr := Wrap(err, ErrCodeCommandFailed, fmt.Sprintf("command failed: %s", cmd)).
		WithDetail("command", cmd)

	// Extract exit code if available
	if exitErr, ok := err.(*exec.ExitError); ok {
		dashErr = dashErr.WithDetail("exitCode", exitErr.ExitCode())
	}

	return dashErr
}
