// Package project composes the dashboard's view of a project from the
// cache, the probes and the lifecycle tracker, and launches and closes
// projects.
package project

import (
	"fmt"
	"time"

	"github.com/grovetools/devdash/git"
)

// Project is one entry of the project list.
type Project struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Lifecycle states.
const (
	StateStopped   = "stopped"
	StateLaunching = "launching"
	StateRunning   = "running"
	StateError     = "error"
)

// ExitedCode marks an error state caused by the launched process exiting.
const ExitedCode = "EXITED"

// State is the tagged union reported as metadata.status. Only the fields of
// the current state are set.
type State struct {
	State    string     `json:"state"`
	Since    *time.Time `json:"since,omitempty"`
	Uptime   *int64     `json:"uptime,omitempty"` // seconds
	Message  string     `json:"message,omitempty"`
	Code     string     `json:"code,omitempty"`
	Progress *int       `json:"progress,omitempty"`
}

// Stopped returns the stopped state.
func Stopped() State { return State{State: StateStopped} }

// Launching returns the launching state.
func Launching() State { return State{State: StateLaunching} }

// Running returns the running state with uptime in whole seconds.
func Running(since time.Time, uptime time.Duration) State {
	secs := int64(uptime / time.Second)
	return State{State: StateRunning, Since: &since, Uptime: &secs}
}

// Errored returns the error state.
func Errored(message, code string) State {
	return State{State: StateError, Message: message, Code: code}
}

// Metadata is the full dashboard record of a project.
type Metadata struct {
	Name        string      `json:"name"`
	Path        string      `json:"path"`
	Port        int         `json:"port"`
	Status      State       `json:"status"`
	Memory      *int64      `json:"memory,omitempty"`
	Git         *git.Status `json:"git,omitempty"`
	LastStarted *time.Time  `json:"lastStarted,omitempty"`
	URL         string      `json:"url"`
}

// URLFor returns the local dev-server URL for port.
func URLFor(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}

// LaunchResult is the response of a launch.
type LaunchResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Port    int    `json:"port,omitempty"`
	URL     string `json:"url,omitempty"`
}

// CloseResult is the response of a close.
type CloseResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Killed  int    `json:"killed"`
}

// LogLine is one captured line of a launched project's output.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LogsResult is the response of a logs request.
type LogsResult struct {
	Logs    []LogLine `json:"logs"`
	Total   int       `json:"total"`
	HasMore bool      `json:"hasMore"`
}
