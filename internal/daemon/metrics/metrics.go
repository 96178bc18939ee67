// Package metrics records dashboard activity: probe latency, cache hit rate,
// launches, kills and memory proxy calls.
package metrics

import (
	"time"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
	// OutcomeRejected marks a proxy call refused before reaching the server.
	OutcomeRejected = "rejected"
)

// Recorder receives dashboard events.
type Recorder interface {
	// ProbeObserved records one external status probe.
	ProbeObserved(probe, outcome string, duration time.Duration)

	// CacheLookup records a metadata cache read.
	CacheLookup(category string, hit bool)

	// LaunchObserved records a launch request that reached the spawn step.
	LaunchObserved(outcome string)

	// ProcessesKilled records the count returned by a force close.
	ProcessesKilled(n int)

	// ProxyCall records a memory-shack tool call.
	ProxyCall(tool, outcome string)
}

type noop struct{}

func (noop) ProbeObserved(string, string, time.Duration) {}
func (noop) CacheLookup(string, bool)                    {}
func (noop) LaunchObserved(string)                       {}
func (noop) ProcessesKilled(int)                         {}
func (noop) ProxyCall(string, string)                    {}

// NewNoop returns a Recorder that drops everything.
func NewNoop() Recorder {
	return noop{}
}
