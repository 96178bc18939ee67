// Package lifecycle tracks launches started by the dashboard and force
// closes projects. Records say when a project was started by us; the
// probes, not the records, say whether it is running.
package lifecycle

import (
	"sync"
	"time"
)

// Record is the launch bookkeeping for one project.
type Record struct {
	Name      string
	LaunchID  uint64
	StartTime time.Time
	// PID is the spawned process, zero until known.
	PID int
	// Exited is set once the spawned process has been reaped.
	Exited  bool
	ExitErr error
}

// Tracker holds at most one Record per project. Concurrent launches of the
// same project are last-writer-wins.
type Tracker struct {
	mu      sync.Mutex
	records map[string]Record
	nextID  uint64
	now     func() time.Time
}

// NewTracker creates an empty tracker. now defaults to time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		records: make(map[string]Record),
		now:     now,
	}
}

// RecordLaunch creates or overwrites the record for name with a start time
// of now and no PID.
func (t *Tracker) RecordLaunch(name string) Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	r := Record{Name: name, LaunchID: t.nextID, StartTime: t.now()}
	t.records[name] = r
	return r
}

// SetPID attaches a PID to the launch identified by launchID. Updates for a
// superseded launch are ignored.
func (t *Tracker) SetPID(name string, launchID uint64, pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[name]; ok && r.LaunchID == launchID {
		r.PID = pid
		t.records[name] = r
	}
}

// MarkExited notes that the launch identified by launchID has exited.
func (t *Tracker) MarkExited(name string, launchID uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[name]; ok && r.LaunchID == launchID {
		r.Exited = true
		r.ExitErr = err
		t.records[name] = r
	}
}

// Get returns the record for name.
func (t *Tracker) Get(name string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[name]
	return r, ok
}

// Uptime returns now minus the launch time for a tracked project.
func (t *Tracker) Uptime(name string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[name]
	if !ok {
		return 0, false
	}
	d := t.now().Sub(r.StartTime)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Clear forgets name. Clearing an untracked project is a no-op.
func (t *Tracker) Clear(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, name)
}

// ClearLaunch forgets name only if launchID is still its current launch.
func (t *Tracker) ClearLaunch(name string, launchID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[name]; ok && r.LaunchID == launchID {
		delete(t.records, name)
	}
}

// Names returns the tracked project names.
func (t *Tracker) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.records))
	for name := range t.records {
		names = append(names, name)
	}
	return names
}
