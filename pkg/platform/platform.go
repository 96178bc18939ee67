// Package platform isolates the OS-specific commands devdash relies on:
// port lookups, process table queries, memory lookups, tree kills and
// terminal launches. One Adapter is selected per host by Detect.
package platform

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/grovetools/devdash/command"
)

// Process is one row of the OS process table.
type Process struct {
	PID     int
	PPID    int
	RSS     int64 // bytes
	Command string
}

// LaunchSpec is a command line the caller spawns as-is.
type LaunchSpec struct {
	Name string
	Args []string
}

// Adapter answers process and port questions for one operating system.
// Every method is a best-effort query; errors mean "could not tell".
type Adapter interface {
	// Name identifies the adapter ("unix", "windows").
	Name() string
	// ListeningPIDs returns the processes listening on a TCP port.
	ListeningPIDs(ctx context.Context, port int) ([]int, error)
	// FindPIDs returns the processes whose command line contains needle.
	FindPIDs(ctx context.Context, needle string) ([]int, error)
	// NodeProcessMatches reports whether a node-like process mentions needle.
	NodeProcessMatches(ctx context.Context, needle string) (bool, error)
	// ResidentBytes returns the resident memory of pid and its descendants.
	ResidentBytes(ctx context.Context, pid int) (int64, error)
	// KillTree forcefully terminates pid and its descendants.
	KillTree(ctx context.Context, pid int) error
	// TerminalLaunch returns the command that opens a terminal window running
	// command inside dir.
	TerminalLaunch(dir string, command []string) (LaunchSpec, error)
}

// Detect returns the adapter for goos.
func Detect(goos string, runner command.Runner) Adapter {
	if goos == "windows" {
		return &Windows{runner: runner}
	}
	return &Unix{runner: runner, goos: goos}
}

// nodeMarkers identify a process as a node dev server.
var nodeMarkers = []string{"node", "npm", "vite", "next", "tsx"}

func isNodeLike(cmdline string) bool {
	lower := strings.ToLower(cmdline)
	for _, m := range nodeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// matching returns the PIDs whose command line contains needle, skipping
// this process and the probe command itself. A needle that is a path only
// matches up to a path boundary, so /root/demo never matches /root/demo-app.
func matching(procs []Process, needle string, nodeOnly bool) []int {
	if needle == "" {
		return nil
	}
	self := os.Getpid()
	lowerNeedle := strings.ToLower(needle)
	contains := strings.Contains
	if strings.ContainsAny(lowerNeedle, `/\`) {
		lowerNeedle = strings.TrimRight(lowerNeedle, `/\`)
		contains = containsPath
	}
	var pids []int
	for _, p := range procs {
		if p.PID == self || p.PID <= 0 {
			continue
		}
		lower := strings.ToLower(p.Command)
		if !contains(lower, lowerNeedle) {
			continue
		}
		if isProbeCommand(lower) {
			continue
		}
		if nodeOnly && !isNodeLike(p.Command) {
			continue
		}
		pids = append(pids, p.PID)
	}
	return pids
}

// containsPath reports whether dir occurs in s ending at a path boundary.
func containsPath(s, dir string) bool {
	if dir == "" {
		return false
	}
	for off := 0; ; {
		i := strings.Index(s[off:], dir)
		if i < 0 {
			return false
		}
		end := off + i + len(dir)
		if end == len(s) || strings.ContainsRune("/\\ \t\"'", rune(s[end])) {
			return true
		}
		off += i + 1
	}
}

func isProbeCommand(lowerCmd string) bool {
	fields := strings.Fields(lowerCmd)
	if len(fields) == 0 {
		return false
	}
	base := fields[0]
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	switch strings.TrimSuffix(base, ".exe") {
	case "ps", "wmic", "tasklist", "lsof", "netstat":
		return true
	}
	return false
}

// descendants returns the PIDs below root, deepest first.
func descendants(procs []Process, root int) []int {
	children := make(map[int][]int)
	for _, p := range procs {
		if p.PID != p.PPID {
			children[p.PPID] = append(children[p.PPID], p.PID)
		}
	}
	var out []int
	seen := map[int]bool{root: true}
	var walk func(pid int)
	walk = func(pid int) {
		for _, c := range children[pid] {
			if seen[c] {
				continue
			}
			seen[c] = true
			walk(c)
			out = append(out, c)
		}
	}
	walk(root)
	return out
}

// treeRSS sums the resident memory of root and its descendants.
func treeRSS(procs []Process, root int) (int64, error) {
	byPID := make(map[int]Process, len(procs))
	for _, p := range procs {
		byPID[p.PID] = p
	}
	rootProc, ok := byPID[root]
	if !ok {
		return 0, fmt.Errorf("process %d not found", root)
	}
	total := rootProc.RSS
	for _, pid := range descendants(procs, root) {
		total += byPID[pid].RSS
	}
	return total, nil
}

// Dedup returns the distinct positive PIDs in ascending order.
func Dedup(pids ...[]int) []int {
	set := make(map[int]struct{})
	for _, list := range pids {
		for _, pid := range list {
			if pid > 0 {
				set[pid] = struct{}{}
			}
		}
	}
	out := make([]int, 0, len(set))
	for pid := range set {
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}
