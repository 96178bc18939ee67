package platform

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/grovetools/devdash/command"
)

// Windows uses netstat, wmic, tasklist and taskkill.
type Windows struct {
	runner command.Runner
}

// Name implements Adapter.
func (w *Windows) Name() string { return "windows" }

// ListeningPIDs implements Adapter.
func (w *Windows) ListeningPIDs(ctx context.Context, port int) ([]int, error) {
	out, err := w.runner.Run(ctx, "", "netstat", "-ano", "-p", "tcp")
	if err != nil {
		return nil, err
	}
	return parseNetstatPIDs(string(out), port), nil
}

func (w *Windows) processes(ctx context.Context) ([]Process, error) {
	out, err := w.runner.Run(ctx, "", "wmic", "process", "get",
		"CommandLine,ParentProcessId,ProcessId,WorkingSetSize", "/format:csv")
	if err != nil {
		return nil, err
	}
	return parseWmicCSV(string(out)), nil
}

// FindPIDs implements Adapter.
func (w *Windows) FindPIDs(ctx context.Context, needle string) ([]int, error) {
	procs, err := w.processes(ctx)
	if err != nil {
		return nil, err
	}
	return matching(procs, needle, false), nil
}

// NodeProcessMatches implements Adapter.
func (w *Windows) NodeProcessMatches(ctx context.Context, needle string) (bool, error) {
	procs, err := w.processes(ctx)
	if err != nil {
		return false, err
	}
	return len(matching(procs, needle, true)) > 0, nil
}

// ResidentBytes implements Adapter. wmic gives the whole tree; tasklist is
// the fallback for the single process when wmic is unavailable.
func (w *Windows) ResidentBytes(ctx context.Context, pid int) (int64, error) {
	if procs, err := w.processes(ctx); err == nil {
		if total, err := treeRSS(procs, pid); err == nil {
			return total, nil
		}
	}
	out, err := w.runner.Run(ctx, "", "tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/FO", "CSV", "/NH")
	if err != nil {
		return 0, err
	}
	return parseTasklistMemory(string(out))
}

// KillTree implements Adapter.
func (w *Windows) KillTree(ctx context.Context, pid int) error {
	_, err := w.runner.Run(ctx, "", "taskkill", "/PID", strconv.Itoa(pid), "/T", "/F")
	return err
}

// TerminalLaunch implements Adapter.
func (w *Windows) TerminalLaunch(dir string, cmd []string) (LaunchSpec, error) {
	if len(cmd) == 0 {
		return LaunchSpec{}, fmt.Errorf("empty launch command")
	}
	script := fmt.Sprintf(`cd /d "%s" && %s`, dir, strings.Join(cmd, " "))
	return LaunchSpec{
		Name: "cmd",
		Args: []string{"/c", "start", "devdash", "cmd.exe", "/K", script},
	}, nil
}

// parseNetstatPIDs parses `netstat -ano` rows such as
// "  TCP    0.0.0.0:5173    0.0.0.0:0    LISTENING    4242".
func parseNetstatPIDs(out string, port int) []int {
	suffix := ":" + strconv.Itoa(port)
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 || !strings.EqualFold(fields[0], "TCP") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) || !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		if pid, err := strconv.Atoi(fields[4]); err == nil {
			pids = append(pids, pid)
		}
	}
	return Dedup(pids)
}

// parseWmicCSV parses `wmic ... /format:csv`. Columns come back in
// alphabetical order after Node; command lines may contain commas, so the
// numeric columns are taken from the end of each row.
func parseWmicCSV(out string) []Process {
	var procs []Process
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Node,") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 5 {
			continue
		}
		n := len(fields)
		ppid, err1 := strconv.Atoi(fields[n-3])
		pid, err2 := strconv.Atoi(fields[n-2])
		rss, err3 := strconv.ParseInt(fields[n-1], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		procs = append(procs, Process{
			PID:     pid,
			PPID:    ppid,
			RSS:     rss,
			Command: strings.Join(fields[1:n-3], ","),
		})
	}
	return procs
}

// parseTasklistMemory reads the "Mem Usage" column of a `tasklist /FO CSV /NH`
// row, e.g. "node.exe","4242","Console","1","45,320 K".
func parseTasklistMemory(out string) (int64, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(out)))
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("parse tasklist output: %w", err)
	}
	if len(record) < 5 {
		return 0, fmt.Errorf("unexpected tasklist output: %q", out)
	}
	mem := strings.TrimSpace(record[4])
	mem = strings.TrimSuffix(mem, "K")
	mem = strings.NewReplacer(",", "", ".", "", " ", "", "\u00a0", "").Replace(mem)
	kb, err := strconv.ParseInt(mem, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse tasklist memory %q: %w", record[4], err)
	}
	return kb * 1024, nil
}
