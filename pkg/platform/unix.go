package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/grovetools/devdash/command"
)

// Unix serves linux and darwin with lsof, ps and kill.
type Unix struct {
	runner command.Runner
	goos   string
}

// Name implements Adapter.
func (u *Unix) Name() string { return "unix" }

// ListeningPIDs implements Adapter. lsof exits non-zero when nothing
// listens, which callers treat the same as an empty result.
func (u *Unix) ListeningPIDs(ctx context.Context, port int) ([]int, error) {
	out, err := u.runner.Run(ctx, "", "lsof", "-nP", "-t", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN")
	if err != nil {
		return nil, err
	}
	return parseLsofPIDs(string(out)), nil
}

func (u *Unix) processes(ctx context.Context) ([]Process, error) {
	out, err := u.runner.Run(ctx, "", "ps", "-axo", "pid=,ppid=,rss=,command=")
	if err != nil {
		return nil, err
	}
	return parsePsTable(string(out)), nil
}

// FindPIDs implements Adapter.
func (u *Unix) FindPIDs(ctx context.Context, needle string) ([]int, error) {
	procs, err := u.processes(ctx)
	if err != nil {
		return nil, err
	}
	return matching(procs, needle, false), nil
}

// NodeProcessMatches implements Adapter.
func (u *Unix) NodeProcessMatches(ctx context.Context, needle string) (bool, error) {
	procs, err := u.processes(ctx)
	if err != nil {
		return false, err
	}
	return len(matching(procs, needle, true)) > 0, nil
}

// ResidentBytes implements Adapter.
func (u *Unix) ResidentBytes(ctx context.Context, pid int) (int64, error) {
	procs, err := u.processes(ctx)
	if err != nil {
		return 0, err
	}
	return treeRSS(procs, pid)
}

// KillTree implements Adapter. Descendants are signalled first so a dev
// server cannot respawn workers from a dying parent; their failures are
// ignored and only the root's signal decides the result.
func (u *Unix) KillTree(ctx context.Context, pid int) error {
	if procs, err := u.processes(ctx); err == nil {
		if children := descendants(procs, pid); len(children) > 0 {
			args := []string{"-9"}
			for _, c := range children {
				args = append(args, strconv.Itoa(c))
			}
			_, _ = u.runner.Run(ctx, "", "kill", args...)
		}
	}
	_, err := u.runner.Run(ctx, "", "kill", "-9", strconv.Itoa(pid))
	return err
}

// TerminalLaunch implements Adapter.
func (u *Unix) TerminalLaunch(dir string, cmd []string) (LaunchSpec, error) {
	if len(cmd) == 0 {
		return LaunchSpec{}, fmt.Errorf("empty launch command")
	}
	script := "cd " + shellQuote(dir) + " && " + shellJoin(cmd)
	if u.goos == "darwin" {
		apple := strings.ReplaceAll(script, `\`, `\\`)
		apple = strings.ReplaceAll(apple, `"`, `\"`)
		return LaunchSpec{
			Name: "osascript",
			Args: []string{"-e", `tell app "Terminal" to do script "` + apple + `"`},
		}, nil
	}
	return LaunchSpec{
		Name: "gnome-terminal",
		Args: []string{"--", "bash", "-c", script + "; exec bash"},
	}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// parseLsofPIDs parses `lsof -t` output: one PID per line.
func parseLsofPIDs(out string) []int {
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return Dedup(pids)
}

// parsePsTable parses `ps -axo pid=,ppid=,rss=,command=`. RSS is in KiB.
func parsePsTable(out string) []Process {
	var procs []Process
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		pid, err1 := strconv.Atoi(fields[0])
		ppid, err2 := strconv.Atoi(fields[1])
		rss, err3 := strconv.ParseInt(fields[2], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		procs = append(procs, Process{
			PID:     pid,
			PPID:    ppid,
			RSS:     rss * 1024,
			Command: strings.Join(fields[3:], " "),
		})
	}
	return procs
}
