package platform

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/grovetools/devdash/command/commandtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const psFixture = `    1     0   1024 /sbin/init
  100     1   2048 node /home/me/projects/demo-app/node_modules/.bin/vite
  101   100   4096 /usr/bin/esbuild --service
  102   101    512 esbuild-worker
  200     1    128 /usr/bin/vim demo-app/README.md
  300     1     64 ps -axo pid=,ppid=,rss=,command=
garbage line
`

func TestDetect(t *testing.T) {
	rec := commandtest.New()
	assert.Equal(t, "windows", Detect("windows", rec).Name())
	assert.Equal(t, "unix", Detect("linux", rec).Name())
	assert.Equal(t, "unix", Detect("darwin", rec).Name())
}

func TestParsePsTable(t *testing.T) {
	procs := parsePsTable(psFixture)
	require.Len(t, procs, 6)
	assert.Equal(t, Process{PID: 100, PPID: 1, RSS: 2048 * 1024,
		Command: "node /home/me/projects/demo-app/node_modules/.bin/vite"}, procs[1])
}

func TestMatchingAndTree(t *testing.T) {
	procs := parsePsTable(psFixture)

	assert.Equal(t, []int{100, 200}, matching(procs, "demo-app", false))
	assert.Equal(t, []int{100}, matching(procs, "DEMO-APP", true))
	assert.Empty(t, matching(procs, "pid=", false), "probe commands are skipped")
	assert.Empty(t, matching(procs, "", false))

	assert.Equal(t, []int{102, 101}, descendants(procs, 100))

	total, err := treeRSS(procs, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2048+4096+512)*1024, total)

	_, err = treeRSS(procs, 9999)
	assert.Error(t, err)
}

func TestMatchingPathStopsAtBoundary(t *testing.T) {
	procs := []Process{
		{PID: 10, Command: "node /root/demo-app/node_modules/.bin/vite"},
		{PID: 11, Command: "node /root/demo/node_modules/.bin/vite"},
		{PID: 12, Command: "npm run dev --prefix /root/demo"},
		{PID: 13, Command: `node "C:\work\demo\server.js"`},
	}

	assert.Equal(t, []int{11, 12}, matching(procs, "/root/demo", false))
	assert.Equal(t, []int{11, 12}, matching(procs, "/root/demo/", false))
	assert.Equal(t, []int{10}, matching(procs, "/root/demo-app", false))
	assert.Equal(t, []int{13}, matching(procs, `C:\work\demo`, false))
	assert.Empty(t, matching(procs, "/", false))
	assert.Equal(t, []int{10, 11, 12, 13}, matching(procs, "demo", false), "names still match as substrings")
}

func TestParseLsofPIDs(t *testing.T) {
	assert.Equal(t, []int{42, 4242}, parseLsofPIDs("4242\n42\n4242\n\nnope\n"))
	assert.Empty(t, parseLsofPIDs(""))
}

func TestParseNetstatPIDs(t *testing.T) {
	out := `
Active Connections

  Proto  Local Address          Foreign Address        State           PID
  TCP    0.0.0.0:5173           0.0.0.0:0              LISTENING       4242
  TCP    [::]:5173              [::]:0                 LISTENING       4242
  TCP    127.0.0.1:51730        0.0.0.0:0              LISTENING       7
  TCP    127.0.0.1:5173         127.0.0.1:60000        ESTABLISHED     4242
  TCP    0.0.0.0:3001           0.0.0.0:0              LISTENING       9
`
	assert.Equal(t, []int{4242}, parseNetstatPIDs(out, 5173))
	assert.Equal(t, []int{9}, parseNetstatPIDs(out, 3001))
	assert.Empty(t, parseNetstatPIDs(out, 8080))
}

func TestParseWmicCSV(t *testing.T) {
	out := "\r\nNode,CommandLine,ParentProcessId,ProcessId,WorkingSetSize\r\n" +
		"HOST,node C:\\projects\\demo-app\\vite.js --port,5173,10,20,1048576\r\n" +
		"HOST,,0,4,8192\r\n"
	procs := parseWmicCSV(out)
	require.Len(t, procs, 2)
	assert.Equal(t, 20, procs[0].PID)
	assert.Equal(t, 10, procs[0].PPID)
	assert.Equal(t, int64(1048576), procs[0].RSS)
	assert.Equal(t, `node C:\projects\demo-app\vite.js --port,5173`, procs[0].Command)
}

func TestParseTasklistMemory(t *testing.T) {
	n, err := parseTasklistMemory(`"node.exe","4242","Console","1","45,320 K"` + "\r\n")
	require.NoError(t, err)
	assert.Equal(t, int64(45320*1024), n)

	_, err = parseTasklistMemory("INFO: No tasks are running which match the specified criteria.")
	assert.Error(t, err)
}

func TestUnixCommands(t *testing.T) {
	rec := commandtest.New().
		On("lsof", "4242\n").
		On("ps", psFixture).
		On("kill", "")
	u := Detect("linux", rec)
	ctx := context.Background()

	pids, err := u.ListeningPIDs(ctx, 5173)
	require.NoError(t, err)
	assert.Equal(t, []int{4242}, pids)
	assert.Equal(t, 1, rec.Count("lsof -nP -t -iTCP:5173 -sTCP:LISTEN"))

	ok, err := u.NodeProcessMatches(ctx, "demo-app")
	require.NoError(t, err)
	assert.True(t, ok)

	mem, err := u.ResidentBytes(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, int64(4096+512)*1024, mem)

	require.NoError(t, u.KillTree(ctx, 100))
	assert.Equal(t, 1, rec.Count("kill -9 102 101"))
	assert.Equal(t, 1, rec.Count("kill -9 100"))
}

func TestUnixKillTreeReportsRootFailure(t *testing.T) {
	rec := commandtest.New().
		On("ps", "").
		OnError("kill", errors.New("no such process"))
	u := Detect("linux", rec)

	assert.Error(t, u.KillTree(context.Background(), 77))
}

func TestWindowsCommands(t *testing.T) {
	rec := commandtest.New().
		On("netstat", "  TCP    0.0.0.0:5174    0.0.0.0:0    LISTENING    31\n").
		OnError("wmic", errors.New("wmic is deprecated")).
		On("tasklist", `"node.exe","31","Console","1","1,000 K"`).
		On("taskkill", "SUCCESS")
	w := Detect("windows", rec)
	ctx := context.Background()

	pids, err := w.ListeningPIDs(ctx, 5174)
	require.NoError(t, err)
	assert.Equal(t, []int{31}, pids)

	mem, err := w.ResidentBytes(ctx, 31)
	require.NoError(t, err)
	assert.Equal(t, int64(1000*1024), mem)

	_, err = w.FindPIDs(ctx, "demo")
	assert.Error(t, err)

	require.NoError(t, w.KillTree(ctx, 31))
	assert.Equal(t, 1, rec.Count("taskkill /PID 31 /T /F"))
}

func TestTerminalLaunch(t *testing.T) {
	rec := commandtest.New()

	spec, err := Detect("linux", rec).TerminalLaunch("/p/it's", []string{"npm", "run", "dev"})
	require.NoError(t, err)
	assert.Equal(t, "gnome-terminal", spec.Name)
	assert.Equal(t, []string{"--", "bash", "-c", `cd '/p/it'\''s' && 'npm' 'run' 'dev'; exec bash`}, spec.Args)

	spec, err = Detect("darwin", rec).TerminalLaunch("/p/demo", []string{"npm", "run", "dev"})
	require.NoError(t, err)
	assert.Equal(t, "osascript", spec.Name)
	assert.Contains(t, spec.Args[1], `do script "cd '/p/demo' && 'npm' 'run' 'dev'"`)

	spec, err = Detect("windows", rec).TerminalLaunch(`C:\p\demo`, []string{"npm", "run", "dev"})
	require.NoError(t, err)
	assert.Equal(t, "cmd", spec.Name)
	assert.Equal(t, `cd /d "C:\p\demo" && npm run dev`, spec.Args[len(spec.Args)-1])

	_, err = Detect("linux", rec).TerminalLaunch("/p", nil)
	assert.Error(t, err)
	assert.Empty(t, rec.Calls(), "TerminalLaunch only builds the command")
}

func TestMatchingSkipsSelf(t *testing.T) {
	self := os.Getpid()
	procs := []Process{{PID: self, Command: "node demo-app"}, {PID: self + 1, Command: "node demo-app"}}
	assert.Equal(t, []int{self + 1}, matching(procs, "demo-app", true))
}

func TestDedup(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, Dedup([]int{3, 1}, []int{2, 3, 0, -1}, nil))
	assert.Empty(t, Dedup())
}
