package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/devdash/command/commandtest"
	"github.com/grovetools/devdash/config"
	"github.com/grovetools/devdash/internal/daemon/metrics"
	"github.com/grovetools/devdash/internal/dashboard/cache"
	"github.com/grovetools/devdash/internal/dashboard/lifecycle"
	"github.com/grovetools/devdash/internal/dashboard/probe"
	"github.com/grovetools/devdash/internal/dashboard/project"
	"github.com/grovetools/devdash/pkg/memoryshack"
	"github.com/grovetools/devdash/pkg/platform"
	"github.com/grovetools/devdash/testutil"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type stubLauncher struct{}

func (stubLauncher) Launch(ctx context.Context, name, dir string, port int) (*project.Spawned, error) {
	return &project.Spawned{PID: 4242, Tracked: true, Wait: func() error { select {} }}, nil
}

type stubCaller struct {
	result *mcp.CallToolResult
	calls  []string
}

func (c *stubCaller) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	c.calls = append(c.calls, name)
	return c.result, nil
}

func (c *stubCaller) Close() error { return nil }

type harness struct {
	srv    *Server
	rec    *commandtest.Recorder
	caller *stubCaller
	root   string
}

func newHarness(t *testing.T, names ...string) *harness {
	t.Helper()
	root := testutil.ProjectsRoot(t, names...)
	rec := commandtest.New()
	adapter := platform.Detect("linux", rec)
	logger := testLogger()
	prom := metrics.NewPrometheus("devdash")

	svc, err := project.New(project.Options{
		Root:  root,
		Grace: time.Minute,
		Ports: project.NewPorts(config.DefaultPorts(), config.DefaultProjectPort),
		Cache: cache.New(map[cache.Category]time.Duration{
			cache.Metadata: config.DefaultMetadataTTL,
			cache.Git:      config.DefaultGitTTL,
		}, cache.WithMetrics(prom)),
		Tracker: lifecycle.NewTracker(nil),
		Prober: probe.New(adapter, rec, probe.Options{
			Timeout: time.Second,
			Alive:   func(int) bool { return false },
		}, logger, prom),
		Killer:   lifecycle.NewKiller(adapter, 5*time.Second, logger, prom),
		Launcher: stubLauncher{},
		Logger:   logger,
		Metrics:  prom,
	})
	require.NoError(t, err)

	caller := &stubCaller{result: &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: `{"memories":[],"count":0}`}},
	}}
	memory := memoryshack.New(config.MemoryShackConfig{}, logger,
		memoryshack.WithDialer(func(ctx context.Context) (memoryshack.ToolCaller, error) { return caller, nil }),
		memoryshack.WithMetrics(prom))

	srv := New(Options{
		Projects:       svc,
		Memory:         memory,
		Metrics:        prom.Handler(),
		StreamInterval: 50 * time.Millisecond,
		Logger:         logger,
	})
	return &harness{srv: srv, rec: rec, caller: caller, root: root}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestInvalidNameIsRejectedWithoutCommands(t *testing.T) {
	h := newHarness(t, "demo-app+npm")

	paths := []string{
		"/api/projects/..etc/status",
		"/api/projects/foo%24%28rm%29/status",
		"/api/projects/a%20b/metadata",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			w := h.do(t, http.MethodGet, p, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			assert.Equal(t, "INVALID_NAME", body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}

	w := h.do(t, http.MethodPost, "/api/projects/..etc/launch", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(t, http.MethodPost, "/api/projects/..etc/close", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, h.rec.Calls())
}

func TestListProjects(t *testing.T) {
	h := newHarness(t, "beta", "alpha")

	w := h.do(t, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, w.Code)

	var projects []project.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	require.Len(t, projects, 2)
	assert.Equal(t, "alpha", projects[0].Name)
	assert.Equal(t, filepath.Join(h.root, "alpha"), projects[0].Path)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, "demo-app")
	h.rec.On("ps", "  4242     1  2048 node /work/demo-app/node_modules/.bin/vite\n")

	w := h.do(t, http.MethodGet, "/api/projects/demo-app/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["running"])

	w = h.do(t, http.MethodGet, "/api/projects/missing/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PROJECT_NOT_FOUND", decode(t, w)["code"])
}

func TestMetadataWithoutGitOmitsGit(t *testing.T) {
	h := newHarness(t, "demo-app")

	w := h.do(t, http.MethodGet, "/api/projects/demo-app/metadata", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.NotContains(t, body, "git")
	assert.NotContains(t, body, "memory")
	assert.Equal(t, "demo-app", body["name"])
	assert.Equal(t, float64(5173), body["port"])
	assert.Equal(t, "http://localhost:5173", body["url"])
	assert.Equal(t, map[string]any{"state": "stopped"}, body["status"])
}

func TestMetadataWithGit(t *testing.T) {
	h := newHarness(t, "demo-app")
	require.NoError(t, os.MkdirAll(filepath.Join(h.root, "demo-app", ".git"), 0755))
	h.rec.On("git rev-parse", "main\n")
	h.rec.On("git status", " M README.md\n")
	h.rec.On("git log", "abc123\x1fAdd README.md\x1f1767225600\n")
	h.rec.On("git rev-list", "0\t2\n")

	w := h.do(t, http.MethodGet, "/api/projects/demo-app/metadata", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	require.Contains(t, body, "git")
	gitStatus := body["git"].(map[string]any)
	assert.Equal(t, "main", gitStatus["branch"])
	assert.Equal(t, float64(1), gitStatus["uncommittedChanges"])
	assert.Equal(t, float64(2), gitStatus["ahead"])
}

func TestConcurrentMetadataProbesOnce(t *testing.T) {
	h := newHarness(t, "demo-app")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := h.do(t, http.MethodGet, "/api/projects/demo-app/metadata", "")
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.rec.Count("ps"))
}

func TestLaunchScenario(t *testing.T) {
	h := newHarness(t, "demo-app+npm", "bare")

	w := h.do(t, http.MethodPost, "/api/projects/demo-app/launch", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(5173), body["port"])

	w = h.do(t, http.MethodGet, "/api/projects/demo-app/metadata", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)["status"].(map[string]any)
	assert.Equal(t, "launching", status["state"])

	w = h.do(t, http.MethodPost, "/api/projects/bare/launch", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MANIFEST_NOT_FOUND", decode(t, w)["code"])

	w = h.do(t, http.MethodPost, "/api/projects/ghost/launch", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodGet, "/api/projects/demo-app/launch", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCloseAlwaysSucceeds(t *testing.T) {
	h := newHarness(t, "demo-app")

	for _, p := range []string{
		"/api/projects/demo-app/close",
		"/api/projects/demo-app/stop",
		"/api/projects/not-a-dir/close",
	} {
		w := h.do(t, http.MethodPost, p, "")
		assert.Equal(t, http.StatusOK, w.Code, p)
		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(0), body["killed"])
	}
}

func TestRestartAndLogs(t *testing.T) {
	h := newHarness(t, "demo-app+npm")

	w := h.do(t, http.MethodPost, "/api/projects/demo-app/restart", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = h.do(t, http.MethodGet, "/api/projects/demo-app/logs?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, []any{}, body["logs"])
	assert.Equal(t, false, body["hasMore"])

	w = h.do(t, http.MethodGet, "/api/projects/demo-app/logs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogsLimitBounds(t *testing.T) {
	h := newHarness(t, "demo-app+npm")

	for _, limit := range []string{"17592186044416", "1001", "-1"} {
		w := h.do(t, http.MethodGet, "/api/projects/demo-app/logs?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
		assert.Equal(t, "INVALID_INPUT", decode(t, w)["code"], limit)
	}

	w := h.do(t, http.MethodGet, "/api/projects/demo-app/logs?limit=1000", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMemoryProxy(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/mcp/memory-shack", `{"tool":"drop_tables","arguments":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "TOOL_NOT_ALLOWED", decode(t, w)["code"])
	assert.Empty(t, h.caller.calls)

	w = h.do(t, http.MethodPost, "/api/mcp/memory-shack", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, w)["code"])

	w = h.do(t, http.MethodPost, "/api/mcp/memory-shack", `{"tool":"get_timeline_range","arguments":{"limit":5}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/api/mcp/chronicle", `{"tool":"list_memories","arguments":{"namespace":"dev"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"memories": []any{}, "count": float64(0)}, body["data"])
	assert.Equal(t, "list_memories", body["meta"].(map[string]any)["tool"])
	assert.Equal(t, []string{"list_memories"}, h.caller.calls)
}

func TestMemoryProxyNotConfigured(t *testing.T) {
	srv := New(Options{Logger: testLogger()})
	req := httptest.NewRequest(http.MethodPost, "/api/mcp/memory-shack", strings.NewReader(`{"tool":"list_memories"}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodOptions, "/api/projects/demo-app/launch", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")

	w = h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "ok", decode(t, w)["status"])
}

type panickingProjects struct {
	Projects
}

func (panickingProjects) List(ctx context.Context) ([]project.Project, error) {
	panic("boom")
}

func TestPanicIsRecovered(t *testing.T) {
	srv := New(Options{Projects: panickingProjects{}, Logger: testLogger()})
	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestRunningConfig(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/config", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h.srv.SetRunningConfig(&RunningConfig{StartedAt: time.Now(), Version: "test", Config: config.Default()})
	w = h.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	cfg := decode(t, w)["config"].(map[string]any)
	assert.Equal(t, config.DefaultListen, cfg["listen"])
	assert.Equal(t, "10s", cfg["cache"].(map[string]any)["metadata_ttl"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, "demo-app")
	h.do(t, http.MethodGet, "/api/projects/demo-app/metadata", "")

	w := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "devdash_cache_lookups_total")
}

func TestStaticUI(t *testing.T) {
	dist := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dist, "index.html"), []byte("<html>dash</html>"), 0644))
	srv := New(Options{StaticDir: dist, Logger: testLogger()})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dash")
}

func TestStream(t *testing.T) {
	h := newHarness(t, "alpha", "beta")
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	var first StreamUpdate
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "initial", first.Type)
	require.Len(t, first.Projects, 2)
	assert.Equal(t, "alpha", first.Projects[0].Name)

	var next StreamUpdate
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "snapshot", next.Type)
}

func TestServeAndShutdown(t *testing.T) {
	h := newHarness(t)
	done := make(chan error, 1)
	go func() { done <- h.srv.ListenAndServe("127.0.0.1:0") }()

	require.Eventually(t, func() bool {
		h.srv.mu.RLock()
		defer h.srv.mu.RUnlock()
		return h.srv.server != nil
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}
