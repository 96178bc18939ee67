package cli

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/devdash/errors"
	"github.com/grovetools/devdash/git"
	"github.com/grovetools/devdash/internal/daemon/pidfile"
	"github.com/grovetools/devdash/internal/dashboard/project"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandlerMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"config not found", errors.ConfigNotFound("/tmp/devdash.yml"), "configuration file /tmp/devdash.yml not found"},
		{"invalid name", errors.InvalidName("a b", "contains a space"), "may only contain letters"},
		{"project not found", errors.ProjectNotFound("ghost"), "devdash projects"},
		{"already running", fmt.Errorf("start: %w", &pidfile.AlreadyRunningError{PID: 42}), "already running (PID 42)"},
		{"plain", fmt.Errorf("boom"), "Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			h := &ErrorHandler{Out: &out}
			assert.Equal(t, tt.err, h.Handle(tt.err))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestErrorHandlerVerboseDetails(t *testing.T) {
	var out bytes.Buffer
	h := &ErrorHandler{Verbose: true, Out: &out}
	h.Handle(errors.ConfigInvalid("listen is empty").WithDetail("path", "devdash.yml"))

	assert.Contains(t, out.String(), "Fix devdash.yml")
	assert.Contains(t, out.String(), `"code": "CONFIG_INVALID"`)
}

func TestStyledHelpIsPlainWhenPiped(t *testing.T) {
	root := NewStandardCommand("devdash", "Local development dashboard")
	root.AddCommand(&cobra.Command{Use: "serve", Short: "Run the dashboard API", Run: func(*cobra.Command, []string) {}})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())

	help := out.String()
	assert.Contains(t, help, "DEVDASH")
	assert.Contains(t, help, "COMMANDS")
	assert.Contains(t, help, "serve")
	assert.NotContains(t, help, "\x1b[")
}

func TestGetOptions(t *testing.T) {
	root := NewStandardCommand("devdash", "")
	var got CommandOptions
	root.AddCommand(&cobra.Command{Use: "x", Run: func(cmd *cobra.Command, _ []string) { got = GetOptions(cmd) }})
	root.SetArgs([]string{"x", "--json", "-v", "-c", "custom.yml"})
	require.NoError(t, root.Execute())

	assert.Equal(t, CommandOptions{ConfigFile: "custom.yml", Verbose: true, JSONOutput: true}, got)
}

func TestWrapText(t *testing.T) {
	wrapped := wrapText(strings.Repeat("word ", 30), 20)
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), 20)
	}
	assert.Equal(t, "a\nb", wrapText("a\nb", 20))
}

func TestRenderProjects(t *testing.T) {
	since := time.Now().Add(-90 * time.Second)
	mem := int64(20 * 1024 * 1024)
	metas := []*project.Metadata{
		{Name: "web", Port: 5173, Status: project.Running(since, 90*time.Second), Memory: &mem,
			Git: &git.Status{Branch: "main", UncommittedChanges: 2}},
		{Name: "api", Port: 3002, Status: project.Errored("exit status 1", project.ExitedCode)},
	}

	var out bytes.Buffer
	RenderProjects(&out, metas)

	table := out.String()
	assert.Contains(t, table, "NAME")
	assert.Contains(t, table, "running")
	assert.Contains(t, table, "1m30s")
	assert.Contains(t, table, "20.0 MiB")
	assert.Contains(t, table, "main*")
	assert.Contains(t, table, "error (EXITED)")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "2.0 GiB", FormatBytes(2<<30))
}
