package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/grovetools/devdash/internal/dashboard/project"
)

// RenderProjects writes one table row per project.
func RenderProjects(w io.Writer, projects []*project.Metadata) {
	styled := isTerminal(w)
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	if styled {
		header = header.Foreground(colorTitle)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "STATE", "PORT", "UPTIME", "MEMORY", "BRANCH").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for _, m := range projects {
		t.Row(m.Name, stateLabel(m.Status), strconv.Itoa(m.Port), uptime(m.Status), memory(m.Memory), branch(m))
	}
	fmt.Fprintln(w, t.String())
}

func stateLabel(s project.State) string {
	if s.State == project.StateError && s.Code != "" {
		return s.State + " (" + s.Code + ")"
	}
	return s.State
}

func uptime(s project.State) string {
	if s.Uptime == nil {
		return "-"
	}
	return (time.Duration(*s.Uptime) * time.Second).String()
}

func memory(b *int64) string {
	if b == nil {
		return "-"
	}
	return FormatBytes(*b)
}

func branch(m *project.Metadata) string {
	if m.Git == nil {
		return "-"
	}
	if m.Git.UncommittedChanges > 0 {
		return fmt.Sprintf("%s*", m.Git.Branch)
	}
	return m.Git.Branch
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
