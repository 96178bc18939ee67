package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/grovetools/devdash/cli"
	"github.com/grovetools/devdash/internal/dashboard/project"
	"github.com/grovetools/devdash/pkg/dashclient"
	"github.com/spf13/cobra"
)

// NewProjectsCmd returns the client commands for a running dashboard.
func NewProjectsCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects with their status",
		Long: `List the projects of a running dashboard with state, port, uptime,
memory and git branch.

Examples:
  devdash projects
  devdash projects --json
  devdash projects launch my-app`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor(cmd, addr)
			if err != nil {
				return err
			}
			list, err := client.Projects(cmd.Context())
			if err != nil {
				return err
			}
			metas := make([]*project.Metadata, 0, len(list))
			for _, p := range list {
				m, err := client.Metadata(cmd.Context(), p.Name)
				if err != nil {
					return err
				}
				metas = append(metas, m)
			}
			return output(cmd, metas, func(w io.Writer) { cli.RenderProjects(w, metas) })
		},
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "", "Dashboard address (defaults to the configured listen address)")

	cmd.AddCommand(&cobra.Command{
		Use:   "launch <name>",
		Short: "Launch a project's dev server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor(cmd, addr)
			if err != nil {
				return err
			}
			res, err := client.Launch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return output(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", res.Message, res.URL)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "close <name>",
		Aliases: []string{"stop"},
		Short:   "Force close a project",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor(cmd, addr)
			if err != nil {
				return err
			}
			res, err := client.Close(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return output(cmd, res, func(w io.Writer) {
				fmt.Fprintln(w, res.Message)
			})
		},
	})

	return cmd
}

func clientFor(cmd *cobra.Command, addr string) (*dashclient.Client, error) {
	if addr != "" {
		return dashclient.New(addr), nil
	}
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return dashclient.New(cfg.Listen), nil
}

// output writes v as JSON under --json and calls text otherwise.
func output(cmd *cobra.Command, v any, text func(io.Writer)) error {
	w := cmd.OutOrStdout()
	if cli.GetOptions(cmd).JSONOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
