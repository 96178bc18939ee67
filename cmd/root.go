package cmd

import (
	"github.com/grovetools/devdash/cli"
	"github.com/grovetools/devdash/version"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the devdash command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand("devdash", "Local development dashboard for a directory of projects")
	cli.SetVersionTemplate(root, version.GetInfo())

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewStopCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewProjectsCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(cli.NewVersionCommand("devdash"))
	return root
}
