// Package cmd holds the tabwatt cobra commands.
package cmd

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/grovetools/tabwatt/cli"
	"github.com/grovetools/tabwatt/pkg/daemon"
	"github.com/grovetools/tabwatt/pkg/profiling"
	"github.com/grovetools/tabwatt/version"
	"github.com/spf13/cobra"
)

// requestTimeout bounds one-shot requests made by the CLI.
const requestTimeout = 15 * time.Second

// newClient is replaced in tests.
var newClient = func() daemon.Client { return daemon.New() }

// NewRootCmd assembles the tabwatt command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand("tabwatt", "Estimate and track the power drawn by browser tabs")
	cli.SetVersionTemplate(root, version.GetInfo())

	prof := profiling.New(nil)
	prof.AddFlags(root)
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cli.ApplyColorMode(cli.GetOptions(cmd).NoColor)
		return prof.Start()
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		prof.Stop()
	}

	root.AddCommand(NewDaemonCmd())
	root.AddCommand(NewRequestCmd())
	root.AddCommand(NewPopupCmd())
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewSettingsCmd())
	root.AddCommand(NewMigrateCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(NewLogsCmd())
	root.AddCommand(cli.NewVersionCommand("tabwatt"))
	return root
}

// withClient runs fn with a client and a request deadline.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c daemon.Client) error) error {
	c := newClient()
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	return fn(ctx, c)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
