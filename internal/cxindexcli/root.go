// Package cxindexcli is the client CLI that talks to cxindexd over its
// local socket: a cobra root command with subcommands wired through a
// shared *cobra.Command context rather than global state.
package cxindexcli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cxindex/internal/version"
)

// NewRootCommand builds the cxindex CLI.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "cxindex",
		Short: "cxindex client: talk to a running cxindexd",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Version = version.String()

	cmd.PersistentFlags().StringVar(&opts.socket, "socket", defaultSocketPath(), "cxindexd unix domain socket path")
	cmd.PersistentFlags().StringVar(&opts.tcpAddr, "addr", "", "cxindexd tcp address, used instead of --socket when set")

	cmd.AddCommand(newProjectCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newShutdownCommand(opts))
	return cmd
}

func printChunks(cmd *cobra.Command, chunks []string, err error) error {
	for _, c := range chunks {
		fmt.Fprintln(cmd.OutOrStdout(), c)
	}
	return err
}
