package cxindexcli

import (
	"github.com/spf13/cobra"

	"cxindex/internal/protocol"
)

func newProjectCommand(opts *options) *cobra.Command {
	var kind string
	var extraFlags []string

	cmd := &cobra.Command{
		Use:   "project <path>",
		Short: "Submit a project (makefile or directory) for indexing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectKind := protocol.ProjectMakefile
			switch kind {
			case "grtags":
				projectKind = protocol.ProjectGRTags
			case "smart":
				projectKind = protocol.ProjectSmart
			}
			chunks, err := opts.sendProject(protocol.ProjectMessage{
				Type:       projectKind,
				Path:       args[0],
				ExtraFlags: extraFlags,
			})
			return printChunks(cmd, chunks, err)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "makefile", "project kind: makefile, grtags, or smart")
	cmd.Flags().StringSliceVar(&extraFlags, "extra-flag", nil, "extra compiler flag, repeatable")
	return cmd
}
