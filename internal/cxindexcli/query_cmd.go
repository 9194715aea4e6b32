package cxindexcli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cxindex/internal/protocol"
)

var queryTypesByName = map[string]protocol.QueryType{
	"follow-location":     protocol.QueryFollowLocation,
	"references-location": protocol.QueryReferencesLocation,
	"references-name":     protocol.QueryReferencesName,
	"list-symbols":        protocol.QueryListSymbols,
	"find-symbols":        protocol.QueryFindSymbols,
	"find-file":           protocol.QueryFindFile,
	"cursor-info":         protocol.QueryCursorInfo,
	"is-indexed":          protocol.QueryIsIndexed,
	"has-file-manager":    protocol.QueryHasFileManager,
	"reindex":             protocol.QueryReindex,
	"dump-file":           protocol.QueryDumpFile,
}

func newQueryCommand(opts *options) *cobra.Command {
	var typeName string
	var path string
	var offset uint32
	var regex bool

	cmd := &cobra.Command{
		Use:   "query [query-string]",
		Short: "Run a query against the active or location-matched project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qtype, ok := queryTypesByName[typeName]
			if !ok {
				return fmt.Errorf("cxindex: unknown query type %q", typeName)
			}
			var queryStr string
			if len(args) == 1 {
				queryStr = args[0]
			}

			msg := protocol.QueryMessage{Type: qtype, Query: queryStr}
			if path != "" {
				msg.Location = &protocol.RawLocation{Path: path, Offset: offset}
			}
			if regex {
				msg.Flags = append(msg.Flags, "regex")
			}

			chunks, err := opts.sendQuery(msg)
			return printChunks(cmd, chunks, err)
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "list-symbols", "query type: follow-location, references-location, references-name, list-symbols, find-symbols, find-file, cursor-info, is-indexed, has-file-manager, reindex, dump-file")
	cmd.Flags().StringVar(&path, "path", "", "file path for location-based queries")
	cmd.Flags().Uint32Var(&offset, "offset", 0, "byte offset within --path")
	cmd.Flags().BoolVar(&regex, "regex", false, "treat the query string as a regular expression (reindex only)")
	return cmd
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			chunks, err := opts.sendQuery(protocol.QueryMessage{Type: protocol.QueryStatus})
			return printChunks(cmd, chunks, err)
		},
	}
}

func newShutdownCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Ask the daemon to flush state and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			chunks, err := opts.sendQuery(protocol.QueryMessage{Type: protocol.QueryShutdown})
			return printChunks(cmd, chunks, err)
		},
	}
}
