// Command cxindex is the client CLI for cxindexd, grounded on the
// teacher's cmd/otidx (a one-line main that builds and executes a cobra
// root command).
package main

import (
	"os"

	"cxindex/internal/cxindexcli"
)

func main() {
	if err := cxindexcli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
