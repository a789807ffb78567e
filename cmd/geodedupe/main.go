// Command geodedupe runs the address deduplication pipeline: import
// addresses into a store, compute duplicate sets, apply the resulting
// deletions, and dump survivors back out to a compressed CSV.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	log := logrus.NewEntry(logrus.StandardLogger())

	root := &cobra.Command{
		Use:           "geodedupe",
		Short:         "Deduplicate postal addresses in a SQLite store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newImportCmd(log),
		newDuplicatesCmd(log),
		newApplyCleanCmd(log),
		newDumpCmd(log),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "geodedupe:", err)
		os.Exit(1)
	}
}
