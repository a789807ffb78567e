package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/erigontech/geodedupe/internal/config"
	"github.com/erigontech/geodedupe/internal/dump"
	"github.com/erigontech/geodedupe/internal/store"
)

func newDumpCmd(log *logrus.Entry) *cobra.Command {
	opts := config.DumpOptions{}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump surviving addresses to a gzip-compressed CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Store == "" || opts.Out == "" {
				return fmt.Errorf("--store and --out are required")
			}
			ctx := cmd.Context()
			st, err := store.Open(ctx, opts.Store, log)
			if err != nil {
				return err
			}
			defer st.Close()

			return dump.Write(ctx, st, afero.NewOsFs(), opts.Out, log)
		},
	}
	opts.BindFlags(cmd.Flags())
	return cmd
}
