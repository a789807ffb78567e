package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/erigontech/geodedupe/internal/config"
	"github.com/erigontech/geodedupe/internal/dedupe"
	"github.com/erigontech/geodedupe/internal/importers/openaddresses"
	"github.com/erigontech/geodedupe/internal/insertpipe"
	"github.com/erigontech/geodedupe/internal/store"
)

func newImportCmd(log *logrus.Entry) *cobra.Command {
	opts := config.DefaultInsertOptions()

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import addresses from an OpenAddresses-format CSV file into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, log, opts)
		},
	}
	opts.BindFlags(cmd.Flags())
	return cmd
}

func runImport(cmd *cobra.Command, log *logrus.Entry, opts config.InsertOptions) error {
	if opts.Source == "" || opts.Store == "" {
		return fmt.Errorf("--source and --store are required")
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, opts.Store, log)
	if err != nil {
		return err
	}
	defer st.Close()

	hasher := dedupe.NewNormalizingHasher(dedupe.DefaultNormalizingHasherConfig())
	pipe, err := insertpipe.New(ctx, st, hasher, nil, nil, log, opts.ToPipelineOptions())
	if err != nil {
		return err
	}

	f, err := os.Open(opts.Source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	read, skipped, err := openaddresses.Import(f, pipe)
	if err != nil {
		_ = pipe.Close()
		return err
	}
	if err := pipe.Close(); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"rows_read":       read,
		"rows_skipped":    skipped,
		"addresses":       pipe.CountAddresses(),
		"distinct_cities": pipe.CountCities(),
	}).Info("import complete")
	return nil
}
