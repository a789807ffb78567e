package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/erigontech/geodedupe/internal/config"
	"github.com/erigontech/geodedupe/internal/dedupe"
	"github.com/erigontech/geodedupe/internal/pipeline/progress"
	"github.com/erigontech/geodedupe/internal/resolvepipe"
	"github.com/erigontech/geodedupe/internal/store"
)

func newDuplicatesCmd(log *logrus.Entry) *cobra.Command {
	opts := config.DefaultResolveOptions()

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Compute duplicate sets and mark them for deletion, without applying deletions",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ApplyDeletions = false
			return runResolve(cmd, log, opts)
		},
	}
	opts.BindFlags(cmd.Flags())
	_ = cmd.Flags().MarkHidden("apply")
	_ = cmd.Flags().MarkHidden("vacuum")
	return cmd
}

func runResolve(cmd *cobra.Command, log *logrus.Entry, opts config.ResolveOptions) error {
	if opts.Store == "" {
		return fmt.Errorf("--store is required")
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, opts.Store, log)
	if err != nil {
		return err
	}
	defer st.Close()

	sim := dedupe.NewNormalizingSimilarity(dedupe.DefaultSimilarityConfig())
	sink := progress.NewLogSink(log, progress.NewGauge(), 100_000)

	resolveOpts := opts.ToPipelineOptions()
	resolveOpts.Progress = sink

	if err := resolvepipe.Resolve(ctx, st, sim, log, resolveOpts); err != nil {
		return err
	}

	toDelete, err := st.CountToDelete(ctx)
	if err != nil {
		return err
	}
	log.WithField("marked_for_deletion", toDelete).Info("duplicates resolved")
	return nil
}
