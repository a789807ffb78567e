package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/erigontech/geodedupe/internal/config"
)

func newApplyCleanCmd(log *logrus.Entry) *cobra.Command {
	opts := config.DefaultResolveOptions()

	cmd := &cobra.Command{
		Use:   "apply-clean",
		Short: "Compute duplicate sets, apply the deletions, and drop the auxiliary tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ApplyDeletions = true
			return runResolve(cmd, log, opts)
		},
	}
	opts.BindFlags(cmd.Flags())
	cmd.Flags().BoolVar(&opts.SkipCleanup, "keep-tables", false, "keep the hashes and to_delete tables instead of dropping them")
	_ = cmd.Flags().MarkHidden("apply")
	return cmd
}
