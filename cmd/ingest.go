package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ingestMaxRows int
	ingestReclaim bool
	ingestAll     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run an ingestion sweep over queued upload rows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if ingestReclaim {
			if _, err := env.Pipeline.Reclaim(ctx); err != nil {
				return eris.Wrap(err, "reclaim")
			}
		}

		total := 0
		for {
			n, err := env.Engine.IngestBatch(ctx, ingestMaxRows)
			total += n
			if err != nil {
				return eris.Wrapf(err, "ingest after %d rows", total)
			}
			if !ingestAll || n == 0 {
				break
			}
		}

		zap.L().Info("ingest complete", zap.Int("processed", total))
		return writeOutput(cmd.OutOrStdout(), outputFormat, map[string]int{"processed": total})
	},
}

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Return rows stuck in processing to the queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Pipeline.Reclaim(ctx)
		if err != nil {
			return eris.Wrap(err, "reclaim")
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, map[string]int{"reclaimed": n})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile-sources",
	Short: "Merge duplicate sources created by concurrent uploads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Pipeline.ReconcileSources(ctx)
		if err != nil {
			return eris.Wrap(err, "reconcile sources")
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, map[string]int{"merged": n})
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestMaxRows, "max-rows", 0, "maximum rows per sweep (0 = one page)")
	ingestCmd.Flags().BoolVar(&ingestReclaim, "reclaim", false, "reclaim stalled rows before sweeping")
	ingestCmd.Flags().BoolVar(&ingestAll, "all", false, "sweep until the queue is empty")
	rootCmd.AddCommand(ingestCmd, reclaimCmd, reconcileCmd)
}
