package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	confirmTempID    string
	confirmCandidate int
)

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Accept a ranked candidate for a processed upload row",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Pipeline.Confirm(ctx, confirmTempID, confirmCandidate)
		if err != nil {
			return eris.Wrap(err, "confirm")
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, c)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the registry schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		return eris.Wrap(st.Migrate(ctx), "migrate")
	},
}

func init() {
	confirmCmd.Flags().StringVar(&confirmTempID, "temp", "", "upload row id (required)")
	confirmCmd.Flags().IntVar(&confirmCandidate, "candidate", 0, "index of the ranked candidate")
	_ = confirmCmd.MarkFlagRequired("temp")
	rootCmd.AddCommand(confirmCmd, migrateCmd)
}
