package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var matchCountry, matchName, matchAddress string

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank registry facilities against a name and address",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Engine.MatchFacility(ctx, matchCountry, matchName, matchAddress)
		if err != nil {
			return eris.Wrap(err, "match facility")
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, res)
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchCountry, "country", "", "ISO country code (required)")
	matchCmd.Flags().StringVar(&matchName, "name", "", "facility name (required)")
	matchCmd.Flags().StringVar(&matchAddress, "address", "", "facility address (required)")
	rootCmd.AddCommand(matchCmd)
}
