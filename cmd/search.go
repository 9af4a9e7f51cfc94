package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/facility-registry/internal/facility"
)

var (
	searchName         string
	searchCountry      string
	searchContributors []string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search deduplicated facilities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := env.Engine.SearchFacilities(ctx, facility.SearchQuery{
			Name:           searchName,
			Country:        searchCountry,
			ContributorIDs: searchContributors,
		})
		if err != nil {
			return eris.Wrap(err, "search facilities")
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, results)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchName, "name", "", "name fragment to match")
	searchCmd.Flags().StringVar(&searchCountry, "country", "", "ISO country code")
	searchCmd.Flags().StringSliceVar(&searchContributors, "contributor", nil, "restrict to these uploader ids")
	rootCmd.AddCommand(searchCmd)
}
