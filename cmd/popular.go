package main

import (
	"github.com/spf13/cobra"
)

var (
	popularFormat string
	popularLimit  int
)

var popularCmd = &cobra.Command{
	Use:   "popular <country-code>",
	Short: "List the most frequently linked names for a country",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg, "popular")
		if err != nil {
			return err
		}
		defer env.Close()

		top, err := env.Ranker.TopNames(ctx, args[0], popularLimit)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), popularFormat, top)
	},
}

func init() {
	popularCmd.Flags().StringVar(&popularFormat, "format", "json", "output format: json or yaml")
	popularCmd.Flags().IntVar(&popularLimit, "limit", 0, "number of names (default from config)")
	rootCmd.AddCommand(popularCmd)
}
