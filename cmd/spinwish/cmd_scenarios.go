package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"spinwish/internal/config"
	"spinwish/internal/mockgateway"
)

func init() {
	rootCmd.AddCommand(scenariosCmd)
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the mock gateway's canned test phones",
	RunE: func(cmd *cobra.Command, args []string) error {
		harness := mockgateway.New(config.MockConfig{}, nil)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPHONE\tOUTCOME\tDESCRIPTION")
		for _, s := range harness.ListScenarios() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Phone, s.ExpectedOutcome, s.Description)
		}
		return w.Flush()
	},
}
