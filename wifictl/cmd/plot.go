package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/wifictl/agent"
	"github.com/sarchlab/wifictl/plotting"
)

var (
	plotDB  string
	plotOut string
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render the charts of a recorded run.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		entries, err := agent.LoadExchanges(cmd.Context(), plotDB)
		if err != nil {
			return err
		}

		written, err := plotting.Render(entries, plotOut)
		if err != nil {
			return err
		}

		for _, path := range written {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}

		return nil
	},
}

func init() {
	plotCmd.Flags().StringVar(&plotDB, "db", "", "SQLite file of the run")
	plotCmd.Flags().StringVar(&plotOut, "out", "plots",
		"Directory to write the charts into")
	_ = plotCmd.MarkFlagRequired("db")
	rootCmd.AddCommand(plotCmd)
}
