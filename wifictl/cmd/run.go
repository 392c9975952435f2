package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sarchlab/wifictl/protocol"
)

var (
	runChannel channelFlags
	runSim     simFlags
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation side.",
	Long: "`run` attaches to the shared region created by the control process, " +
		"simulates the network up to the horizon and raises the finished flag.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		endpoint, err := protocol.OpenSimulationSide(ctx, runChannel.config())
		if err != nil {
			return err
		}

		x := protocol.NewSyncExchanger(endpoint)
		defer x.Close()

		return simulate(ctx, runSim, x, x.Finish)
	},
}

func init() {
	addChannelFlags(runCmd, &runChannel, false)
	addSimFlags(runCmd, &runSim)
	rootCmd.AddCommand(runCmd)
}
