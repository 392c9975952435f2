package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/sarchlab/wifictl/logging"
	"github.com/sarchlab/wifictl/protocol"
	"github.com/sarchlab/wifictl/shm"
)

var (
	experimentChannel   channelFlags
	experimentSim       simFlags
	experimentAgent     agentFlags
	experimentInProcess bool
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Run the control process and the simulation together.",
	Long: "`experiment` creates the shared region, starts `wifictl run` as a " +
		"child process and serves it as the control process. With " +
		"--in-process both sides run in this process.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if experimentInProcess {
			return experimentInMemory(ctx, experimentChannel.config(),
				experimentSim, experimentAgent)
		}

		return experimentWithChild(ctx, cmd)
	},
}

func init() {
	addChannelFlags(experimentCmd, &experimentChannel, true)
	addSimFlags(experimentCmd, &experimentSim)
	addAgentFlags(experimentCmd, &experimentAgent)
	experimentCmd.Flags().BoolVar(&experimentInProcess, "in-process", false,
		"Run the simulation in this process instead of a child process")
	rootCmd.AddCommand(experimentCmd)
}

// experimentInMemory runs both sides on two goroutines over an in-process
// region.
func experimentInMemory(
	ctx context.Context,
	cfg shm.Config,
	s simFlags,
	a agentFlags,
) error {
	simSide, ctrlSide := protocol.NewInMemoryPair(cfg)
	x := protocol.NewSyncExchanger(simSide)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	simErr := make(chan error, 1)
	go func() {
		err := simulate(ctx, s, x, x.Finish)

		// Release the control side even when the simulation never started.
		_ = x.Finish()

		simErr <- err
	}()

	serveErr := serve(ctx, ctrlSide, a)
	if serveErr != nil {
		cancel()
	}

	return errors.Join(<-simErr, serveErr)
}

func experimentWithChild(ctx context.Context, cmd *cobra.Command) error {
	channel := experimentChannel
	channel.creator = true

	endpoint, err := protocol.OpenControlSide(ctx, channel.config())
	if err != nil {
		return err
	}
	defer endpoint.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating wifictl: %w", err)
	}

	args := append([]string{"run"}, channel.attachArgs()...)
	args = append(args, experimentSim.args()...)
	args = append(args, forwardedRootArgs(cmd)...)

	child := exec.CommandContext(ctx, exe, args...)
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting simulation: %w", err)
	}

	logger.Info(ctx, "simulation started",
		logging.Int("pid", child.Process.Pid),
		logging.String("region", channel.config().Path()))

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	waitErr := make(chan error, 1)
	go func() {
		err := child.Wait()
		cancel()
		waitErr <- err
	}()

	serveErr := serve(serveCtx, endpoint, experimentAgent)

	if err := <-waitErr; err != nil {
		return errors.Join(fmt.Errorf("simulation: %w", err), serveErr)
	}

	return serveErr
}

func forwardedRootArgs(cmd *cobra.Command) []string {
	var args []string

	for _, name := range []string{"env-file", "log-level", "log-format"} {
		value, err := cmd.Flags().GetString(name)
		if err == nil {
			args = append(args, "--"+name+"="+value)
		}
	}

	return args
}
