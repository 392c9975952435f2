package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/wifictl/agent"
	"github.com/sarchlab/wifictl/datarecording"
	"github.com/sarchlab/wifictl/logging"
	"github.com/sarchlab/wifictl/protocol"
)

// agentFlags configure the control process.
type agentFlags struct {
	policy     string
	fixedPower float64
	record     bool
	backend    string
	db         string
	dsn        string
	batchSize  int
}

func addAgentFlags(cmd *cobra.Command, a *agentFlags) {
	f := cmd.Flags()
	f.StringVar(&a.policy, "policy", "mean-downlink",
		"Decision policy: mean-downlink or fixed")
	f.Float64Var(&a.fixedPower, "fixed-power", 20,
		"Power answered by the fixed policy, in dBm")
	f.BoolVar(&a.record, "record", true, "Record every exchange")
	f.StringVar(&a.backend, "backend", "sqlite",
		"Recording backend: sqlite or clickhouse")
	f.StringVar(&a.db, "db", "",
		"SQLite file to record into, without the .sqlite3 suffix")
	f.StringVar(&a.dsn, "dsn", "", "ClickHouse connection string")
	f.IntVar(&a.batchSize, "batch-size", 0,
		"Entries buffered before the recorder writes them")
}

func (a agentFlags) buildPolicy() (agent.Policy, error) {
	switch strings.ToLower(a.policy) {
	case "mean-downlink", "mean":
		return agent.NewMeanDownlinkPolicy(), nil
	case "fixed":
		return agent.FixedPolicy{Power: a.fixedPower}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", a.policy)
	}
}

// serve answers the simulation on endpoint until it finishes.
func serve(ctx context.Context, endpoint agent.Endpoint, a agentFlags) error {
	policy, err := a.buildPolicy()
	if err != nil {
		return err
	}

	b := agent.MakeBuilder().
		WithEndpoint(endpoint).
		WithPolicy(policy).
		WithLogger(logger)

	if a.record {
		db, err := datarecording.NewWithConfig(datarecording.Config{
			Backend:   a.backend,
			Path:      a.db,
			DSN:       a.dsn,
			BatchSize: a.batchSize,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		execRecorder := datarecording.NewExecRecorder(db)
		execRecorder.Start()
		execRecorder.Set("Policy", a.policy)
		defer execRecorder.End()

		b = b.WithRecorder(agent.NewRecorder(db))
	}

	n, err := b.Build("Agent").Run(ctx)
	if err != nil {
		return err
	}

	logger.Info(ctx, "control process done", logging.Int("exchanges", n))

	return nil
}

var (
	controlChannel channelFlags
	controlAgent   agentFlags
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Run the control process.",
	Long: "`control` creates the shared region, answers every telemetry " +
		"message of the simulation with a transmit power and records the " +
		"exchanges.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		endpoint, err := protocol.OpenControlSide(ctx, controlChannel.config())
		if err != nil {
			return err
		}
		defer endpoint.Close()

		return serve(ctx, endpoint, controlAgent)
	},
}

func init() {
	addChannelFlags(controlCmd, &controlChannel, true)
	addAgentFlags(controlCmd, &controlAgent)
	rootCmd.AddCommand(controlCmd)
}
