package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/wifictl/control"
	"github.com/sarchlab/wifictl/logging"
	"github.com/sarchlab/wifictl/monitoring"
	"github.com/sarchlab/wifictl/protocol"
	"github.com/sarchlab/wifictl/sim"
	"github.com/sarchlab/wifictl/telemetry"
	"github.com/sarchlab/wifictl/wifi"
)

// simFlags configure the simulated scenario and its control loop.
type simFlags struct {
	stations        int
	distance        float64
	area            float64
	speed           float64
	interval        float64
	horizon         float64
	packetInterval  float64
	packetSize      int
	seed            uint64
	exchangeTimeout time.Duration
	traceEvents     bool

	monitor     bool
	monitorPort int
	openBrowser bool
}

func addSimFlags(cmd *cobra.Command, s *simFlags) {
	f := cmd.Flags()
	f.IntVar(&s.stations, "stations", 8, "Number of stations")
	f.Float64Var(&s.distance, "distance", 0.5,
		"Initial distance of the stations from the AP, in meters")
	f.Float64Var(&s.area, "area", 100, "Side of the square the stations walk in")
	f.Float64Var(&s.speed, "speed", 0.05,
		"Station speed in m/s; 0 keeps the stations still")
	f.Float64Var(&s.interval, "interval", 0.25,
		"Simulated seconds between two control cycles")
	f.Float64Var(&s.horizon, "horizon", 50, "Simulated seconds to run")
	f.Float64Var(&s.packetInterval, "packet-interval", 0.001,
		"Simulated seconds between two UDP packets of a flow")
	f.IntVar(&s.packetSize, "packet-size", wifi.DefaultPacketSize,
		"UDP payload in bytes")
	f.Uint64Var(&s.seed, "seed", 1, "Random seed of mobility and fading")
	f.DurationVar(&s.exchangeTimeout, "exchange-timeout", 0,
		"Give up an exchange after this wall-clock time; 0 waits forever")
	f.BoolVar(&s.traceEvents, "trace-events", false,
		"Log every simulation event at debug level")
	f.BoolVar(&s.monitor, "monitor", false, "Serve the HTTP monitor")
	f.IntVar(&s.monitorPort, "monitor-port", 0,
		"Port of the HTTP monitor; 0 picks a free port")
	f.BoolVar(&s.openBrowser, "open-browser", false,
		"Open the monitor in a browser")
}

// args renders the flags for a child simulation process.
func (s simFlags) args() []string {
	return []string{
		"--stations=" + strconv.Itoa(s.stations),
		"--distance=" + formatFloat(s.distance),
		"--area=" + formatFloat(s.area),
		"--speed=" + formatFloat(s.speed),
		"--interval=" + formatFloat(s.interval),
		"--horizon=" + formatFloat(s.horizon),
		"--packet-interval=" + formatFloat(s.packetInterval),
		"--packet-size=" + strconv.Itoa(s.packetSize),
		"--seed=" + formatUint(s.seed),
		"--exchange-timeout=" + s.exchangeTimeout.String(),
		"--trace-events=" + formatBool(s.traceEvents),
		"--monitor=" + formatBool(s.monitor),
		"--monitor-port=" + strconv.Itoa(s.monitorPort),
		"--open-browser=" + formatBool(s.openBrowser),
	}
}

func (s simFlags) validate() error {
	if s.stations <= 0 {
		return fmt.Errorf("--stations must be positive, got %d", s.stations)
	}

	if s.interval <= 0 || s.horizon <= 0 {
		return fmt.Errorf("--interval and --horizon must be positive")
	}

	if s.packetInterval <= 0 {
		return fmt.Errorf("--packet-interval must be positive")
	}

	return nil
}

// finisher raises the finished flag of the channel once the engine is done.
type finisher struct {
	ctx    context.Context
	finish func() error
	logger logging.Logger
}

func (f finisher) Handle(now sim.VTimeInSec) {
	if err := f.finish(); err != nil {
		f.logger.Error(f.ctx, "cannot raise the finished flag",
			logging.Float("time", float64(now)), logging.Err(err))
		return
	}

	f.logger.Info(f.ctx, "simulation finished",
		logging.Float("time", float64(now)))
}

// simulate builds the scenario and the control loop, runs the engine up to
// the horizon and then calls finish.
func simulate(
	ctx context.Context,
	s simFlags,
	x protocol.Exchanger,
	finish func() error,
) error {
	if err := s.validate(); err != nil {
		return err
	}

	engine := sim.NewSerialEngine()
	if s.traceEvents {
		engine.AcceptHook(sim.NewEventLogger(logger))
	}

	half := s.area / 2
	horizon := sim.VTimeInSec(s.horizon)
	scenario := wifi.MakeScenarioBuilder().
		WithEngine(engine).
		WithLogger(logger).
		WithNumStations(s.stations).
		WithInitialDistance(s.distance).
		WithBounds(wifi.Bounds{XMin: -half, XMax: half, YMin: -half, YMax: half}).
		WithSpeed(s.speed).
		WithTrafficWindow(sim.VTimeInSec(s.interval), horizon).
		WithPacketInterval(sim.VTimeInSec(s.packetInterval)).
		WithPacketSize(s.packetSize).
		WithSeed(s.seed).
		Build("Scenario")

	loop := control.MakeBuilder().
		WithEngine(engine).
		WithExchanger(x).
		WithCollector(telemetry.ForScenario(scenario)).
		WithAPDevice(scenario.AP).
		WithInterval(sim.VTimeInSec(s.interval)).
		WithHorizon(horizon).
		WithExchangeTimeout(s.exchangeTimeout).
		WithContext(ctx).
		WithLogger(logger).
		Build("ControlLoop")

	if s.monitor {
		m, err := startMonitor(s, engine, loop)
		if err != nil {
			return err
		}
		defer m.Shutdown(context.Background())
	}

	engine.RegisterSimulationEndHandler(finisher{
		ctx: ctx, finish: finish, logger: logger,
	})

	scenario.Start()
	loop.Start()
	engine.StopAt(horizon)

	err := engine.Run()
	engine.Finished()

	if err != nil {
		return err
	}

	status := loop.Status()
	logger.Info(ctx, "control loop done",
		logging.Int("cycles", status.Cycles),
		logging.Int("exchanges", status.Exchanges),
		logging.Float("last_cycle_at", status.LastCycleAt),
		logging.Float("last_tx_power", status.LastTxPower),
	)

	return nil
}

func startMonitor(
	s simFlags,
	engine sim.Engine,
	loop *control.Loop,
) (*monitoring.Monitor, error) {
	metrics, err := monitoring.NewMetrics(nil)
	if err != nil {
		return nil, err
	}
	loop.AcceptHook(metrics.Hook())

	m := monitoring.NewMonitor().
		WithPortNumber(s.monitorPort).
		WithBrowser(s.openBrowser).
		WithLogger(logger)
	m.RegisterEngine(engine)
	m.RegisterLoop(loop)
	m.RegisterMetrics(metrics)

	bar := m.CreateProgressBar("Cycles", s.cycles())
	loop.AcceptHook(monitoring.CycleProgressHook(bar))

	if _, err := m.StartServer(); err != nil {
		return nil, err
	}

	return m, nil
}

// cycles counts the control cycles that fire before the engine stops at the
// horizon.
func (s simFlags) cycles() uint64 {
	var n uint64
	for t := sim.VTimeInSec(s.interval); t < sim.VTimeInSec(s.horizon); t += sim.VTimeInSec(s.interval) {
		n++
	}

	return n
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatBool(v bool) string {
	return strconv.FormatBool(v)
}
