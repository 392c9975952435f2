// Package control implements the periodic measure-and-adapt loop that drives
// the AP transmit power from the decisions of the control process.
package control

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sarchlab/wifictl/logging"
	"github.com/sarchlab/wifictl/protocol"
	"github.com/sarchlab/wifictl/sim"
	"github.com/sarchlab/wifictl/telemetry"
	"github.com/sarchlab/wifictl/wifi"
)

// DefaultTxPower is the power reported as current when the AP has no radio.
const DefaultTxPower = 20.0

// Context is the simulation state a Loop works on. It is owned by the loop
// and only touched from engine events.
type Context struct {
	Engine    sim.Engine
	Collector *telemetry.Collector

	// Radio is the AP transmit power capability. It is nil when the AP has
	// no usable radio.
	Radio wifi.RadioControl
}

// NumStations returns the number of stations reported each cycle.
func (c Context) NumStations() int {
	return c.Collector.NumStations()
}

// A ReportEvent triggers one cycle of a Loop.
type ReportEvent struct {
	sim.EventBase
	Cycle int
}

// Loop runs one cycle every interval of simulated time. A cycle reports the
// telemetry of every station to the control process, one blocking exchange
// per station, and applies the power returned by the last exchange to the AP.
type Loop struct {
	sim.HookableBase

	name      string
	simCtx    Context
	exchanger protocol.Exchanger
	interval  sim.VTimeInSec
	horizon   sim.VTimeInSec
	timeout   time.Duration
	logger    logging.Logger
	ctx       context.Context

	mu          sync.Mutex
	state       State
	cycles      int
	exchanges   int
	lastCycleAt sim.VTimeInSec
	lastPower   float64
}

// Name returns the name of the loop.
func (l *Loop) Name() string {
	return l.name
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// Status returns a snapshot of the loop.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Status{
		Name:         l.name,
		State:        l.state.String(),
		Interval:     float64(l.interval),
		Horizon:      float64(l.horizon),
		Cycles:       l.cycles,
		Exchanges:    l.exchanges,
		LastCycleAt:  float64(l.lastCycleAt),
		LastTxPower:  l.lastPower,
		RadioPresent: l.simCtx.Radio != nil,
	}
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Start schedules the first cycle one interval after the current time.
func (l *Loop) Start() {
	if l.State() != StateIdle {
		log.Panicf("loop %s started twice", l.name)
	}

	l.schedule(l.simCtx.Engine.CurrentTime()+l.interval, 1)
}

func (l *Loop) schedule(t sim.VTimeInSec, cycle int) {
	evt := &ReportEvent{
		EventBase: sim.MakeEventBase(t, l),
		Cycle:     cycle,
	}
	l.simCtx.Engine.Schedule(evt)
	l.setState(StateScheduled)
}

// Handle runs one cycle.
func (l *Loop) Handle(e sim.Event) error {
	evt, ok := e.(*ReportEvent)
	if !ok {
		log.Panicf("loop %s cannot handle %T", l.name, e)
	}

	if l.State() != StateScheduled {
		log.Panicf("loop %s fired while %s", l.name, l.State())
	}

	l.setState(StateRunning)

	if err := l.runCycle(evt); err != nil {
		l.setState(StateStopped)
		return err
	}

	now := evt.Time()
	if now+l.interval <= l.horizon {
		l.schedule(now+l.interval, evt.Cycle+1)
	} else {
		l.setState(StateStopped)
		l.logger.Info(context.Background(), "control loop reached horizon",
			logging.String("component", l.name),
			logging.Float("time", float64(now)),
			logging.Int("cycles", evt.Cycle),
		)
	}

	return nil
}

func (l *Loop) runCycle(evt *ReportEvent) error {
	ctx := l.ctx
	now := evt.Time()
	collector := l.simCtx.Collector

	ul := collector.BeginCycle()
	oldPower := l.currentPower(ctx)
	candidate := oldPower

	apPos := collector.APPosition()
	l.logger.Info(ctx, "report",
		logging.String("component", l.name),
		logging.Int("cycle", evt.Cycle),
		logging.Float("time", float64(now)),
		logging.Float("ap_x", apPos.X),
		logging.Float("ap_y", apPos.Y),
		logging.Float("ul_mbps", ul),
	)

	for i := 0; i < collector.NumStations(); i++ {
		sample := collector.Station(i)
		env := protocol.EnvironmentMessage{
			PosX:           sample.Position.X,
			PosY:           sample.Position.Y,
			Distance:       sample.Distance,
			DLThroughput:   sample.DLThroughput,
			ULThroughput:   ul,
			CurrentTxPower: int32(oldPower),
			StationID:      int32(i),
			SimTime:        float64(now),
		}

		start := time.Now()
		act, err := l.exchange(ctx, env)
		if err != nil {
			return fmt.Errorf("%s: cycle %d, station %d: %w",
				l.name, evt.Cycle, i, err)
		}

		candidate = act.NewTxPower
		l.countExchange()

		l.InvokeHook(sim.HookCtx{
			Domain: l,
			Pos:    HookPosExchange,
			Item: ExchangeRecord{
				Cycle:   evt.Cycle,
				Env:     env,
				Action:  act,
				Latency: time.Since(start).Seconds(),
			},
		})

		l.logger.Debug(ctx, "station",
			logging.String("component", l.name),
			logging.Int("station", i),
			logging.Float("x", sample.Position.X),
			logging.Float("y", sample.Position.Y),
			logging.Float("distance", sample.Distance),
			logging.Float("dl_mbps", sample.DLThroughput),
			logging.Float("ul_mbps", ul),
			logging.Float("new_tx_power", act.NewTxPower),
		)
	}

	applied := l.applyPower(ctx, candidate)
	l.finishCycle(now, candidate, applied)

	l.InvokeHook(sim.HookCtx{
		Domain: l,
		Pos:    HookPosCycleEnd,
		Item: CycleRecord{
			Cycle:        evt.Cycle,
			Time:         now,
			ULThroughput: ul,
			OldTxPower:   oldPower,
			NewTxPower:   candidate,
			Applied:      applied,
			Exchanges:    collector.NumStations(),
		},
	})

	return nil
}

func (l *Loop) exchange(
	ctx context.Context,
	env protocol.EnvironmentMessage,
) (protocol.ActionMessage, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	return l.exchanger.Exchange(ctx, env)
}

func (l *Loop) currentPower(ctx context.Context) float64 {
	if l.simCtx.Radio == nil {
		l.logger.Warn(ctx, "AP radio missing at report time, assuming default power",
			logging.String("component", l.name),
			logging.String("handle", "ap_radio"),
			logging.Float("tx_power", DefaultTxPower),
		)

		return DefaultTxPower
	}

	return l.simCtx.Radio.TxPowerStart()
}

func (l *Loop) applyPower(ctx context.Context, power float64) bool {
	if l.simCtx.Radio == nil {
		l.logger.Error(ctx, "cannot set AP transmit power",
			logging.String("component", l.name),
			logging.String("handle", "ap_radio"),
			logging.Err(ErrNullAccessor),
		)

		return false
	}

	l.simCtx.Radio.SetTxPowerStart(power)
	l.simCtx.Radio.SetTxPowerEnd(power)

	return true
}

func (l *Loop) countExchange() {
	l.mu.Lock()
	l.exchanges++
	l.mu.Unlock()
}

func (l *Loop) finishCycle(now sim.VTimeInSec, power float64, applied bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cycles++
	l.lastCycleAt = now
	if applied {
		l.lastPower = power
	}
}
