package control

import (
	"context"
	"log"
	"time"

	"github.com/sarchlab/wifictl/logging"
	"github.com/sarchlab/wifictl/protocol"
	"github.com/sarchlab/wifictl/sim"
	"github.com/sarchlab/wifictl/telemetry"
	"github.com/sarchlab/wifictl/wifi"
)

// Builder builds Loops.
type Builder struct {
	engine    sim.Engine
	exchanger protocol.Exchanger
	collector *telemetry.Collector
	radio     wifi.RadioControl
	interval  sim.VTimeInSec
	horizon   sim.VTimeInSec
	timeout   time.Duration
	logger    logging.Logger
	ctx       context.Context
}

// MakeBuilder returns a builder with an interval of 0.25 s and a horizon of
// 50 s.
func MakeBuilder() Builder {
	return Builder{
		interval: 0.25,
		horizon:  50,
		logger:   logging.Noop(),
		ctx:      context.Background(),
	}
}

// WithEngine sets the engine the loop schedules its cycles on.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithExchanger sets the channel to the control process.
func (b Builder) WithExchanger(x protocol.Exchanger) Builder {
	b.exchanger = x
	return b
}

// WithCollector sets the telemetry source.
func (b Builder) WithCollector(c *telemetry.Collector) Builder {
	b.collector = c
	return b
}

// WithRadio sets the AP transmit power capability. A nil radio makes every
// cycle skip the power update.
func (b Builder) WithRadio(r wifi.RadioControl) Builder {
	b.radio = r
	return b
}

// WithAPDevice resolves the radio capability of the AP device once.
func (b Builder) WithAPDevice(d *wifi.Device) Builder {
	b.radio = nil

	if d == nil {
		return b
	}

	if r, ok := d.Radio(); ok {
		b.radio = r
	}

	return b
}

// WithInterval sets the simulated time between two cycles.
func (b Builder) WithInterval(interval sim.VTimeInSec) Builder {
	b.interval = interval
	return b
}

// WithHorizon sets the simulated time after which no cycle is scheduled.
func (b Builder) WithHorizon(horizon sim.VTimeInSec) Builder {
	b.horizon = horizon
	return b
}

// WithExchangeTimeout bounds each exchange in wall-clock time. Zero waits
// forever.
func (b Builder) WithExchangeTimeout(d time.Duration) Builder {
	b.timeout = d
	return b
}

// WithContext sets the context every exchange runs under. Cancelling it
// abandons a pending exchange.
func (b Builder) WithContext(ctx context.Context) Builder {
	b.ctx = ctx
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger logging.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a Loop in the Idle state.
func (b Builder) Build(name string) *Loop {
	b.mustBeValid()

	l := &Loop{
		name: name,
		simCtx: Context{
			Engine:    b.engine,
			Collector: b.collector,
			Radio:     b.radio,
		},
		exchanger: b.exchanger,
		interval:  b.interval,
		horizon:   b.horizon,
		timeout:   b.timeout,
		logger:    b.logger,
		ctx:       b.ctx,
		state:     StateIdle,
		lastPower: DefaultTxPower,
	}

	if b.radio != nil {
		l.lastPower = b.radio.TxPowerStart()
	} else {
		b.logger.Error(context.Background(), "AP radio unavailable",
			logging.String("component", name),
			logging.String("handle", "ap_radio"),
			logging.Err(ErrNullAccessor),
		)
	}

	return l
}

func (b Builder) mustBeValid() {
	if b.engine == nil {
		log.Panic("control loop requires an engine")
	}

	if b.exchanger == nil {
		log.Panic("control loop requires an exchanger")
	}

	if b.collector == nil {
		log.Panic("control loop requires a telemetry collector")
	}

	if b.interval <= 0 {
		log.Panicf("control loop interval must be positive, got %v", b.interval)
	}
}
