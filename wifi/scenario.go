package wifi

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sarchlab/wifictl/logging"
	"github.com/sarchlab/wifictl/sim"
)

// SSID is the network name the scenario advertises.
const SSID = "ns3-80211n-mimo"

// A Scenario is one AP surrounded by mobile stations. Every station receives
// a downlink flow from the AP and sends an uplink flow to it.
type Scenario struct {
	Name     string
	SSID     string
	AP       *Device
	Stations []*Device
	Medium   *Medium

	Downlinks []*UdpClient
	Uplinks   []*UdpClient

	walks []*RandomWalk2d
}

// NumStations returns the number of stations.
func (s *Scenario) NumStations() int {
	return len(s.Stations)
}

// PacketSize returns the UDP payload of the scenario's flows.
func (s *Scenario) PacketSize() int {
	if len(s.Downlinks) == 0 {
		return DefaultPacketSize
	}

	return s.Downlinks[0].packetSize
}

// Start schedules the first events of every mobility model and flow.
func (s *Scenario) Start() {
	for _, w := range s.walks {
		w.Start()
	}

	for _, c := range s.Downlinks {
		c.Start()
	}

	for _, c := range s.Uplinks {
		c.Start()
	}
}

// ScenarioBuilder builds Scenarios.
type ScenarioBuilder struct {
	engine          sim.Engine
	logger          logging.Logger
	numStations     int
	initialDistance float64
	bounds          Bounds
	speed           float64
	legLength       float64
	trafficStart    sim.VTimeInSec
	trafficStop     sim.VTimeInSec
	packetInterval  sim.VTimeInSec
	packetSize      int
	seed            uint64
	withoutAPRadio  bool
}

// MakeScenarioBuilder returns a builder with the default scenario: eight
// stations half a meter away from the AP, walking at 5 cm/s in a 100 m square,
// with 1472-byte packets every millisecond from 0.25 s to 50 s.
func MakeScenarioBuilder() ScenarioBuilder {
	return ScenarioBuilder{
		logger:          logging.Noop(),
		numStations:     8,
		initialDistance: 0.5,
		bounds:          Bounds{XMin: -50, XMax: 50, YMin: -50, YMax: 50},
		speed:           0.05,
		legLength:       1.0,
		trafficStart:    0.25,
		trafficStop:     50,
		packetInterval:  0.001,
		packetSize:      DefaultPacketSize,
		seed:            1,
	}
}

// WithEngine sets the engine the scenario runs on.
func (b ScenarioBuilder) WithEngine(engine sim.Engine) ScenarioBuilder {
	b.engine = engine
	return b
}

// WithLogger sets the logger.
func (b ScenarioBuilder) WithLogger(logger logging.Logger) ScenarioBuilder {
	b.logger = logger
	return b
}

// WithNumStations sets the number of stations.
func (b ScenarioBuilder) WithNumStations(n int) ScenarioBuilder {
	b.numStations = n
	return b
}

// WithInitialDistance sets the radius of the circle the stations start on.
func (b ScenarioBuilder) WithInitialDistance(d float64) ScenarioBuilder {
	b.initialDistance = d
	return b
}

// WithBounds sets the area the stations walk in.
func (b ScenarioBuilder) WithBounds(bounds Bounds) ScenarioBuilder {
	b.bounds = bounds
	return b
}

// WithSpeed sets the walking speed of the stations, in m/s. Zero keeps the
// stations still.
func (b ScenarioBuilder) WithSpeed(speed float64) ScenarioBuilder {
	b.speed = speed
	return b
}

// WithTrafficWindow sets when the flows start and stop sending.
func (b ScenarioBuilder) WithTrafficWindow(start, stop sim.VTimeInSec) ScenarioBuilder {
	b.trafficStart = start
	b.trafficStop = stop
	return b
}

// WithPacketInterval sets the gap between two packets of a flow.
func (b ScenarioBuilder) WithPacketInterval(interval sim.VTimeInSec) ScenarioBuilder {
	b.packetInterval = interval
	return b
}

// WithPacketSize sets the UDP payload of the flows.
func (b ScenarioBuilder) WithPacketSize(size int) ScenarioBuilder {
	b.packetSize = size
	return b
}

// WithSeed sets the seed of the mobility and fading random streams.
func (b ScenarioBuilder) WithSeed(seed uint64) ScenarioBuilder {
	b.seed = seed
	return b
}

// WithoutAPRadio builds the AP without a radio capability.
func (b ScenarioBuilder) WithoutAPRadio() ScenarioBuilder {
	b.withoutAPRadio = true
	return b
}

// Build creates the scenario.
func (b ScenarioBuilder) Build(name string) *Scenario {
	b.mustBeValid()

	s := &Scenario{
		Name:   name,
		SSID:   SSID,
		Medium: NewMedium(rand.NewPCG(b.seed, 0x66616465)),
	}

	var apPhy *Phy
	if !b.withoutAPRadio {
		apPhy = NewPhy()
	}
	s.AP = NewDevice(name+".AP", "192.168.1.1", apPhy,
		NewConstantPosition(Vector{}))

	for i := 0; i < b.numStations; i++ {
		s.Stations = append(s.Stations, b.buildStation(s, name, i))
	}

	for i, sta := range s.Stations {
		s.Downlinks = append(s.Downlinks,
			b.buildClient(s, fmt.Sprintf("%s.DL[%d]", name, i), s.AP, sta))
		s.Uplinks = append(s.Uplinks,
			b.buildClient(s, fmt.Sprintf("%s.UL[%d]", name, i), sta, s.AP))
	}

	b.logger.Info(context.Background(), "scenario built",
		logging.String("name", name),
		logging.String("ssid", s.SSID),
		logging.Int("stations", len(s.Stations)),
		logging.Bool("ap_radio", apPhy != nil),
	)

	return s
}

func (b ScenarioBuilder) buildStation(s *Scenario, name string, i int) *Device {
	angle := 2 * math.Pi * float64(i) / float64(b.numStations)
	start := Vector{
		X: b.initialDistance * math.Cos(angle),
		Y: b.initialDistance * math.Sin(angle),
	}

	staName := fmt.Sprintf("%s.STA[%d]", name, i)

	var mobility Mobility = NewConstantPosition(start)
	if b.speed > 0 {
		walk := NewRandomWalk2d(b.engine, staName+".Walk", start, b.bounds,
			b.speed, b.legLength, rand.NewPCG(b.seed, uint64(i)+1))
		s.walks = append(s.walks, walk)
		mobility = walk
	}

	return NewDevice(staName, fmt.Sprintf("192.168.1.%d", i+2), NewPhy(), mobility)
}

func (b ScenarioBuilder) buildClient(
	s *Scenario,
	name string,
	src, dst *Device,
) *UdpClient {
	return &UdpClient{
		engine:     b.engine,
		name:       name,
		medium:     s.Medium,
		src:        src,
		dst:        dst,
		packetSize: b.packetSize,
		interval:   b.packetInterval,
		start:      b.trafficStart,
		stop:       b.trafficStop,
	}
}

func (b ScenarioBuilder) mustBeValid() {
	if b.engine == nil {
		panic("wifi: scenario needs an engine")
	}

	if b.numStations <= 0 {
		panic("wifi: scenario needs at least one station")
	}

	if b.packetInterval <= 0 {
		panic("wifi: packet interval must be positive")
	}
}
