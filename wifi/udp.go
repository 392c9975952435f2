package wifi

import (
	"math"

	"github.com/sarchlab/wifictl/sim"
)

// DefaultPacketSize is the UDP payload of a packet, in bytes.
const DefaultPacketSize = 1472

// UdpServer counts the packets a device receives.
type UdpServer struct {
	received uint64
}

// NewUdpServer creates an empty UdpServer.
func NewUdpServer() *UdpServer {
	return &UdpServer{}
}

// Received returns the cumulative number of packets received.
func (s *UdpServer) Received() uint64 {
	return s.received
}

func (s *UdpServer) receive() {
	s.received++
}

type sendEvent struct {
	sim.EventBase
	seq uint64
}

// UdpClient sends one packet every interval from a source device to the server
// of a destination device, from start until stop.
type UdpClient struct {
	engine sim.Engine
	name   string
	medium *Medium

	src, dst   *Device
	packetSize int
	interval   sim.VTimeInSec
	start      sim.VTimeInSec
	stop       sim.VTimeInSec

	sent uint64
}

// Name returns the name of the client.
func (c *UdpClient) Name() string {
	return c.name
}

// Sent returns the number of packets sent so far.
func (c *UdpClient) Sent() uint64 {
	return c.sent
}

// PacketSize returns the payload of each packet.
func (c *UdpClient) PacketSize() int {
	return c.packetSize
}

// Start schedules the first packet.
func (c *UdpClient) Start() {
	if c.start >= c.stop {
		return
	}

	c.engine.Schedule(&sendEvent{
		EventBase: sim.MakeEventBase(c.start, c),
	})
}

// Handle sends one packet and schedules the next.
func (c *UdpClient) Handle(e sim.Event) error {
	evt := e.(*sendEvent)

	c.sent++
	if c.delivered() {
		c.dst.server.receive()
	}

	next := c.start + sim.VTimeInSec(float64(evt.seq+1)*float64(c.interval))
	if next >= c.stop {
		return nil
	}

	c.engine.Schedule(&sendEvent{
		EventBase: sim.MakeEventBase(next, c),
		seq:       evt.seq + 1,
	})

	return nil
}

func (c *UdpClient) delivered() bool {
	power := math.Inf(-1)
	if c.src.phy != nil {
		power = c.src.phy.TxPower()
	}

	return c.medium.Deliver(power, c.src.Position(), c.dst.Position())
}
