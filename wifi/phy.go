package wifi

// DefaultTxPower is the transmit power of a freshly built radio, in dBm.
const DefaultTxPower = 16.0206

// RadioControl is the capability of changing a radio's transmit power. The
// power range is given by a lower and an upper bound, in dBm.
type RadioControl interface {
	TxPowerStart() float64
	TxPowerEnd() float64
	SetTxPowerStart(dbm float64)
	SetTxPowerEnd(dbm float64)
}

// Phy is the radio of a device.
type Phy struct {
	txPowerStart float64
	txPowerEnd   float64
}

// NewPhy creates a radio transmitting at DefaultTxPower.
func NewPhy() *Phy {
	return &Phy{
		txPowerStart: DefaultTxPower,
		txPowerEnd:   DefaultTxPower,
	}
}

// TxPowerStart returns the lower bound of the transmit power.
func (p *Phy) TxPowerStart() float64 {
	return p.txPowerStart
}

// TxPowerEnd returns the upper bound of the transmit power.
func (p *Phy) TxPowerEnd() float64 {
	return p.txPowerEnd
}

// SetTxPowerStart sets the lower bound of the transmit power.
func (p *Phy) SetTxPowerStart(dbm float64) {
	p.txPowerStart = dbm
}

// SetTxPowerEnd sets the upper bound of the transmit power.
func (p *Phy) SetTxPowerEnd(dbm float64) {
	p.txPowerEnd = dbm
}

// TxPower returns the power a frame is sent with. With a range configured
// the radio uses the upper bound.
func (p *Phy) TxPower() float64 {
	if p.txPowerEnd > p.txPowerStart {
		return p.txPowerEnd
	}

	return p.txPowerStart
}

// Device is a node of the network: a position, an address, an optional radio
// and an optional UDP server.
type Device struct {
	name     string
	address  string
	phy      *Phy
	mobility Mobility
	server   *UdpServer
}

// NewDevice creates a device. phy may be nil for a device without a usable
// radio.
func NewDevice(name, address string, phy *Phy, mobility Mobility) *Device {
	return &Device{
		name:     name,
		address:  address,
		phy:      phy,
		mobility: mobility,
		server:   NewUdpServer(),
	}
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Address returns the IPv4 address of the device.
func (d *Device) Address() string {
	return d.address
}

// Position returns the current position of the device.
func (d *Device) Position() Vector {
	return d.mobility.Position()
}

// Server returns the UDP server of the device.
func (d *Device) Server() *UdpServer {
	return d.server
}

// Radio returns the transmit power capability of the device, if it has a
// radio.
func (d *Device) Radio() (RadioControl, bool) {
	if d.phy == nil {
		return nil, false
	}

	return d.phy, true
}
