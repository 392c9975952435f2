package control

import (
	"errors"
	"fmt"

	"github.com/sarchlab/wifictl/protocol"
	"github.com/sarchlab/wifictl/sim"
)

// ErrNullAccessor reports that a simulation handle the loop needs, such as the
// AP radio, is unavailable. The loop logs it and skips the affected step.
var ErrNullAccessor = errors.New("control: simulation handle unavailable")

// State is the lifecycle state of a Loop.
type State int

// The states of a Loop.
const (
	StateIdle State = iota
	StateScheduled
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateScheduled:
		return "Scheduled"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// HookPosExchange marks the completion of one exchange. The hook item is an
// ExchangeRecord.
var HookPosExchange = &sim.HookPos{Name: "Exchange"}

// HookPosCycleEnd marks the end of a cycle, after the new transmit power has
// been applied. The hook item is a CycleRecord.
var HookPosCycleEnd = &sim.HookPos{Name: "CycleEnd"}

// ExchangeRecord describes one exchange of a cycle.
type ExchangeRecord struct {
	Cycle   int
	Env     protocol.EnvironmentMessage
	Action  protocol.ActionMessage
	Latency float64 // wall-clock seconds
}

// CycleRecord describes a completed cycle.
type CycleRecord struct {
	Cycle        int
	Time         sim.VTimeInSec
	ULThroughput float64
	OldTxPower   float64
	NewTxPower   float64
	Applied      bool
	Exchanges    int
}

// Status is a point-in-time view of a Loop, safe to read from any goroutine.
type Status struct {
	Name         string
	State        string
	Interval     float64
	Horizon      float64
	Cycles       int
	Exchanges    int
	LastCycleAt  float64
	LastTxPower  float64
	RadioPresent bool
}
