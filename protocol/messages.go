// Package protocol defines the messages exchanged between the simulation and
// the control process and the synchronous exchange built on the shm channel.
package protocol

import "encoding/binary"

// EnvironmentMessage carries the telemetry of one station to the control
// process. The field order and widths are the wire layout shared by both
// processes and must not change.
type EnvironmentMessage struct {
	PosX           float64
	PosY           float64
	Distance       float64
	DLThroughput   float64
	ULThroughput   float64
	CurrentTxPower int32
	StationID      int32
	SimTime        float64
}

// ActionMessage carries the decision of the control process back to the
// simulation.
type ActionMessage struct {
	NewTxPower float64
}

// Wire sizes of the messages, in bytes.
const (
	EnvironmentMessageSize = 56
	ActionMessageSize      = 8
)

func init() {
	if binary.Size(EnvironmentMessage{}) != EnvironmentMessageSize ||
		binary.Size(ActionMessage{}) != ActionMessageSize {
		panic("protocol: message layout changed")
	}
}
