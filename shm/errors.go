package shm

import "errors"

var (
	// ErrProtocolViolation is returned when Begin/End calls are mismatched or
	// out of order. It always indicates a programming error.
	ErrProtocolViolation = errors.New("shm: protocol violation")

	// ErrPeerStall is returned when a blocking wait is abandoned because its
	// context ended before the peer made progress.
	ErrPeerStall = errors.New("shm: peer stalled")

	// ErrFinished is returned to the controller side when the simulation has
	// raised the finished flag and no message is pending.
	ErrFinished = errors.New("shm: simulation finished")

	// ErrLayoutMismatch is returned when the two sides disagree on the region
	// layout or addressing.
	ErrLayoutMismatch = errors.New("shm: layout mismatch")

	// ErrVectorModeUnsupported is returned for configurations that ask for
	// batched (vector) exchanges.
	ErrVectorModeUnsupported = errors.New("shm: vector mode is not supported")
)
