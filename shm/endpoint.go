package shm

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// Role selects which direction of the region an endpoint writes.
type Role int

const (
	// RoleSimulation writes the sim-to-control slot and reads the
	// control-to-sim slot. Only this role may raise the finished flag.
	RoleSimulation Role = iota

	// RoleController writes the control-to-sim slot and reads the
	// sim-to-control slot.
	RoleController
)

func (r Role) String() string {
	switch r {
	case RoleSimulation:
		return "simulation"
	case RoleController:
		return "controller"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// LayoutFor returns the layout of a region over which the simulation sends
// messages of type Env and the controller answers with messages of type Act.
// Both types must have a fixed binary size.
func LayoutFor[Env, Act any](cfg Config) Layout {
	var env Env
	var act Act

	return Layout{
		SimToControlSize: mustSize(&env),
		ControlToSimSize: mustSize(&act),
		Addressing:       cfg.addressing(),
	}
}

func mustSize(v any) int {
	n := binary.Size(v)
	if n <= 0 {
		panic(fmt.Sprintf("shm: %T has no fixed binary size", v))
	}

	return n
}

type direction struct {
	full  *uint32
	token *uint32
	slot  []byte
}

func newDirection(mem []byte, fullOff, tokenOff, slotOff, slotSize int) direction {
	return direction{
		full:  word(mem, fullOff),
		token: word(mem, tokenOff),
		slot:  mem[slotOff : slotOff+slotSize],
	}
}

// An Endpoint is one side of a two-direction, single-slot handshake channel.
// S is the type it sends and R the type it receives.
//
// Each direction carries at most one message at a time. BeginSend blocks
// until the previous outgoing message has been consumed; BeginReceive blocks
// until the peer has published a message. Every Begin must be followed by
// exactly one matching End.
type Endpoint[S, R any] struct {
	region       Region
	role         Role
	handleFinish bool

	finished *uint32
	out      direction
	in       direction

	sendMsg S
	recvMsg R

	sending   atomic.Bool
	receiving atomic.Bool
}

// NewEndpoint builds an endpoint of the given role on top of region. The
// region header must match the sizes of S and R.
func NewEndpoint[S, R any](
	region Region,
	role Role,
	cfg Config,
) (*Endpoint[S, R], error) {
	var l Layout
	switch role {
	case RoleSimulation:
		l = LayoutFor[S, R](cfg)
	case RoleController:
		l = LayoutFor[R, S](cfg)
	default:
		return nil, fmt.Errorf("shm: unknown role %v", role)
	}

	mem := region.Bytes()
	if err := checkHeader(mem, l); err != nil {
		return nil, err
	}

	s2cOff, s2cSize := l.simToControlSlot()
	c2sOff, c2sSize := l.controlToSimSlot()
	s2c := newDirection(mem, offSimToControlFull, offSimToControlTok, s2cOff, s2cSize)
	c2s := newDirection(mem, offControlToSimFull, offControlToSimTok, c2sOff, c2sSize)

	e := &Endpoint[S, R]{
		region:       region,
		role:         role,
		handleFinish: cfg.HandleFinish,
		finished:     word(mem, offFinished),
	}

	if role == RoleSimulation {
		e.out, e.in = s2c, c2s
	} else {
		e.out, e.in = c2s, s2c
	}

	return e, nil
}

// Role returns the role of the endpoint.
func (e *Endpoint[S, R]) Role() Role {
	return e.role
}

// BeginSend waits until the outgoing slot is empty and returns a writable
// handle to it. The handle holds the slot's previous content. The caller must
// call EndSend exactly once and must not touch the handle afterward.
func (e *Endpoint[S, R]) BeginSend(ctx context.Context) (*S, error) {
	if !e.sending.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: BeginSend while a send is open",
			ErrProtocolViolation)
	}

	err := wait(ctx, func() (bool, error) {
		return atomic.LoadUint32(e.out.full) == 0 &&
			atomic.CompareAndSwapUint32(e.out.token, 0, 1), nil
	})
	if err != nil {
		e.sending.Store(false)
		return nil, err
	}

	if _, err := binary.Decode(e.out.slot, binary.LittleEndian, &e.sendMsg); err != nil {
		atomic.StoreUint32(e.out.token, 0)
		e.sending.Store(false)
		return nil, fmt.Errorf("shm: reading outgoing slot: %w", err)
	}

	return &e.sendMsg, nil
}

// EndSend publishes the message written through the BeginSend handle and
// wakes the peer's BeginReceive.
func (e *Endpoint[S, R]) EndSend() error {
	if !e.sending.Load() {
		return fmt.Errorf("%w: EndSend without BeginSend", ErrProtocolViolation)
	}

	if _, err := binary.Encode(e.out.slot, binary.LittleEndian, &e.sendMsg); err != nil {
		atomic.StoreUint32(e.out.token, 0)
		e.sending.Store(false)
		return fmt.Errorf("shm: writing outgoing slot: %w", err)
	}

	atomic.StoreUint32(e.out.full, 1)
	atomic.StoreUint32(e.out.token, 0)
	e.sending.Store(false)

	return nil
}

// BeginReceive waits until the peer has published a message and returns a
// read-only handle to it. The caller must call EndReceive exactly once.
//
// On the controller side with HandleFinish set, BeginReceive returns
// ErrFinished once the simulation has finished and nothing is pending.
func (e *Endpoint[S, R]) BeginReceive(ctx context.Context) (*R, error) {
	if !e.receiving.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: BeginReceive while a receive is open",
			ErrProtocolViolation)
	}

	watchFinish := e.handleFinish && e.role == RoleController
	err := wait(ctx, func() (bool, error) {
		if e.tryTakeIncoming() {
			return true, nil
		}

		if watchFinish && e.Finished() {
			if e.tryTakeIncoming() {
				return true, nil
			}

			return false, ErrFinished
		}

		return false, nil
	})
	if err != nil {
		e.receiving.Store(false)
		return nil, err
	}

	if _, err := binary.Decode(e.in.slot, binary.LittleEndian, &e.recvMsg); err != nil {
		atomic.StoreUint32(e.in.token, 0)
		e.receiving.Store(false)
		return nil, fmt.Errorf("shm: reading incoming slot: %w", err)
	}

	return &e.recvMsg, nil
}

func (e *Endpoint[S, R]) tryTakeIncoming() bool {
	return atomic.LoadUint32(e.in.full) == 1 &&
		atomic.CompareAndSwapUint32(e.in.token, 0, 1)
}

// EndReceive marks the incoming slot empty and wakes the peer's BeginSend.
func (e *Endpoint[S, R]) EndReceive() error {
	if !e.receiving.Load() {
		return fmt.Errorf("%w: EndReceive without BeginReceive",
			ErrProtocolViolation)
	}

	atomic.StoreUint32(e.in.full, 0)
	atomic.StoreUint32(e.in.token, 0)
	e.receiving.Store(false)

	return nil
}

// SetFinished raises the finished flag. Only the simulation side may call it.
func (e *Endpoint[S, R]) SetFinished() error {
	if e.role != RoleSimulation {
		return fmt.Errorf("%w: only the simulation side can finish",
			ErrProtocolViolation)
	}

	atomic.StoreUint32(e.finished, 1)

	return nil
}

// Finished tells whether the simulation side has raised the finished flag.
func (e *Endpoint[S, R]) Finished() bool {
	return atomic.LoadUint32(e.finished) == 1
}

// Close releases the underlying region.
func (e *Endpoint[S, R]) Close() error {
	return e.region.Close()
}
