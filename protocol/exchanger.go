package protocol

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/wifictl/shm"
)

// An Exchanger performs one synchronous request/response round trip with the
// control process.
//
// Exchange blocks on wall-clock time. It returns only after the peer has
// consumed env and published its answer, or after ctx ends. The simulated
// clock does not move while Exchange blocks.
type Exchanger interface {
	Exchange(ctx context.Context, env EnvironmentMessage) (ActionMessage, error)
}

// SimulationEndpoint is the channel endpoint owned by the simulation process.
type SimulationEndpoint = shm.Endpoint[EnvironmentMessage, ActionMessage]

// ControlEndpoint is the channel endpoint owned by the control process.
type ControlEndpoint = shm.Endpoint[ActionMessage, EnvironmentMessage]

// SyncExchanger runs exchanges over a simulation-side channel endpoint.
type SyncExchanger struct {
	endpoint *SimulationEndpoint
}

// NewSyncExchanger wraps the given simulation-side endpoint.
func NewSyncExchanger(endpoint *SimulationEndpoint) *SyncExchanger {
	return &SyncExchanger{endpoint: endpoint}
}

// Exchange sends env and waits for the matching ActionMessage.
func (x *SyncExchanger) Exchange(
	ctx context.Context,
	env EnvironmentMessage,
) (ActionMessage, error) {
	out, err := x.endpoint.BeginSend(ctx)
	if err != nil {
		return ActionMessage{}, x.fail("sending", err)
	}

	*out = env

	if err := x.endpoint.EndSend(); err != nil {
		return ActionMessage{}, x.fail("sending", err)
	}

	in, err := x.endpoint.BeginReceive(ctx)
	if err != nil {
		return ActionMessage{}, x.fail("receiving", err)
	}

	act := *in

	if err := x.endpoint.EndReceive(); err != nil {
		return ActionMessage{}, x.fail("receiving", err)
	}

	return act, nil
}

func (x *SyncExchanger) fail(step string, err error) error {
	if errors.Is(err, shm.ErrProtocolViolation) {
		log.Panicf("exchange %s: %v", step, err)
	}

	return fmt.Errorf("exchange %s: %w", step, err)
}

// Finish raises the finished flag of the underlying channel.
func (x *SyncExchanger) Finish() error {
	return x.endpoint.SetFinished()
}

// Close releases the underlying channel.
func (x *SyncExchanger) Close() error {
	return x.endpoint.Close()
}
