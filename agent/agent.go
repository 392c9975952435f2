// Package agent implements the control process: it answers every telemetry
// message of the simulation with a transmit power chosen by a Policy.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/wifictl/logging"
	"github.com/sarchlab/wifictl/protocol"
	"github.com/sarchlab/wifictl/shm"
)

// Endpoint is the control-process side of the channel.
type Endpoint interface {
	BeginReceive(ctx context.Context) (*protocol.EnvironmentMessage, error)
	EndReceive() error
	BeginSend(ctx context.Context) (*protocol.ActionMessage, error)
	EndSend() error
}

// Agent serves the simulation until it finishes.
type Agent struct {
	name     string
	endpoint Endpoint
	policy   Policy
	recorder *Recorder
	logger   logging.Logger
	observe  func(ExchangeEntry)

	summary Summary
}

// Builder builds Agents.
type Builder struct {
	endpoint Endpoint
	policy   Policy
	recorder *Recorder
	logger   logging.Logger
	observe  func(ExchangeEntry)
}

// MakeBuilder returns a builder that uses the mean downlink policy.
func MakeBuilder() Builder {
	return Builder{logger: logging.Noop()}
}

// WithEndpoint sets the channel endpoint.
func (b Builder) WithEndpoint(e Endpoint) Builder {
	b.endpoint = e
	return b
}

// WithPolicy sets the decision policy.
func (b Builder) WithPolicy(p Policy) Builder {
	b.policy = p
	return b
}

// WithRecorder records every exchange.
func (b Builder) WithRecorder(r *Recorder) Builder {
	b.recorder = r
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger logging.Logger) Builder {
	b.logger = logger
	return b
}

// WithObserver registers a function called after every exchange.
func (b Builder) WithObserver(f func(ExchangeEntry)) Builder {
	b.observe = f
	return b
}

// Build creates the agent.
func (b Builder) Build(name string) *Agent {
	if b.endpoint == nil {
		log.Panic("agent requires an endpoint")
	}

	policy := b.policy
	if policy == nil {
		policy = NewMeanDownlinkPolicy()
	}

	return &Agent{
		name:     name,
		endpoint: b.endpoint,
		policy:   policy,
		recorder: b.recorder,
		logger:   b.logger,
		observe:  b.observe,
	}
}

// Summary returns the aggregate of the exchanges served so far.
func (a *Agent) Summary() Summary {
	return a.summary
}

// Run answers messages until the simulation raises its finished flag. It
// returns the number of exchanges served.
func (a *Agent) Run(ctx context.Context) (int, error) {
	for {
		err := a.serveOne(ctx)
		if errors.Is(err, shm.ErrFinished) {
			a.finish(ctx)
			return a.summary.Exchanges, nil
		}

		if err != nil {
			if a.recorder != nil {
				a.recorder.Flush()
			}

			return a.summary.Exchanges, fmt.Errorf("%s: %w", a.name, err)
		}
	}
}

func (a *Agent) serveOne(ctx context.Context) error {
	in, err := a.endpoint.BeginReceive(ctx)
	if err != nil {
		return err
	}

	env := *in

	if err := a.endpoint.EndReceive(); err != nil {
		return err
	}

	power := a.policy.Decide(env)

	out, err := a.endpoint.BeginSend(ctx)
	if err != nil {
		return err
	}

	out.NewTxPower = power

	if err := a.endpoint.EndSend(); err != nil {
		return err
	}

	entry := NewExchangeEntry(env, power)
	a.summary.Add(entry)

	if a.recorder != nil {
		a.recorder.Record(entry)
	}

	if a.observe != nil {
		a.observe(entry)
	}

	a.logger.Debug(ctx, "exchange",
		logging.String("component", a.name),
		logging.Float("time", env.SimTime),
		logging.Int("station", int(env.StationID)),
		logging.Float("x", env.PosX),
		logging.Float("y", env.PosY),
		logging.Float("distance", env.Distance),
		logging.Float("dl_mbps", env.DLThroughput),
		logging.Float("ul_mbps", env.ULThroughput),
		logging.Int("old_tx_power", int(env.CurrentTxPower)),
		logging.Float("new_tx_power", power),
	)

	return nil
}

func (a *Agent) finish(ctx context.Context) {
	if a.recorder != nil {
		a.recorder.Flush()
	}

	s := a.summary
	a.logger.Info(ctx, "simulation finished",
		logging.String("component", a.name),
		logging.Int("exchanges", s.Exchanges),
		logging.Float("duration", s.Duration()),
		logging.Float("mean_dl_mbps", s.MeanDL),
		logging.Float("mean_ul_mbps", s.MeanUL),
		logging.Float("min_distance", s.MinDistance),
		logging.Float("max_distance", s.MaxDistance),
	)
}
