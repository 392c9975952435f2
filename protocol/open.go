package protocol

import (
	"context"

	"github.com/sarchlab/wifictl/shm"
)

// Layout returns the region layout used by wifictl for the given config.
func Layout(cfg shm.Config) shm.Layout {
	return shm.LayoutFor[EnvironmentMessage, ActionMessage](cfg)
}

func openRegion(ctx context.Context, cfg shm.Config) (shm.Region, error) {
	if cfg.IsMemoryCreator {
		return shm.Create(cfg, Layout(cfg))
	}

	return shm.Attach(ctx, cfg, Layout(cfg))
}

// OpenSimulationSide creates or attaches the shared region, depending on
// cfg.IsMemoryCreator, and returns the simulation-side endpoint.
func OpenSimulationSide(
	ctx context.Context,
	cfg shm.Config,
) (*SimulationEndpoint, error) {
	region, err := openRegion(ctx, cfg)
	if err != nil {
		return nil, err
	}

	endpoint, err := shm.NewEndpoint[EnvironmentMessage, ActionMessage](
		region, shm.RoleSimulation, cfg)
	if err != nil {
		region.Close()
		return nil, err
	}

	return endpoint, nil
}

// OpenControlSide creates or attaches the shared region, depending on
// cfg.IsMemoryCreator, and returns the control-side endpoint.
func OpenControlSide(
	ctx context.Context,
	cfg shm.Config,
) (*ControlEndpoint, error) {
	region, err := openRegion(ctx, cfg)
	if err != nil {
		return nil, err
	}

	endpoint, err := shm.NewEndpoint[ActionMessage, EnvironmentMessage](
		region, shm.RoleController, cfg)
	if err != nil {
		region.Close()
		return nil, err
	}

	return endpoint, nil
}

// NewInMemoryPair returns two endpoints that share an in-process region. It
// lets the simulation and a control loop run on two goroutines of the same
// process.
func NewInMemoryPair(cfg shm.Config) (*SimulationEndpoint, *ControlEndpoint) {
	region := shm.NewMemoryRegion(Layout(cfg))

	simSide, err := shm.NewEndpoint[EnvironmentMessage, ActionMessage](
		region, shm.RoleSimulation, cfg)
	if err != nil {
		panic(err)
	}

	ctrlSide, err := shm.NewEndpoint[ActionMessage, EnvironmentMessage](
		region, shm.RoleController, cfg)
	if err != nil {
		panic(err)
	}

	return simSide, ctrlSide
}
