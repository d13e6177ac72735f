// Package sim defines the hydraulic simulator interface the generator
// drives, a named engine registry, and a builtin deterministic reference
// engine. The generator never inspects solver internals; it only requires
// that a simulator be deterministic given identical inputs.
package sim

import (
	"context"

	"github.com/HammerLabML/atmn/internal/measure"
	"github.com/HammerLabML/atmn/internal/network"
)

// Results holds the time-indexed measurement tables a simulation produces:
// node pressures, node demands, and link flows.
type Results struct {
	Pressure *measure.Table
	Demand   *measure.Table
	Flow     *measure.Table
}

// Simulator runs a hydraulic simulation over a fully configured network
// (leaks inserted, temporal parameters set).
type Simulator interface {
	// Name identifies the engine in the registry and in logs.
	Name() string

	// Run simulates the network and returns its measurement tables.
	// Implementations must be deterministic given identical inputs.
	Run(ctx context.Context, net *network.Network) (*Results, error)
}
