// Package leak translates declarative leak descriptions into mutations of a
// live network model: either an emitter primitive (abrupt leaks) or a
// pressure-dependent demand pattern (incipient leaks).
package leak

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/HammerLabML/atmn/internal/model"
	"github.com/HammerLabML/atmn/internal/network"
)

// Reserved name prefixes for injected topology elements. User networks
// should not contain names with these prefixes; the scheduler warns when
// they do.
const (
	NodePrefix    = "leak_node_"
	SegmentPrefix = "leak_segment_"
	PatternPrefix = "leak_pattern_"
)

// DischargeCoeff is the fixed leak orifice discharge coefficient.
const DischargeCoeff = 0.75

// demandCoeff converts a leak orifice area to an equivalent demand:
// discharge coefficient * sqrt(2/1000) * water density * area.
var demandCoeff = DischargeCoeff * math.Sqrt(2.0/1000.0) * 990.27

// Model inserts leaks into network instances.
type Model struct {
	log *slog.Logger
}

// New creates a leak model logging through the given logger.
func New(log *slog.Logger) *Model {
	return &Model{log: log}
}

// Insert applies one leak spec to the network. Failures are recoverable at
// the job level: the caller fails the job and the run continues.
func (m *Model) Insert(net *network.Network, spec model.LeakSpec, iterations, timeStep int) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	nodeID, err := m.resolveTarget(net, spec)
	if err != nil {
		return err
	}

	switch spec.Type {
	case model.LeakIncipient:
		return m.insertIncipient(net, spec, nodeID, iterations, timeStep)
	case model.LeakAbrupt:
		area := math.Pi * math.Pow(spec.Diameter/2, 2)
		return net.AddLeak(nodeID, DischargeCoeff, area, spec.Start*timeStep, spec.End*timeStep)
	}
	return fmt.Errorf("%w: %q", model.ErrLeakType, spec.Type)
}

// resolveTarget returns the node the leak attaches to, mutating the
// topology when needed. A pipe target is split at a deterministically named
// junction; a node target of an incipient leak gets a zero-length isolation
// junction so the pressure-dependent leak demand does not disturb the
// node's own demand. Both mutations are skipped if the derived node already
// exists, so several leaks may share one location.
func (m *Model) resolveTarget(net *network.Network, spec model.LeakSpec) (string, error) {
	if spec.NodeID != "" {
		if spec.Type != model.LeakIncipient {
			if !net.HasNode(spec.NodeID) {
				return "", fmt.Errorf("%w: %q", network.ErrNodeNotFound, spec.NodeID)
			}
			return spec.NodeID, nil
		}

		leakNode := NodePrefix + spec.NodeID
		if !net.HasNode(leakNode) {
			orig, err := net.Node(spec.NodeID)
			if err != nil {
				return "", err
			}
			if err := net.AddJunction(leakNode, orig.Elevation); err != nil {
				return "", err
			}
			if err := net.AddPipe(SegmentPrefix+leakNode, spec.NodeID, leakNode, 0, 100, 1); err != nil {
				return "", err
			}
		}
		return leakNode, nil
	}

	leakNode := NodePrefix + spec.PipeID
	if !net.HasNode(leakNode) {
		if err := net.SplitPipe(spec.PipeID, SegmentPrefix+spec.PipeID, leakNode); err != nil {
			return "", err
		}
	}
	return leakNode, nil
}

// insertIncipient models a gradually growing leak as a custom demand
// pattern on a pressure-dependent node.
func (m *Model) insertIncipient(net *network.Network, spec model.LeakSpec, nodeID string, iterations, timeStep int) error {
	node, err := net.Node(nodeID)
	if err != nil {
		return err
	}

	// Pressure at which the leak is saturated, and at which it starts
	// losing water.
	node.RequiredPressure = 100
	node.MinimumPressure = 0

	pattern := RampPattern(spec.Diameter, spec.Start, *spec.Peak, spec.End, iterations)

	if net.Time.PatternStep != timeStep {
		pattern = Resample(pattern, iterations, net.Time.PatternStep, timeStep)
	}

	name := uniquePatternName(net, nodeID)
	if err := net.AddPattern(name, pattern); err != nil {
		return err
	}
	if err := net.AddDemand(nodeID, 1, name); err != nil {
		return err
	}
	m.log.Debug("incipient leak inserted",
		"node", nodeID,
		"pattern", name,
		"start", spec.Start,
		"peak", *spec.Peak,
		"end", spec.End,
	)
	return nil
}

// RampPattern builds the iteration-indexed demand pattern of an incipient
// leak: zero before start, a linear orifice-radius ramp from start to peak,
// and the full-orifice demand held constant from peak to end. The final
// ramp step is halved so float accumulation cannot produce one sample too
// many.
func RampPattern(diameter float64, start, peak, end, iterations int) []float64 {
	pattern := make([]float64, iterations)

	if peak > start {
		radiusStep := diameter / float64(peak-start) / 2
		i := start
		for r := radiusStep; r < diameter/2+radiusStep*0.5 && i < iterations; r += radiusStep {
			if i >= 0 {
				pattern[i] = demandCoeff * math.Pi * r * r
			}
			i++
		}
	}

	constant := demandCoeff * math.Pi * math.Pow(diameter/2, 2)
	for i := peak; i < end && i < iterations; i++ {
		if i >= 0 {
			pattern[i] = constant
		}
	}
	return pattern
}

// PlateauDemand returns the full-orifice demand of a leak with the given
// diameter.
func PlateauDemand(diameter float64) float64 {
	return demandCoeff * math.Pi * math.Pow(diameter/2, 2)
}

// Resample maps an iteration-indexed pattern onto the network's native
// pattern step using piecewise-linear interpolation: sample j of the result
// is the pattern value at time j*patternStep, so the simulator reads the
// intended demand at every instant of the covered duration.
func Resample(pattern []float64, iterations, patternStep, timeStep int) []float64 {
	duration := iterations * timeStep
	samples := (duration + patternStep - 1) / patternStep
	out := make([]float64, samples)
	for j := range out {
		x := float64(j*patternStep) / float64(timeStep)
		out[j] = interp(x, pattern)
	}
	return out
}

// interp evaluates the piecewise-linear function through points
// (0, fp[0]), (1, fp[1]), ... at x, clamping outside the domain.
func interp(x float64, fp []float64) float64 {
	if len(fp) == 0 {
		return 0
	}
	if x <= 0 {
		return fp[0]
	}
	last := float64(len(fp) - 1)
	if x >= last {
		return fp[len(fp)-1]
	}
	i := int(x)
	frac := x - float64(i)
	return fp[i] + (fp[i+1]-fp[i])*frac
}

// uniquePatternName derives a pattern name from the leak node, appending an
// incrementing numeric suffix on collision.
func uniquePatternName(net *network.Network, nodeID string) string {
	name := PatternPrefix + nodeID
	for id := 1; net.HasPattern(name); id++ {
		name = fmt.Sprintf("%s%s_%d", PatternPrefix, nodeID, id)
	}
	return name
}
