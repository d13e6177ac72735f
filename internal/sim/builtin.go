package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/HammerLabML/atmn/internal/measure"
	"github.com/HammerLabML/atmn/internal/network"
)

// Builtin is a coarse deterministic pressure-driven engine. It is not a
// calibrated hydraulic solver: it exists so the pipeline runs end-to-end
// without an external engine, and as the reference collaborator in tests.
// Pressures respond to total and local demand, demands follow the
// pressure-dependent demand model, and link flows follow head differences.
type Builtin struct {
	// SourceHeadMargin is added above the highest source elevation to form
	// the hydraulic grade line.
	SourceHeadMargin float64
	// SystemLoss and LocalLoss scale the pressure drop per unit of system
	// and local demand.
	SystemLoss float64
	LocalLoss  float64
}

// NewBuiltin returns the builtin engine with its default coefficients.
func NewBuiltin() *Builtin {
	return &Builtin{
		SourceHeadMargin: 50,
		SystemLoss:       5,
		LocalLoss:        2,
	}
}

// Name implements Simulator.
func (b *Builtin) Name() string { return "builtin" }

const gravity = 9.81

// Run implements Simulator.
func (b *Builtin) Run(ctx context.Context, net *network.Network) (*Results, error) {
	if net.Time.ReportStep <= 0 {
		return nil, fmt.Errorf("report step must be positive")
	}
	steps := net.Time.Duration / net.Time.ReportStep
	if steps <= 0 {
		return nil, fmt.Errorf("duration %ds yields no report steps", net.Time.Duration)
	}

	nodeIDs := net.NodeIDs()
	linkIDs := net.LinkIDs()
	times := make([]int64, steps)
	for i := range times {
		times[i] = int64(i * net.Time.ReportStep)
	}

	pressure := measure.NewTable(times, nodeIDs)
	demand := measure.NewTable(times, nodeIDs)
	flow := measure.NewTable(times, linkIDs)

	head := b.sourceHead(net, nodeIDs)

	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := step * net.Time.ReportStep

		desired := make([]float64, len(nodeIDs))
		for i, id := range nodeIDs {
			node, err := net.Node(id)
			if err != nil {
				return nil, err
			}
			desired[i] = b.desiredDemand(net, node, t)
		}

		// Two fixed-point sweeps couple pressures, PDD-scaled demands, and
		// emitter leaks well enough for a deterministic trace.
		actual := make([]float64, len(nodeIDs))
		copy(actual, desired)
		leakQ := make([]float64, len(nodeIDs))
		p := make([]float64, len(nodeIDs))
		for sweep := 0; sweep < 2; sweep++ {
			system := 0.0
			for i := range actual {
				system += actual[i] + leakQ[i]
			}
			for i, id := range nodeIDs {
				node, _ := net.Node(id)
				p[i] = head - node.Elevation - b.SystemLoss*system - b.LocalLoss*(actual[i]+leakQ[i])
				actual[i] = desired[i] * pddFactor(p[i], node)
				leakQ[i] = b.leakDemand(net, id, t, p[i])
			}
		}

		for i := range nodeIDs {
			pressure.Values[i][step] = p[i]
			demand.Values[i][step] = actual[i] + leakQ[i]
		}

		for li, id := range linkIDs {
			link, err := net.Link(id)
			if err != nil {
				return nil, err
			}
			si := indexOf(nodeIDs, link.Start)
			ei := indexOf(nodeIDs, link.End)
			start, _ := net.Node(link.Start)
			end, _ := net.Node(link.End)
			hs := start.Elevation + p[si]
			he := end.Elevation + p[ei]
			conductance := 0.1 * link.Diameter * link.Diameter / math.Max(link.Length, 1)
			flow.Values[li][step] = (hs - he) * conductance
		}
	}

	return &Results{Pressure: pressure, Demand: demand, Flow: flow}, nil
}

// sourceHead derives the hydraulic grade line from the highest reservoir or
// tank, falling back to the highest node when the network has no source.
func (b *Builtin) sourceHead(net *network.Network, nodeIDs []string) float64 {
	maxSource := math.Inf(-1)
	maxAny := math.Inf(-1)
	for _, id := range nodeIDs {
		node, _ := net.Node(id)
		maxAny = math.Max(maxAny, node.Elevation)
		if node.Type == network.NodeReservoir || node.Type == network.NodeTank {
			maxSource = math.Max(maxSource, node.Elevation)
		}
	}
	if !math.IsInf(maxSource, -1) {
		return maxSource + b.SourceHeadMargin
	}
	return maxAny + b.SourceHeadMargin
}

// desiredDemand is the node's base demand plus all pattern-scaled extra
// demands at time t. Patterns wrap when shorter than the simulation.
func (b *Builtin) desiredDemand(net *network.Network, node *network.Node, t int) float64 {
	d := node.BaseDemand
	for _, extra := range node.Demands {
		pattern := net.Pattern(extra.Pattern)
		if len(pattern) == 0 {
			continue
		}
		idx := (t / net.Time.PatternStep) % len(pattern)
		d += extra.Base * pattern[idx]
	}
	return d
}

// leakDemand is the emitter outflow at the node for leaks active at time t.
func (b *Builtin) leakDemand(net *network.Network, nodeID string, t int, pressure float64) float64 {
	q := 0.0
	for _, l := range net.Leaks() {
		if l.Node != nodeID || t < l.StartTime || t >= l.EndTime {
			continue
		}
		q += l.DischargeCoeff * l.Area * math.Sqrt(2*gravity*math.Max(pressure, 0))
	}
	return q
}

// pddFactor scales a desired demand by available pressure: zero at or below
// the minimum pressure, fully satisfied at or above the required pressure,
// square-root interpolated between.
func pddFactor(p float64, node *network.Node) float64 {
	if node.RequiredPressure <= node.MinimumPressure {
		return 1
	}
	switch {
	case p <= node.MinimumPressure:
		return 0
	case p >= node.RequiredPressure:
		return 1
	default:
		return math.Sqrt((p - node.MinimumPressure) / (node.RequiredPressure - node.MinimumPressure))
	}
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
