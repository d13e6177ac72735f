// Package network holds the mutable water-distribution network model that
// leak injection operates on: nodes, links, demand patterns, emitter leaks,
// and the temporal simulation options handed to the simulator.
package network

import (
	"errors"
	"fmt"
)

// Node type constants.
const (
	NodeJunction  = "Junction"
	NodeTank      = "Tank"
	NodeReservoir = "Reservoir"
)

// Link type constants.
const (
	LinkPipe  = "Pipe"
	LinkPump  = "Pump"
	LinkValve = "Valve"
)

// DefaultPatternStep is the native pattern time-step in seconds, used when
// the network file does not override it.
const DefaultPatternStep = 3600

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrLinkNotFound = errors.New("link not found")
	ErrDuplicateID  = errors.New("duplicate identifier")
)

// Demand is an extra demand entry on a node: a base value scaled by a named
// time pattern.
type Demand struct {
	Base    float64
	Pattern string
}

// Node is a network node. RequiredPressure and MinimumPressure drive the
// pressure-dependent demand model: below MinimumPressure a demand delivers
// nothing, above RequiredPressure it is fully satisfied.
type Node struct {
	ID               string
	Type             string
	X, Y             float64
	Elevation        float64
	BaseDemand       float64
	RequiredPressure float64
	MinimumPressure  float64
	Demands          []Demand
}

// Link is a network link between two nodes.
type Link struct {
	ID        string
	Type      string
	Start     string
	End       string
	Length    float64
	Diameter  float64
	Roughness float64
}

// Leak is an emitter-style leak on a node, active over the absolute time
// window [StartTime, EndTime) in seconds.
type Leak struct {
	Node           string
	DischargeCoeff float64
	Area           float64
	StartTime      int
	EndTime        int
}

// TimeOptions holds the temporal simulation parameters in seconds.
type TimeOptions struct {
	Duration      int
	HydraulicStep int
	ReportStep    int
	PatternStep   int
}

// Network is a mutable water network. Each simulation job owns a fresh
// instance, so no synchronization is needed.
type Network struct {
	nodes     map[string]*Node
	nodeOrder []string
	links     map[string]*Link
	linkOrder []string
	patterns  map[string][]float64
	leaks     []Leak

	Time        TimeOptions
	DemandModel string
}

// New returns an empty network with PDD demand semantics and the default
// pattern step.
func New() *Network {
	return &Network{
		nodes:       make(map[string]*Node),
		links:       make(map[string]*Link),
		patterns:    make(map[string][]float64),
		Time:        TimeOptions{PatternStep: DefaultPatternStep},
		DemandModel: "PDD",
	}
}

// Node returns the node with the given id.
func (n *Network) Node(id string) (*Node, error) {
	node, ok := n.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return node, nil
}

// Link returns the link with the given id.
func (n *Network) Link(id string) (*Link, error) {
	link, ok := n.links[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLinkNotFound, id)
	}
	return link, nil
}

// HasNode reports whether a node with the given id exists.
func (n *Network) HasNode(id string) bool {
	_, ok := n.nodes[id]
	return ok
}

// HasPattern reports whether a pattern with the given name exists.
func (n *Network) HasPattern(name string) bool {
	_, ok := n.patterns[name]
	return ok
}

// NodeIDs returns node ids in insertion order.
func (n *Network) NodeIDs() []string {
	ids := make([]string, len(n.nodeOrder))
	copy(ids, n.nodeOrder)
	return ids
}

// LinkIDs returns link ids in insertion order.
func (n *Network) LinkIDs() []string {
	ids := make([]string, len(n.linkOrder))
	copy(ids, n.linkOrder)
	return ids
}

// NodeCount returns the number of nodes.
func (n *Network) NodeCount() int { return len(n.nodeOrder) }

// LinkCount returns the number of links.
func (n *Network) LinkCount() int { return len(n.linkOrder) }

// Pattern returns the values of a named pattern, or nil if absent.
func (n *Network) Pattern(name string) []float64 {
	return n.patterns[name]
}

// Leaks returns the emitter leaks added so far.
func (n *Network) Leaks() []Leak {
	return n.leaks
}

// AddNode inserts a fully specified node.
func (n *Network) AddNode(node *Node) error {
	if n.HasNode(node.ID) {
		return fmt.Errorf("%w: node %q", ErrDuplicateID, node.ID)
	}
	n.nodes[node.ID] = node
	n.nodeOrder = append(n.nodeOrder, node.ID)
	return nil
}

// AddJunction inserts a new junction at the given elevation.
func (n *Network) AddJunction(id string, elevation float64) error {
	return n.AddNode(&Node{ID: id, Type: NodeJunction, Elevation: elevation})
}

// AddLink inserts a fully specified link. Both endpoints must exist.
func (n *Network) AddLink(link *Link) error {
	if _, ok := n.links[link.ID]; ok {
		return fmt.Errorf("%w: link %q", ErrDuplicateID, link.ID)
	}
	if !n.HasNode(link.Start) {
		return fmt.Errorf("%w: %q (start of link %q)", ErrNodeNotFound, link.Start, link.ID)
	}
	if !n.HasNode(link.End) {
		return fmt.Errorf("%w: %q (end of link %q)", ErrNodeNotFound, link.End, link.ID)
	}
	n.links[link.ID] = link
	n.linkOrder = append(n.linkOrder, link.ID)
	return nil
}

// AddPipe inserts a new pipe between two existing nodes.
func (n *Network) AddPipe(id, start, end string, length, diameter, roughness float64) error {
	return n.AddLink(&Link{
		ID:        id,
		Type:      LinkPipe,
		Start:     start,
		End:       end,
		Length:    length,
		Diameter:  diameter,
		Roughness: roughness,
	})
}

// SplitPipe splits an existing pipe in half, inserting newNodeID in the
// middle. The original pipe keeps its id and runs from its start to the new
// node; newPipeID carries the second half to the original end. The new
// junction sits at the midpoint with the mean elevation of the endpoints.
func (n *Network) SplitPipe(pipeID, newPipeID, newNodeID string) error {
	pipe, err := n.Link(pipeID)
	if err != nil {
		return err
	}
	if n.HasNode(newNodeID) {
		return fmt.Errorf("%w: node %q", ErrDuplicateID, newNodeID)
	}
	start, err := n.Node(pipe.Start)
	if err != nil {
		return err
	}
	end, err := n.Node(pipe.End)
	if err != nil {
		return err
	}

	mid := &Node{
		ID:        newNodeID,
		Type:      NodeJunction,
		X:         (start.X + end.X) / 2,
		Y:         (start.Y + end.Y) / 2,
		Elevation: (start.Elevation + end.Elevation) / 2,
	}
	if err := n.AddNode(mid); err != nil {
		return err
	}

	oldEnd := pipe.End
	pipe.End = newNodeID
	pipe.Length /= 2

	return n.AddLink(&Link{
		ID:        newPipeID,
		Type:      pipe.Type,
		Start:     newNodeID,
		End:       oldEnd,
		Length:    pipe.Length,
		Diameter:  pipe.Diameter,
		Roughness: pipe.Roughness,
	})
}

// AddPattern registers a named demand pattern.
func (n *Network) AddPattern(name string, values []float64) error {
	if n.HasPattern(name) {
		return fmt.Errorf("%w: pattern %q", ErrDuplicateID, name)
	}
	n.patterns[name] = values
	return nil
}

// AddDemand attaches an extra pattern-scaled demand to a node.
func (n *Network) AddDemand(nodeID string, base float64, pattern string) error {
	node, err := n.Node(nodeID)
	if err != nil {
		return err
	}
	if !n.HasPattern(pattern) {
		return fmt.Errorf("pattern %q not found", pattern)
	}
	node.Demands = append(node.Demands, Demand{Base: base, Pattern: pattern})
	return nil
}

// AddLeak attaches an emitter leak to a node.
func (n *Network) AddLeak(nodeID string, dischargeCoeff, area float64, startTime, endTime int) error {
	if !n.HasNode(nodeID) {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	n.leaks = append(n.leaks, Leak{
		Node:           nodeID,
		DischargeCoeff: dischargeCoeff,
		Area:           area,
		StartTime:      startTime,
		EndTime:        endTime,
	})
	return nil
}
