package network_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HammerLabML/atmn/internal/network"
)

const toyNetwork = `<?xml version="1.0"?>
<Network>
  <Nodes>
    <Node id="R1" type="Reservoir" x="0" y="0" elevation="60"/>
    <Node id="J1" type="Junction" x="100" y="0" elevation="10" demand="0.01"/>
    <Node id="J2" type="Junction" x="200" y="0" elevation="12" demand="0.02"/>
  </Nodes>
  <Links>
    <Link id="P1" type="Pipe" n1="R1" n2="J1" length="100" diameter="0.3" roughness="100"/>
    <Link id="P2" type="Pipe" n1="J1" n2="J2" length="200" diameter="0.25" roughness="100"/>
  </Links>
</Network>`

func loadToy(t *testing.T) *network.Network {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toy.xml")
	if err := os.WriteFile(path, []byte(toyNetwork), 0o644); err != nil {
		t.Fatalf("write network: %v", err)
	}
	n, err := network.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return n
}

func TestLoad(t *testing.T) {
	n := loadToy(t)
	if n.NodeCount() != 3 || n.LinkCount() != 2 {
		t.Fatalf("counts = (%d, %d), want (3, 2)", n.NodeCount(), n.LinkCount())
	}
	j1, err := n.Node("J1")
	if err != nil {
		t.Fatalf("Node(J1): %v", err)
	}
	if j1.Elevation != 10 || j1.BaseDemand != 0.01 {
		t.Errorf("J1 = %+v", j1)
	}
	if n.Time.PatternStep != network.DefaultPatternStep {
		t.Errorf("PatternStep = %d, want default %d", n.Time.PatternStep, network.DefaultPatternStep)
	}
	if _, err := n.Node("missing"); !errors.Is(err, network.ErrNodeNotFound) {
		t.Errorf("missing node error = %v", err)
	}
}

func TestLoadTimes(t *testing.T) {
	content := strings.Replace(toyNetwork, "</Network>", `<Times patternStep="900"/></Network>`, 1)
	path := filepath.Join(t.TempDir(), "toy.xml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write network: %v", err)
	}
	n, err := network.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n.Time.PatternStep != 900 {
		t.Errorf("PatternStep = %d, want 900", n.Time.PatternStep)
	}
}

func TestSplitPipe(t *testing.T) {
	n := loadToy(t)
	if err := n.SplitPipe("P2", "leak_segment_P2", "leak_node_P2"); err != nil {
		t.Fatalf("SplitPipe: %v", err)
	}

	mid, err := n.Node("leak_node_P2")
	if err != nil {
		t.Fatalf("split node missing: %v", err)
	}
	if mid.Elevation != 11 {
		t.Errorf("mid elevation = %v, want mean 11", mid.Elevation)
	}
	if mid.X != 150 {
		t.Errorf("mid x = %v, want midpoint 150", mid.X)
	}

	first, _ := n.Link("P2")
	second, err := n.Link("leak_segment_P2")
	if err != nil {
		t.Fatalf("split link missing: %v", err)
	}
	if first.End != "leak_node_P2" || second.Start != "leak_node_P2" || second.End != "J2" {
		t.Errorf("split endpoints wrong: %+v / %+v", first, second)
	}
	if first.Length != 100 || second.Length != 100 {
		t.Errorf("split lengths = (%v, %v), want halves", first.Length, second.Length)
	}
	if second.Diameter != 0.25 {
		t.Errorf("second half diameter = %v", second.Diameter)
	}

	// Splitting again at the same node must fail with a duplicate error.
	if err := n.SplitPipe("P1", "x", "leak_node_P2"); !errors.Is(err, network.ErrDuplicateID) {
		t.Errorf("duplicate split error = %v", err)
	}
}

func TestPatternsAndDemands(t *testing.T) {
	n := loadToy(t)
	if err := n.AddPattern("p1", []float64{1, 2, 3}); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	if err := n.AddPattern("p1", nil); !errors.Is(err, network.ErrDuplicateID) {
		t.Errorf("duplicate pattern error = %v", err)
	}
	if err := n.AddDemand("J1", 1, "p1"); err != nil {
		t.Fatalf("AddDemand: %v", err)
	}
	if err := n.AddDemand("J1", 1, "nope"); err == nil {
		t.Error("AddDemand with unknown pattern should fail")
	}
	j1, _ := n.Node("J1")
	if len(j1.Demands) != 1 || j1.Demands[0].Pattern != "p1" {
		t.Errorf("demands = %+v", j1.Demands)
	}
}

func TestAddLeak(t *testing.T) {
	n := loadToy(t)
	if err := n.AddLeak("J2", 0.75, 0.001, 1800, 7200); err != nil {
		t.Fatalf("AddLeak: %v", err)
	}
	if err := n.AddLeak("nope", 0.75, 0.001, 0, 1); !errors.Is(err, network.ErrNodeNotFound) {
		t.Errorf("AddLeak on missing node error = %v", err)
	}
	leaks := n.Leaks()
	if len(leaks) != 1 || leaks[0].Node != "J2" || leaks[0].StartTime != 1800 {
		t.Errorf("leaks = %+v", leaks)
	}
}

func TestTopologyRoundTrip(t *testing.T) {
	n := loadToy(t)
	data, err := n.TopologyXML()
	if err != nil {
		t.Fatalf("TopologyXML: %v", err)
	}
	path := filepath.Join(t.TempDir(), "topology.xml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write topology: %v", err)
	}
	got, err := network.Load(path)
	if err != nil {
		t.Fatalf("Load(topology): %v", err)
	}
	if got.NodeCount() != n.NodeCount() || got.LinkCount() != n.LinkCount() {
		t.Errorf("round trip counts = (%d, %d)", got.NodeCount(), got.LinkCount())
	}
	link, err := got.Link("P2")
	if err != nil {
		t.Fatalf("Link(P2): %v", err)
	}
	if link.Start != "J1" || link.End != "J2" {
		t.Errorf("P2 endpoints = %+v", link)
	}
}
