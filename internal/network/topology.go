package network

import (
	"encoding/xml"
	"fmt"
	"os"
)

// xmlNetwork is the on-disk XML shape of a network. The same schema serves
// both the full network source file and the reduced per-scenario topology
// artifact (which carries only ids, types, coordinates, and endpoints).
type xmlNetwork struct {
	XMLName xml.Name  `xml:"Network"`
	Nodes   []xmlNode `xml:"Nodes>Node"`
	Links   []xmlLink `xml:"Links>Link"`
	Times   *xmlTimes `xml:"Times,omitempty"`
}

type xmlNode struct {
	ID               string  `xml:"id,attr"`
	Type             string  `xml:"type,attr"`
	X                float64 `xml:"x,attr"`
	Y                float64 `xml:"y,attr"`
	Elevation        float64 `xml:"elevation,attr,omitempty"`
	Demand           float64 `xml:"demand,attr,omitempty"`
	RequiredPressure float64 `xml:"requiredPressure,attr,omitempty"`
	MinimumPressure  float64 `xml:"minimumPressure,attr,omitempty"`
}

type xmlLink struct {
	ID        string  `xml:"id,attr"`
	Type      string  `xml:"type,attr"`
	N1        string  `xml:"n1,attr"`
	N2        string  `xml:"n2,attr"`
	Length    float64 `xml:"length,attr,omitempty"`
	Diameter  float64 `xml:"diameter,attr,omitempty"`
	Roughness float64 `xml:"roughness,attr,omitempty"`
}

type xmlTimes struct {
	PatternStep int `xml:"patternStep,attr"`
}

// Load reads a network description from an XML file. Every job loads its
// own fresh instance.
func Load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network: %w", err)
	}

	var doc xmlNetwork
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse network %s: %w", path, err)
	}

	n := New()
	if doc.Times != nil && doc.Times.PatternStep > 0 {
		n.Time.PatternStep = doc.Times.PatternStep
	}
	for _, xn := range doc.Nodes {
		typ := xn.Type
		if typ == "" {
			typ = NodeJunction
		}
		required := xn.RequiredPressure
		if required == 0 {
			required = 20
		}
		node := &Node{
			ID:               xn.ID,
			Type:             typ,
			X:                xn.X,
			Y:                xn.Y,
			Elevation:        xn.Elevation,
			BaseDemand:       xn.Demand,
			RequiredPressure: required,
			MinimumPressure:  xn.MinimumPressure,
		}
		if err := n.AddNode(node); err != nil {
			return nil, fmt.Errorf("network %s: %w", path, err)
		}
	}
	for _, xl := range doc.Links {
		typ := xl.Type
		if typ == "" {
			typ = LinkPipe
		}
		link := &Link{
			ID:        xl.ID,
			Type:      typ,
			Start:     xl.N1,
			End:       xl.N2,
			Length:    xl.Length,
			Diameter:  xl.Diameter,
			Roughness: xl.Roughness,
		}
		if err := n.AddLink(link); err != nil {
			return nil, fmt.Errorf("network %s: %w", path, err)
		}
	}
	return n, nil
}

// TopologyXML serializes the network topology (node ids, types, coordinates;
// link ids, types, endpoints) as the per-scenario topology artifact.
func (n *Network) TopologyXML() ([]byte, error) {
	doc := xmlNetwork{}
	for _, id := range n.nodeOrder {
		node := n.nodes[id]
		doc.Nodes = append(doc.Nodes, xmlNode{
			ID:   node.ID,
			Type: node.Type,
			X:    node.X,
			Y:    node.Y,
		})
	}
	for _, id := range n.linkOrder {
		link := n.links[id]
		doc.Links = append(doc.Links, xmlLink{
			ID:   link.ID,
			Type: link.Type,
			N1:   link.Start,
			N2:   link.End,
		})
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal topology: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
