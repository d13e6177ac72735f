package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/HammerLabML/atmn/internal/model"
)

// Collection is the parsed scenario-collection configuration document.
type Collection struct {
	XMLName   xml.Name   `xml:"ScenarioCollection"`
	Scenarios []Scenario `xml:"Scenario"`

	// BasePath is the directory the config file was loaded from. Relative
	// network paths resolve against it.
	BasePath string `xml:"-"`
}

// Scenario is one named topology plus temporal parameters and its nested
// config collections.
type Scenario struct {
	Name               string             `xml:"name,attr"`
	Network            string             `xml:"network,attr"`
	Iterations         int                `xml:"iterations,attr"`
	TimeStep           int                `xml:"timeStep,attr"`
	LeakConfigs        []LeakConfig       `xml:"LeakConfigs>LeakConfig"`
	SensorConfigs      []SensorConfig     `xml:"SensorConfigs>SensorConfig"`
	SensorfaultConfigs []SensorfaultConfig `xml:"SensorfaultConfigs>SensorfaultConfig"`
}

// LeakConfig is a named list of leak injections.
type LeakConfig struct {
	XMLName xml.Name `xml:"LeakConfig"`
	Name    string   `xml:"name,attr"`
	Leaks   []Leak   `xml:"Leak"`
}

// Leak is the XML shape of a single leak entry.
type Leak struct {
	Type     string  `xml:"type,attr"`
	NodeID   string  `xml:"nodeId,attr,omitempty"`
	PipeID   string  `xml:"pipeId,attr,omitempty"`
	Diameter float64 `xml:"diameter,attr"`
	Start    int     `xml:"start,attr"`
	End      int     `xml:"end,attr"`
	Peak     *int    `xml:"peak,attr,omitempty"`
}

// SensorConfig is a named set of sensor identifiers per measurement type.
type SensorConfig struct {
	XMLName  xml.Name `xml:"SensorConfig"`
	Name     string   `xml:"name,attr"`
	Pressure []Sensor `xml:"PressureSensors>Sensor"`
	Flow     []Sensor `xml:"FlowSensors>Sensor"`
	Demand   []Sensor `xml:"DemandSensors>Sensor"`
}

// Sensor references a node or link identifier.
type Sensor struct {
	ID string `xml:"id,attr"`
}

// SensorfaultConfig is a named list of post-hoc data-corruption rules.
type SensorfaultConfig struct {
	XMLName xml.Name      `xml:"SensorfaultConfig"`
	Name    string        `xml:"name,attr"`
	Faults  []Sensorfault `xml:"Sensorfault"`
}

// Sensorfault is the XML shape of a single sensor fault entry.
type Sensorfault struct {
	PartID     string   `xml:"partId,attr"`
	SensorType string   `xml:"sensorType,attr"`
	Start      int      `xml:"start,attr"`
	End        int      `xml:"end,attr"`
	FaultType  string   `xml:"faultType,attr"`
	Param      *float64 `xml:"faultParam,attr,omitempty"`
}

// ParseCollection reads and validates the scenario-collection config.
// Violations are reported here, before any worker starts.
func ParseCollection(path string) (*Collection, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Collection
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", abs, err)
	}
	c.BasePath = filepath.Dir(abs)

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", abs, err)
	}
	return &c, nil
}

// validate performs schema-level checks: required attributes, positive
// temporal parameters, unique names. Leak semantics are deliberately not
// checked here; an invalid leak fails its job at init time without aborting
// the run.
func (c *Collection) validate() error {
	if len(c.Scenarios) == 0 {
		return fmt.Errorf("no scenarios defined")
	}
	seen := make(map[string]bool)
	for _, sc := range c.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("scenario missing name attribute")
		}
		if seen[sc.Name] {
			return fmt.Errorf("duplicate scenario name %q", sc.Name)
		}
		seen[sc.Name] = true
		if sc.Network == "" {
			return fmt.Errorf("scenario %q: missing network attribute", sc.Name)
		}
		if sc.Iterations <= 0 {
			return fmt.Errorf("scenario %q: iterations must be positive", sc.Name)
		}
		if sc.TimeStep <= 0 {
			return fmt.Errorf("scenario %q: timeStep must be positive", sc.Name)
		}
		if err := uniqueNames(sc.Name, "leak config", leakConfigNames(sc.LeakConfigs)); err != nil {
			return err
		}
		if err := uniqueNames(sc.Name, "sensor config", sensorConfigNames(sc.SensorConfigs)); err != nil {
			return err
		}
		if err := uniqueNames(sc.Name, "sensorfault config", sensorfaultConfigNames(sc.SensorfaultConfigs)); err != nil {
			return err
		}
		for _, fc := range sc.SensorfaultConfigs {
			for _, f := range fc.Faults {
				if model.NewSensorMask().Set(f.SensorType) == nil {
					return fmt.Errorf("scenario %q: sensorfault config %q: unknown sensorType %q", sc.Name, fc.Name, f.SensorType)
				}
			}
		}
	}
	return nil
}

func leakConfigNames(cs []LeakConfig) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

func sensorConfigNames(cs []SensorConfig) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

func sensorfaultConfigNames(cs []SensorfaultConfig) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

func uniqueNames(scenario, kind string, names []string) error {
	seen := make(map[string]bool)
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("scenario %q: %s missing name attribute", scenario, kind)
		}
		if seen[n] {
			return fmt.Errorf("scenario %q: duplicate %s name %q", scenario, kind, n)
		}
		seen[n] = true
	}
	return nil
}

// NetworkPath resolves a scenario's network reference against the config's
// base directory.
func (c *Collection) NetworkPath(sc Scenario) string {
	if filepath.IsAbs(sc.Network) {
		return sc.Network
	}
	return filepath.Join(c.BasePath, sc.Network)
}

// ScenarioConfig converts a parsed scenario to its immutable model record.
func (c *Collection) ScenarioConfig(sc Scenario) model.ScenarioConfig {
	return model.ScenarioConfig{
		Name:        sc.Name,
		NetworkPath: c.NetworkPath(sc),
		Iterations:  sc.Iterations,
		TimeStep:    sc.TimeStep,
		Attributes: map[string]string{
			"name":       sc.Name,
			"network":    c.NetworkPath(sc),
			"iterations": fmt.Sprintf("%d", sc.Iterations),
			"timeStep":   fmt.Sprintf("%d", sc.TimeStep),
		},
	}
}

// LeakSpecs converts a leak config to model records.
func (lc LeakConfig) LeakSpecs() []model.LeakSpec {
	specs := make([]model.LeakSpec, len(lc.Leaks))
	for i, l := range lc.Leaks {
		specs[i] = model.LeakSpec{
			Type:     l.Type,
			NodeID:   l.NodeID,
			PipeID:   l.PipeID,
			Diameter: l.Diameter,
			Start:    l.Start,
			End:      l.End,
			Peak:     l.Peak,
		}
	}
	return specs
}

// FaultSpecs converts a sensorfault config to model records.
func (fc SensorfaultConfig) FaultSpecs() []model.SensorFault {
	faults := make([]model.SensorFault, len(fc.Faults))
	for i, f := range fc.Faults {
		faults[i] = model.SensorFault{
			PartID:     f.PartID,
			SensorType: f.SensorType,
			Start:      f.Start,
			End:        f.End,
			FaultType:  f.FaultType,
			Param:      f.Param,
		}
	}
	return faults
}

// SensorMasks builds, per scenario, the union of all sensor identifiers
// referenced by any of that scenario's sensor configs. Set semantics:
// duplicates collapse.
func (c *Collection) SensorMasks() map[string]model.SensorMask {
	masks := make(map[string]model.SensorMask, len(c.Scenarios))
	for _, sc := range c.Scenarios {
		mask := model.NewSensorMask()
		for _, sensorCfg := range sc.SensorConfigs {
			for _, s := range sensorCfg.Pressure {
				mask.Pressure[s.ID] = true
			}
			for _, s := range sensorCfg.Flow {
				mask.Flow[s.ID] = true
			}
			for _, s := range sensorCfg.Demand {
				mask.Demand[s.ID] = true
			}
		}
		masks[sc.Name] = mask
	}
	return masks
}

// Selection is a list of "Scenario.LeakConfig" selectors; "*" matches every
// leak config of a scenario. An empty selection selects everything.
type Selection []string

// ScenarioSelected reports whether any leak config of the scenario is
// selected.
func (s Selection) ScenarioSelected(scenario string) bool {
	if len(s) == 0 {
		return true
	}
	for _, sel := range s {
		if strings.HasPrefix(sel, scenario+".") {
			return true
		}
	}
	return false
}

// Matches reports whether the specific (scenario, leak config) pair is
// selected. leakConfig "*" asks whether the entire scenario is selected.
func (s Selection) Matches(scenario, leakConfig string) bool {
	if len(s) == 0 {
		return true
	}
	for _, sel := range s {
		if sel == scenario+"."+leakConfig || sel == scenario+".*" {
			return true
		}
	}
	return false
}
