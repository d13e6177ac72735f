package collection

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/HammerLabML/atmn/internal/config"
	"github.com/HammerLabML/atmn/internal/fault"
	"github.com/HammerLabML/atmn/internal/measure"
	"github.com/HammerLabML/atmn/internal/model"
)

// ErrNotFound is returned when a scenario or config is absent from the
// collection.
var ErrNotFound = errors.New("not found in collection")

// Data bundles the measurement tables served for one
// (leak config, sensor config, sensorfault config) combination.
type Data struct {
	Pressure *measure.Table
	Demand   *measure.Table
	Flow     *measure.Table
}

// Configs lists the configs available for a scenario.
type Configs struct {
	LeakConfigs        []string
	SensorConfigs      []string
	SensorfaultConfigs []string
}

// Collection provides read access to a generated scenario collection.
// Sensor faults are applied here, lazily, at read time; the persisted
// measurements stay clean.
type Collection struct {
	path string
	log  *slog.Logger
}

// Open opens a scenario collection. A missing collection path is fatal at
// load time.
func Open(path string, log *slog.Logger) (*Collection, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve collection path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("collection path %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("collection path %s is not a directory", abs)
	}
	return &Collection{path: abs, log: log}, nil
}

// Scenarios lists the scenario directories present in the collection.
func (c *Collection) Scenarios() ([]string, error) {
	entries, err := os.ReadDir(c.path)
	if err != nil {
		return nil, fmt.Errorf("list collection: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Configs lists the configs of one scenario.
func (c *Collection) Configs(scenario string) (*Configs, error) {
	scenarioPath, err := c.scenarioPath(scenario)
	if err != nil {
		return nil, err
	}
	leak, err := listDirs(filepath.Join(scenarioPath, MeasurementsDir))
	if err != nil {
		return nil, err
	}
	sensors, err := listXMLNames(filepath.Join(scenarioPath, SensorsDir))
	if err != nil {
		return nil, err
	}
	faults, err := listXMLNames(filepath.Join(scenarioPath, SensorfaultsDir))
	if err != nil {
		return nil, err
	}
	return &Configs{
		LeakConfigs:        leak,
		SensorConfigs:      sensors,
		SensorfaultConfigs: faults,
	}, nil
}

// LeakData returns the leak specs serialized for one leak config.
func (c *Collection) LeakData(scenario, leakConfig string) ([]model.LeakSpec, error) {
	scenarioPath, err := c.scenarioPath(scenario)
	if err != nil {
		return nil, err
	}
	var lc config.LeakConfig
	if err := readXML(filepath.Join(scenarioPath, LeaksDir, leakConfig+".xml"), &lc); err != nil {
		return nil, err
	}
	return lc.LeakSpecs(), nil
}

// SensorfaultData returns the fault specs serialized for one sensorfault
// config.
func (c *Collection) SensorfaultData(scenario, faultConfig string) ([]model.SensorFault, error) {
	scenarioPath, err := c.scenarioPath(scenario)
	if err != nil {
		return nil, err
	}
	var fc config.SensorfaultConfig
	if err := readXML(filepath.Join(scenarioPath, SensorfaultsDir, faultConfig+".xml"), &fc); err != nil {
		return nil, err
	}
	return fc.FaultSpecs(), nil
}

// Get loads the measurements of one leak config, restricted to the sensor
// config's identifiers, with the sensorfault config applied on top. The
// normal-fault rng is seeded from the sensorfault file's exact bytes, so
// identical config content yields identical faults.
func (c *Collection) Get(scenario, leakConfig, sensorConfig, faultConfig string) (*Data, error) {
	scenarioPath, err := c.scenarioPath(scenario)
	if err != nil {
		return nil, err
	}

	var sc config.SensorConfig
	if err := readXML(filepath.Join(scenarioPath, SensorsDir, sensorConfig+".xml"), &sc); err != nil {
		return nil, err
	}

	measurementsPath := filepath.Join(scenarioPath, MeasurementsDir, leakConfig)
	if _, err := os.Stat(measurementsPath); err != nil {
		return nil, fmt.Errorf("measurements for %s.%s: %w", scenario, leakConfig, ErrNotFound)
	}

	data := &Data{}
	if data.Pressure, err = readMasked(measurementsPath, model.SensorPressure, sc.Pressure); err != nil {
		return nil, err
	}
	if data.Demand, err = readMasked(measurementsPath, model.SensorDemand, sc.Demand); err != nil {
		return nil, err
	}
	if data.Flow, err = readMasked(measurementsPath, model.SensorFlow, sc.Flow); err != nil {
		return nil, err
	}

	faultPath := filepath.Join(scenarioPath, SensorfaultsDir, faultConfig+".xml")
	raw, err := os.ReadFile(faultPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("sensorfault config %s: %w", faultConfig, ErrNotFound)
		}
		return nil, fmt.Errorf("read sensorfault config: %w", err)
	}
	var fc config.SensorfaultConfig
	if err := xml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse sensorfault config %s: %w", faultPath, err)
	}

	rng := fault.NewRand(raw)
	for _, f := range fc.FaultSpecs() {
		table := data.table(f.SensorType)
		if table == nil {
			c.log.Warn("sensorfault with unknown sensor type, skipping fault",
				"part_id", f.PartID,
				"sensor_type", f.SensorType,
			)
			continue
		}
		col, ok := table.Column(f.PartID)
		if !ok {
			// Fault targets a sensor the current sensor config does not
			// monitor; irrelevant, not an error.
			continue
		}
		fault.Apply(col, f, rng, c.log)
	}

	return data, nil
}

func (d *Data) table(sensorType string) *measure.Table {
	switch sensorType {
	case model.SensorPressure:
		return d.Pressure
	case model.SensorDemand:
		return d.Demand
	case model.SensorFlow:
		return d.Flow
	default:
		return nil
	}
}

func readMasked(dir, name string, sensors []config.Sensor) (*measure.Table, error) {
	t, err := measure.Read(dir, name)
	if err != nil {
		return nil, fmt.Errorf("read %s measurements: %w", name, err)
	}
	ids := make([]string, len(sensors))
	for i, s := range sensors {
		ids[i] = s.ID
	}
	sel, err := t.SelectOrdered(ids)
	if err != nil {
		return nil, fmt.Errorf("%s measurements: %w", name, err)
	}
	return sel, nil
}

func (c *Collection) scenarioPath(scenario string) (string, error) {
	p := filepath.Join(c.path, scenario)
	if info, err := os.Stat(p); err != nil || !info.IsDir() {
		return "", fmt.Errorf("scenario %q: %w", scenario, ErrNotFound)
	}
	return p, nil
}

func readXML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", filepath.Base(path), ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func listDirs(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func listXMLNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".xml") {
			out = append(out, strings.TrimSuffix(e.Name(), ".xml"))
		}
	}
	return out, nil
}
