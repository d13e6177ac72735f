// Package collection reads and writes scenario-collection artifacts: the
// per-scenario topology, the serialized leak/sensor/sensorfault configs,
// and the measurement tables the loader serves back with sensor masks and
// sensor faults applied.
package collection

import (
	"bytes"
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/HammerLabML/atmn/internal/config"
	"github.com/HammerLabML/atmn/internal/network"
)

// Artifact directory names inside a scenario.
const (
	LeaksDir        = "leaks"
	SensorsDir      = "sensors"
	SensorfaultsDir = "sensorfaults"
	MeasurementsDir = "measurements"
	TopologyFile    = "topology.xml"
)

// Writer persists topology and config artifacts idempotently. Before
// overwriting an existing artifact it hashes the old content and warns if
// the new content differs, because previously simulated measurements may
// then be inconsistent with the changed config.
type Writer struct {
	log *slog.Logger
}

// NewWriter creates a collection writer.
func NewWriter(log *slog.Logger) *Writer {
	return &Writer{log: log}
}

// WriteFile writes an artifact, creating parent directories as needed, and
// emits the drift warning when it replaces different content. The warning
// is advisory: generation proceeds.
func (w *Writer) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	var oldHash []byte
	if old, err := os.ReadFile(path); err == nil {
		sum := md5.Sum(old)
		oldHash = sum[:]
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if oldHash != nil {
		newSum := md5.Sum(data)
		if !bytes.Equal(oldHash, newSum[:]) {
			w.log.Warn("artifact changed without full regeneration; previously simulated results may be inconsistent with it",
				"path", path,
			)
		}
	}
	return nil
}

// WriteTopology writes the scenario's topology artifact.
func (w *Writer) WriteTopology(net *network.Network, scenarioPath string) error {
	data, err := net.TopologyXML()
	if err != nil {
		return err
	}
	return w.WriteFile(filepath.Join(scenarioPath, TopologyFile), data)
}

// WriteLeakConfig serializes one leak config under the scenario's leaks
// directory.
func (w *Writer) WriteLeakConfig(lc config.LeakConfig, scenarioPath string) error {
	return w.writeXML(filepath.Join(scenarioPath, LeaksDir, lc.Name+".xml"), lc)
}

// WriteSensorConfigs serializes all sensor configs of a scenario.
func (w *Writer) WriteSensorConfigs(configs []config.SensorConfig, scenarioPath string) error {
	for _, sc := range configs {
		if err := w.writeXML(filepath.Join(scenarioPath, SensorsDir, sc.Name+".xml"), sc); err != nil {
			return err
		}
	}
	return nil
}

// WriteSensorfaultConfigs serializes all sensorfault configs of a scenario.
func (w *Writer) WriteSensorfaultConfigs(configs []config.SensorfaultConfig, scenarioPath string) error {
	for _, fc := range configs {
		if err := w.writeXML(filepath.Join(scenarioPath, SensorfaultsDir, fc.Name+".xml"), fc); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeXML(path string, v any) error {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return w.WriteFile(path, append([]byte(xml.Header), data...))
}
