package model

import (
	"errors"
	"fmt"
)

// Leak type constants.
const (
	LeakIncipient = "incipient"
	LeakAbrupt    = "abrupt"
)

// Sensor type constants. These name the three measurement tables a
// simulation produces.
const (
	SensorPressure = "pressure"
	SensorFlow     = "flow"
	SensorDemand   = "demand"
)

// Sensor fault type constants.
const (
	FaultConstant   = "constant"
	FaultDrift      = "drift"
	FaultNormal     = "normal"
	FaultPercentage = "percentage"
	FaultShift      = "shift"
	FaultStuckzero  = "stuckzero"
)

// Precision selects how measurement values are persisted.
type Precision string

const (
	PrecisionFloat16 Precision = "float16"
	PrecisionFloat32 Precision = "float32"
	PrecisionFloat64 Precision = "float64"
	PrecisionCSV     Precision = "csv"
)

// ParsePrecision maps the CLI spelling ("16", "32", "64", "csv") to a
// Precision. Unknown spellings fall back to float16, mirrored by a warning
// at the call site.
func ParsePrecision(s string) (Precision, bool) {
	switch s {
	case "16":
		return PrecisionFloat16, true
	case "32":
		return PrecisionFloat32, true
	case "64":
		return PrecisionFloat64, true
	case "csv":
		return PrecisionCSV, true
	default:
		return PrecisionFloat16, false
	}
}

// ScenarioConfig identifies a hydraulic topology plus temporal resolution.
// Immutable once parsed.
type ScenarioConfig struct {
	Name        string
	NetworkPath string
	Iterations  int
	TimeStep    int // seconds
	Attributes  map[string]string
}

// LeakSpec describes a single leak injection. Exactly one of NodeID and
// PipeID is set; Peak is required iff Type is incipient.
type LeakSpec struct {
	Type     string
	NodeID   string
	PipeID   string
	Diameter float64
	Start    int
	End      int
	Peak     *int
}

// Validation errors reported by LeakSpec.Validate. These are per-job
// recoverable: the job fails, the run continues.
var (
	ErrLeakType    = errors.New("invalid leak type")
	ErrLeakTarget  = errors.New("leak missing required parameter: nodeId or pipeId")
	ErrLeakNoPeak  = errors.New("incipient leak lacking peak parameter")
	ErrLeakTargets = errors.New("leak must target either a node or a pipe, not both")
)

// Validate checks the structural constraints on a leak spec.
func (l LeakSpec) Validate() error {
	switch l.Type {
	case LeakIncipient:
		if l.Peak == nil {
			return ErrLeakNoPeak
		}
	case LeakAbrupt:
	default:
		return fmt.Errorf("%w: %q", ErrLeakType, l.Type)
	}
	if l.NodeID == "" && l.PipeID == "" {
		return ErrLeakTarget
	}
	if l.NodeID != "" && l.PipeID != "" {
		return ErrLeakTargets
	}
	return nil
}

// SensorMask holds, per sensor type, the set of identifiers whose
// measurements are retained. Built once per scenario before job creation;
// read-only afterward.
type SensorMask struct {
	Pressure map[string]bool
	Flow     map[string]bool
	Demand   map[string]bool
}

// NewSensorMask returns an empty mask with all three sets allocated.
func NewSensorMask() SensorMask {
	return SensorMask{
		Pressure: make(map[string]bool),
		Flow:     make(map[string]bool),
		Demand:   make(map[string]bool),
	}
}

// Set returns the identifier set for the given sensor type, or nil for an
// unknown type.
func (m SensorMask) Set(sensorType string) map[string]bool {
	switch sensorType {
	case SensorPressure:
		return m.Pressure
	case SensorFlow:
		return m.Flow
	case SensorDemand:
		return m.Demand
	default:
		return nil
	}
}

// SensorFault describes one post-hoc data-corruption rule, applied at read
// time over the window [Start, End). Param is required for every fault type
// except stuckzero.
type SensorFault struct {
	PartID     string
	SensorType string
	Start      int
	End        int
	FaultType  string
	Param      *float64
}
