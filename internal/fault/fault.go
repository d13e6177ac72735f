// Package fault applies synthetic sensor faults to measurement columns at
// read time. Faults never touch persisted data: the clean measurements and
// the fault description are stored separately, so applying a fault is
// reproducible and reversible.
package fault

import (
	"crypto/sha1"
	"encoding/binary"
	"log/slog"
	"math/rand"

	"github.com/HammerLabML/atmn/internal/model"
)

// Seed derives a deterministic rng seed from the exact serialized content
// of a sensorfault config. Same bytes, same faults.
func Seed(configBytes []byte) int64 {
	sum := sha1.Sum(configBytes)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// NewRand returns the deterministic random source for one pass over a
// sensorfault config. All normal-type faults of the config draw from this
// one source, in config order.
func NewRand(configBytes []byte) *rand.Rand {
	return rand.New(rand.NewSource(Seed(configBytes)))
}

// Apply mutates one measurement column in place over the window
// [f.Start, f.End), clamped to the column bounds. Unknown fault types and
// missing required parameters are skipped with a warning; the return value
// reports whether the fault was applied.
func Apply(values []float64, f model.SensorFault, rng *rand.Rand, log *slog.Logger) bool {
	start, end := f.Start, f.End
	if start < 0 {
		start = 0
	}
	if end > len(values) {
		end = len(values)
	}
	if start >= end {
		return false
	}

	if f.Param == nil && f.FaultType != model.FaultStuckzero {
		log.Warn("missing fault parameter, skipping fault",
			"part_id", f.PartID,
			"fault_type", f.FaultType,
		)
		return false
	}

	switch f.FaultType {
	case model.FaultConstant:
		for i := start; i < end; i++ {
			values[i] = *f.Param
		}
	case model.FaultDrift:
		for i := start; i < end; i++ {
			values[i] += *f.Param * float64(i-start+1)
		}
	case model.FaultNormal:
		for i := start; i < end; i++ {
			values[i] += 1 + *f.Param*rng.NormFloat64()
		}
	case model.FaultPercentage:
		for i := start; i < end; i++ {
			values[i] *= *f.Param
		}
	case model.FaultShift:
		for i := start; i < end; i++ {
			values[i] += *f.Param
		}
	case model.FaultStuckzero:
		for i := start; i < end; i++ {
			values[i] = 0
		}
	default:
		log.Warn("invalid sensor fault type, skipping fault",
			"part_id", f.PartID,
			"fault_type", f.FaultType,
		)
		return false
	}
	return true
}
