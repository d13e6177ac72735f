package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/HammerLabML/atmn/internal/collection"
	"github.com/HammerLabML/atmn/internal/config"
	"github.com/HammerLabML/atmn/internal/leak"
	"github.com/HammerLabML/atmn/internal/model"
	"github.com/HammerLabML/atmn/internal/network"
)

// SkipExisting is the reason recorded when a job's measurements are already
// on disk and force regeneration was not requested.
const SkipExisting = "measurements already present"

// Job is one planned simulation: a scenario network with one leak config
// applied.
type Job struct {
	ID               string
	Scenario         string
	LeakConfig       string
	NetworkPath      string
	Iterations       int
	TimeStep         int
	EstimateKB       int64
	Leaks            []model.LeakSpec
	Mask             model.SensorMask
	MeasurementsPath string
}

// Skip is a job the planner decided not to run.
type Skip struct {
	Scenario   string
	LeakConfig string
	Reason     string
	EstimateKB int64
}

// PlanOptions controls one planning pass.
type PlanOptions struct {
	ConfigPath string
	OutputPath string
	BudgetKB   int64
	Workers    int
	Force      bool
	Selection  config.Selection
}

// Plan is the expanded work list for one run. Workers is the requested
// worker count clamped so that even the cheapest jobs cannot collectively
// overshoot the budget.
type Plan struct {
	Jobs     []*Job
	Skips    []Skip
	Workers  int
	BudgetKB int64
}

// Scheduler expands a scenario collection into a plan and writes the
// per-scenario artifacts.
type Scheduler struct {
	writer *collection.Writer
	logger *slog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		writer: collection.NewWriter(logger),
		logger: logger,
	}
}

// EstimateMemory predicts the peak working-set size of one simulation job
// in kilobytes. The coefficients are empirical: per-element state scales
// with the iteration count, plus a fixed per-element overhead, plus the
// parsed topology itself.
func EstimateMemory(nodes, links, iterations int, topologyKB int64) int64 {
	elements := float64(nodes + links)
	return int64(0.15*float64(iterations)*elements) + int64(40*(nodes+links)) + topologyKB
}

// Plan expands the collection into jobs. Scenario artifacts (topology and
// config files) are written here, before any worker starts; measurement
// directories that already exist produce skipped jobs unless force is set.
// Config and topology problems surface here and abort the whole run.
func (s *Scheduler) Plan(col *config.Collection, opts PlanOptions) (*Plan, error) {
	plan := &Plan{BudgetKB: opts.BudgetKB}
	masks := col.SensorMasks()

	for _, sc := range col.Scenarios {
		var selected []config.LeakConfig
		for _, lc := range sc.LeakConfigs {
			if opts.Selection.Matches(sc.Name, lc.Name) {
				selected = append(selected, lc)
			}
		}
		if len(selected) == 0 {
			continue
		}

		scenarioPath := filepath.Join(opts.OutputPath, sc.Name)
		if opts.Force {
			if err := s.clearForced(sc, selected, scenarioPath); err != nil {
				return nil, err
			}
		}

		networkPath := col.NetworkPath(sc)
		net, err := network.Load(networkPath)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		s.warnReservedNames(sc.Name, net)

		estimate := EstimateMemory(net.NodeCount(), net.LinkCount(), sc.Iterations, fileSizeKB(networkPath))
		if estimate > opts.BudgetKB {
			s.logger.Error("scenario exceeds memory budget, skipping all its jobs",
				"scenario", sc.Name,
				"estimate_kb", estimate,
				"budget_kb", opts.BudgetKB,
			)
			for _, lc := range selected {
				plan.Skips = append(plan.Skips, Skip{
					Scenario:   sc.Name,
					LeakConfig: lc.Name,
					Reason:     fmt.Sprintf("estimated %d kB exceeds budget of %d kB", estimate, opts.BudgetKB),
					EstimateKB: estimate,
				})
			}
			continue
		}

		if err := s.writeArtifacts(sc, net, scenarioPath); err != nil {
			return nil, err
		}

		for _, lc := range selected {
			measurementsPath := filepath.Join(scenarioPath, collection.MeasurementsDir, lc.Name)
			if _, err := os.Stat(measurementsPath); err == nil {
				plan.Skips = append(plan.Skips, Skip{
					Scenario:   sc.Name,
					LeakConfig: lc.Name,
					Reason:     SkipExisting,
					EstimateKB: estimate,
				})
				continue
			}
			plan.Jobs = append(plan.Jobs, &Job{
				ID:               model.NewID(),
				Scenario:         sc.Name,
				LeakConfig:       lc.Name,
				NetworkPath:      networkPath,
				Iterations:       sc.Iterations,
				TimeStep:         sc.TimeStep,
				EstimateKB:       estimate,
				Leaks:            lc.LeakSpecs(),
				Mask:             masks[sc.Name],
				MeasurementsPath: measurementsPath,
			})
		}
	}

	plan.Workers = clampWorkers(opts.Workers, opts.BudgetKB, plan.Jobs)
	return plan, nil
}

// warnReservedNames flags network elements whose identifiers collide with
// the prefixes injected leak elements use. Such names can shadow or be
// shadowed by injected nodes and segments.
func (s *Scheduler) warnReservedNames(scenario string, net *network.Network) {
	for _, id := range append(net.NodeIDs(), net.LinkIDs()...) {
		if strings.HasPrefix(id, leak.NodePrefix) || strings.HasPrefix(id, leak.SegmentPrefix) {
			s.logger.Warn("network element uses a reserved identifier prefix",
				"scenario", scenario,
				"id", id,
			)
		}
	}
}

// clearForced removes the artifacts force regeneration must rebuild: the
// whole scenario directory when every leak config is selected, otherwise
// only the selected measurement directories.
func (s *Scheduler) clearForced(sc config.Scenario, selected []config.LeakConfig, scenarioPath string) error {
	if len(selected) == len(sc.LeakConfigs) {
		if err := os.RemoveAll(scenarioPath); err != nil {
			return fmt.Errorf("clear scenario %s: %w", sc.Name, err)
		}
		return nil
	}
	for _, lc := range selected {
		p := filepath.Join(scenarioPath, collection.MeasurementsDir, lc.Name)
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("clear measurements %s.%s: %w", sc.Name, lc.Name, err)
		}
	}
	return nil
}

func (s *Scheduler) writeArtifacts(sc config.Scenario, net *network.Network, scenarioPath string) error {
	if err := s.writer.WriteTopology(net, scenarioPath); err != nil {
		return err
	}
	for _, lc := range sc.LeakConfigs {
		if err := s.writer.WriteLeakConfig(lc, scenarioPath); err != nil {
			return err
		}
	}
	if err := s.writer.WriteSensorConfigs(sc.SensorConfigs, scenarioPath); err != nil {
		return err
	}
	return s.writer.WriteSensorfaultConfigs(sc.SensorfaultConfigs, scenarioPath)
}

// clampWorkers bounds the worker count by the number of cheapest jobs the
// budget can admit at once, and by the job count itself.
func clampWorkers(requested int, budgetKB int64, jobs []*Job) int {
	if len(jobs) == 0 {
		return 0
	}
	if requested < 1 {
		requested = 1
	}

	lowest := jobs[0].EstimateKB
	for _, j := range jobs[1:] {
		if j.EstimateKB < lowest {
			lowest = j.EstimateKB
		}
	}

	workers := requested
	if lowest > 0 {
		if fit := int(budgetKB / lowest); fit < workers {
			workers = fit
		}
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

func fileSizeKB(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size() / 1024
}
