package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/HammerLabML/atmn/internal/config"
	"github.com/HammerLabML/atmn/internal/leak"
	"github.com/HammerLabML/atmn/internal/measure"
	"github.com/HammerLabML/atmn/internal/model"
	"github.com/HammerLabML/atmn/internal/network"
	"github.com/HammerLabML/atmn/internal/sim"
	"github.com/HammerLabML/atmn/internal/store"
)

// Engine executes a planned run: a fixed pool of workers pulls jobs from a
// channel, each worker reserving the job's memory estimate before touching
// the network.
type Engine struct {
	store     store.Store
	registry  *sim.Registry
	scheduler *Scheduler
	logger    *slog.Logger
	simulator string
	precision model.Precision
	wg        sync.WaitGroup
}

// NewEngine creates an engine. simulator names the registry entry used for
// every job; precision selects the measurement persistence format.
func NewEngine(s store.Store, reg *sim.Registry, logger *slog.Logger, simulator string, precision model.Precision) *Engine {
	return &Engine{
		store:     s,
		registry:  reg,
		scheduler: NewScheduler(logger),
		logger:    logger,
		simulator: simulator,
		precision: precision,
	}
}

// Run plans and executes one generation pass over the collection. It blocks
// until every job has finished and returns the persisted run record.
func (e *Engine) Run(ctx context.Context, col *config.Collection, opts PlanOptions) (*model.Run, error) {
	plan, err := e.scheduler.Plan(col, opts)
	if err != nil {
		return nil, err
	}

	run := &model.Run{
		ID:         model.NewID(),
		ConfigPath: opts.ConfigPath,
		TotalJobs:  len(plan.Jobs) + len(plan.Skips),
		Workers:    plan.Workers,
		BudgetKB:   plan.BudgetKB,
		StartedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	for _, skip := range plan.Skips {
		e.recordSkip(ctx, run.ID, skip)
	}

	for _, job := range plan.Jobs {
		rec := &model.JobRecord{
			ID:         job.ID,
			RunID:      run.ID,
			Scenario:   job.Scenario,
			LeakConfig: job.LeakConfig,
			Status:     model.StatusCreated,
			MemoryKB:   job.EstimateKB,
			CreatedAt:  time.Now().UTC(),
		}
		if err := e.store.CreateJob(ctx, rec); err != nil {
			return nil, fmt.Errorf("create job %s.%s: %w", job.Scenario, job.LeakConfig, err)
		}
	}

	budget := NewMemoryBudget(plan.BudgetKB)
	budgetFreeKB.Set(float64(budget.FreeKB()))

	jobs := make(chan *Job)
	for i := 0; i < plan.Workers; i++ {
		e.wg.Go(func() {
			for job := range jobs {
				e.execute(ctx, budget, job)
			}
		})
	}

	for _, job := range plan.Jobs {
		jobs <- job
	}
	close(jobs)
	e.wg.Wait()

	if err := e.store.FinishRun(ctx, run.ID); err != nil {
		e.logger.Error("failed to finish run", "run_id", run.ID, "error", err)
	}

	e.logger.Info("run finished",
		"run_id", run.ID,
		"jobs", len(plan.Jobs),
		"skipped", len(plan.Skips),
		"workers", plan.Workers,
	)
	return run, nil
}

// recordSkip persists a planner-skipped job.
func (e *Engine) recordSkip(ctx context.Context, runID string, skip Skip) {
	now := time.Now().UTC()
	rec := &model.JobRecord{
		ID:         model.NewID(),
		RunID:      runID,
		Scenario:   skip.Scenario,
		LeakConfig: skip.LeakConfig,
		Status:     model.StatusCreated,
		MemoryKB:   skip.EstimateKB,
		CreatedAt:  now,
	}
	if err := e.store.CreateJob(ctx, rec); err != nil {
		e.logger.Error("failed to record skipped job", "scenario", skip.Scenario, "leak_config", skip.LeakConfig, "error", err)
		return
	}
	if err := e.store.UpdateJobStatus(ctx, rec.ID, model.StatusSkipped); err != nil {
		e.logger.Error("failed to mark job skipped", "job_id", rec.ID, "error", err)
		return
	}
	rec.Status = model.StatusSkipped
	rec.Error = skip.Reason
	rec.FinishedAt = &now
	if err := e.store.UpdateJob(ctx, rec); err != nil {
		e.logger.Error("failed to record skip reason", "job_id", rec.ID, "error", err)
	}
	jobsTotal.WithLabelValues(model.StatusSkipped).Inc()
}

// execute walks one job through its lifecycle. The memory reservation is
// released on every exit path once admission succeeded.
func (e *Engine) execute(ctx context.Context, budget *MemoryBudget, job *Job) {
	if err := budget.AwaitReserve(job.EstimateKB); err != nil {
		// Unreachable under plans from this package's Scheduler, which
		// skips over-budget scenarios. Guard anyway.
		e.markSkipped(job, err.Error())
		return
	}
	defer func() {
		budget.Release(job.EstimateKB)
		budgetFreeKB.Set(float64(budget.FreeKB()))
	}()
	budgetFreeKB.Set(float64(budget.FreeKB()))

	if err := e.store.UpdateJobStatus(ctx, job.ID, model.StatusAdmitted); err != nil {
		e.logger.Error("failed to admit job", "job_id", job.ID, "error", err)
		return
	}
	start := time.Now().UTC()

	net, err := e.initialize(job)
	if err != nil {
		e.finishFailed(job, &start, fmt.Sprintf("initialize: %v", err))
		return
	}
	if err := e.store.UpdateJobStatus(ctx, job.ID, model.StatusInitialized); err != nil {
		e.logger.Error("failed to transition job", "job_id", job.ID, "error", err)
	}

	simulator, err := e.registry.Resolve(e.simulator)
	if err != nil {
		e.finishFailed(job, &start, fmt.Sprintf("resolve simulator: %v", err))
		return
	}

	simStart := time.Now()
	results, err := simulator.Run(ctx, net)
	simulateDuration.Observe(time.Since(simStart).Seconds())
	if err != nil {
		e.finishFailed(job, &start, fmt.Sprintf("simulate: %v", err))
		return
	}
	if err := e.store.UpdateJobStatus(ctx, job.ID, model.StatusSimulated); err != nil {
		e.logger.Error("failed to transition job", "job_id", job.ID, "error", err)
	}

	if err := e.persist(job, results); err != nil {
		e.finishFailed(job, &start, fmt.Sprintf("persist: %v", err))
		return
	}
	if err := e.store.UpdateJobStatus(ctx, job.ID, model.StatusPersisted); err != nil {
		e.logger.Error("failed to transition job", "job_id", job.ID, "error", err)
	}

	now := time.Now().UTC()
	durationMS := int(time.Since(start).Milliseconds())
	done := &model.JobRecord{
		ID:         job.ID,
		Scenario:   job.Scenario,
		LeakConfig: job.LeakConfig,
		Status:     model.StatusDone,
		MemoryKB:   job.EstimateKB,
		DurationMS: &durationMS,
		StartedAt:  &start,
		FinishedAt: &now,
	}
	if err := e.store.UpdateJob(context.Background(), done); err != nil {
		e.logger.Error("failed to update done job", "job_id", job.ID, "error", err)
	}
	jobsTotal.WithLabelValues(model.StatusDone).Inc()

	e.logger.Info("job done",
		"scenario", job.Scenario,
		"leak_config", job.LeakConfig,
		"duration_ms", durationMS,
	)
}

// initialize loads a fresh network for the job and applies its leaks.
func (e *Engine) initialize(job *Job) (*network.Network, error) {
	net, err := network.Load(job.NetworkPath)
	if err != nil {
		return nil, err
	}
	net.Time.Duration = job.Iterations * job.TimeStep
	net.Time.HydraulicStep = job.TimeStep
	net.Time.ReportStep = job.TimeStep

	lm := leak.New(e.logger)
	for _, spec := range job.Leaks {
		if err := lm.Insert(net, spec, job.Iterations, job.TimeStep); err != nil {
			return nil, err
		}
	}
	return net, nil
}

// persist writes the job's measurement tables, restricted to the scenario's
// sensor union. A type with no configured sensors persists only the time
// index.
func (e *Engine) persist(job *Job, results *sim.Results) error {
	if err := os.MkdirAll(job.MeasurementsPath, 0o755); err != nil {
		return err
	}
	for name, part := range map[string]struct {
		table *measure.Table
		mask  map[string]bool
	}{
		model.SensorPressure: {results.Pressure, job.Mask.Pressure},
		model.SensorDemand:   {results.Demand, job.Mask.Demand},
		model.SensorFlow:     {results.Flow, job.Mask.Flow},
	} {
		if err := measure.Write(job.MeasurementsPath, name, part.table.Select(part.mask), e.precision); err != nil {
			return err
		}
	}
	return nil
}

// finishFailed marks a job as failed with the given error message.
func (e *Engine) finishFailed(job *Job, startedAt *time.Time, errMsg string) {
	ctx := context.Background()
	if err := e.store.UpdateJobStatus(ctx, job.ID, model.StatusFailed); err != nil {
		e.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}

	now := time.Now().UTC()
	var durationMS int
	if startedAt != nil {
		durationMS = int(time.Since(*startedAt).Milliseconds())
	}
	rec := &model.JobRecord{
		ID:         job.ID,
		Scenario:   job.Scenario,
		LeakConfig: job.LeakConfig,
		Status:     model.StatusFailed,
		MemoryKB:   job.EstimateKB,
		Error:      errMsg,
		DurationMS: &durationMS,
		StartedAt:  startedAt,
		FinishedAt: &now,
	}
	if err := e.store.UpdateJob(ctx, rec); err != nil {
		e.logger.Error("failed to update failed job", "job_id", job.ID, "error", err)
	}
	jobsTotal.WithLabelValues(model.StatusFailed).Inc()

	e.logger.Error("job failed",
		"scenario", job.Scenario,
		"leak_config", job.LeakConfig,
		"error", errMsg,
	)
}

// markSkipped records a worker-side skip for a job that was never admitted.
func (e *Engine) markSkipped(job *Job, reason string) {
	ctx := context.Background()
	if err := e.store.UpdateJobStatus(ctx, job.ID, model.StatusSkipped); err != nil {
		e.logger.Error("failed to mark job skipped", "job_id", job.ID, "error", err)
		return
	}
	now := time.Now().UTC()
	rec := &model.JobRecord{
		ID:         job.ID,
		Scenario:   job.Scenario,
		LeakConfig: job.LeakConfig,
		Status:     model.StatusSkipped,
		MemoryKB:   job.EstimateKB,
		Error:      reason,
		FinishedAt: &now,
	}
	if err := e.store.UpdateJob(ctx, rec); err != nil {
		e.logger.Error("failed to record skip reason", "job_id", job.ID, "error", err)
	}
	jobsTotal.WithLabelValues(model.StatusSkipped).Inc()
}
