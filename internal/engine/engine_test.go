package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HammerLabML/atmn/internal/engine"
	"github.com/HammerLabML/atmn/internal/measure"
	"github.com/HammerLabML/atmn/internal/model"
	"github.com/HammerLabML/atmn/internal/network"
	"github.com/HammerLabML/atmn/internal/sim"
	"github.com/HammerLabML/atmn/internal/store"
)

// fakeSimulator counts invocations and emits a fixed-shape result so tests
// can assert on regeneration behavior without a real solver.
type fakeSimulator struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSimulator) Name() string { return "fake" }

func (f *fakeSimulator) Run(_ context.Context, net *network.Network) (*sim.Results, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	times := []int64{0, 1800, 3600}
	r := &sim.Results{
		Pressure: measure.NewTable(times, net.NodeIDs()),
		Demand:   measure.NewTable(times, net.NodeIDs()),
		Flow:     measure.NewTable(times, net.LinkIDs()),
	}
	for c := range r.Pressure.Values {
		for i := range times {
			r.Pressure.Values[c][i] = 25
		}
	}
	return r, nil
}

func newTestEngine(t *testing.T, f *fakeSimulator) (*engine.Engine, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := sim.NewRegistry()
	reg.Register(f)

	eng := engine.NewEngine(s, reg, discardLogger(), "fake", model.PrecisionCSV)
	return eng, s
}

func jobsByStatus(t *testing.T, s store.Store, runID string) map[string]int {
	t.Helper()
	jobs, err := s.ListJobs(context.Background(), runID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	counts := make(map[string]int)
	for _, j := range jobs {
		counts[j.Status]++
	}
	return counts
}

func TestRunHappyPath(t *testing.T) {
	col := writeFixture(t, toyCollection)
	out := t.TempDir()
	f := &fakeSimulator{}
	eng, s := newTestEngine(t, f)

	run, err := eng.Run(context.Background(), col, engine.PlanOptions{
		ConfigPath: "config.xml",
		OutputPath: out,
		BudgetKB:   1 << 20,
		Workers:    2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.TotalJobs != 2 {
		t.Errorf("total jobs = %d, want 2", run.TotalJobs)
	}

	counts := jobsByStatus(t, s, run.ID)
	if counts[model.StatusDone] != 2 {
		t.Fatalf("status counts = %v, want 2 done", counts)
	}
	if got := f.calls.Load(); got != 2 {
		t.Errorf("simulator calls = %d, want 2", got)
	}

	stored, err := s.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.FinishedAt == nil {
		t.Error("run should be finished")
	}

	// Persisted measurements carry only the sensor union.
	table, err := measure.Read(filepath.Join(out, "Toy", "measurements", "L1"), model.SensorPressure)
	if err != nil {
		t.Fatalf("read measurements: %v", err)
	}
	if len(table.Columns) != 2 || table.Columns[0] != "J1" || table.Columns[1] != "J2" {
		t.Errorf("pressure columns = %v, want [J1 J2]", table.Columns)
	}
	flow, err := measure.Read(filepath.Join(out, "Toy", "measurements", "L1"), model.SensorFlow)
	if err != nil {
		t.Fatalf("read flow: %v", err)
	}
	if len(flow.Columns) != 1 || flow.Columns[0] != "P1" {
		t.Errorf("flow columns = %v, want [P1]", flow.Columns)
	}
}

const pressureOnlyCollection = `<?xml version="1.0"?>
<ScenarioCollection>
  <Scenario name="Toy" network="toy.xml" iterations="10" timeStep="1800">
    <LeakConfigs>
      <LeakConfig name="L1">
        <Leak type="abrupt" pipeId="P2" diameter="0.05" start="1" end="5"/>
      </LeakConfig>
    </LeakConfigs>
    <SensorConfigs>
      <SensorConfig name="S1">
        <PressureSensors>
          <Sensor id="J1"/>
        </PressureSensors>
      </SensorConfig>
    </SensorConfigs>
  </Scenario>
</ScenarioCollection>`

// A sensor type with no configured sensors persists only the time index,
// never the full simulated table.
func TestRunPersistsOnlyMaskedSensors(t *testing.T) {
	col := writeFixture(t, pressureOnlyCollection)
	out := t.TempDir()
	f := &fakeSimulator{}
	eng, _ := newTestEngine(t, f)

	if _, err := eng.Run(context.Background(), col, engine.PlanOptions{
		OutputPath: out,
		BudgetKB:   1 << 20,
		Workers:    1,
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	dir := filepath.Join(out, "Toy", "measurements", "L1")
	pressure, err := measure.Read(dir, model.SensorPressure)
	if err != nil {
		t.Fatalf("read pressure: %v", err)
	}
	if len(pressure.Columns) != 1 || pressure.Columns[0] != "J1" {
		t.Errorf("pressure columns = %v, want [J1]", pressure.Columns)
	}
	for _, name := range []string{model.SensorFlow, model.SensorDemand} {
		table, err := measure.Read(dir, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(table.Columns) != 0 {
			t.Errorf("%s columns = %v, want none", name, table.Columns)
		}
		if table.Rows() != 3 {
			t.Errorf("%s rows = %d, want 3", name, table.Rows())
		}
	}
}

// A repeated run over the same output regenerates nothing: every job is
// skipped and the simulator is never invoked again.
func TestRunIdempotent(t *testing.T) {
	col := writeFixture(t, toyCollection)
	out := t.TempDir()
	f := &fakeSimulator{}
	eng, s := newTestEngine(t, f)

	opts := engine.PlanOptions{
		OutputPath: out,
		BudgetKB:   1 << 20,
		Workers:    2,
	}
	if _, err := eng.Run(context.Background(), col, opts); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := f.calls.Load()

	second, err := eng.Run(context.Background(), col, opts)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := f.calls.Load(); got != before {
		t.Errorf("simulator calls = %d, want unchanged %d", got, before)
	}
	counts := jobsByStatus(t, s, second.ID)
	if counts[model.StatusSkipped] != 2 {
		t.Errorf("status counts = %v, want 2 skipped", counts)
	}
}

// Force plus a selector regenerates exactly the selected pair.
func TestRunForceSelective(t *testing.T) {
	col := writeFixture(t, toyCollection)
	out := t.TempDir()
	f := &fakeSimulator{}
	eng, s := newTestEngine(t, f)

	if _, err := eng.Run(context.Background(), col, engine.PlanOptions{
		OutputPath: out,
		BudgetKB:   1 << 20,
		Workers:    2,
	}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := f.calls.Load()

	run, err := eng.Run(context.Background(), col, engine.PlanOptions{
		OutputPath: out,
		BudgetKB:   1 << 20,
		Workers:    2,
		Force:      true,
		Selection:  []string{"Toy.L1"},
	})
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if got := f.calls.Load(); got != before+1 {
		t.Errorf("simulator calls = %d, want %d (one regeneration)", got, before+1)
	}
	jobs, err := s.ListJobs(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].LeakConfig != "L1" || jobs[0].Status != model.StatusDone {
		t.Errorf("jobs = %+v, want one done Toy.L1", jobs)
	}
}

// recordingStore passes through to a real store while capturing every
// job update, so tests can inspect records exactly as the engine wrote them.
type recordingStore struct {
	store.Store
	mu      sync.Mutex
	updated []*model.JobRecord
}

func (r *recordingStore) UpdateJob(ctx context.Context, rec *model.JobRecord) error {
	r.mu.Lock()
	r.updated = append(r.updated, rec)
	r.mu.Unlock()
	return r.Store.UpdateJob(ctx, rec)
}

// Every timestamp the engine stamps on a job record is UTC.
func TestJobTimestampsUTC(t *testing.T) {
	col := writeFixture(t, toyCollection)
	f := &fakeSimulator{}
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := sim.NewRegistry()
	reg.Register(f)
	rs := &recordingStore{Store: s}
	eng := engine.NewEngine(rs, reg, discardLogger(), "fake", model.PrecisionCSV)

	if _, err := eng.Run(context.Background(), col, engine.PlanOptions{
		OutputPath: t.TempDir(),
		BudgetKB:   1 << 20,
		Workers:    1,
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.updated) == 0 {
		t.Fatal("no job updates recorded")
	}
	for _, rec := range rs.updated {
		if rec.StartedAt != nil && rec.StartedAt.Location() != time.UTC {
			t.Errorf("job %s started_at in %v, want UTC", rec.ID, rec.StartedAt.Location())
		}
		if rec.FinishedAt != nil && rec.FinishedAt.Location() != time.UTC {
			t.Errorf("job %s finished_at in %v, want UTC", rec.ID, rec.FinishedAt.Location())
		}
	}
}

func TestRunSimulatorFailure(t *testing.T) {
	col := writeFixture(t, toyCollection)
	out := t.TempDir()
	f := &fakeSimulator{err: errors.New("no feasible hydraulics")}
	eng, s := newTestEngine(t, f)

	run, err := eng.Run(context.Background(), col, engine.PlanOptions{
		OutputPath: out,
		BudgetKB:   1 << 20,
		Workers:    2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	jobs, err := s.ListJobs(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	for _, j := range jobs {
		if j.Status != model.StatusFailed {
			t.Errorf("job %s.%s status = %q, want failed", j.Scenario, j.LeakConfig, j.Status)
		}
		if j.Error == "" {
			t.Error("failed job should carry the error message")
		}
	}
	// A failed job leaves no measurements, so a rerun retries it.
	if _, err := eng.Run(context.Background(), col, engine.PlanOptions{
		OutputPath: out,
		BudgetKB:   1 << 20,
		Workers:    2,
	}); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if got := f.calls.Load(); got != 4 {
		t.Errorf("simulator calls = %d, want 4 (failed jobs retried)", got)
	}
}

func TestRunRecordsOverBudgetSkips(t *testing.T) {
	xml := toyCollection
	xml = xml[:len(xml)-len("</ScenarioCollection>")] + hugeScenario
	col := writeFixture(t, xml)
	out := t.TempDir()
	f := &fakeSimulator{}
	eng, s := newTestEngine(t, f)

	run, err := eng.Run(context.Background(), col, engine.PlanOptions{
		OutputPath: out,
		BudgetKB:   10000,
		Workers:    2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	jobs, err := s.ListJobs(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	var skipped *model.JobRecord
	for _, j := range jobs {
		if j.Scenario == "Huge" {
			skipped = j
		}
	}
	if skipped == nil {
		t.Fatal("over-budget job missing from history")
	}
	if skipped.Status != model.StatusSkipped || skipped.Error == "" {
		t.Errorf("skipped job = %+v", skipped)
	}
}
