package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hybridcore/internal/coordinator"
	"hybridcore/internal/core"
	"hybridcore/internal/lock"
)

// fakeExecutor lets each test supply a per-call behavior keyed by agent ID,
// and tracks concurrently-running invocations so tests can assert on
// observed parallelism (spec §8 invariant 1, end-to-end scenario 2/3/4).
type fakeExecutor struct {
	mu       sync.Mutex
	running  int
	peak     int
	behavior func(id string) (ExecResult, error)
	delay    time.Duration
	starts   map[string]time.Time
	ends     map[string]time.Time
}

func newFakeExecutor(behavior func(id string) (ExecResult, error)) *fakeExecutor {
	return &fakeExecutor{behavior: behavior, starts: map[string]time.Time{}, ends: map[string]time.Time{}}
}

func (f *fakeExecutor) Execute(ctx context.Context, config core.AgentConfig, onReport func(core.AgentReport)) (ExecResult, error) {
	f.mu.Lock()
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	f.starts[config.ID] = time.Now()
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.mu.Lock()
			f.running--
			f.mu.Unlock()
			return ExecResult{}, ctx.Err()
		}
	}

	res, err := f.behavior(config.ID)

	f.mu.Lock()
	f.running--
	f.ends[config.ID] = time.Now()
	f.mu.Unlock()

	return res, err
}

func newSchedulerForTest() *Scheduler {
	return New(lock.New(), coordinator.New())
}

func agentConfig(id string, deps ...string) core.AgentConfig {
	return core.AgentConfig{
		ID:           id,
		Prompt:       "do work",
		ModelTier:    core.ModelTierBalanced,
		Dependencies: deps,
		TTL:          core.TTLTask,
		Spec:         core.AgentSpec{Name: id},
	}
}

func alwaysSucceed(id string) (ExecResult, error) {
	return ExecResult{Success: true, Output: "ok:" + id}, nil
}

func TestMaxAgentsBoundsParallelism(t *testing.T) {
	sched := newSchedulerForTest()
	exec := newFakeExecutor(alwaysSucceed)
	exec.delay = 20 * time.Millisecond

	var agents []core.AgentConfig
	for i := 0; i < 10; i++ {
		agents = append(agents, agentConfig(string(rune('a'+i))))
	}

	result := sched.Execute(context.Background(), agents, core.SwarmConfig{MaxAgents: 3, ReportingMode: core.ReportingFull}, exec, nil)

	if result.Statistics.ParallelPeak > 3 {
		t.Fatalf("expected parallel peak <= 3, got %d", result.Statistics.ParallelPeak)
	}
	if exec.peak > 3 {
		t.Fatalf("executor observed more than 3 concurrent invocations: %d", exec.peak)
	}
	if result.Statistics.Completed != 10 {
		t.Fatalf("expected all 10 agents to complete, got %d", result.Statistics.Completed)
	}
}

func TestTotalIterationsSumsPerRuntimeIterationsFromTheExecutor(t *testing.T) {
	// spec §4.6.8: totalIterations is the sum of per-runtime iterations,
	// which only the executor (opaque per spec §6.1) can report.
	sched := newSchedulerForTest()
	exec := newFakeExecutor(func(id string) (ExecResult, error) {
		iterations := map[string]int{"A": 3, "B": 4}[id]
		return ExecResult{Success: true, Output: "ok:" + id, Iterations: iterations}, nil
	})

	agents := []core.AgentConfig{agentConfig("A"), agentConfig("B")}
	result := sched.Execute(context.Background(), agents, core.SwarmConfig{MaxAgents: 2, ReportingMode: core.ReportingFull}, exec, nil)

	if result.Statistics.TotalIterations != 7 {
		t.Fatalf("expected totalIterations = 3+4 = 7, got %d", result.Statistics.TotalIterations)
	}
	for _, rt := range result.Agents {
		want := map[string]int{"A": 3, "B": 4}[rt.Config.ID]
		if rt.Iterations != want {
			t.Fatalf("expected runtime %q iterations = %d, got %d", rt.Config.ID, want, rt.Iterations)
		}
	}
}

func TestDependencyGating(t *testing.T) {
	sched := newSchedulerForTest()
	exec := newFakeExecutor(alwaysSucceed)
	exec.delay = 15 * time.Millisecond

	agents := []core.AgentConfig{
		agentConfig("A"),
		agentConfig("B", "A"),
	}

	result := sched.Execute(context.Background(), agents, core.SwarmConfig{MaxAgents: 5, ReportingMode: core.ReportingFull}, exec, nil)

	var aEnd, bStart time.Time
	for _, rt := range result.Agents {
		switch rt.Config.ID {
		case "A":
			aEnd = rt.EndTime
		case "B":
			bStart = rt.StartTime
		}
	}
	if bStart.Before(aEnd) {
		t.Fatalf("expected B to start (%v) no earlier than A ended (%v)", bStart, aEnd)
	}
	if result.Statistics.Completed != 2 {
		t.Fatalf("expected both agents to complete, got %d", result.Statistics.Completed)
	}
}

func TestFailedDependencyPermanentlyBlocksDependent(t *testing.T) {
	// Spec §9 open question 1: a non-completed predecessor blocks its
	// dependent forever, rather than unblocking on any terminal state.
	sched := newSchedulerForTest()
	exec := newFakeExecutor(func(id string) (ExecResult, error) {
		if id == "A" {
			return ExecResult{Success: false, Error: "boom"}, nil
		}
		return ExecResult{Success: true, Output: "ok"}, nil
	})

	agents := []core.AgentConfig{
		agentConfig("A"),
		agentConfig("B", "A"),
	}

	result := sched.Execute(context.Background(), agents, core.SwarmConfig{MaxAgents: 5, Timeout: 300 * time.Millisecond, ReportingMode: core.ReportingFull}, exec, nil)

	var bStatus core.AgentStatus
	for _, rt := range result.Agents {
		if rt.Config.ID == "B" {
			bStatus = rt.Status
		}
	}
	if bStatus == core.StatusCompleted {
		t.Fatalf("expected B to remain blocked after A failed, got status %q", bStatus)
	}
}

func TestAggregatedOutputNonEmptyUnderSparseReporting(t *testing.T) {
	sched := newSchedulerForTest()
	exec := newFakeExecutor(alwaysSucceed)

	agents := []core.AgentConfig{agentConfig("A"), agentConfig("B")}
	result := sched.Execute(context.Background(), agents, core.SwarmConfig{MaxAgents: 2, ReportingMode: core.ReportingSparse}, exec, nil)

	if result.AggregatedOutput == "" {
		t.Fatal("expected non-empty aggregated output for two completed agents")
	}
}

func TestCancelIsIdempotentAndStopsTheRun(t *testing.T) {
	sched := newSchedulerForTest()
	var started int32
	exec := newFakeExecutor(func(id string) (ExecResult, error) {
		atomic.AddInt32(&started, 1)
		return ExecResult{Success: true}, nil
	})
	exec.delay = 50 * time.Millisecond

	agents := []core.AgentConfig{agentConfig("A"), agentConfig("B")}

	go func() {
		time.Sleep(5 * time.Millisecond)
		sched.Cancel()
		sched.Cancel() // idempotent: must not panic
	}()

	result := sched.Execute(context.Background(), agents, core.SwarmConfig{MaxAgents: 2, ReportingMode: core.ReportingFull}, exec, nil)

	if result.Success {
		t.Fatal("expected a cancelled run to report Success=false")
	}
	if result.Statistics.Cancelled == 0 {
		t.Fatal("expected at least one agent marked cancelled")
	}
}

func TestTimeoutCancelsEveryAgent(t *testing.T) {
	sched := newSchedulerForTest()
	exec := newFakeExecutor(alwaysSucceed)
	exec.delay = 2 * time.Second // far longer than the configured timeout

	agents := []core.AgentConfig{agentConfig("A"), agentConfig("B"), agentConfig("C")}
	timeout := 50 * time.Millisecond

	start := time.Now()
	result := sched.Execute(context.Background(), agents, core.SwarmConfig{MaxAgents: 3, Timeout: timeout, ReportingMode: core.ReportingFull}, exec, nil)
	elapsed := time.Since(start)

	if result.Success {
		t.Fatal("expected timeout run to report Success=false")
	}
	if result.Statistics.Cancelled != len(agents) {
		t.Fatalf("expected all %d agents cancelled by timeout, got %d", len(agents), result.Statistics.Cancelled)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("expected the run to stop near the timeout, took %v", elapsed)
	}
}

// eventRecorder is a minimal EventSink capturing call order for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (e *eventRecorder) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, s)
}

func (e *eventRecorder) Started(n int)                          { e.add("started") }
func (e *eventRecorder) AgentAdded(id, name, role string)        { e.add("added:" + id) }
func (e *eventRecorder) AgentUpdated(id string, st core.AgentStatus) { e.add("updated:" + id) }
func (e *eventRecorder) AgentCompleted(id, output string)        { e.add("completed:" + id) }
func (e *eventRecorder) AgentFailed(id, errMsg string)           { e.add("failed:" + id) }
func (e *eventRecorder) Cancelled()                              { e.add("cancelled") }
func (e *eventRecorder) Completed(stats Statistics)              { e.add("done") }

func TestEventSinkReceivesLifecycleEvents(t *testing.T) {
	sched := newSchedulerForTest()
	exec := newFakeExecutor(alwaysSucceed)
	rec := &eventRecorder{}

	agents := []core.AgentConfig{agentConfig("A")}
	sched.Execute(context.Background(), agents, core.SwarmConfig{MaxAgents: 1, ReportingMode: core.ReportingFull}, exec, rec)

	if len(rec.events) == 0 || rec.events[0] != "started" {
		t.Fatalf("expected the first event to be 'started', got %v", rec.events)
	}
	if rec.events[len(rec.events)-1] != "done" {
		t.Fatalf("expected the last event to be 'done', got %v", rec.events)
	}
}

func TestOptimisticModeCompletesEveryTaskWithinBoundedParallelism(t *testing.T) {
	// End-to-end scenario 4: every agent's task is eventually completed
	// via optimistic claiming (no dependency DAG), observed parallelism
	// bounded by maxAgents, driven through the real Scheduler rather than
	// hand-rolled worker goroutines against ClaimService directly.
	sched := newSchedulerForTest()
	exec := newFakeExecutor(alwaysSucceed)
	exec.delay = 2 * time.Millisecond

	const maxAgents = 3
	var agents []core.AgentConfig
	for i := 0; i < 5; i++ {
		agents = append(agents, agentConfig(string(rune('a'+i))))
	}

	result := sched.Execute(context.Background(), agents, core.SwarmConfig{
		MaxAgents:     maxAgents,
		ReportingMode: core.ReportingFull,
		ExecutionMode: core.ExecutionOptimistic,
	}, exec, nil)

	if result.Statistics.Completed != len(agents) {
		t.Fatalf("expected all %d agents completed, got %d", len(agents), result.Statistics.Completed)
	}
	if result.Statistics.ParallelPeak > maxAgents {
		t.Fatalf("expected observed parallelism <= %d, got %d", maxAgents, result.Statistics.ParallelPeak)
	}
	if exec.peak > maxAgents {
		t.Fatalf("executor observed more than %d concurrent invocations: %d", maxAgents, exec.peak)
	}
}

func TestOptimisticModeRetriesAFailedTaskUntilItSucceeds(t *testing.T) {
	// spec §4.6.6: fail(taskId, agentId, error) returns a claimed task to
	// available, so a failing task is retried by the pool rather than
	// permanently blocking (there are no dependents in optimistic mode).
	sched := newSchedulerForTest()
	var attempts int32
	exec := newFakeExecutor(func(id string) (ExecResult, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return ExecResult{Success: false, Error: "transient"}, nil
		}
		return ExecResult{Success: true, Output: "ok:" + id}, nil
	})

	agents := []core.AgentConfig{agentConfig("A")}
	result := sched.Execute(context.Background(), agents, core.SwarmConfig{
		MaxAgents:     1,
		ReportingMode: core.ReportingFull,
		ExecutionMode: core.ExecutionOptimistic,
	}, exec, nil)

	if result.Statistics.Completed != 1 {
		t.Fatalf("expected the retried task to eventually complete, got stats %+v", result.Statistics)
	}
	if atomic.LoadInt32(&attempts) < 2 {
		t.Fatalf("expected at least 2 attempts (one failure, one retry), got %d", attempts)
	}
}
