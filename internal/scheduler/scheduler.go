// Package scheduler implements SwarmScheduler, the hardest component in
// spec §4.6: bounded-parallelism execution of a batch of AgentConfigs,
// either DAG-ordered (dependency gating) or optimistic-claim (first-come
// task pool), with sparse reporting, resource locks, timeout and
// cooperative cancellation.
//
// Grounded on the teacher's internal/agent/coordinator.go processLoop /
// processReadyTasks / checkCompletedAgents / unblockDependents event loop
// (select over a completion channel, a periodic fallback tick, and
// context cancellation) and internal/agent/priority_queue.go's heap-
// ordered ready queue, generalized from the teacher's fixed maxParallel
// slot accounting into spec's config.MaxAgents bound.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hybridcore/internal/coordinator"
	"hybridcore/internal/core"
	"hybridcore/internal/lock"
)

// tickInterval is the periodic fallback the main loop wakes on even with
// no agent completion, per spec §4.6.3 step 4 ("a 5 s periodic tick").
const tickInterval = 5 * time.Second

// idlePoll is the sleep applied when there are no ready agents and no
// running agents (spec §5, suspension point b).
const idlePoll = 100 * time.Millisecond

// ExecResult is what an AgentExecutor returns for one agent run.
type ExecResult struct {
	Success bool
	Output  string
	Error   string

	// Iterations is the number of internal loop turns the executor took
	// to reach this result, independently of success/failure; it feeds
	// AgentRuntime.Iterations and Statistics.TotalIterations (spec
	// §4.6.8). The executor is the only party that knows this count
	// (spec §6.1 treats it as opaque), so it reports it here.
	Iterations int
}

// AgentExecutor is the required external collaborator (spec §6.1):
// invoked at most once per runtime; onReport may be called any number of
// times; a returned error is treated as failed, matching "thrown
// exceptions are treated as failed" for a Go-idiomatic error return.
type AgentExecutor interface {
	Execute(ctx context.Context, config core.AgentConfig, onReport func(core.AgentReport)) (ExecResult, error)
}

// Statistics is the final accounting reported in a SwarmResult.
type Statistics struct {
	ParallelPeak    int
	Total           int
	Completed       int
	Failed          int
	Cancelled       int
	TotalIterations int
}

// SwarmResult is the public return value of Execute.
type SwarmResult struct {
	Success          bool
	Agents           []*core.AgentRuntime
	AggregatedOutput string
	TotalTime        time.Duration
	Statistics       Statistics
}

// EventSink is the push interface spec §6.2 requires, at minimum.
type EventSink interface {
	Started(count int)
	AgentAdded(id, name, role string)
	AgentUpdated(id string, status core.AgentStatus)
	AgentCompleted(id, output string)
	AgentFailed(id, errMsg string)
	Cancelled()
	Completed(stats Statistics)
}

// NullSink discards every event; useful as a default and in tests.
type NullSink struct{}

func (NullSink) Started(int)                           {}
func (NullSink) AgentAdded(string, string, string)      {}
func (NullSink) AgentUpdated(string, core.AgentStatus)  {}
func (NullSink) AgentCompleted(string, string)          {}
func (NullSink) AgentFailed(string, string)             {}
func (NullSink) Cancelled()                             {}
func (NullSink) Completed(Statistics)                   {}

// Scheduler owns the runtimes, report log, and lock table exclusively for
// the duration of one Execute call (spec §3.2); it is safe to reuse
// across calls (Execute resets everything at the start of each run) but
// not to call Execute concurrently with itself.
type Scheduler struct {
	locks *lock.Manager
	coord *coordinator.Coordinator
	now   func() time.Time

	mu        sync.Mutex
	cancelled bool
	cancelCh  chan struct{}
}

// New wires a Scheduler to a lock manager and coordinator it will reset
// and drive exclusively during Execute.
func New(locks *lock.Manager, coord *coordinator.Coordinator) *Scheduler {
	return &Scheduler{locks: locks, coord: coord, now: time.Now}
}

// Cancel asynchronously requests cancellation; idempotent.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.cancelCh != nil {
		close(s.cancelCh)
	}
}

func (s *Scheduler) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// run holds the per-Execute-call mutable state, keeping Scheduler itself
// reusable and free of this state between calls.
type run struct {
	mu       sync.Mutex
	runtimes map[string]*core.AgentRuntime
	order    []string // insertion order, for ready-queue tie-breaking
	running  int
}

// Execute runs agents to completion (or cancellation/timeout) per spec
// §4.6.2-§4.6.8. Dispatches to the DAG-ordered or optimistic-claim loop
// per config.ExecutionMode (spec §4.6.6).
func (s *Scheduler) Execute(ctx context.Context, agents []core.AgentConfig, config core.SwarmConfig, executor AgentExecutor, sink EventSink) SwarmResult {
	if sink == nil {
		sink = NullSink{}
	}

	s.mu.Lock()
	s.cancelled = false
	s.cancelCh = make(chan struct{})
	s.mu.Unlock()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	s.locks.Reset()
	s.coord.Reset()

	r := &run{runtimes: make(map[string]*core.AgentRuntime, len(agents))}
	for _, a := range agents {
		status := core.StatusReady
		if config.ExecutionMode != core.ExecutionOptimistic && len(a.Dependencies) > 0 {
			status = core.StatusPending
		}
		r.runtimes[a.ID] = &core.AgentRuntime{Config: a, Status: status}
		r.order = append(r.order, a.ID)
	}

	sink.Started(len(agents))
	for _, a := range agents {
		sink.AgentAdded(a.ID, a.Spec.Name, a.Spec.Name)
	}

	startTime := s.now()

	var stats Statistics
	if config.ExecutionMode == core.ExecutionOptimistic {
		stats = s.runOptimistic(runCtx, r, agents, config, executor, sink, startTime)
	} else {
		stats = s.runDAG(runCtx, cancelRun, r, config, executor, sink, startTime)
	}

	totalTime := s.now().Sub(startTime)

	runtimes := make([]*core.AgentRuntime, 0, len(r.order))
	for _, id := range r.order {
		runtimes = append(runtimes, r.runtimes[id])
	}

	result := SwarmResult{
		Success:          stats.Failed == 0 && stats.Cancelled == 0,
		Agents:           runtimes,
		AggregatedOutput: coordinator.Aggregate(runtimes),
		TotalTime:        totalTime,
		Statistics:       stats,
	}

	if s.isCancelled() {
		sink.Cancelled()
	}
	sink.Completed(stats)

	return result
}

// runDAG is the dependency-gated execution loop (spec §4.6.2-§4.6.5,
// §4.6.7-§4.6.8).
func (s *Scheduler) runDAG(runCtx context.Context, cancelRun context.CancelFunc, r *run, config core.SwarmConfig, executor AgentExecutor, sink EventSink, startTime time.Time) Statistics {
	doneCh := make(chan string, len(r.runtimes))
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var timeoutCh <-chan time.Time
	if config.Timeout > 0 {
		timer := time.NewTimer(config.Timeout - s.now().Sub(startTime))
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var parallelPeak int
	var totalIterations int

	for {
		if s.isCancelled() {
			cancelRun()
			s.cancelNonTerminal(r, sink)
			break
		}
		if config.Timeout > 0 && s.now().Sub(startTime) > config.Timeout {
			cancelRun()
			s.cancelNonTerminal(r, sink)
			break
		}
		if r.isComplete() {
			break
		}

		ready := r.readyAgentIDs()
		r.mu.Lock()
		slots := config.MaxAgents - r.running
		r.mu.Unlock()
		if slots < 0 {
			slots = 0
		}
		if slots > len(ready) {
			slots = len(ready)
		}
		toExecute := ready[:slots]

		r.mu.Lock()
		r.running += len(toExecute)
		peak := r.running
		// Mark launched runtimes running before their goroutines start, so a
		// later pass of this loop cannot pick them up as ready again.
		for _, id := range toExecute {
			r.runtimes[id].Status = core.StatusRunning
		}
		r.mu.Unlock()
		if peak > parallelPeak {
			parallelPeak = peak
		}

		for _, id := range toExecute {
			rt := r.runtimes[id]
			go s.runAgent(runCtx, r, rt, config, executor, sink, doneCh)
		}

		if len(toExecute) == 0 {
			r.mu.Lock()
			runningNow := r.running
			r.mu.Unlock()
			if runningNow == 0 {
				time.Sleep(idlePoll)
				continue
			}
		}

		select {
		case id := <-doneCh:
			totalIterations += r.runtimes[id].Iterations
			r.updateDependents(id)
		case <-ticker.C:
		case <-timeoutCh:
		case <-s.cancelCh:
		}
	}

	// Drain any in-flight completions recorded after the loop broke, so
	// their iteration counts are still reflected in the final statistics.
	drain(doneCh, r, &totalIterations)

	return r.statistics(parallelPeak, totalIterations)
}

// runOptimistic is the optimistic-claim execution loop (spec §4.6.6): no
// DAG is materialized, every agent's task is published into a
// ClaimService, and a bounded pool of workers drains it until
// IsAllDone() or cancellation.
func (s *Scheduler) runOptimistic(runCtx context.Context, r *run, agents []core.AgentConfig, config core.SwarmConfig, executor AgentExecutor, sink EventSink, startTime time.Time) Statistics {
	claims := newClaimServiceForAgents(agents, claimCleanupInterval)
	defer claims.Stop()

	numWorkers := config.MaxAgents
	if numWorkers > len(agents) {
		numWorkers = len(agents)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	watchDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchDone:
				return
			case <-ticker.C:
				if config.Timeout > 0 && s.now().Sub(startTime) > config.Timeout {
					s.Cancel()
					return
				}
			case <-s.cancelCh:
				return
			}
		}
	}()

	var parallelPeak int
	var peakMu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		workerID := fmt.Sprintf("worker-%d", w)
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			for {
				if s.isCancelled() {
					return
				}
				select {
				case <-runCtx.Done():
					return
				default:
				}

				task, ok := claims.ClaimNext(workerID, nil)
				if !ok {
					if claims.IsAllDone() {
						return
					}
					select {
					case <-runCtx.Done():
						return
					case <-s.cancelCh:
						return
					case <-time.After(idlePoll):
					}
					continue
				}

				rt := r.runtimes[task.ID]

				r.mu.Lock()
				r.running++
				peak := r.running
				r.mu.Unlock()
				peakMu.Lock()
				if peak > parallelPeak {
					parallelPeak = peak
				}
				peakMu.Unlock()

				s.runClaimedTask(runCtx, r, rt, config, executor, sink, claims, workerID)

				r.mu.Lock()
				r.running--
				r.mu.Unlock()
			}
		}(workerID)
	}
	wg.Wait()
	close(watchDone)

	if s.isCancelled() {
		s.cancelNonTerminal(r, sink)
	}

	return r.statistics(parallelPeak, r.sumIterations())
}

func drain(doneCh chan string, r *run, totalIterations *int) {
	for {
		select {
		case id := <-doneCh:
			*totalIterations += r.runtimes[id].Iterations
			r.updateDependents(id)
		default:
			return
		}
	}
}

// runAgent executes one agent (spec §4.6.4) and always releases its locks
// before signalling completion on doneCh; the main loop promotes
// dependents when it receives that signal.
func (s *Scheduler) runAgent(ctx context.Context, r *run, rt *core.AgentRuntime, config core.SwarmConfig, executor AgentExecutor, sink EventSink, doneCh chan<- string) {
	r.mu.Lock()
	rt.Status = core.StatusRunning
	rt.StartTime = s.now()
	r.mu.Unlock()

	r.appendReport(rt, core.AgentReport{AgentID: rt.Config.ID, AgentName: rt.Config.Spec.Name, Type: core.ReportStarted, Timestamp: rt.StartTime})
	s.forwardReport(config, core.AgentReport{AgentID: rt.Config.ID, AgentName: rt.Config.Spec.Name, Type: core.ReportStarted, Timestamp: rt.StartTime})
	sink.AgentUpdated(rt.Config.ID, core.StatusRunning)

	onReport := func(rep core.AgentReport) {
		rep.AgentID = rt.Config.ID
		rep.AgentName = rt.Config.Spec.Name
		if rep.Timestamp.IsZero() {
			rep.Timestamp = s.now()
		}
		r.appendReport(rt, rep)
		s.forwardReport(config, rep)
	}

	result, err := func() (res ExecResult, execErr error) {
		defer func() {
			if p := recover(); p != nil {
				execErr = panicToError(p)
			}
		}()
		return executor.Execute(ctx, rt.Config, onReport)
	}()

	r.mu.Lock()
	alreadyCancelled := rt.Status == core.StatusCancelled
	rt.EndTime = s.now()
	switch {
	case alreadyCancelled:
		// A concurrent timeout/cancellation already finalized this
		// runtime; don't let a late executor return overwrite it.
	case err != nil:
		rt.Status = core.StatusFailed
		rt.Error = err.Error()
		rt.Iterations = result.Iterations
	case result.Success:
		rt.Status = core.StatusCompleted
		rt.Output = result.Output
		rt.Iterations = result.Iterations
	default:
		rt.Status = core.StatusFailed
		rt.Error = result.Error
		rt.Iterations = result.Iterations
	}
	finalStatus := rt.Status
	r.running--
	r.mu.Unlock()

	if !alreadyCancelled {
		terminalReport := core.AgentReport{AgentID: rt.Config.ID, AgentName: rt.Config.Spec.Name, Timestamp: rt.EndTime}
		if finalStatus == core.StatusCompleted {
			terminalReport.Type = core.ReportComplete
			r.appendReport(rt, terminalReport)
			s.forwardReport(config, terminalReport)
			sink.AgentCompleted(rt.Config.ID, rt.Output)
		} else {
			terminalReport.Type = core.ReportFailed
			r.appendReport(rt, terminalReport)
			s.forwardReport(config, terminalReport)
			sink.AgentFailed(rt.Config.ID, rt.Error)
		}
	}

	s.locks.ReleaseAll(rt.Config.ID)
	doneCh <- rt.Config.ID
}

// runClaimedTask executes one claimed task under optimistic-claim mode
// (spec §4.6.6): same per-agent report/event/lock lifecycle as runAgent,
// but success/failure is reported back to the ClaimService instead of a
// completion channel, and a failed task returns to the pool for another
// worker to retry rather than permanently blocking dependents (there are
// no dependencies to block in this mode).
func (s *Scheduler) runClaimedTask(ctx context.Context, r *run, rt *core.AgentRuntime, config core.SwarmConfig, executor AgentExecutor, sink EventSink, claims *ClaimService, workerID string) {
	r.mu.Lock()
	rt.Status = core.StatusRunning
	rt.StartTime = s.now()
	r.mu.Unlock()

	r.appendReport(rt, core.AgentReport{AgentID: rt.Config.ID, AgentName: rt.Config.Spec.Name, Type: core.ReportStarted, Timestamp: rt.StartTime})
	s.forwardReport(config, core.AgentReport{AgentID: rt.Config.ID, AgentName: rt.Config.Spec.Name, Type: core.ReportStarted, Timestamp: rt.StartTime})
	sink.AgentUpdated(rt.Config.ID, core.StatusRunning)

	onReport := func(rep core.AgentReport) {
		rep.AgentID = rt.Config.ID
		rep.AgentName = rt.Config.Spec.Name
		if rep.Timestamp.IsZero() {
			rep.Timestamp = s.now()
		}
		r.appendReport(rt, rep)
		s.forwardReport(config, rep)
	}

	result, err := func() (res ExecResult, execErr error) {
		defer func() {
			if p := recover(); p != nil {
				execErr = panicToError(p)
			}
		}()
		return executor.Execute(ctx, rt.Config, onReport)
	}()

	r.mu.Lock()
	rt.EndTime = s.now()
	rt.Iterations = result.Iterations
	switch {
	case err != nil:
		rt.Status = core.StatusFailed
		rt.Error = err.Error()
	case result.Success:
		rt.Status = core.StatusCompleted
		rt.Output = result.Output
	default:
		rt.Status = core.StatusFailed
		rt.Error = result.Error
	}
	finalStatus := rt.Status
	r.mu.Unlock()

	terminalReport := core.AgentReport{AgentID: rt.Config.ID, AgentName: rt.Config.Spec.Name, Timestamp: rt.EndTime}
	if finalStatus == core.StatusCompleted {
		terminalReport.Type = core.ReportComplete
		r.appendReport(rt, terminalReport)
		s.forwardReport(config, terminalReport)
		sink.AgentCompleted(rt.Config.ID, rt.Output)
		claims.Complete(rt.Config.ID, workerID)
	} else {
		terminalReport.Type = core.ReportFailed
		r.appendReport(rt, terminalReport)
		s.forwardReport(config, terminalReport)
		sink.AgentFailed(rt.Config.ID, rt.Error)
		claims.Fail(rt.Config.ID, workerID)
	}

	s.locks.ReleaseAll(rt.Config.ID)
}

// forwardReport applies spec §4.6.4 step 2's sparse/full filtering before
// handing a report to the coordinator.
func (s *Scheduler) forwardReport(config core.SwarmConfig, rep core.AgentReport) {
	if config.ReportingMode == core.ReportingFull {
		s.coord.Receive(rep)
		return
	}
	switch rep.Type {
	case core.ReportStarted, core.ReportComplete, core.ReportFailed, core.ReportConflict, core.ReportResource:
		s.coord.Receive(rep)
	}
}

func (s *Scheduler) cancelNonTerminal(r *run, sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.runtimes {
		if !rt.Status.IsTerminal() {
			rt.Status = core.StatusCancelled
			rt.EndTime = s.now()
			rep := core.AgentReport{AgentID: rt.Config.ID, AgentName: rt.Config.Spec.Name, Type: core.ReportFailed, Timestamp: rt.EndTime, Data: map[string]any{"reason": "cancelled"}}
			rt.Reports = append(rt.Reports, rep)
			sink.AgentUpdated(rt.Config.ID, core.StatusCancelled)
		}
	}
}

// readyAgentIDs returns ids currently in StatusReady, ordered by the
// originating spec's priority (lower first) then insertion order — see
// SPEC_FULL.md supplemented feature 2.
func (r *run) readyAgentIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ready []string
	for _, id := range r.order {
		if r.runtimes[id].Status == core.StatusReady {
			ready = append(ready, id)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return r.runtimes[ready[i]].Config.Spec.Priority < r.runtimes[ready[j]].Config.Spec.Priority
	})
	return ready
}

// updateDependents implements spec §4.6.5 literally: a dependency that
// terminated non-completed (failed/cancelled) is treated as still
// blocking, intentionally, per spec §9 open question 1.
func (r *run) updateDependents(finishedID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.runtimes {
		if rt.Status != core.StatusPending {
			continue
		}
		unmet := false
		for _, depID := range rt.Config.Dependencies {
			dep, ok := r.runtimes[depID]
			if !ok || dep.Status != core.StatusCompleted {
				unmet = true
				break
			}
		}
		if !unmet {
			rt.Status = core.StatusReady
		}
	}
}

func (r *run) isComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.runtimes {
		if !rt.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (r *run) appendReport(rt *core.AgentRuntime, rep core.AgentReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt.Reports = append(rt.Reports, rep)
}

func (r *run) statistics(parallelPeak, totalIterations int) Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Statistics{ParallelPeak: parallelPeak, Total: len(r.runtimes), TotalIterations: totalIterations}
	for _, rt := range r.runtimes {
		switch rt.Status {
		case core.StatusCompleted:
			stats.Completed++
		case core.StatusFailed:
			stats.Failed++
		case core.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

func (r *run) sumIterations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, rt := range r.runtimes {
		total += rt.Iterations
	}
	return total
}

func panicToError(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return &panicError{p}
}

type panicError struct{ v any }

func (e *panicError) Error() string {
	return "agent executor panicked: " + toString(e.v)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return "unknown panic value"
}
