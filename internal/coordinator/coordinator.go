// Package coordinator implements the Coordinator: it receives sparse
// reports from the scheduler, detects resource conflicts, and aggregates
// completed agents' outputs into a single ordered text block, per spec
// §4.4.
//
// Grounded on the teacher's internal/agent/coordinator.go, split so that
// this package owns only the report-log/aggregation concerns; the
// event-driven scheduling loop those lines also implemented moved to
// internal/scheduler.
package coordinator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"hybridcore/internal/core"
)

// maxReports bounds the retained report log so a long swarm run does not
// leak memory; spec.md is silent on report-log growth but the teacher's
// coordinator applies the same bounded-ring discipline to its own task
// bookkeeping (MaxCoordinatorTasks). See SPEC_FULL.md supplemented
// feature 1.
const maxReports = 2000

// Conflict records a detected resource clash between two agents.
type Conflict struct {
	AgentA   string
	AgentB   string
	Resource string
}

// Coordinator accumulates reports and conflicts for one swarm execution.
type Coordinator struct {
	mu        sync.Mutex
	reports   []core.AgentReport
	conflicts []Conflict
}

// New creates an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Receive appends report to the log; if its type is conflict, the
// (agentA, agentB, resource) triple is recorded separately. data is
// expected to carry "otherAgentId" and "resource" keys when type is
// conflict; absent keys are tolerated (recorded empty).
func (c *Coordinator) Receive(report core.AgentReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reports = append(c.reports, report)
	if len(c.reports) > maxReports {
		c.reports = c.reports[len(c.reports)-maxReports:]
	}

	if report.Type == core.ReportConflict {
		other, _ := report.Data["otherAgentId"].(string)
		resource, _ := report.Data["resource"].(string)
		c.conflicts = append(c.conflicts, Conflict{AgentA: report.AgentID, AgentB: other, Resource: resource})
	}
}

// Reports returns a copy of the accumulated report log.
func (c *Coordinator) Reports() []core.AgentReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.AgentReport, len(c.reports))
	copy(out, c.reports)
	return out
}

// Conflicts returns a copy of the detected conflict list.
func (c *Coordinator) Conflicts() []Conflict {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Conflict, len(c.conflicts))
	copy(out, c.conflicts)
	return out
}

// Aggregate sorts completed runtimes by ascending EndTime (stable, so
// insertion order breaks ties per spec §5), concatenates
// "## {name}\n\n{output}" sections, then appends a "## Failed Agents"
// block listing each failed runtime's error.
func Aggregate(runtimes []*core.AgentRuntime) string {
	completed := make([]*core.AgentRuntime, 0, len(runtimes))
	var failed []*core.AgentRuntime
	for _, r := range runtimes {
		switch r.Status {
		case core.StatusCompleted:
			completed = append(completed, r)
		case core.StatusFailed:
			failed = append(failed, r)
		}
	}

	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].EndTime.Before(completed[j].EndTime)
	})

	var b strings.Builder
	for _, r := range completed {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", r.Config.Spec.Name, r.Output)
	}

	if len(failed) > 0 {
		b.WriteString("## Failed Agents\n\n")
		for _, r := range failed {
			fmt.Fprintf(&b, "- %s: %s\n", r.Config.Spec.Name, r.Error)
		}
	}

	return b.String()
}

// Reset clears both the report log and the conflict list; invoked at the
// start of every scheduler execute call.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = nil
	c.conflicts = nil
}
