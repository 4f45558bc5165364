package factory

import (
	"testing"
	"time"

	"hybridcore/internal/core"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestCreateFromSpecsResolvesDependencyNames(t *testing.T) {
	f := New()
	specs := []core.AgentSpec{
		{Name: "planner", Responsibility: "design the approach", Parallelizable: false},
		{Name: "worker", Responsibility: "implement the change", Parallelizable: true, Dependencies: []string{"planner"}},
	}

	result, err := f.CreateFromSpecs(specs, Context{ParentTaskID: "task-1", Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(result.Agents))
	}

	plannerID := result.Agents[0].ID
	worker := result.Agents[1]
	if len(worker.Dependencies) != 1 || worker.Dependencies[0] != plannerID {
		t.Fatalf("expected worker to depend on resolved planner id %q, got %v", plannerID, worker.Dependencies)
	}
}

func TestMergeToolsIsDeterministic(t *testing.T) {
	// spec §8 invariant 7: createFromSpecs must be deterministic given the
	// same input/timestamp; mergeTools ranges over a map internally, so
	// its output must be sorted rather than left at map-iteration order.
	spec := core.AgentSpec{Name: "worker", Responsibility: "implement and test the change", Tools: []string{"grep"}}

	var first []string
	for i := 0; i < 20; i++ {
		f := New()
		result, err := f.CreateFromSpecs([]core.AgentSpec{spec}, Context{Now: fixedNow})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tools := result.Agents[0].Tools
		if first == nil {
			first = tools
			continue
		}
		if len(tools) != len(first) {
			t.Fatalf("tool set length varied across runs: %v vs %v", first, tools)
		}
		for i := range tools {
			if tools[i] != first[i] {
				t.Fatalf("tool order varied across runs: %v vs %v", first, tools)
			}
		}
	}
}

func TestCreateFromSpecsDropsUnresolvedDependencyName(t *testing.T) {
	f := New()
	specs := []core.AgentSpec{
		{Name: "worker", Responsibility: "implement it", Dependencies: []string{"nonexistent"}},
	}
	result, err := f.CreateFromSpecs(specs, Context{Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Agents[0].Dependencies) != 0 {
		t.Fatalf("expected unresolved dependency to be dropped, got %v", result.Agents[0].Dependencies)
	}
}

func TestModelTierSelection(t *testing.T) {
	f := New()
	specs := []core.AgentSpec{
		{Name: "designer", Responsibility: "design and implement the new auth module"},
		{Name: "searcher", Responsibility: "find and list all usages"},
		{Name: "other", Responsibility: "check the current state"},
	}
	result, _ := f.CreateFromSpecs(specs, Context{Now: fixedNow})
	if result.Agents[0].ModelTier != core.ModelTierPowerful {
		t.Fatalf("expected powerful tier for design/implement, got %v", result.Agents[0].ModelTier)
	}
	if result.Agents[1].ModelTier != core.ModelTierFast {
		t.Fatalf("expected fast tier for read-only search, got %v", result.Agents[1].ModelTier)
	}
	if result.Agents[2].ModelTier != core.ModelTierBalanced {
		t.Fatalf("expected balanced tier as default, got %v", result.Agents[2].ModelTier)
	}
}

func TestExecutionOrderClassification(t *testing.T) {
	f := New()

	parallel, _ := f.CreateFromSpecs([]core.AgentSpec{
		{Name: "a", Parallelizable: true},
		{Name: "b", Parallelizable: true},
	}, Context{Now: fixedNow})
	if parallel.ExecutionOrder != OrderParallel {
		t.Fatalf("expected parallel order, got %v", parallel.ExecutionOrder)
	}

	sequential, _ := f.CreateFromSpecs([]core.AgentSpec{
		{Name: "a", Parallelizable: false},
		{Name: "b", Parallelizable: false},
	}, Context{Now: fixedNow})
	if sequential.ExecutionOrder != OrderSequential {
		t.Fatalf("expected sequential order, got %v", sequential.ExecutionOrder)
	}

	mixed, _ := f.CreateFromSpecs([]core.AgentSpec{
		{Name: "a", Parallelizable: true},
		{Name: "b", Parallelizable: false},
	}, Context{Now: fixedNow})
	if mixed.ExecutionOrder != OrderMixed {
		t.Fatalf("expected mixed order, got %v", mixed.ExecutionOrder)
	}
}

func TestDestroyTaskAgentsRemovesActiveEntries(t *testing.T) {
	f := New()
	result, _ := f.CreateFromSpecs([]core.AgentSpec{{Name: "a"}}, Context{ParentTaskID: "task-1", Now: fixedNow})
	id := result.Agents[0].ID
	if _, ok := f.Active(id); !ok {
		t.Fatalf("expected agent to be active after creation")
	}
	f.DestroyTaskAgents("task-1")
	if _, ok := f.Active(id); ok {
		t.Fatalf("expected agent to be removed after DestroyTaskAgents")
	}
}
