// Package router implements the TaskRouter: it classifies a task via
// internal/analyzer and chooses between a core role, an ad-hoc set of
// dynamic specialists, or a parallel swarm, per spec §4.3.
//
// Grounded on spec.md §4.3 directly; the routing-decision shape follows
// the teacher's (now-removed) internal/router/router.go RoutingDecision/
// HandlerType types, re-targeted at internal/core's discriminated-union
// RoutingDecision instead of the teacher's genai/tools-coupled execution
// path.
package router

import (
	"time"

	"hybridcore/internal/analyzer"
	"hybridcore/internal/core"
)

// staticTaskTypeToRole is the fallback task-type -> core-role map used
// when no Profiler is set or it has no recommendation.
var staticTaskTypeToRole = map[analyzer.TaskType]string{
	analyzer.TaskTypeReview:   "reviewer",
	analyzer.TaskTypeSearch:   "explore",
	analyzer.TaskTypePlan:     "plan",
	analyzer.TaskTypeTest:     "coder",
	analyzer.TaskTypeData:     "coder",
	analyzer.TaskTypePPT:      "coder",
	analyzer.TaskTypeDocument: "coder",
	analyzer.TaskTypeImage:    "coder",
	analyzer.TaskTypeCode:     "coder",
}

// knownCoreRoles is the closed set of core role identifiers spec's
// glossary names: coder, reviewer, explore, plan.
var knownCoreRoles = map[string]bool{
	"coder": true, "reviewer": true, "explore": true, "plan": true,
}

// ProfileRecommendation is what a Profiler returns for a task type.
type ProfileRecommendation struct {
	Role        string
	WilsonScore float64
	Executions  int
}

// Profiler is a pluggable, optional source of learned role recommendations
// per task type, consulted only when routing to a core role.
type Profiler interface {
	Recommend(taskType analyzer.TaskType) (ProfileRecommendation, bool)
}

// Router implements TaskRouter.Route.
type Router struct {
	profiler Profiler
}

// New creates a Router with no profiler; SetProfiler attaches one later.
func New() *Router {
	return &Router{}
}

// SetProfiler attaches a pluggable profiler consulted for core-role routing.
func (r *Router) SetProfiler(p Profiler) {
	r.profiler = p
}

// Route implements spec §4.3's decision rules in order.
func (r *Router) Route(ctx core.RoutingContext) core.RoutingDecision {
	if ctx.ForcedAgentID != "" && knownCoreRoles[ctx.ForcedAgentID] {
		return core.RoutingDecision{Type: core.RouteCore, CoreRole: ctx.ForcedAgentID}
	}

	analysis := analyzer.Analyze(ctx.Task)

	switch {
	case analysis.Complexity == analyzer.ComplexitySimple,
		analysis.Complexity == analyzer.ComplexityModerate && len(analysis.Specializations) <= 1,
		analysis.Parallelism <= 1:
		return r.routeCore(analysis)

	case analysis.Parallelism >= 3,
		analysis.Complexity == analyzer.ComplexityComplex && len(analysis.Specializations) >= 2,
		analysis.EstimatedSteps >= 15:
		return r.routeSwarm(analysis)

	default:
		return r.routeDynamic(analysis)
	}
}

func (r *Router) routeCore(analysis analyzer.TaskAnalysis) core.RoutingDecision {
	role := staticTaskTypeToRole[analysis.TaskType]
	if role == "" {
		role = "coder"
	}
	if r.profiler != nil {
		if rec, ok := r.profiler.Recommend(analysis.TaskType); ok && rec.Role != "" {
			role = rec.Role
		}
	}
	return core.RoutingDecision{Type: core.RouteCore, CoreRole: role}
}

func (r *Router) routeDynamic(analysis analyzer.TaskAnalysis) core.RoutingDecision {
	specs := []core.AgentSpec{
		{
			Name:           string(analysis.TaskType) + "-specialist",
			Responsibility: "Handle the task: " + string(analysis.TaskType),
			Tools:          []string{"read_file", "glob", "grep"},
			Parallelizable: false,
		},
	}
	return core.RoutingDecision{Type: core.RouteDynamic, Specs: specs}
}

// routeSwarm builds the spec list described in spec §4.3 step 5: one
// non-parallel task-planner with no deps, one parallel "{spec}-worker" per
// specialization depending on the planner, then up to 5 extra generic
// worker-k fillers to reach the target parallelism.
func (r *Router) routeSwarm(analysis analyzer.TaskAnalysis) core.RoutingDecision {
	var specs []core.AgentSpec
	specs = append(specs, core.AgentSpec{
		Name:           "task-planner",
		Responsibility: "Plan the decomposition for: " + string(analysis.TaskType),
		Parallelizable: false,
	})

	for _, spec := range analysis.Specializations {
		specs = append(specs, core.AgentSpec{
			Name:           string(spec) + "-worker",
			Responsibility: "Handle the " + string(spec) + " portion of the task",
			Tools:          []string{"read_file", "glob", "grep"},
			Parallelizable: true,
			Dependencies:   []string{"task-planner"},
		})
	}

	fillers := analysis.Parallelism - len(specs)
	if fillers > 5 {
		fillers = 5
	}
	for i := 0; i < fillers; i++ {
		specs = append(specs, core.AgentSpec{
			Name:           filler(i),
			Responsibility: "Assist with the remaining portion of the task",
			Parallelizable: true,
			Dependencies:   []string{"task-planner"},
		})
	}

	maxAgents := analysis.Parallelism * 2
	if maxAgents > 50 {
		maxAgents = 50
	}
	if maxAgents < 1 {
		maxAgents = 1
	}

	swarmConfig := core.SwarmConfig{
		MaxAgents:          maxAgents,
		ReportingMode:      core.ReportingSparse,
		ConflictResolution: core.ConflictCoordinator,
		Timeout:            time.Duration(analysis.EstimatedSteps) * 60 * time.Second,
	}

	executionMode := core.ExecutionOptimistic
	for _, s := range specs {
		if len(s.Dependencies) > 0 {
			executionMode = core.ExecutionDAG
			break
		}
	}
	swarmConfig.ExecutionMode = executionMode

	return core.RoutingDecision{
		Type:          core.RouteSwarm,
		Specs:         specs,
		SwarmConfig:   swarmConfig,
		ExecutionMode: executionMode,
	}
}

func filler(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "worker-" + string(letters[i%len(letters)])
}
