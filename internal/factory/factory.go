// Package factory implements the AgentFactory: it synthesizes executable
// AgentConfigs from AgentSpecs, resolving dependency names to ids within
// one routing decision, picking a model tier and iteration budget by
// keyword match on the spec's responsibility text, and merging a
// recommended tool set with the spec's requested tools.
//
// Grounded on the teacher's internal/agent/dynamic_types.go (tool/role
// registry shape) and internal/agent/types.go (AllowedTools-by-keyword
// idiom); the registry itself is generalized from the teacher's five
// fixed AgentType roles into an open, spec-driven tool catalogue.
package factory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"hybridcore/internal/core"
	"hybridcore/internal/logging"
)

// knownTools is the registry AgentSpec.tools and recommendation merging
// are filtered against; unknown tool identifiers are dropped.
var knownTools = map[string]bool{
	"read_file": true, "glob": true, "grep": true, "list_dir": true, "tree": true,
	"bash": true, "write_file": true, "edit_file": true, "diff": true,
	"web_fetch": true, "web_search": true, "todo": true, "ask_user": true,
}

var (
	writeVerbPattern = regexp.MustCompile(`(?i)\b(design|architect|implement|refactor|create|write|build|modify|fix)\b`)
	readVerbPattern  = regexp.MustCompile(`(?i)\b(search|find|list|explore|inspect|read|review|look)\b`)
	testVerbPattern  = regexp.MustCompile(`(?i)\b(test|verify|validate|check)\b`)
)

// ExecutionOrder is the closed classification of how a batch of specs
// relates to each other, derived purely from parallelizable flags and
// dependency edges (spec §4.2 step 6).
type ExecutionOrder string

const (
	OrderParallel   ExecutionOrder = "parallel"
	OrderSequential ExecutionOrder = "sequential"
	OrderMixed      ExecutionOrder = "mixed"
)

// Result is the output of CreateFromSpecs.
type Result struct {
	Agents        []core.AgentConfig
	ExecutionOrder ExecutionOrder
}

// Context carries the parent task id and a timestamp source so id
// generation is deterministic given the same input and clock.
type Context struct {
	ParentTaskID string
	Now          func() time.Time
}

// Factory synthesizes AgentConfigs and tracks the active set keyed by id,
// so destroyAgent/destroyTaskAgents can retire them. It owns no other
// state; per spec §3.2 it is the sole owner of the active-agent map.
type Factory struct {
	mu     sync.Mutex
	active map[string]core.AgentConfig
}

// New creates an empty Factory.
func New() *Factory {
	return &Factory{active: make(map[string]core.AgentConfig)}
}

// CreateFromSpecs synthesizes one AgentConfig per spec, in the order
// given, resolving each spec's dependency names against the ids assigned
// to this same batch. Names that don't resolve within the batch are
// silently dropped (and logged), per spec §4.2 step 2.
func (f *Factory) CreateFromSpecs(specs []core.AgentSpec, ctx Context) (Result, error) {
	if ctx.Now == nil {
		ctx.Now = time.Now
	}
	now := ctx.Now()
	ts := now.UnixNano()

	ids := make(map[string]string, len(specs)) // spec name -> id
	for i, s := range specs {
		ids[s.Name] = fmt.Sprintf("dynamic-%s-%d-%d", sanitize(s.Name), ts, i)
	}

	agents := make([]core.AgentConfig, 0, len(specs))
	for _, s := range specs {
		var deps []string
		for _, depName := range s.Dependencies {
			if depID, ok := ids[depName]; ok {
				deps = append(deps, depID)
			} else {
				logging.Warn("factory: dropping unresolved dependency name", "spec", s.Name, "dependency", depName)
			}
		}

		tier := pickModelTier(s.Responsibility)
		maxIter := pickMaxIterations(s.Responsibility)
		timeout := time.Duration(maxIter)*30*time.Second + 60*time.Second

		tools := mergeTools(s.Tools, s.Responsibility)

		agent := core.AgentConfig{
			ID:            ids[s.Name],
			Prompt:        s.Responsibility,
			Tools:         tools,
			ModelTier:     tier,
			MaxIterations: maxIter,
			Timeout:       timeout,
			ParentTaskID:  ctx.ParentTaskID,
			Dependencies:  deps,
			TTL:           core.TTLTask,
			Spec:          s,
		}
		agents = append(agents, agent)
	}

	f.mu.Lock()
	for _, a := range agents {
		f.active[a.ID] = a
	}
	f.mu.Unlock()

	return Result{Agents: agents, ExecutionOrder: classifyOrder(specs)}, nil
}

// DestroyAgent removes a single agent from the active map. The scheduler
// never resurrects a destroyed id.
func (f *Factory) DestroyAgent(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, id)
}

// DestroyTaskAgents removes every active agent belonging to parentTaskID.
func (f *Factory) DestroyTaskAgents(parentTaskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, a := range f.active {
		if a.ParentTaskID == parentTaskID {
			delete(f.active, id)
		}
	}
}

// Active returns the AgentConfig for id if it has not been destroyed.
func (f *Factory) Active(id string) (core.AgentConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.active[id]
	return a, ok
}

func pickModelTier(responsibility string) core.ModelTier {
	lower := strings.ToLower(responsibility)
	if writeVerbPattern.MatchString(lower) {
		return core.ModelTierPowerful
	}
	if readVerbPattern.MatchString(lower) && !writeVerbPattern.MatchString(lower) {
		return core.ModelTierFast
	}
	return core.ModelTierBalanced
}

func pickMaxIterations(responsibility string) int {
	lower := strings.ToLower(responsibility)
	switch {
	case readVerbPattern.MatchString(lower) && !writeVerbPattern.MatchString(lower):
		return 8
	case writeVerbPattern.MatchString(lower):
		return 15
	case testVerbPattern.MatchString(lower):
		return 10
	default:
		return 12
	}
}

func mergeTools(requested []string, responsibility string) []string {
	set := map[string]bool{"read_file": true, "glob": true}

	lower := strings.ToLower(responsibility)
	if writeVerbPattern.MatchString(lower) {
		set["write_file"] = true
		set["edit_file"] = true
	}
	if readVerbPattern.MatchString(lower) {
		set["grep"] = true
		set["list_dir"] = true
	}
	if testVerbPattern.MatchString(lower) {
		set["bash"] = true
	}

	for _, t := range requested {
		if knownTools[t] {
			set[t] = true
		} else {
			logging.Warn("factory: dropping unknown requested tool", "tool", t)
		}
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	// Deterministic order: spec §8 invariant 7 requires createFromSpecs to
	// be deterministic given the same input and timestamp, but ranging
	// over set above randomizes Go map iteration order.
	sort.Strings(out)
	return out
}

// classifyOrder implements spec §4.2 step 6 literally, in priority order:
// parallel if every spec is parallelizable and none has a dependency;
// sequential if none is parallelizable, or any has a dependency; else
// mixed (some parallelizable, some not, independent of dependencies).
func classifyOrder(specs []core.AgentSpec) ExecutionOrder {
	allParallel := true
	noneParallel := true
	anyDeps := false
	for _, s := range specs {
		if s.Parallelizable {
			noneParallel = false
		} else {
			allParallel = false
		}
		if len(s.Dependencies) > 0 {
			anyDeps = true
		}
	}

	if allParallel && !anyDeps {
		return OrderParallel
	}
	if noneParallel || anyDeps {
		return OrderSequential
	}
	return OrderMixed
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}
