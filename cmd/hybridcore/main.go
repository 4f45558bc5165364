// Command hybridcore is the CLI entrypoint wiring TaskAnalyzer →
// TaskRouter → AgentFactory → SwarmScheduler → AgentExecutor, grounded on
// the teacher's cmd/gokin/main.go cobra root-command structure.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"hybridcore/internal/config"
	"hybridcore/internal/coordinator"
	"hybridcore/internal/core"
	"hybridcore/internal/factory"
	"hybridcore/internal/learning"
	"hybridcore/internal/lock"
	"hybridcore/internal/logging"
	"hybridcore/internal/render"
	"hybridcore/internal/router"
	"hybridcore/internal/scheduler"
	"hybridcore/internal/tui"
)

var version = "0.1.0"

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "hybridcore",
		Short: "Hybrid agent orchestration core: route, factory, swarm, and learning CLI",
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (not read: configuration always loads from $XDG_CONFIG_HOME/hybridcore/config.yaml or $HOME/.config/hybridcore/config.yaml, env vars and .hybridcore/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRouteCmd(),
		newSwarmCmd(),
		newSolutionsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hybridcore version %s\n", version)
		},
	}
}

// newRouteCmd prints the routing decision for a task description, without
// executing anything — useful for inspecting how the router would handle
// a prompt before committing agents.
func newRouteCmd() *cobra.Command {
	var forcedAgent string

	cmd := &cobra.Command{
		Use:   "route [task description]",
		Short: "Classify a task and print the routing decision",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := router.New()
			decision := r.Route(core.RoutingContext{
				Task:          strings.Join(args, " "),
				ForcedAgentID: forcedAgent,
			})

			fmt.Printf("decision: %s\n", decision.Type)
			if decision.CoreRole != "" {
				fmt.Printf("  role: %s\n", decision.CoreRole)
			}
			for _, s := range decision.Specs {
				fmt.Printf("  spec: %-24s parallel=%-5v deps=%v\n", s.Name, s.Parallelizable, s.Dependencies)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&forcedAgent, "agent", "", "force routing to a known core role (coder, reviewer, explore, plan)")
	return cmd
}

// newSwarmCmd routes a task, synthesizes agents via the factory, and runs
// them to completion with a demo executor, rendering a live TUI.
func newSwarmCmd() *cobra.Command {
	var maxAgents int
	var timeoutSeconds int
	var headless bool

	cmd := &cobra.Command{
		Use:   "swarm [task description]",
		Short: "Route, synthesize, and execute a swarm for a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logging.SetLevel(logging.ParseLevel(cfg.Logging.Level))

			r := router.New()
			decision := r.Route(core.RoutingContext{Task: strings.Join(args, " ")})
			if decision.Type != core.RouteSwarm && decision.Type != core.RouteDynamic {
				fmt.Printf("task routed to %s, not a swarm; nothing to execute\n", decision.Type)
				return nil
			}

			f := factory.New()
			result, err := f.CreateFromSpecs(decision.Specs, factory.Context{})
			if err != nil {
				return fmt.Errorf("failed to synthesize agents: %w", err)
			}

			if maxAgents <= 0 {
				maxAgents = cfg.Swarm.MaxAgents
			}
			executionMode := decision.ExecutionMode
			if executionMode == "" {
				executionMode = core.ExecutionDAG
			}
			swarmConfig := core.SwarmConfig{
				MaxAgents:          maxAgents,
				ReportingMode:      core.ReportingMode(cfg.Swarm.ReportingMode),
				ConflictResolution: core.ConflictResolution(cfg.Swarm.ConflictResolution),
				ExecutionMode:      executionMode,
				Timeout:            time.Duration(timeoutSeconds) * time.Second,
			}
			if swarmConfig.Timeout == 0 {
				swarmConfig.Timeout = cfg.Swarm.Timeout
			}

			sched := scheduler.New(lock.New(), coordinator.New())
			exec := &demoExecutor{}

			if headless {
				res := sched.Execute(context.Background(), result.Agents, swarmConfig, exec, nil)
				printSwarmResult(res)
				return nil
			}

			model := tui.NewModel()
			program := tea.NewProgram(model)
			sink := tui.NewSink(program)

			resultCh := make(chan scheduler.SwarmResult, 1)
			go func() {
				resultCh <- sched.Execute(context.Background(), result.Agents, swarmConfig, exec, sink)
			}()

			if _, err := program.Run(); err != nil {
				return fmt.Errorf("tui exited with error: %w", err)
			}
			printSwarmResult(<-resultCh)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAgents, "max-agents", 0, "override the configured max concurrent agents")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "override the configured swarm timeout, in seconds")
	cmd.Flags().BoolVar(&headless, "headless", false, "run without the terminal UI")
	return cmd
}

func printSwarmResult(res scheduler.SwarmResult) {
	fmt.Printf("\nsuccess=%v completed=%d failed=%d cancelled=%d parallelPeak=%d totalIterations=%d totalTime=%s\n",
		res.Success, res.Statistics.Completed, res.Statistics.Failed, res.Statistics.Cancelled,
		res.Statistics.ParallelPeak, res.Statistics.TotalIterations, res.TotalTime.Round(time.Millisecond))
	if res.AggregatedOutput != "" {
		fmt.Println("\n" + render.Markdown(res.AggregatedOutput, 100))
	}
}

// newSolutionsCmd inspects the learning store's exported solutions.
func newSolutionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solutions",
		Short: "List the currently learned error solutions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := learning.New()
			for _, sol := range store.ExportSolutions() {
				fmt.Printf("%-40s %-20s confidence=%.2f (%d/%d)\n",
					sol.Signature, sol.SolutionType, sol.Confidence, sol.SuccessCount, sol.FailureCount)
			}
			return nil
		},
	}
	return cmd
}

// demoExecutor is a minimal AgentExecutor standing in for the real,
// externally-supplied LLM-backed executor (spec §6.1 treats it as opaque);
// it simulates brief work and always succeeds, for exercising the CLI's
// routing/scheduling path end to end without a live model backend.
type demoExecutor struct{}

func (demoExecutor) Execute(ctx context.Context, config core.AgentConfig, onReport func(core.AgentReport)) (scheduler.ExecResult, error) {
	onReport(core.AgentReport{Type: core.ReportProgress, Data: map[string]any{"note": "working"}})
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
		return scheduler.ExecResult{}, ctx.Err()
	}
	return scheduler.ExecResult{Success: true, Output: fmt.Sprintf("completed: %s", config.Prompt), Iterations: 1}, nil
}
