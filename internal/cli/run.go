package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/steps"
)

// executorFlags — переопределения executor.* из командной строки.
type executorFlags struct {
	workers             int
	queueCapacity       int
	disableRetries      bool
	disableDependencies bool
	disablePriorities   bool
	amqpURL             string
	databaseURL         string
}

func (f *executorFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Number of worker slots (overrides executor.workers)")
	cmd.Flags().IntVar(&f.queueCapacity, "queue-capacity", 0, "Admission queue capacity")
	cmd.Flags().BoolVar(&f.disableRetries, "disable-retries", false, "Fail tasks on the first failed attempt")
	cmd.Flags().BoolVar(&f.disableDependencies, "disable-dependencies", false, "Ignore depends_on")
	cmd.Flags().BoolVar(&f.disablePriorities, "disable-priorities", false, "Admit ready tasks in registration order")
	cmd.Flags().StringVar(&f.amqpURL, "amqp-url", "", "Publish task events to RabbitMQ at this URL")
	cmd.Flags().StringVar(&f.databaseURL, "database-url", "", "Journal task results to PostgreSQL at this URL")
}

// apply переносит заданные флаги в конфигурацию и валидирует её заново.
func (f *executorFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Executor.Workers = f.workers
	}
	if flags.Changed("queue-capacity") {
		cfg.Executor.QueueCapacity = f.queueCapacity
	}
	if flags.Changed("disable-retries") {
		cfg.Executor.DisableRetries = f.disableRetries
	}
	if flags.Changed("disable-dependencies") {
		cfg.Executor.DisableDependencies = f.disableDependencies
	}
	if flags.Changed("disable-priorities") {
		cfg.Executor.DisablePriorities = f.disablePriorities
	}
	if flags.Changed("amqp-url") {
		cfg.AMQP.URL = f.amqpURL
	}
	if flags.Changed("database-url") {
		cfg.Database.URL = f.databaseURL
	}
	return config.Validate(cfg)
}

// NewRunCmd создаёт команду run: выполнить план один раз до завершения.
func NewRunCmd(cfgFn ConfigFunc, outputFn func() *Output) *cobra.Command {
	var flags executorFlags
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run PLAN",
		Short: "Run a plan to completion",
		Long: `Run executes every task of the plan, honouring dependencies, priorities,
retries and timeouts, then prints the result of each task and run statistics.

Exits with an error if any task FAILED.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			cfg, err := cfgFn()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			plan, err := loadPlan(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			exec := a.newExecutor()
			if _, err := steps.DefaultRegistry().RegisterPlan(plan, exec); err != nil {
				return err
			}

			started := time.Now()
			stats, runErr := exec.RunToCompletion(ctx)

			report := scheduler.Report{
				RunID:      exec.RunID(),
				Plan:       plan.Name,
				Stats:      stats,
				StartedAt:  started,
				FinishedAt: time.Now(),
			}
			if err := a.runFinished(ctx, report); err != nil {
				a.logger.Warn("failed to publish run.finished", "run_id", report.RunID, "error", err)
			}

			out.PrintRun(RunSummary{
				RunID:   exec.RunID().String(),
				Plan:    plan.Name,
				Results: collectResults(exec),
				Stats:   stats,
			})

			if runErr != nil {
				return fmt.Errorf("run interrupted: %w", runErr)
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%w: %d of %d", ErrTasksFailed, stats.Failed, stats.Submitted)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Cancel the whole run after this duration (0 = no limit)")

	return cmd
}

// NewValidateCmd создаёт команду validate: проверить план без выполнения.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate PLAN",
		Short: "Validate a plan file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			plan, err := loadPlan(args[0])
			if err != nil {
				return err
			}

			// Тела строятся так же, как при запуске: ловим неизвестные шаблоны.
			planned, err := steps.DefaultRegistry().BuildPlan(plan)
			if err != nil {
				return err
			}

			graph := make(engine.Graph, len(planned))
			for _, t := range planned {
				graph[t.Spec.ID] = t.Spec.DependsOn
			}
			order, err := graph.TopologicalOrder()
			if err != nil {
				return err
			}

			rows := make([][]string, len(planned))
			for i, t := range planned {
				deps := make([]string, len(t.Spec.DependsOn))
				for j, d := range t.Spec.DependsOn {
					deps[j] = string(d)
				}
				rows[i] = []string{
					string(t.Spec.ID),
					plan.Tasks[i].Type,
					t.Spec.Priority.String(),
					strconv.Itoa(t.Spec.Retry.Attempts()),
					strings.Join(deps, ","),
				}
			}

			out.Print(
				[]string{"TASK", "TYPE", "PRIORITY", "ATTEMPTS", "DEPENDS_ON"},
				rows,
				map[string]any{"plan": plan.Name, "valid": true, "tasks": len(planned), "order": order},
			)
			out.Success(fmt.Sprintf("Plan %q is valid: %d tasks", plan.Name, len(planned)))
			return nil
		},
	}
}
