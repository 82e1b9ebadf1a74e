package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/steps"
)

// NewServeCmd создаёт команду serve: HTTP API, метрики и запуски плана по расписанию.
func NewServeCmd(cfgFn ConfigFunc, outputFn func() *Output) *cobra.Command {
	var flags executorFlags
	var addr, cronExpr, timezone string
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "serve PLAN",
		Short: "Serve the control API and run a plan on a schedule",
		Long: `Serve starts the HTTP control API (/api/v1, /healthz, /metrics) and runs
the plan. With --cron or --every the plan is re-run on that schedule, each run
with a fresh run ID; without a schedule the plan runs once and the API keeps
serving its results until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgFn()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.API.Addr = addr
			}
			if cmd.Flags().Changed("cron") {
				cfg.Schedule.Cron = cronExpr
				cfg.Schedule.Every = 0
			}
			if cmd.Flags().Changed("every") {
				cfg.Schedule.Every = every
				cfg.Schedule.Cron = ""
			}
			if cmd.Flags().Changed("timezone") {
				cfg.Schedule.Timezone = timezone
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			plan, err := loadPlan(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			exec := a.newExecutor()

			sched := scheduler.Schedule{
				CronExpr: cfg.Schedule.Cron,
				Every:    cfg.Schedule.Every,
				Timezone: cfg.Schedule.Timezone,
			}
			if !cfg.Schedule.Enabled() {
				a.logger.Info("no schedule configured, plan will run once")
			}
			runner, err := scheduler.New(scheduler.Config{
				Target:         exec,
				Plan:           plan,
				Steps:          steps.DefaultRegistry(),
				Schedule:       sched,
				RunImmediately: true,
				OnRunFinished:  a.runFinished,
				Logger:         a.logger,
			})
			if err != nil {
				return err
			}

			var results api.ResultStore
			if a.results != nil {
				results = a.results
			}
			handler := api.NewHandler(api.Config{
				Tasks:   exec,
				Results: results,
				Logger:  a.logger,
			})

			server := &http.Server{
				Addr:         cfg.API.Addr,
				Handler:      handler.NewRouter(a.metricsHandler()),
				ReadTimeout:  cfg.API.ReadTimeout,
				WriteTimeout: cfg.API.WriteTimeout,
				BaseContext:  func(net.Listener) context.Context { return ctx },
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				a.logger.Info("listening", "addr", cfg.API.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("api server: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				return runner.Run(gctx)
			})

			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown api server: %w", err)
				}
				return nil
			})

			outputFn().Success(fmt.Sprintf("Serving plan %q on %s (%s)", plan.Name, cfg.API.Addr, describeSchedule(sched)))

			err = g.Wait()
			a.logger.Info("stopped", "runs", runner.Runs())
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "API listen address (overrides api.addr)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", `Re-run the plan on a cron schedule, e.g. "*/5 * * * *"`)
	cmd.Flags().DurationVar(&every, "every", 0, "Re-run the plan at a fixed interval, e.g. 10m")
	cmd.Flags().StringVar(&timezone, "timezone", "", "Timezone for --cron (default UTC)")
	cmd.MarkFlagsMutuallyExclusive("cron", "every")

	return cmd
}

func describeSchedule(s scheduler.Schedule) string {
	if s.IsZero() {
		return "run once"
	}
	return s.String()
}
