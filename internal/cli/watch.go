package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// ErrNoAMQP — для watch не задан адрес RabbitMQ.
var ErrNoAMQP = errors.New("amqp url is not configured (use --amqp-url or CONVEYOR_AMQP_URL)")

// runEvent — payload события run.finished.
type runEvent struct {
	RunID      string              `json:"run_id"`
	Plan       string              `json:"plan"`
	Stats      executor.Statistics `json:"stats"`
	FinishedAt time.Time           `json:"finished_at"`
}

// NewWatchCmd создаёт команду watch: печать событий task и run из RabbitMQ.
func NewWatchCmd(cfgFn ConfigFunc, outputFn func() *Output) *cobra.Command {
	var amqpURL string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream task and run events published by conveyor",
		Long: `Watch binds a temporary exclusive queue to the events exchange and prints
every task.* and run.* event until interrupted. Durable queues are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgFn()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("amqp-url") {
				cfg.AMQP.URL = amqpURL
			}
			if cfg.AMQP.URL == "" {
				return ErrNoAMQP
			}

			ctx := cmd.Context()
			logger := telemetry.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

			conn, err := mq.NewConnection(cfg.AMQP.URL, logger)
			if err != nil {
				return fmt.Errorf("connect to rabbitmq: %w", err)
			}
			defer conn.Close()

			if err := mq.SetupTopology(ctx, conn, cfg.AMQP.Exchange); err != nil {
				return err
			}
			queue, err := mq.DeclareWatchQueue(ctx, conn, cfg.AMQP.Exchange)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Watching %s (queue %s), Ctrl+C to stop", cfg.AMQP.Exchange, queue))

			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Queue:   queue,
				Handler: eventPrinter(out),
			})

			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&amqpURL, "amqp-url", "", "RabbitMQ URL (overrides amqp.url)")

	return cmd
}

// eventPrinter возвращает обработчик, печатающий каждое событие одной строкой.
// Неизвестные типы событий печатаются без разбора payload.
func eventPrinter(out *Output) mq.Handler {
	return func(_ context.Context, ev *mq.Event) error {
		if out.JSONMode() {
			out.JSON(ev)
			return nil
		}

		ts := ev.Timestamp.Format(time.RFC3339)

		switch {
		case ev.Task != nil:
			res := ev.Task
			line := fmt.Sprintf("%s  task %-24s %-9s attempts=%d duration=%s",
				ts, res.ID, res.Status, res.Attempts, formatDuration(res.Duration))
			if ev.Redelivered {
				line += "  (redelivered)"
			}
			if res.Error != "" {
				line += "  error=" + truncate(res.Error, 80)
			}
			fmt.Fprintln(out.w, line)

		case ev.Type == mq.MessageTypeRunFinished:
			var run runEvent
			if err := ev.Decode(&run); err != nil {
				return err
			}
			fmt.Fprintf(out.w, "%s  run  %s plan=%q completed=%d failed=%d skipped=%d cancelled=%d\n",
				ts, run.RunID, run.Plan, run.Stats.Completed, run.Stats.Failed, run.Stats.Skipped, run.Stats.Cancelled)

		default:
			fmt.Fprintf(out.w, "%s  %s  id=%s\n", ts, ev.Type, ev.ID)
		}

		return nil
	}
}
