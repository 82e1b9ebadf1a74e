package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для task запущенного conveyor serve.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and cancel tasks of a running server",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskResultCmd(clientFn, outputFn),
		newTaskCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func taskRow(t TaskResponse) []string {
	return []string{
		t.ID,
		t.Status,
		t.Priority,
		t.Category,
		fmt.Sprintf("%d/%d", t.Attempt, t.MaxAttempts),
		strings.Join(t.DependsOn, ","),
	}
}

var taskHeaders = []string{"ID", "STATUS", "PRIORITY", "CATEGORY", "ATTEMPT", "DEPENDS_ON"}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListTasksOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks of the current run",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(cmd.Context(), opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = taskRow(t)
			}

			outputFn().Print(taskHeaders, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (PENDING, RUNNING, COMPLETED, FAILED, CANCELLED, SKIPPED)")
	cmd.Flags().StringVar(&opts.Category, "category", "", "Filter by category")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show TASK_ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			out.Print(taskHeaders, [][]string{taskRow(*task)}, task)
			if task.Error != "" && !out.JSONMode() {
				out.Success("Last error: " + task.Error)
			}
			if task.SkipCause != "" && !out.JSONMode() {
				out.Success("Skipped because of: " + task.SkipCause)
			}
			return nil
		},
	}
}

func newTaskResultCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "result TASK_ID",
		Short: "Show the result of a finished task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := clientFn().GetResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			outputFn().Print(resultHeaders, [][]string{resultRow(*res)}, res)
			return nil
		},
	}
}

func newTaskCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Cancel a pending or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().CancelTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Task %s cancelled", task.ID))
			out.Print(taskHeaders, [][]string{taskRow(*task)}, task)
			return nil
		},
	}
}

var resultHeaders = []string{"ID", "STATUS", "ATTEMPTS", "DURATION_MS", "ERROR"}

func resultRow(r ResultResponse) []string {
	return []string{
		r.ID,
		r.Status,
		strconv.Itoa(r.Attempts),
		strconv.FormatInt(r.DurationMs, 10),
		truncate(r.Error, 60),
	}
}

// NewStatsCmd создаёт команду stats: статистика текущего запуска сервера.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show statistics of the current run of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := clientFn().GetStats(cmd.Context())
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"RUN", "SUBMITTED", "COMPLETED", "FAILED", "SKIPPED", "CANCELLED", "RUNNING", "LOAD"},
				[][]string{{
					s.RunID,
					strconv.Itoa(s.Submitted),
					strconv.Itoa(s.Completed),
					strconv.Itoa(s.Failed),
					strconv.Itoa(s.Skipped),
					strconv.Itoa(s.Cancelled),
					fmt.Sprintf("%d/%d", s.Running, s.WorkerCount),
					strconv.FormatFloat(s.CurrentLoad, 'f', 2, 64),
				}},
				s,
			)
			return nil
		},
	}
}

// NewResultsCmd создаёт команду results: результаты прошлого запуска из журнала.
func NewResultsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "results RUN_ID",
		Short: "List journaled results of a run (requires database.url on the server)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := clientFn().ListRunResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(results))
			for i, r := range results {
				rows[i] = resultRow(r)
			}

			outputFn().Print(resultHeaders, rows, results)
			return nil
		},
	}
}
