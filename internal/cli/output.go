package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// JSONMode возвращает true, если данные выводятся в JSON.
func (o *Output) JSONMode() bool {
	return o.jsonMode
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	// Заголовки
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	// Разделитель
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	// Строки данных
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// RunSummary — итог запуска для вывода --json.
type RunSummary struct {
	RunID   string                   `json:"run_id"`
	Plan    string                   `json:"plan,omitempty"`
	Results []domain.ExecutionResult `json:"results"`
	Stats   executor.Statistics      `json:"stats"`
}

// PrintRun выводит результаты task и статистику запуска.
func (o *Output) PrintRun(summary RunSummary) {
	if o.jsonMode {
		o.JSON(summary)
		return
	}

	rows := make([][]string, len(summary.Results))
	for i, r := range summary.Results {
		rows[i] = []string{
			string(r.ID),
			r.Status.String(),
			strconv.Itoa(r.Attempts),
			formatDuration(r.Duration),
			truncate(r.Error, 60),
		}
	}
	o.Table([]string{"TASK", "STATUS", "ATTEMPTS", "DURATION", "ERROR"}, rows)

	fmt.Fprintln(o.w)
	o.printStats(summary.RunID, summary.Stats)
}

// PrintStats выводит статистику executor'а.
func (o *Output) PrintStats(runID string, stats executor.Statistics) {
	if o.jsonMode {
		o.JSON(stats)
		return
	}
	o.printStats(runID, stats)
}

func (o *Output) printStats(runID string, s executor.Statistics) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", runID)
	fmt.Fprintf(tw, "Submitted:\t%d\n", s.Submitted)
	fmt.Fprintf(tw, "Completed:\t%d\n", s.Completed)
	fmt.Fprintf(tw, "Failed:\t%d\n", s.Failed)
	fmt.Fprintf(tw, "Skipped:\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "Cancelled:\t%d\n", s.Cancelled)
	if s.Blocked > 0 {
		fmt.Fprintf(tw, "Blocked:\t%d\n", s.Blocked)
	}
	fmt.Fprintf(tw, "Retries:\t%d\n", s.Retries)
	fmt.Fprintf(tw, "Avg duration:\t%s\n", formatDuration(s.AverageDuration))
	tw.Flush()
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Microsecond).String()
	}
	return d.Round(time.Millisecond).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
