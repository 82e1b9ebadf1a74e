// Conveyor — параллельный исполнитель task с зависимостями, приоритетами,
// повторными попытками и таймаутами.
//
// Использование:
//
//	conveyor [--config FILE] [--json] <command> [flags]
//
// Команды:
//
//	run       Выполнить план до завершения
//	validate  Проверить план
//	serve     HTTP API и запуски по расписанию
//	watch     События из RabbitMQ
//	task      task запущенного сервера
//	stats     Статистика запущенного сервера
//	results   Журнал прошлого запуска
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cli"
	"github.com/shaiso/Conveyor/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor — parallel task executor",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL for client commands")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	cfgFn := func() (*config.Config, error) { return config.Load(configPath) }
	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(cfgFn, outputFn),
		cli.NewValidateCmd(outputFn),
		cli.NewServeCmd(cfgFn, outputFn),
		cli.NewWatchCmd(cfgFn, outputFn),
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
		cli.NewResultsCmd(clientFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
