// Chatplane CLI — инструмент командной строки для административного
// API: tenants, job'ы и circuit breaker'ы.
//
// Использование:
//
//	chatplane [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	tenant   Provisioning и health баз tenant'ов
//	host     Хосты для размещения баз
//	job      Постановка и просмотр job'ов
//	breaker  Состояние circuit breaker'ов
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Chatplane/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "chatplane",
		Short:         "Chatplane CLI — tenant and job administration",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTenantCmd(clientFn, outputFn),
		cli.NewHostCmd(clientFn, outputFn),
		cli.NewJobCmd(clientFn, outputFn),
		cli.NewBreakerCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
