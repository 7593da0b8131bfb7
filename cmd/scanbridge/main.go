// Точка входа scanbridge — агента сканирования ScanSnap.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scanbridge: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scanbridge",
		Short: "Агент сканирования ScanSnap",
		Long: `scanbridge управляет сканером ScanSnap через локальный bridge-сервер:
находит устройство перебором портов, держит сессию, запускает сканирование
и выгружает результаты. Команда serve поднимает HTTP API агента.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newScanCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return cmd
}
