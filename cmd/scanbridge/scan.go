// scan.go — команда scan: одноразовое сканирование с сохранением
// файлов в локальный каталог.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bigkaa/scanbridge/internal/bridge"
	"github.com/bigkaa/scanbridge/internal/config"
	"github.com/bigkaa/scanbridge/internal/scanner"
	"github.com/bigkaa/scanbridge/internal/sessionstore"
)

func newScanCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Выполнить сканирование и сохранить файлы в каталог",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd.Context(), outputDir)
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Каталог для сохранения файлов")
	return cmd
}

func runScan(ctx context.Context, outputDir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("конфигурация: %w", err)
	}
	logger := config.SetupLogger(cfg)

	br := bridge.New(cfg.BridgeHost, cfg.ProtocolVersion, cfg.BridgeTimeout, logger)
	store := sessionstore.NewFileStore(cfg.SnapshotPath, cfg.SessionMaxAge)
	client := scanner.New(br, store, scanner.Options{
		DefaultPort:       cfg.BridgeDefaultPort,
		PortRange:         cfg.BridgePortRange,
		DisconnectTimeout: cfg.DisconnectTimeout,
	}, logger)

	if err := client.Initialize(ctx); err != nil {
		return err
	}
	// Снапшот сохраняется: следующий запуск пропустит discovery
	defer client.Cleanup(true)

	records, err := client.Scan(ctx)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("создание каталога %s: %w", outputDir, err)
	}

	for _, rec := range records {
		data, fetchErr := client.FetchBlob(ctx, rec.FileID)
		if fetchErr != nil {
			return fmt.Errorf("скачивание %s: %w", rec.FileName, fetchErr)
		}

		path := filepath.Join(outputDir, rec.FileName)
		if writeErr := os.WriteFile(path, data, 0o644); writeErr != nil {
			return fmt.Errorf("запись %s: %w", path, writeErr)
		}

		logger.Info("Файл сохранён",
			slog.String("path", path),
			slog.Int("size", len(data)),
		)
	}

	fmt.Printf("Сохранено файлов: %d в %s\n", len(records), outputDir)
	return nil
}
