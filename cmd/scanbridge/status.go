// status.go — команда status: проверка доступности устройства.
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/scanbridge/internal/bridge"
	"github.com/bigkaa/scanbridge/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Найти устройство и показать параметры подключения",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("конфигурация: %w", err)
	}
	logger := config.SetupLogger(cfg)

	br := bridge.New(cfg.BridgeHost, cfg.ProtocolVersion, cfg.BridgeTimeout, logger)

	result, err := br.Discover(ctx, cfg.BridgeDefaultPort, cfg.BridgePortRange)
	if err != nil {
		if errors.Is(err, bridge.ErrDeviceNotFound) {
			fmt.Printf("Устройство не найдено: порты %d-%d\n",
				cfg.BridgeDefaultPort, cfg.BridgeDefaultPort+cfg.BridgePortRange)
			return err
		}
		return err
	}

	fmt.Printf("Устройство найдено\n")
	fmt.Printf("  host: %s\n", cfg.BridgeHost)
	fmt.Printf("  port: %d\n", result.Port)
	fmt.Printf("  protocol: %s\n", cfg.ProtocolVersion)
	return nil
}
