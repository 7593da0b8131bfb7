// serve.go — команда serve: HTTP API агента.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/scanbridge/internal/api/handlers"
	"github.com/bigkaa/scanbridge/internal/api/middleware"
	"github.com/bigkaa/scanbridge/internal/archive"
	"github.com/bigkaa/scanbridge/internal/bridge"
	"github.com/bigkaa/scanbridge/internal/cache"
	"github.com/bigkaa/scanbridge/internal/config"
	"github.com/bigkaa/scanbridge/internal/domain/model"
	"github.com/bigkaa/scanbridge/internal/scanner"
	"github.com/bigkaa/scanbridge/internal/server"
	"github.com/bigkaa/scanbridge/internal/service"
	"github.com/bigkaa/scanbridge/internal/sessionstore"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API агента",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("конфигурация: %w", err)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("scanbridge запускается",
		slog.String("version", config.Version),
		slog.Int("agent_port", cfg.AgentPort),
		slog.String("bridge_host", cfg.BridgeHost),
		slog.Int("bridge_default_port", cfg.BridgeDefaultPort),
	)

	// --- Инициализация компонентов ---

	// 1. Клиент bridge-сервера и хранилище сессии
	br := bridge.New(cfg.BridgeHost, cfg.ProtocolVersion, cfg.BridgeTimeout, logger)
	store := sessionstore.NewFileStore(cfg.SnapshotPath, cfg.SessionMaxAge)

	// 2. Клиент сканирования
	client := scanner.New(br, store, scanner.Options{
		DefaultPort:       cfg.BridgeDefaultPort,
		PortRange:         cfg.BridgePortRange,
		DisconnectTimeout: cfg.DisconnectTimeout,
	}, logger)

	// 3. LRU-кэш файлов
	blobs := cache.New(cfg.CacheSize, cfg.CacheTTL)

	// 4. Архив пачек (опционально)
	var archiver handlers.BatchArchiver
	if cfg.ArchiveEnabled {
		arch, archErr := archive.New(archive.Options{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			UseSSL:    cfg.ArchiveUseSSL,
		}, logger)
		if archErr != nil {
			return fmt.Errorf("инициализация архива: %w", archErr)
		}
		archiver = &batchArchiver{arch: arch, client: client}
		logger.Info("Архивация пачек включена",
			slog.String("endpoint", cfg.ArchiveEndpoint),
			slog.String("bucket", cfg.ArchiveBucket),
		)
	}

	// 5. Инициализация сессии с устройством.
	// Отсутствие устройства на старте не фатально: API поднимается,
	// readiness отражает degraded, сессия устанавливается первым
	// запросом сканирования.
	if err := client.Initialize(ctx); err != nil {
		logger.Warn("Устройство недоступно на старте",
			slog.String("error", err.Error()),
		)
	} else {
		session := client.Session()
		logger.Info("Сессия с устройством установлена",
			slog.Int("port", session.Port),
		)

		// 6. topologymetrics — мониторинг bridge-сервера.
		// Порт известен только после установки сессии.
		dephealthSvc, dhErr := service.NewDephealthService(
			"scanbridge",
			cfg.DephealthGroup,
			cfg.BridgeHost,
			session.Port,
			cfg.ProtocolVersion,
			cfg.DephealthCheckInterval,
			logger,
		)
		if dhErr != nil {
			logger.Error("Ошибка инициализации dephealth", slog.String("error", dhErr.Error()))
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Error("Ошибка запуска dephealth", slog.String("error", startErr.Error()))
		} else {
			defer dephealthSvc.Stop()
		}
	}

	// 7. HTTP-сервер
	health := handlers.NewHealthHandler(&deviceChecker{client: client})
	h := handlers.New(client, blobs, archiver, logger)

	srv := server.New(cfg, logger, h, health,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// Завершение: beacon-отключение с сохранением снапшота
	defer client.Cleanup(true)

	return srv.Run()
}

// deviceChecker — readiness-проверка сессии с устройством.
type deviceChecker struct {
	client *scanner.Client
}

// CheckReady возвращает ok при установленной сессии, иначе degraded:
// агент работоспособен, сессия устанавливается первым сканированием.
func (d *deviceChecker) CheckReady() (string, string) {
	if d.client.Initialized() {
		return "ok", ""
	}
	return "degraded", "сессия с устройством не установлена"
}

// batchArchiver связывает архиватор со скачиванием через клиент сканера.
type batchArchiver struct {
	arch   *archive.Archiver
	client *scanner.Client
}

func (b *batchArchiver) ArchiveBatch(ctx context.Context, records []model.FileRecord) (string, error) {
	return b.arch.ArchiveBatch(ctx, b.client, records)
}
