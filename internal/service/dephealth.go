// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Агент мониторит единственную зависимость:
//   - bridge-сервер устройства — HTTP checker к handshake endpoint (critical)
//
// Порт bridge-сервера известен только после установки сессии, поэтому
// сервис создаётся из serve после успешной инициализации клиента.
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга bridge-сервера.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Параметры:
//   - serviceID — имя вершины графа текущего приложения (e.g. "scanbridge")
//   - group — имя группы в метриках (SB_DEPHEALTH_GROUP)
//   - host — хост bridge-сервера
//   - port — порт установленной сессии
//   - protocolVersion — версия протокола для handshake path
//   - checkInterval — интервал проверки (SB_DEPHEALTH_CHECK_INTERVAL)
func NewDephealthService(
	serviceID string,
	group string,
	host string,
	port int,
	protocolVersion string,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, host, port, protocolVersion, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	host string,
	port int,
	protocolVersion string,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, host, port, protocolVersion, checkInterval,
		logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	serviceID string,
	group string,
	host string,
	port int,
	protocolVersion string,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	bridgeURL := fmt.Sprintf("http://%s:%d", host, port)
	// Handshake endpoint отвечает 200 и на проверочные запросы;
	// состояние сессии он не меняет
	healthPath := fmt.Sprintf("/api/scanner/connect/%s", protocolVersion)

	depOpts := []dephealth.DependencyOption{
		dephealth.FromURL(bridgeURL),
		dephealth.WithHTTPHealthPath(healthPath),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(true),
	}

	opts := make([]dephealth.Option, 0, 2+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.HTTP("bridge", depOpts...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг bridge-сервера запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
