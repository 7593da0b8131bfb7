// discovery.go — поиск порта bridge server перебором диапазона.
//
// Устройство привязывается к первому свободному порту из фиксированного
// диапазона, поэтому клиент не знает порт заранее: перебираем стартовый
// порт и N последующих, первый валидный handshake побеждает.
package bridge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrDeviceNotFound — ни один порт диапазона не прошёл handshake.
// Различимый результат, а не исключение: вызывающий код показывает
// состояние "устройство не найдено" вместо аварийного завершения.
var ErrDeviceNotFound = errors.New("bridge server не найден ни на одном порту диапазона")

// Prometheus-метрики discovery.
var (
	discoveryProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sb_discovery_probes_total",
		Help: "Количество проверенных портов при поиске устройства (по результату).",
	}, []string{"result"})

	discoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sb_discovery_total",
		Help: "Количество запусков discovery (по результату).",
	}, []string{"result"})
)

// DiscoveryResult — результат успешного поиска устройства.
type DiscoveryResult struct {
	// Port — порт, прошедший handshake
	Port int
	// SessionID — токен сессии из ответа handshake
	SessionID string
}

// Discover перебирает порты defaultPort..defaultPort+portRange и
// возвращает первый, прошедший handshake. Исчерпание диапазона —
// ErrDeviceNotFound. Отмена контекста прерывает перебор.
func (c *Client) Discover(ctx context.Context, defaultPort, portRange int) (*DiscoveryResult, error) {
	for port := defaultPort; port <= defaultPort+portRange; port++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cr, err := c.Connect(ctx, port)
		if err != nil {
			discoveryProbesTotal.WithLabelValues("miss").Inc()
			c.logger.Debug("Порт не прошёл handshake",
				slog.Int("port", port),
				slog.String("error", err.Error()),
			)
			continue
		}

		discoveryProbesTotal.WithLabelValues("hit").Inc()
		discoveryTotal.WithLabelValues("success").Inc()
		c.logger.Info("Bridge server найден",
			slog.Int("port", port),
		)

		return &DiscoveryResult{Port: port, SessionID: cr.SessionID}, nil
	}

	discoveryTotal.WithLabelValues("not_found").Inc()
	c.logger.Warn("Bridge server не найден",
		slog.Int("default_port", defaultPort),
		slog.Int("port_range", portRange),
	)

	return nil, ErrDeviceNotFound
}
