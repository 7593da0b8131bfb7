// Пакет scanner — клиент сессии сканирующего устройства.
//
// Владеет жизненным циклом сессии: discovery, восстановление из
// снапшота, конечный автомат сканирования, реестр файлов и события.
//
// Состояния: Uninitialized → Initialized → Scanning → Initialized.
// Неуспешный скан возвращает клиент в Initialized — отдельных
// терминальных состояний ошибок нет, ошибка отдаётся вызывающему коду.
//
// Реестр файлов и сессия приватны для экземпляра клиента. Поведение
// нескольких независимых экземпляров против одного физического
// устройства не определено протоколом bridge server.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/scanbridge/internal/bridge"
	"github.com/bigkaa/scanbridge/internal/domain/model"
	"github.com/bigkaa/scanbridge/internal/registry"
	"github.com/bigkaa/scanbridge/internal/scanconfig"
	"github.com/bigkaa/scanbridge/internal/sessionstore"
	"github.com/bigkaa/scanbridge/internal/uploader"
)

// Prometheus-метрики сканирования.
var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sb_scans_total",
		Help: "Общее количество запросов сканирования (по статусу).",
	}, []string{"status"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sb_scan_duration_seconds",
		Help:    "Длительность сканирования (от запроса до обработки результата).",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	scanPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_scan_pages_total",
		Help: "Общее количество отсканированных страниц.",
	})
)

// Options — параметры создания клиента.
type Options struct {
	// DefaultPort — стартовый порт поиска устройства
	DefaultPort int
	// PortRange — количество дополнительных портов после стартового
	PortRange int
	// DisconnectTimeout — таймаут best-effort запроса disconnect
	DisconnectTimeout time.Duration
}

// Client — клиент сессии сканирующего устройства.
// Потокобезопасен; в один момент времени выполняется не более
// одного сканирования на экземпляр.
type Client struct {
	mu       sync.Mutex
	bridge   *bridge.Client
	store    sessionstore.Store
	reg      *registry.Registry
	cfg      scanconfig.Config
	session  *model.Session
	scanning bool
	handlers map[EventName]Handler
	opts     Options
	pipeline *uploader.Pipeline
	logger   *slog.Logger
}

// New создаёт клиент. Снапшот НЕ восстанавливается автоматически —
// вызовите Initialize.
func New(br *bridge.Client, store sessionstore.Store, opts Options, logger *slog.Logger) *Client {
	reg := registry.New()
	return &Client{
		bridge:   br,
		store:    store,
		reg:      reg,
		cfg:      scanconfig.Default(),
		handlers: make(map[EventName]Handler),
		opts:     opts,
		pipeline: uploader.New(br, reg, nil, logger),
		logger:   logger.With(slog.String("component", "scanner_client")),
	}
}

// UploadScanImages выгружает пачку файлов через конвейер (см. uploader).
// Требует установленной сессии.
func (c *Client) UploadScanImages(ctx context.Context, params uploader.Params) (*uploader.Result, error) {
	session, err := c.requireSession()
	if err != nil {
		return nil, err
	}
	return c.pipeline.Run(ctx, session.Port, session.Token, params)
}

// Initialized возвращает true, если сессия установлена.
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Session возвращает копию активной сессии или nil.
func (c *Client) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	copied := *c.session
	return &copied
}

// Config возвращает текущую конфигурацию сканирования.
func (c *Client) Config() scanconfig.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetConfig заменяет конфигурацию сканирования после валидации.
func (c *Client) SetConfig(cfg scanconfig.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("валидация конфигурации: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	return nil
}

// Registry возвращает реестр файлов клиента.
func (c *Client) Registry() *registry.Registry {
	return c.reg
}

// Initialize устанавливает сессию с устройством.
//
// Порядок:
//  1. Восстановление снапшота: если он есть и не устарел — лёгкий
//     handshake на сохранённом порту; успех пропускает discovery.
//  2. Любая неудача валидации — полный перебор диапазона портов.
//
// Только подлинно успешный handshake или discovery переводит клиент
// в Initialized; иначе состояние остаётся Uninitialized и возвращается
// ClientError с кодом DEVICE_NOT_FOUND.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		return clientErr(CodeScanInProgress, "инициализация недоступна во время сканирования")
	}
	c.mu.Unlock()

	// 1. Попытка восстановления сессии из снапшота
	snap, err := c.store.Load()
	if err != nil {
		// Ошибка хранилища — не фатальна, продолжаем с полным discovery
		c.logger.Warn("Ошибка чтения снапшота сессии",
			slog.String("error", err.Error()),
		)
	}

	if snap != nil {
		cr, connErr := c.bridge.Connect(ctx, snap.Session.Port)
		if connErr == nil {
			c.adoptSession(snap.Session.Port, cr.SessionID, snap.Files, snap.ScanConfig)
			c.persist()
			c.logger.Info("Сессия восстановлена из снапшота",
				slog.Int("port", snap.Session.Port),
			)
			return nil
		}

		c.logger.Info("Сохранённая сессия не прошла валидацию, запускается discovery",
			slog.Int("port", snap.Session.Port),
			slog.String("error", connErr.Error()),
		)
	}

	// 2. Полный discovery
	result, err := c.bridge.Discover(ctx, c.opts.DefaultPort, c.opts.PortRange)
	if err != nil {
		if errors.Is(err, bridge.ErrDeviceNotFound) {
			return &ClientError{
				Code:    CodeDeviceNotFound,
				Message: "устройство не найдено",
				Err:     err,
			}
		}
		return fmt.Errorf("discovery: %w", err)
	}

	c.adoptSession(result.Port, result.SessionID, nil, scanconfig.Config{})
	c.persist()

	return nil
}

// adoptSession атомарно обновляет порт, токен и сопутствующее состояние.
// Порт и токен никогда не обновляются по отдельности.
func (c *Client) adoptSession(port int, token string, files []model.FileRecord, cfg scanconfig.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = &model.Session{
		Port:      port,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}
	if files != nil {
		c.reg.ReplaceAll(files)
	}
	if cfg != (scanconfig.Config{}) {
		c.cfg = cfg
	}
}

// Scan выполняет сканирование с текущей конфигурацией.
//
// Предусловия (проверяются до любой сетевой активности):
//   - клиент инициализирован, иначе NOT_INITIALIZED;
//   - нет другого сканирования, иначе SCAN_IN_PROGRESS.
//
// Флаг Scanning снимается на каждом пути выхода через defer — ошибка
// не может оставить клиент навсегда в состоянии Scanning.
//
// Обработка результата: страницы сортируются по числовому id сервера,
// перенумеровываются детерминированными именами, реестр заменяется
// целиком, события scanToFile доставляются в порядке страниц, затем
// одно scanFinish.
func (c *Client) Scan(ctx context.Context) ([]model.FileRecord, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		scansTotal.WithLabelValues("precondition").Inc()
		return nil, clientErr(CodeNotInitialized, "сканирование требует установленной сессии")
	}
	if c.scanning {
		c.mu.Unlock()
		scansTotal.WithLabelValues("busy").Inc()
		return nil, clientErr(CodeScanInProgress, "сканирование уже выполняется")
	}
	c.scanning = true
	session := *c.session
	cfg := c.cfg
	c.mu.Unlock()

	// Гарантированное снятие флага на любом пути выхода
	defer func() {
		c.mu.Lock()
		c.scanning = false
		c.mu.Unlock()
	}()

	start := time.Now()

	resp, err := c.bridge.StartScan(ctx, session.Port, session.Token, cfg)
	if err != nil {
		scansTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("запрос сканирования: %w", err)
	}

	if resp.Code != 0 {
		scansTotal.WithLabelValues("device_error").Inc()
		return nil, clientErr(CodeProtocolError, "устройство вернуло code=%d", resp.Code)
	}
	// Пустой результат — протокольная ошибка, а не скан из нуля страниц
	if len(resp.Data) == 0 {
		scansTotal.WithLabelValues("protocol_error").Inc()
		return nil, clientErr(CodeProtocolError, "результат сканирования не содержит страниц")
	}

	records := renumberPages(resp.Data)
	c.reg.ReplaceAll(records)
	c.persist()

	// События: по одному scanToFile на страницу в порядке страниц,
	// затем одно scanFinish со списком идентификаторов
	fileIDs := make([]string, len(records))
	for i := range records {
		fileIDs[i] = records[i].FileID
		rec := records[i]
		c.dispatch(EventScanToFile, Event{File: &rec})
	}
	c.dispatch(EventScanFinish, Event{FileIDs: fileIDs})

	scansTotal.WithLabelValues("success").Inc()
	scanDuration.Observe(time.Since(start).Seconds())
	scanPagesTotal.Add(float64(len(records)))

	c.logger.Info("Сканирование завершено",
		slog.Int("pages", len(records)),
		slog.Duration("duration", time.Since(start)),
	)

	return records, nil
}

// renumberPages сортирует страницы по числовому id сервера (авторитетный
// порядок) и заменяет имена детерминированными: префикс исходного имени
// до первого подчёркивания + трёхзначный индекс (0-based, в порядке
// сортировки) + исходное расширение. Имена уникальны и сортируются
// лексикографически в порядке страниц.
func renumberPages(items []bridge.ScanItem) []model.FileRecord {
	sorted := make([]bridge.ScanItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	records := make([]model.FileRecord, len(sorted))
	for i, item := range sorted {
		records[i] = model.FileRecord{
			FileID:     item.FileID,
			FileName:   renumberName(item.FileName, i),
			FileSHA256: item.FileSHA256,
			FileSize:   item.FileSize,
		}
	}
	return records
}

// renumberName строит детерминированное имя файла из исходного.
// "scan_002.jpg", 0 → "scan_000.jpg".
// Без подчёркивания в имени префиксом служит имя без расширения.
func renumberName(original string, index int) string {
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(original, ext)

	prefix := base
	if idx := strings.Index(base, "_"); idx >= 0 {
		prefix = base[:idx]
	}

	return fmt.Sprintf("%s_%03d%s", prefix, index, ext)
}

// FetchBlob скачивает сырые байты файла. Без кэширования — каждый
// вызов обращается к устройству.
func (c *Client) FetchBlob(ctx context.Context, fileID string) ([]byte, error) {
	session, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	if c.reg.Get(fileID) == nil {
		return nil, clientErr(CodeFileNotFound, "файл %s отсутствует в реестре", fileID)
	}

	return c.bridge.FetchBlob(ctx, session.Port, session.Token, fileID)
}

// FetchBase64 возвращает base64-представление файла.
// Доступно только для форматов изображений: для документных выходов
// (PDF) возвращается FORMAT_NOT_SUPPORTED.
func (c *Client) FetchBase64(ctx context.Context, fileID string) (string, error) {
	session, err := c.requireSession()
	if err != nil {
		return "", err
	}

	rec := c.reg.Get(fileID)
	if rec == nil {
		return "", clientErr(CodeFileNotFound, "файл %s отсутствует в реестре", fileID)
	}
	if !isImageName(rec.FileName) {
		return "", clientErr(CodeFormatNotSupported,
			"base64-выгрузка недоступна для файла %s", rec.FileName)
	}

	return c.bridge.FetchBase64(ctx, session.Port, session.Token, fileID)
}

// isImageName определяет по расширению, является ли файл изображением.
func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

// requireSession возвращает копию сессии или NOT_INITIALIZED.
func (c *Client) requireSession() (model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return model.Session{}, clientErr(CodeNotInitialized, "сессия не установлена")
	}
	return *c.session, nil
}

// Cleanup завершает работу клиента: best-effort уведомление устройства
// (beacon-семантика, не блокирует завершение) и сброс состояния.
// preserveSession — сохранить снапшот для восстановления после
// перезапуска; false — снапшот удаляется.
func (c *Client) Cleanup(preserveSession bool) {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.scanning = false
	c.mu.Unlock()

	if session != nil {
		c.bridge.Disconnect(session.Port, session.Token, c.opts.DisconnectTimeout)
	}

	c.reg.Clear()

	if !preserveSession {
		if err := c.store.Clear(); err != nil {
			c.logger.Warn("Ошибка удаления снапшота",
				slog.String("error", err.Error()),
			)
		}
	}
}

// persist записывает снапшот текущего состояния.
// Ошибки записи логируются и не влияют на работу клиента:
// персистентность — кэш, in-memory состояние авторитетно.
func (c *Client) persist() {
	c.mu.Lock()
	session := c.session
	cfg := c.cfg
	c.mu.Unlock()

	if session == nil {
		return
	}

	snap := &sessionstore.Snapshot{
		Session:    *session,
		Files:      c.reg.List(),
		ScanConfig: cfg,
	}

	if err := c.store.Save(snap); err != nil {
		c.logger.Warn("Ошибка записи снапшота сессии",
			slog.String("error", err.Error()),
		)
	}
}
