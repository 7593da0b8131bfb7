// Пакет uploader — конвейер выгрузки отсканированных файлов.
//
// Превращает file_id в байты и байты — в две согласованные выгрузки:
// per-file multipart POST на endpoint изображений и JSON-манифест на
// endpoint списка файлов. Скачивание и per-file выгрузки выполняются
// конкурентно (латентность пачки определяется самой медленной
// передачей, а не суммой); манифест отправляется строго после
// завершения всех per-file выгрузок (точка соединения, не гонка).
//
// Конвейер не интерпретирует успех отдельных выгрузок: частичный
// успех — валидный исход, решение остаётся за вызывающим кодом.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/scanbridge/internal/bridge"
	"github.com/bigkaa/scanbridge/internal/domain/model"
	"github.com/bigkaa/scanbridge/internal/registry"
)

// maxPrefixLen — предел длины префикса имени файла после санации.
const maxPrefixLen = 32

// Prometheus-метрики выгрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sb_uploads_total",
		Help: "Количество per-file выгрузок (по статусу).",
	}, []string{"status"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_upload_bytes_total",
		Help: "Общее количество выгруженных байт.",
	})

	uploadBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sb_upload_batch_duration_seconds",
		Help:    "Длительность выгрузки пачки (скачивание, per-file, манифест).",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	activeUploads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sb_active_uploads",
		Help: "Количество активных per-file выгрузок.",
	})
)

// Params — параметры выгрузки пачки.
type Params struct {
	// ImageUploadURL — endpoint per-file выгрузок (multipart POST)
	ImageUploadURL string
	// FileListUploadURL — endpoint манифеста (JSON POST)
	FileListUploadURL string
	// FileIDs — идентификаторы файлов для выгрузки
	FileIDs []string
	// Headers — дополнительные заголовки обоих запросов (опционально)
	Headers map[string]string
	// ExtraFields — дополнительные поля multipart-формы (опционально)
	ExtraFields map[string]string
	// FileNamePrefix — префикс имён файлов (санируется, опционально)
	FileNamePrefix string
}

// ItemResult — результат per-file выгрузки.
type ItemResult struct {
	// FileID — идентификатор файла
	FileID string `json:"file_id"`
	// FileName — имя, под которым файл был выгружен
	FileName string `json:"file_name"`
	// StatusCode — HTTP-статус ответа endpoint-а
	StatusCode int `json:"status_code"`
	// Body — сырое тело ответа
	Body json.RawMessage `json:"body,omitempty"`
	// Err — ошибка скачивания или выгрузки этого файла
	Err error `json:"-"`
}

// ManifestResult — результат выгрузки манифеста.
type ManifestResult struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Result — итог выгрузки пачки. PerFile индексирован позициями
// запрошенных FileIDs: отсутствующая в реестре запись даёт nil-слот,
// не прерывая выгрузку остальных.
type Result struct {
	PerFile  []*ItemResult
	Manifest *ManifestResult
}

// ClientError описывает отказ конвейера до начала сетевой активности.
type ClientError struct {
	Code    string
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeEmptyFileList — пустой список файлов.
const CodeEmptyFileList = "EMPTY_FILE_LIST"

// Pipeline — конвейер выгрузки.
type Pipeline struct {
	bridge     *bridge.Client
	reg        *registry.Registry
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт конвейер выгрузки.
// httpClient используется для запросов к endpoint-ам вызывающего кода
// (nil — клиент с таймаутом 60s).
func New(br *bridge.Client, reg *registry.Registry, httpClient *http.Client, logger *slog.Logger) *Pipeline {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Pipeline{
		bridge:     br,
		reg:        reg,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "uploader")),
	}
}

// Run выполняет выгрузку пачки файлов.
//
// Порядок:
//  1. Пустой FileIDs — отказ без сетевой активности.
//  2. Санация префикса имени.
//  3. Конкурентное скачивание и per-file выгрузка каждого файла.
//  4. Точка соединения; агрегированный итог логируется на устройство.
//  5. Манифест (записи реестра с именами из ответов per-file
//     выгрузок) отправляется JSON-ом на FileListUploadURL.
//  6. Результат манифеста тоже логируется на устройство.
func (p *Pipeline) Run(ctx context.Context, port int, token string, params Params) (*Result, error) {
	if len(params.FileIDs) == 0 {
		return nil, &ClientError{
			Code:    CodeEmptyFileList,
			Message: "список файлов для выгрузки пуст",
		}
	}

	start := time.Now()
	prefix := sanitizePrefix(params.FileNamePrefix)

	// Конкурентный fan-out: слот результата закреплён за позицией
	// запрошенного идентификатора
	results := make([]*ItemResult, len(params.FileIDs))
	var wg sync.WaitGroup

	wg.Add(len(params.FileIDs))
	for i, fileID := range params.FileIDs {
		go func(slot int, id string) {
			defer wg.Done()

			rec := p.reg.Get(id)
			if rec == nil {
				// Отсутствующая запись — nil-слот, остальные не страдают
				p.logger.Warn("Файл отсутствует в реестре, пропуск",
					slog.String("file_id", id),
				)
				uploadsTotal.WithLabelValues("missing").Inc()
				return
			}

			results[slot] = p.uploadOne(ctx, port, token, params, prefix, rec)
		}(i, fileID)
	}
	wg.Wait()

	// Агрегированный итог per-file выгрузок — на устройство.
	// Ошибка логирования не фатальна, но выгрузка манифеста начинается
	// только после завершения отчёта (согласованное состояние).
	p.reportToDevice(ctx, port, token, summarize(params.FileIDs, results))

	manifest, err := p.uploadManifest(ctx, params, results)
	if err != nil {
		p.reportToDevice(ctx, port, token, fmt.Sprintf("manifest upload failed: %v", err))
		return &Result{PerFile: results}, fmt.Errorf("выгрузка манифеста: %w", err)
	}
	p.reportToDevice(ctx, port, token,
		fmt.Sprintf("manifest upload status=%d", manifest.StatusCode))

	uploadBatchDuration.Observe(time.Since(start).Seconds())

	return &Result{PerFile: results, Manifest: manifest}, nil
}

// uploadOne скачивает один файл с устройства и выгружает его
// multipart POST-ом на endpoint изображений.
func (p *Pipeline) uploadOne(ctx context.Context, port int, token string, params Params, prefix string, rec *model.FileRecord) *ItemResult {
	activeUploads.Inc()
	defer activeUploads.Dec()

	result := &ItemResult{FileID: rec.FileID}

	data, err := p.bridge.FetchBlob(ctx, port, token, rec.FileID)
	if err != nil {
		uploadsTotal.WithLabelValues("fetch_error").Inc()
		result.Err = fmt.Errorf("скачивание %s: %w", rec.FileID, err)
		return result
	}

	fileName := rec.FileName
	if prefix != "" {
		fileName = prefix + "_" + fileName
	}
	result.FileName = fileName

	body, contentType, err := buildMultipart(fileName, data, params.ExtraFields)
	if err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		result.Err = err
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.ImageUploadURL, body)
	if err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		result.Err = fmt.Errorf("создание запроса выгрузки: %w", err)
		return result
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		uploadsTotal.WithLabelValues("upload_error").Inc()
		result.Err = fmt.Errorf("выгрузка %s: %w", fileName, err)
		return result
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		uploadsTotal.WithLabelValues("upload_error").Inc()
		result.Err = fmt.Errorf("чтение ответа выгрузки %s: %w", fileName, err)
		return result
	}

	result.StatusCode = resp.StatusCode
	result.Body = respBody

	// Endpoint может сообщить имя, под которым файл сохранён —
	// оно попадёт в манифест вместо локального
	if reported := reportedFileName(respBody); reported != "" {
		result.FileName = reported
	}

	uploadsTotal.WithLabelValues("success").Inc()
	uploadBytesTotal.Add(float64(len(data)))

	return result
}

// buildMultipart собирает multipart-тело: файл + дополнительные поля.
// Content-Type части файла определяется по расширению.
func buildMultipart(fileName string, data []byte, extraFields map[string]string) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for k, v := range extraFields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("поле формы %s: %w", k, err)
		}
	}

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName),
	}
	h["Content-Type"] = []string{contentTypeFor(fileName)}

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("запись файла в multipart: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("закрытие multipart: %w", err)
	}

	return buf, w.FormDataContentType(), nil
}

// contentTypeFor определяет MIME-тип по расширению имени файла.
func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// reportedFileName извлекает имя файла из тела ответа endpoint-а
// (ключ fileName). Пустая строка — имя не сообщено.
func reportedFileName(body []byte) string {
	var parsed struct {
		FileName string `json:"fileName"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.FileName
}

// manifestEntry — запись манифеста.
type manifestEntry struct {
	FileID     string `json:"fileId"`
	FileName   string `json:"fileName"`
	FileSHA256 string `json:"fileSha256"`
	FileSize   int64  `json:"fileSize"`
}

// uploadManifest отправляет JSON-манифест пачки на FileListUploadURL.
// Имена файлов — из ответов per-file выгрузок, при их отсутствии —
// локально вычисленные.
func (p *Pipeline) uploadManifest(ctx context.Context, params Params, results []*ItemResult) (*ManifestResult, error) {
	entries := make([]manifestEntry, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		rec := p.reg.Get(r.FileID)
		if rec == nil {
			continue
		}

		name := rec.FileName
		if r.FileName != "" {
			name = r.FileName
		}
		entries = append(entries, manifestEntry{
			FileID:     rec.FileID,
			FileName:   name,
			FileSHA256: rec.FileSHA256,
			FileSize:   rec.FileSize,
		})
	}

	payload, err := json.Marshal(map[string]any{"files": entries})
	if err != nil {
		return nil, fmt.Errorf("сериализация манифеста: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.FileListUploadURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("создание запроса манифеста: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос манифеста: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа манифеста: %w", err)
	}

	return &ManifestResult{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// reportToDevice отправляет текстовый отчёт на устройство.
// Ошибка доставки логируется и не влияет на результат выгрузки.
func (p *Pipeline) reportToDevice(ctx context.Context, port int, token, message string) {
	if err := p.bridge.UploadLogInfo(ctx, port, token, message); err != nil {
		p.logger.Debug("Отчёт на устройство не доставлен",
			slog.String("error", err.Error()),
		)
	}
}

// summarize строит текстовый итог per-file выгрузок для отчёта.
func summarize(fileIDs []string, results []*ItemResult) string {
	ok := 0
	var failed []string
	for i, r := range results {
		switch {
		case r == nil:
			failed = append(failed, fileIDs[i]+"(missing)")
		case r.Err != nil:
			failed = append(failed, r.FileID+"(error)")
		default:
			ok++
		}
	}

	if len(failed) == 0 {
		return fmt.Sprintf("upload batch: %d/%d ok", ok, len(results))
	}
	return fmt.Sprintf("upload batch: %d/%d ok, failed: %s",
		ok, len(results), strings.Join(failed, ","))
}

// sanitizePrefix ограничивает префикс имён файлов: только латинские
// буквы, цифры и дефис, не длиннее maxPrefixLen символов.
func sanitizePrefix(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		if b.Len() >= maxPrefixLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
