// Пакет bridge — HTTP-клиент bridge server сканирующего устройства.
//
// Протокол:
//   - GET  /api/scanner/connect/{version}       — handshake / discovery
//   - POST /api/scanner/startscan               — запуск сканирования
//   - GET  /api/scanner/converttoblob/{fileId}  — сырые байты файла
//   - GET  /api/scanner/converttobase64/{fileId} — base64 (только изображения)
//   - POST /api/scanner/disconnect/{sessionid}  — best-effort отключение
//   - POST /api/scanner/uploadloginfo/          — текстовый лог на устройство
//
// Клиент не хранит сессию — порт и токен передаются вызывающим кодом.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ServerKeyword — идентификатор сервера, ожидаемый в ответе handshake.
const ServerKeyword = "ScanSnapWebSDK"

// SessionHeader — заголовок с токеном сессии.
const SessionHeader = "X-SSW-SessionID"

// ConnectResponse — ответ handshake endpoint.
type ConnectResponse struct {
	Keyword   string `json:"keyword"`
	SessionID string `json:"sessionid"`
	Code      int    `json:"code"`
}

// ScanResponse — ответ startscan endpoint.
type ScanResponse struct {
	Code int        `json:"code"`
	Data []ScanItem `json:"data"`
}

// ScanItem — одна произведённая страница в ответе устройства.
type ScanItem struct {
	ID         int    `json:"id"`
	FileID     string `json:"fileId"`
	FileName   string `json:"fileName"`
	FileSHA256 string `json:"fileSha256"`
	FileSize   int64  `json:"fileSize"`
}

// Client — HTTP-клиент bridge server.
type Client struct {
	httpClient *http.Client
	host       string
	version    string
	logger     *slog.Logger
}

// New создаёт клиент bridge server.
// host — адрес устройства (обычно 127.0.0.1).
// version — версия протокола handshake (сегмент URL).
// timeout — таймаут HTTP-запросов (0 — без таймаута: физическое
// сканирование пачки может занимать минуты).
func New(host, version string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		host:       host,
		version:    version,
		logger:     logger.With(slog.String("component", "bridge_client")),
	}
}

// baseURL возвращает базовый URL для указанного порта.
func (c *Client) baseURL(port int) string {
	return fmt.Sprintf("http://%s:%d", c.host, port)
}

// Connect выполняет handshake с bridge server на указанном порту.
// Ответ валидируется: HTTP 200, code == 0, keyword == ServerKeyword.
func (c *Client) Connect(ctx context.Context, port int) (*ConnectResponse, error) {
	reqURL := fmt.Sprintf("%s/api/scanner/connect/%s", c.baseURL(port), c.version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Connect: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос Connect к порту %d: %w", port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("порт %d: handshake вернул статус %d", port, resp.StatusCode)
	}

	var cr ConnectResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("декодирование handshake от порта %d: %w", port, err)
	}

	if cr.Code != 0 || cr.Keyword != ServerKeyword {
		return nil, fmt.Errorf("порт %d: неожиданный handshake (keyword=%q, code=%d)",
			port, cr.Keyword, cr.Code)
	}

	return &cr, nil
}

// StartScan запускает сканирование с указанной конфигурацией.
// body — полная конфигурация сканирования, сериализуемая в JSON.
// Пустой список data при code == 0 — протокольная ошибка на стороне
// вызывающего кода, здесь возвращается как есть.
func (c *Client) StartScan(ctx context.Context, port int, token string, body any) (*ScanResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("сериализация конфигурации сканирования: %w", err)
	}

	reqURL := c.baseURL(port) + "/api/scanner/startscan"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("создание запроса StartScan: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SessionHeader, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос StartScan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("StartScan вернул статус %d: %s", resp.StatusCode, string(respBody))
	}

	var sr ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("декодирование ответа StartScan: %w", err)
	}

	return &sr, nil
}

// FetchBlob скачивает сырые байты файла по file_id.
// Кэширования нет — каждый вызов обращается к устройству.
func (c *Client) FetchBlob(ctx context.Context, port int, token, fileID string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/api/scanner/converttoblob/%s", c.baseURL(port), fileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса FetchBlob: %w", err)
	}
	req.Header.Set(SessionHeader, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос FetchBlob %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FetchBlob %s вернул статус %d", fileID, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение тела FetchBlob %s: %w", fileID, err)
	}

	return data, nil
}

// FetchBase64 скачивает base64-представление файла по file_id.
// Допустимость операции (только изображения) проверяет вызывающий код.
func (c *Client) FetchBase64(ctx context.Context, port int, token, fileID string) (string, error) {
	reqURL := fmt.Sprintf("%s/api/scanner/converttobase64/%s", c.baseURL(port), fileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("создание запроса FetchBase64: %w", err)
	}
	req.Header.Set(SessionHeader, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("запрос FetchBase64 %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("FetchBase64 %s вернул статус %d", fileID, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("чтение тела FetchBase64 %s: %w", fileID, err)
	}

	return string(data), nil
}

// Disconnect отправляет best-effort уведомление об отключении.
// Семантика beacon: короткий таймаут, ошибки только логируются —
// отключение не должно блокировать завершение работы.
func (c *Client) Disconnect(port int, token string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/api/scanner/disconnect/%s", c.baseURL(port), token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, http.NoBody)
	if err != nil {
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Disconnect не доставлен",
			slog.Int("port", port),
			slog.String("error", err.Error()),
		)
		return
	}
	resp.Body.Close()
}

// UploadLogInfo отправляет текстовый лог на устройство.
// Используется для отчёта о результатах выгрузки. Ошибка не фатальна
// для вызывающего кода, но возвращается для логирования.
func (c *Client) UploadLogInfo(ctx context.Context, port int, token, message string) error {
	reqURL := c.baseURL(port) + "/api/scanner/uploadloginfo/"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("создание запроса UploadLogInfo: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(SessionHeader, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос UploadLogInfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("UploadLogInfo вернул статус %d", resp.StatusCode)
	}

	return nil
}
