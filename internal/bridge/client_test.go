package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockBridge создаёт mock HTTP-сервер устройства и возвращает его порт.
func setupMockBridge(t *testing.T, handler http.HandlerFunc) int {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return port
}

// connectHandler возвращает handler успешного handshake.
func connectHandler(sessionID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/scanner/connect/v1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ConnectResponse{
			Keyword:   ServerKeyword,
			SessionID: sessionID,
			Code:      0,
		})
	}
}

// TestConnect проверяет успешный handshake.
func TestConnect(t *testing.T) {
	port := setupMockBridge(t, connectHandler("abc"))

	client := New("127.0.0.1", "v1", 5*time.Second, testLogger())
	cr, err := client.Connect(context.Background(), port)
	if err != nil {
		t.Fatalf("ошибка Connect: %v", err)
	}

	if cr.SessionID != "abc" {
		t.Errorf("ожидался SessionID=abc, получен %q", cr.SessionID)
	}
	if cr.Keyword != ServerKeyword {
		t.Errorf("ожидался Keyword=%s, получен %q", ServerKeyword, cr.Keyword)
	}
}

// TestConnect_BadKeyword проверяет отклонение чужого сервера.
func TestConnect_BadKeyword(t *testing.T) {
	port := setupMockBridge(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ConnectResponse{Keyword: "SomethingElse", SessionID: "x", Code: 0})
	})

	client := New("127.0.0.1", "v1", 5*time.Second, testLogger())
	_, err := client.Connect(context.Background(), port)
	if err == nil {
		t.Fatal("ожидалась ошибка для чужого keyword")
	}
}

// TestConnect_NonZeroCode проверяет отклонение handshake с code != 0.
func TestConnect_NonZeroCode(t *testing.T) {
	port := setupMockBridge(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ConnectResponse{Keyword: ServerKeyword, SessionID: "x", Code: 5})
	})

	client := New("127.0.0.1", "v1", 5*time.Second, testLogger())
	_, err := client.Connect(context.Background(), port)
	if err == nil {
		t.Fatal("ожидалась ошибка для code != 0")
	}
}

// TestStartScan проверяет запуск сканирования: путь, заголовок сессии, тело.
func TestStartScan(t *testing.T) {
	type scanBody struct {
		Format int `json:"format"`
	}

	port := setupMockBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/scanner/startscan" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if got := r.Header.Get(SessionHeader); got != "token-1" {
			t.Errorf("ожидался заголовок сессии token-1, получен %q", got)
		}

		var body scanBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("ошибка декодирования тела: %v", err)
		}
		if body.Format != 1 {
			t.Errorf("ожидался format=1, получен %d", body.Format)
		}

		json.NewEncoder(w).Encode(ScanResponse{
			Code: 0,
			Data: []ScanItem{
				{ID: 1, FileID: "f1", FileName: "scan_000.jpg", FileSHA256: "aaa", FileSize: 100},
			},
		})
	})

	client := New("127.0.0.1", "v1", 5*time.Second, testLogger())
	sr, err := client.StartScan(context.Background(), port, "token-1", scanBody{Format: 1})
	if err != nil {
		t.Fatalf("ошибка StartScan: %v", err)
	}

	if len(sr.Data) != 1 {
		t.Fatalf("ожидалась 1 страница, получено %d", len(sr.Data))
	}
	if sr.Data[0].FileID != "f1" {
		t.Errorf("ожидался FileID=f1, получен %q", sr.Data[0].FileID)
	}
}

// TestStartScan_HTTPError проверяет обработку не-200 ответа.
func TestStartScan_HTTPError(t *testing.T) {
	port := setupMockBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := New("127.0.0.1", "v1", 5*time.Second, testLogger())
	_, err := client.StartScan(context.Background(), port, "t", struct{}{})
	if err == nil {
		t.Fatal("ожидалась ошибка, получен nil")
	}
}

// TestFetchBlob проверяет скачивание сырых байтов.
func TestFetchBlob(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}

	port := setupMockBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/scanner/converttoblob/f1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get(SessionHeader); got != "tok" {
			t.Errorf("ожидался заголовок сессии tok, получен %q", got)
		}
		w.Write(payload)
	})

	client := New("127.0.0.1", "v1", 5*time.Second, testLogger())
	data, err := client.FetchBlob(context.Background(), port, "tok", "f1")
	if err != nil {
		t.Fatalf("ошибка FetchBlob: %v", err)
	}

	if len(data) != len(payload) {
		t.Errorf("ожидалось %d байт, получено %d", len(payload), len(data))
	}
}

// TestFetchBase64 проверяет скачивание base64-представления.
func TestFetchBase64(t *testing.T) {
	port := setupMockBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/scanner/converttobase64/f1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, "aGVsbG8=")
	})

	client := New("127.0.0.1", "v1", 5*time.Second, testLogger())
	data, err := client.FetchBase64(context.Background(), port, "tok", "f1")
	if err != nil {
		t.Fatalf("ошибка FetchBase64: %v", err)
	}
	if data != "aGVsbG8=" {
		t.Errorf("ожидалось aGVsbG8=, получено %q", data)
	}
}

// TestUploadLogInfo проверяет отправку текстового лога на устройство.
func TestUploadLogInfo(t *testing.T) {
	var received string
	port := setupMockBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/scanner/uploadloginfo/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		received = string(body)
	})

	client := New("127.0.0.1", "v1", 5*time.Second, testLogger())
	if err := client.UploadLogInfo(context.Background(), port, "tok", "upload ok"); err != nil {
		t.Fatalf("ошибка UploadLogInfo: %v", err)
	}
	if received != "upload ok" {
		t.Errorf("ожидалось тело 'upload ok', получено %q", received)
	}
}

// TestDiscover проверяет перебор диапазона: валидный порт в середине.
func TestDiscover(t *testing.T) {
	port := setupMockBridge(t, connectHandler("abc"))

	// Стартуем перебор на 3 порта раньше реального: первые пробы
	// попадают в закрытые порты и должны считаться промахами.
	client := New("127.0.0.1", "v1", 2*time.Second, testLogger())
	result, err := client.Discover(context.Background(), port-3, 5)
	if err != nil {
		t.Fatalf("ошибка Discover: %v", err)
	}

	if result.Port != port {
		t.Errorf("ожидался порт %d, получен %d", port, result.Port)
	}
	if result.SessionID != "abc" {
		t.Errorf("ожидался SessionID=abc, получен %q", result.SessionID)
	}
}

// TestDiscover_NotFound проверяет исчерпание диапазона.
func TestDiscover_NotFound(t *testing.T) {
	// Резервируем закрытый порт: слушаем и сразу закрываем
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	client := New("127.0.0.1", "v1", 1*time.Second, testLogger())
	_, err = client.Discover(context.Background(), port, 2)
	if err == nil {
		t.Fatal("ожидалась ошибка, получен nil")
	}
	if err != ErrDeviceNotFound {
		t.Errorf("ожидался ErrDeviceNotFound, получен %v", err)
	}
}

// TestDiscover_ContextCancelled проверяет прерывание перебора по контексту.
func TestDiscover_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New("127.0.0.1", "v1", 1*time.Second, testLogger())
	_, err := client.Discover(ctx, 45537, 14)
	if err == nil {
		t.Fatal("ожидалась ошибка контекста")
	}
	if err == ErrDeviceNotFound {
		t.Error("отмена контекста не должна маскироваться под ErrDeviceNotFound")
	}
}
