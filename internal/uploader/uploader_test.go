package uploader

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/scanbridge/internal/bridge"
	"github.com/bigkaa/scanbridge/internal/domain/model"
	"github.com/bigkaa/scanbridge/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// deviceServer поднимает mock устройство, отдающее блобы по file_id.
func deviceServer(t *testing.T, blobs map[string][]byte) (*bridge.Client, int) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const blobPrefix = "/api/scanner/converttoblob/"
		switch {
		case strings.HasPrefix(r.URL.Path, blobPrefix):
			fileID := strings.TrimPrefix(r.URL.Path, blobPrefix)
			data, ok := blobs[fileID]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		case strings.HasPrefix(r.URL.Path, "/api/scanner/uploadloginfo/"):
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}

	return bridge.New("127.0.0.1", "v1", 5*time.Second, testLogger()), port
}

// receivedUpload — один принятый endpoint-ом изображений запрос.
type receivedUpload struct {
	fileName string
	size     int
	fields   map[string]string
	headers  http.Header
}

// uploadTarget поднимает mock endpoint-ы изображений и манифеста.
type uploadTarget struct {
	mu           sync.Mutex
	uploads      []receivedUpload
	manifestBody []byte
	// imageResponse — тело ответа endpoint-а изображений
	imageResponse string
	imageURL      string
	manifestURL   string
}

func newUploadTarget(t *testing.T) *uploadTarget {
	t.Helper()

	target := &uploadTarget{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload":
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			file, header, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer file.Close()
			data, _ := io.ReadAll(file)

			fields := make(map[string]string)
			for k, vs := range r.MultipartForm.Value {
				if len(vs) > 0 {
					fields[k] = vs[0]
				}
			}

			target.mu.Lock()
			target.uploads = append(target.uploads, receivedUpload{
				fileName: header.Filename,
				size:     len(data),
				fields:   fields,
				headers:  r.Header.Clone(),
			})
			target.mu.Unlock()

			if target.imageResponse != "" {
				w.Write([]byte(target.imageResponse))
			} else {
				w.Write([]byte(`{"ok":true}`))
			}
		case "/filelist":
			body, _ := io.ReadAll(r.Body)
			target.mu.Lock()
			target.manifestBody = body
			target.mu.Unlock()
			w.Write([]byte(`{"ok":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	target.imageURL = server.URL + "/upload"
	target.manifestURL = server.URL + "/filelist"

	return target
}

// decodeManifest разбирает тело манифеста в список записей.
func decodeManifest(t *testing.T, body []byte) []manifestEntry {
	t.Helper()

	var parsed struct {
		Files []manifestEntry `json:"files"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("ошибка разбора манифеста: %v", err)
	}
	return parsed.Files
}

// TestRun_EmptyFileList проверяет отказ без сетевой активности.
func TestRun_EmptyFileList(t *testing.T) {
	br, _ := deviceServer(t, nil)
	reg := registry.New()
	p := New(br, reg, nil, testLogger())

	_, err := p.Run(context.Background(), 1, "tok", Params{
		ImageUploadURL:    "http://127.0.0.1:1/upload",
		FileListUploadURL: "http://127.0.0.1:1/filelist",
	})
	if err == nil {
		t.Fatal("ожидалась ошибка, получен nil")
	}

	ce, ok := err.(*ClientError)
	if !ok || ce.Code != CodeEmptyFileList {
		t.Errorf("ожидался код EMPTY_FILE_LIST, получено %v", err)
	}
}

// TestRun_UploadsBatch проверяет полный цикл: конкурентные per-file
// выгрузки, затем манифест.
func TestRun_UploadsBatch(t *testing.T) {
	blobs := map[string][]byte{
		"f1": make([]byte, 100),
		"f2": make([]byte, 250),
	}
	br, port := deviceServer(t, blobs)

	reg := registry.New()
	reg.ReplaceAll([]model.FileRecord{
		{FileID: "f1", FileName: "scan_000.jpg", FileSHA256: "aaa", FileSize: 100},
		{FileID: "f2", FileName: "scan_001.jpg", FileSHA256: "bbb", FileSize: 250},
	})

	target := newUploadTarget(t)
	p := New(br, reg, nil, testLogger())

	result, err := p.Run(context.Background(), port, "tok", Params{
		ImageUploadURL:    target.imageURL,
		FileListUploadURL: target.manifestURL,
		FileIDs:           []string{"f1", "f2"},
		Headers:           map[string]string{"Authorization": "Bearer abc"},
		ExtraFields:       map[string]string{"batch": "b-1"},
	})
	if err != nil {
		t.Fatalf("ошибка Run: %v", err)
	}

	if len(result.PerFile) != 2 {
		t.Fatalf("ожидалось 2 результата, получено %d", len(result.PerFile))
	}
	for i, r := range result.PerFile {
		if r == nil || r.Err != nil {
			t.Fatalf("слот %d: ожидался успех, получено %+v", i, r)
		}
		if r.StatusCode != http.StatusOK {
			t.Errorf("слот %d: статус %d", i, r.StatusCode)
		}
	}

	// Слоты закреплены за позициями запрошенных идентификаторов
	if result.PerFile[0].FileID != "f1" || result.PerFile[1].FileID != "f2" {
		t.Error("порядок слотов должен совпадать с порядком запрошенных FileIDs")
	}

	target.mu.Lock()
	defer target.mu.Unlock()

	if len(target.uploads) != 2 {
		t.Fatalf("endpoint изображений получил %d запросов", len(target.uploads))
	}
	for _, up := range target.uploads {
		if up.fields["batch"] != "b-1" {
			t.Errorf("дополнительное поле формы не передано: %v", up.fields)
		}
		if up.headers.Get("Authorization") != "Bearer abc" {
			t.Error("дополнительный заголовок не передан")
		}
	}

	entries := decodeManifest(t, target.manifestBody)
	if len(entries) != 2 {
		t.Fatalf("ожидалось 2 записи манифеста, получено %d", len(entries))
	}
	if entries[0].FileID != "f1" || entries[0].FileSHA256 != "aaa" || entries[0].FileSize != 100 {
		t.Errorf("запись манифеста f1 некорректна: %+v", entries[0])
	}
}

// TestRun_MissingRecord проверяет nil-слот для отсутствующей записи
// при продолжении выгрузки остальных и отправке манифеста.
func TestRun_MissingRecord(t *testing.T) {
	blobs := map[string][]byte{"f1": make([]byte, 10)}
	br, port := deviceServer(t, blobs)

	reg := registry.New()
	reg.ReplaceAll([]model.FileRecord{
		{FileID: "f1", FileName: "scan_000.jpg", FileSize: 10},
	})

	target := newUploadTarget(t)
	p := New(br, reg, nil, testLogger())

	result, err := p.Run(context.Background(), port, "tok", Params{
		ImageUploadURL:    target.imageURL,
		FileListUploadURL: target.manifestURL,
		FileIDs:           []string{"ghost", "f1"},
	})
	if err != nil {
		t.Fatalf("ошибка Run: %v", err)
	}

	if result.PerFile[0] != nil {
		t.Error("слот отсутствующей записи должен быть nil")
	}
	if result.PerFile[1] == nil || result.PerFile[1].Err != nil {
		t.Error("известный файл должен быть выгружен")
	}

	// Манифест отправлен и содержит только известную запись
	target.mu.Lock()
	defer target.mu.Unlock()

	if result.Manifest == nil {
		t.Fatal("манифест должен быть отправлен несмотря на пропуск")
	}
	entries := decodeManifest(t, target.manifestBody)
	if len(entries) != 1 || entries[0].FileID != "f1" {
		t.Errorf("манифест должен содержать одну запись f1, получено %+v", entries)
	}
}

// TestRun_PrefixApplied проверяет санацию и применение префикса имени.
func TestRun_PrefixApplied(t *testing.T) {
	blobs := map[string][]byte{"f1": make([]byte, 5)}
	br, port := deviceServer(t, blobs)

	reg := registry.New()
	reg.ReplaceAll([]model.FileRecord{
		{FileID: "f1", FileName: "scan_000.jpg", FileSize: 5},
	})

	target := newUploadTarget(t)
	p := New(br, reg, nil, testLogger())

	// Недопустимые символы отбрасываются при санации
	_, err := p.Run(context.Background(), port, "tok", Params{
		ImageUploadURL:    target.imageURL,
		FileListUploadURL: target.manifestURL,
		FileIDs:           []string{"f1"},
		FileNamePrefix:    "inv oice/#41",
	})
	if err != nil {
		t.Fatalf("ошибка Run: %v", err)
	}

	target.mu.Lock()
	defer target.mu.Unlock()

	if got := target.uploads[0].fileName; got != "invoice41_scan_000.jpg" {
		t.Errorf("ожидалось имя invoice41_scan_000.jpg, получено %q", got)
	}
}

// TestRun_ManifestUsesReportedName проверяет, что имя из ответа
// endpoint-а изображений попадает в манифест вместо локального.
func TestRun_ManifestUsesReportedName(t *testing.T) {
	blobs := map[string][]byte{"f1": make([]byte, 5)}
	br, port := deviceServer(t, blobs)

	reg := registry.New()
	reg.ReplaceAll([]model.FileRecord{
		{FileID: "f1", FileName: "scan_000.jpg", FileSize: 5},
	})

	target := newUploadTarget(t)
	target.imageResponse = `{"fileName":"stored/2026/scan_000.jpg"}`
	p := New(br, reg, nil, testLogger())

	_, err := p.Run(context.Background(), port, "tok", Params{
		ImageUploadURL:    target.imageURL,
		FileListUploadURL: target.manifestURL,
		FileIDs:           []string{"f1"},
	})
	if err != nil {
		t.Fatalf("ошибка Run: %v", err)
	}

	target.mu.Lock()
	defer target.mu.Unlock()

	entries := decodeManifest(t, target.manifestBody)
	if entries[0].FileName != "stored/2026/scan_000.jpg" {
		t.Errorf("манифест должен содержать имя из ответа, получено %q", entries[0].FileName)
	}
}

// TestRun_FetchError проверяет, что ошибка скачивания одного файла
// не прерывает выгрузку остальных.
func TestRun_FetchError(t *testing.T) {
	// f2 отсутствует на устройстве — 404 при скачивании
	blobs := map[string][]byte{"f1": make([]byte, 10)}
	br, port := deviceServer(t, blobs)

	reg := registry.New()
	reg.ReplaceAll([]model.FileRecord{
		{FileID: "f1", FileName: "scan_000.jpg", FileSize: 10},
		{FileID: "f2", FileName: "scan_001.jpg", FileSize: 20},
	})

	target := newUploadTarget(t)
	p := New(br, reg, nil, testLogger())

	result, err := p.Run(context.Background(), port, "tok", Params{
		ImageUploadURL:    target.imageURL,
		FileListUploadURL: target.manifestURL,
		FileIDs:           []string{"f1", "f2"},
	})
	if err != nil {
		t.Fatalf("ошибка Run: %v", err)
	}

	if result.PerFile[0].Err != nil {
		t.Error("f1 должен быть выгружен успешно")
	}
	if result.PerFile[1] == nil || result.PerFile[1].Err == nil {
		t.Error("f2 должен содержать ошибку скачивания")
	}
	if result.Manifest == nil {
		t.Error("манифест должен быть отправлен несмотря на частичный успех")
	}
}

// TestSanitizePrefix проверяет правила санации префикса.
func TestSanitizePrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"invoice", "invoice"},
		{"inv oice", "invoice"},
		{"../../etc", "etc"},
		{"ABC-123", "ABC-123"},
		{"файл", ""},
		{strings.Repeat("a", 50), strings.Repeat("a", 32)},
	}

	for _, tt := range tests {
		if got := sanitizePrefix(tt.in); got != tt.want {
			t.Errorf("sanitizePrefix(%q): ожидалось %q, получено %q", tt.in, got, tt.want)
		}
	}
}

// TestContentTypeFor проверяет определение MIME-типа по расширению.
func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"a.jpg", "image/jpeg"},
		{"a.JPEG", "image/jpeg"},
		{"a.png", "image/png"},
		{"a.pdf", "application/pdf"},
		{"a.bin", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := contentTypeFor(tt.name); got != tt.want {
			t.Errorf("contentTypeFor(%q): ожидалось %q, получено %q", tt.name, got, tt.want)
		}
	}
}
