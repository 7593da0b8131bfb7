// Пакет archive — долговременное хранение результатов сканирования
// в S3-совместимом хранилище (MinIO, AWS S3).
//
// Каждое сканирование архивируется отдельной пачкой: объекты получают
// ключ batches/<uuid>/<имя файла>, манифест пачки кладётся рядом под
// ключом batches/<uuid>/manifest.json.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/scanbridge/internal/domain/model"
)

// Prometheus-метрики архивации.
var (
	archivedObjectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sb_archive_objects_total",
		Help: "Количество заархивированных объектов (по статусу).",
	}, []string{"status"})

	archiveBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_archive_bytes_total",
		Help: "Общее количество заархивированных байт.",
	})
)

// Options — параметры подключения к S3-хранилищу.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Fetcher скачивает содержимое файла с устройства по file_id.
type Fetcher interface {
	FetchBlob(ctx context.Context, fileID string) ([]byte, error)
}

// Archiver архивирует пачки сканирования в S3-совместимое хранилище.
// Безопасен для конкурентного использования.
type Archiver struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New создаёт Archiver и проверяет существование bucket-а
// (создаёт при отсутствии).
func New(opts Options, logger *slog.Logger) (*Archiver, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("не задан endpoint архива")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("не заданы учётные данные архива")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("не задан bucket архива")
	}

	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("создание minio-клиента: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("проверка bucket-а: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("создание bucket-а: %w", err)
		}
	}

	return &Archiver{
		client: cli,
		bucket: opts.Bucket,
		logger: logger.With(slog.String("component", "archive")),
	}, nil
}

// batchManifest — манифест пачки, сохраняемый рядом с объектами.
type batchManifest struct {
	BatchID    string             `json:"batch_id"`
	ArchivedAt time.Time          `json:"archived_at"`
	Files      []model.FileRecord `json:"files"`
}

// ArchiveBatch скачивает файлы с устройства и сохраняет их в хранилище
// одной пачкой. Возвращает идентификатор пачки.
//
// Ошибка отдельного файла не прерывает архивацию остальных, но итоговая
// ошибка сообщает о неполной пачке. Манифест записывается всегда и
// перечисляет только успешно сохранённые файлы.
func (a *Archiver) ArchiveBatch(ctx context.Context, fetcher Fetcher, records []model.FileRecord) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("пустая пачка для архивации")
	}

	batchID := uuid.NewString()
	prefix := "batches/" + batchID + "/"

	var archived []model.FileRecord
	var failed []string

	for _, rec := range records {
		data, err := fetcher.FetchBlob(ctx, rec.FileID)
		if err != nil {
			archivedObjectsTotal.WithLabelValues("fetch_error").Inc()
			a.logger.Error("Не удалось скачать файл для архивации",
				slog.String("file_id", rec.FileID),
				slog.String("error", err.Error()),
			)
			failed = append(failed, rec.FileID)
			continue
		}

		key := prefix + rec.FileName
		_, err = a.client.PutObject(ctx, a.bucket, key,
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentTypeFor(rec.FileName)},
		)
		if err != nil {
			archivedObjectsTotal.WithLabelValues("put_error").Inc()
			a.logger.Error("Не удалось сохранить объект в архив",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			failed = append(failed, rec.FileID)
			continue
		}

		archivedObjectsTotal.WithLabelValues("success").Inc()
		archiveBytesTotal.Add(float64(len(data)))
		archived = append(archived, rec)
	}

	if err := a.putManifest(ctx, prefix, batchID, archived); err != nil {
		return batchID, fmt.Errorf("запись манифеста пачки: %w", err)
	}

	a.logger.Info("Пачка заархивирована",
		slog.String("batch_id", batchID),
		slog.Int("archived", len(archived)),
		slog.Int("failed", len(failed)),
	)

	if len(failed) > 0 {
		return batchID, fmt.Errorf("пачка %s неполна, не сохранены: %s",
			batchID, strings.Join(failed, ","))
	}

	return batchID, nil
}

// putManifest сохраняет манифест пачки под ключом <prefix>manifest.json.
func (a *Archiver) putManifest(ctx context.Context, prefix, batchID string, files []model.FileRecord) error {
	manifest := batchManifest{
		BatchID:    batchID,
		ArchivedAt: time.Now().UTC(),
		Files:      files,
	}

	payload, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("сериализация манифеста: %w", err)
	}

	_, err = a.client.PutObject(ctx, a.bucket, prefix+"manifest.json",
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	return err
}

// contentTypeFor определяет MIME-тип объекта по расширению имени файла.
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
