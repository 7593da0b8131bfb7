// Пакет cache — LRU-кэш скачанных с устройства файлов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
//
// Устройство держит файлы до следующего сканирования, но каждое
// скачивание — отдельный HTTP-запрос к bridge-серверу. Кэш снимает
// повторные скачивания при предпросмотре и выгрузке одного файла.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш файлов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша файлов.",
	})
)

// BlobCache — LRU-кэш содержимого файлов с автоматическим TTL.
// Ключ — file_id устройства, значение — скачанные байты.
type BlobCache struct {
	cache *expirable.LRU[string, []byte]
}

// New создаёт LRU-кэш с указанным максимальным размером и TTL.
// maxSize — максимальное количество записей в кэше.
// ttl — время жизни записи после добавления.
func New(maxSize int, ttl time.Duration) *BlobCache {
	return &BlobCache{
		cache: expirable.NewLRU[string, []byte](maxSize, nil, ttl),
	}
}

// Get возвращает содержимое файла из кэша по fileID.
// Возвращает (данные, true) при hit или (nil, false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *BlobCache) Get(fileID string) ([]byte, bool) {
	val, ok := c.cache.Get(fileID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет содержимое файла в кэше.
func (c *BlobCache) Set(fileID string, data []byte) {
	c.cache.Add(fileID, data)
}

// Purge полностью очищает кэш. Вызывается после нового сканирования:
// устройство перезаписывает файлы, старое содержимое недействительно.
func (c *BlobCache) Purge() {
	c.cache.Purge()
}

// Len возвращает текущее количество записей в кэше.
func (c *BlobCache) Len() int {
	return c.cache.Len()
}
