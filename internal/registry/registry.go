// Пакет registry — потокобезопасный in-memory реестр файлов скана.
//
// Чистая таблица соответствия file_id → FileRecord без сетевого
// поведения. Заполняется целиком при обработке результата скана,
// читается операциями выгрузки. Записи не изменяются после создания —
// следующий успешный скан заменяет содержимое целиком.
package registry

import (
	"sort"
	"sync"

	"github.com/bigkaa/scanbridge/internal/domain/model"
)

// Registry — потокобезопасный реестр файлов.
// Использует sync.RWMutex для конкурентного чтения и эксклюзивной записи.
type Registry struct {
	mu    sync.RWMutex
	files map[string]*model.FileRecord // file_id → record
}

// New создаёт пустой реестр.
func New() *Registry {
	return &Registry{
		files: make(map[string]*model.FileRecord),
	}
}

// ReplaceAll заменяет содержимое реестра целиком.
// Вызывается при каждом успешном сканировании.
func (r *Registry) ReplaceAll(records []model.FileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.files = make(map[string]*model.FileRecord, len(records))
	for i := range records {
		rec := records[i]
		r.files[rec.FileID] = &rec
	}
}

// Get возвращает запись по file_id.
// Возвращает nil, если файл не найден.
func (r *Registry) Get(fileID string) *model.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.files[fileID]
	if !ok {
		return nil
	}

	// Возвращаем копию для потокобезопасности
	copied := *rec
	return &copied
}

// List возвращает все записи, отсортированные по имени файла.
// Имена перенумерованы с фиксированной шириной индекса, поэтому
// лексикографический порядок совпадает с порядком страниц.
func (r *Registry) List() []model.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]model.FileRecord, 0, len(r.files))
	for _, rec := range r.files {
		result = append(result, *rec)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FileName < result[j].FileName
	})
	return result
}

// Count возвращает количество записей в реестре.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}

// Clear удаляет все записи (явная очистка при cleanup).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = make(map[string]*model.FileRecord)
}
