// Пакет sessionstore — персистентное хранение снапшота сессии.
//
// Снапшот содержит сессию, полный реестр файлов и конфигурацию
// сканирования. Хранилище — кэш, а не источник истины: ошибки
// ввода-вывода логируются вызывающим кодом, in-memory состояние
// клиента остаётся авторитетным.
//
// Инвариант: снапшот либо восстанавливается целиком, либо
// отбрасывается — частично прочитанное или повреждённое состояние
// не попадает в клиент.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/scanbridge/internal/domain/model"
	"github.com/bigkaa/scanbridge/internal/scanconfig"
)

// Snapshot — сериализуемое состояние клиента, переживающее перезапуск.
type Snapshot struct {
	// Session — активная сессия (порт, токен, время создания)
	Session model.Session `json:"session"`
	// Files — полный реестр файлов последнего скана
	Files []model.FileRecord `json:"files"`
	// ScanConfig — конфигурация сканирования
	ScanConfig scanconfig.Config `json:"scan_config"`
	// SavedAt — время записи снапшота
	SavedAt time.Time `json:"saved_at"`
}

// Store — абстракция хранилища снапшота. Файловая реализация ниже;
// альтернативные бэкенды (встроенная БД и т.п.) должны сохранять
// ту же семантику восстановления и устаревания.
type Store interface {
	// Load возвращает снапшот или nil, если его нет либо он
	// непригоден (повреждён, устарел). Непригодный снапшот удаляется.
	Load() (*Snapshot, error)
	// Save атомарно перезаписывает снапшот.
	Save(snap *Snapshot) error
	// Clear удаляет снапшот.
	Clear() error
}

// FileStore — файловая реализация Store.
// Запись атомарна: temp файл → fsync → rename.
type FileStore struct {
	path   string
	maxAge time.Duration
}

// NewFileStore создаёт файловое хранилище снапшота.
// path — путь к JSON-файлу; maxAge — максимальный возраст снапшота,
// по истечении которого он считается недействительным при Load.
func NewFileStore(path string, maxAge time.Duration) *FileStore {
	return &FileStore{path: path, maxAge: maxAge}
}

// Load читает снапшот с диска.
// Отсутствующий файл — не ошибка: возвращается (nil, nil).
// Повреждённый или устаревший снапшот удаляется, возвращается (nil, nil).
func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("чтение снапшота %s: %w", s.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Повреждённый снапшот отбрасывается целиком
		_ = os.Remove(s.path)
		return nil, nil
	}

	if snap.Session.Token == "" || snap.Session.Port == 0 {
		_ = os.Remove(s.path)
		return nil, nil
	}

	if time.Since(snap.SavedAt) > s.maxAge {
		_ = os.Remove(s.path)
		return nil, nil
	}

	return &snap, nil
}

// Save атомарно записывает снапшот на диск.
// Паттерн: temp файл → fsync → atomic rename.
func (s *FileStore) Save(snap *Snapshot) error {
	snap.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации снапшота: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("создание директории снапшота: %w", err)
	}

	tmpPath := s.path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Clear удаляет файл снапшота. Отсутствие файла — не ошибка.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("удаление снапшота %s: %w", s.path, err)
	}
	return nil
}
