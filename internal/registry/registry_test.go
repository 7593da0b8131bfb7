package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/bigkaa/scanbridge/internal/domain/model"
)

// TestReplaceAllAndGet проверяет заполнение реестра и поиск по file_id.
func TestReplaceAllAndGet(t *testing.T) {
	r := New()

	r.ReplaceAll([]model.FileRecord{
		{FileID: "f1", FileName: "scan_000.jpg", FileSHA256: "aaa", FileSize: 100},
		{FileID: "f2", FileName: "scan_001.jpg", FileSHA256: "bbb", FileSize: 200},
	})

	if r.Count() != 2 {
		t.Fatalf("ожидалось 2 записи, получено %d", r.Count())
	}

	rec := r.Get("f2")
	if rec == nil {
		t.Fatal("запись f2 не найдена")
	}
	if rec.FileName != "scan_001.jpg" {
		t.Errorf("ожидалось имя scan_001.jpg, получено %q", rec.FileName)
	}
	if rec.FileSize != 200 {
		t.Errorf("ожидался размер 200, получен %d", rec.FileSize)
	}

	if r.Get("missing") != nil {
		t.Error("для неизвестного file_id ожидался nil")
	}
}

// TestReplaceAll_Overwrites проверяет, что новый скан заменяет реестр целиком.
func TestReplaceAll_Overwrites(t *testing.T) {
	r := New()

	r.ReplaceAll([]model.FileRecord{
		{FileID: "old", FileName: "scan_000.jpg"},
	})
	r.ReplaceAll([]model.FileRecord{
		{FileID: "new1", FileName: "doc_000.pdf"},
		{FileID: "new2", FileName: "doc_001.pdf"},
	})

	if r.Get("old") != nil {
		t.Error("запись прошлого скана должна быть удалена")
	}
	if r.Count() != 2 {
		t.Errorf("ожидалось 2 записи, получено %d", r.Count())
	}
}

// TestGet_ReturnsCopy проверяет, что Get возвращает копию, а не ссылку.
func TestGet_ReturnsCopy(t *testing.T) {
	r := New()
	r.ReplaceAll([]model.FileRecord{
		{FileID: "f1", FileName: "scan_000.jpg"},
	})

	rec := r.Get("f1")
	rec.FileName = "modified"

	if r.Get("f1").FileName != "scan_000.jpg" {
		t.Error("изменение копии не должно затрагивать реестр")
	}
}

// TestList_SortedByName проверяет сортировку списка по имени файла.
func TestList_SortedByName(t *testing.T) {
	r := New()
	r.ReplaceAll([]model.FileRecord{
		{FileID: "b", FileName: "scan_002.jpg"},
		{FileID: "c", FileName: "scan_000.jpg"},
		{FileID: "a", FileName: "scan_001.jpg"},
	})

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("ожидалось 3 записи, получено %d", len(list))
	}
	for i, want := range []string{"scan_000.jpg", "scan_001.jpg", "scan_002.jpg"} {
		if list[i].FileName != want {
			t.Errorf("позиция %d: ожидалось %q, получено %q", i, want, list[i].FileName)
		}
	}
}

// TestClear проверяет явную очистку реестра.
func TestClear(t *testing.T) {
	r := New()
	r.ReplaceAll([]model.FileRecord{{FileID: "f1"}})
	r.Clear()

	if r.Count() != 0 {
		t.Errorf("после Clear ожидалось 0 записей, получено %d", r.Count())
	}
}

// TestConcurrentAccess проверяет потокобезопасность реестра.
func TestConcurrentAccess(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	const goroutines = 50

	wg.Add(goroutines)
	for i := range goroutines {
		go func(n int) {
			defer wg.Done()

			r.ReplaceAll([]model.FileRecord{
				{FileID: fmt.Sprintf("f%d", n), FileName: fmt.Sprintf("scan_%03d.jpg", n)},
			})
			_ = r.Get(fmt.Sprintf("f%d", n))
			_ = r.List()
			_ = r.Count()
		}(i)
	}

	wg.Wait()
}
