// events.go — реестр именованных событий клиента.
//
// Ровно два имени события. Ограничение дизайна: повторная регистрация
// обработчика для того же имени заменяет предыдущий — fan-out на
// несколько подписчиков не поддерживается, вызывающий код может
// полагаться на семантику "последняя регистрация побеждает".
// Доставка синхронная, в том же потоке обработки результата скана.
package scanner

import "github.com/bigkaa/scanbridge/internal/domain/model"

// EventName — имя события клиента.
type EventName string

const (
	// EventScanToFile — готова очередная страница скана (по одному
	// событию на файл, строго в отсортированном порядке страниц)
	EventScanToFile EventName = "scanToFile"
	// EventScanFinish — пачка сканирования завершена (одно событие,
	// после всех scanToFile)
	EventScanFinish EventName = "scanFinish"
)

// Event — полезная нагрузка события.
// Для scanToFile заполнен File; для scanFinish — FileIDs
// (идентификаторы в порядке страниц).
type Event struct {
	File    *model.FileRecord
	FileIDs []string
}

// Handler — обработчик события.
type Handler func(Event)

// On регистрирует обработчик события. Повторная регистрация для того
// же имени заменяет предыдущий обработчик. nil удаляет обработчик.
func (c *Client) On(name EventName, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h == nil {
		delete(c.handlers, name)
		return
	}
	c.handlers[name] = h
}

// dispatch синхронно вызывает обработчик события, если он зарегистрирован.
func (c *Client) dispatch(name EventName, ev Event) {
	c.mu.Lock()
	h, ok := c.handlers[name]
	c.mu.Unlock()

	if ok {
		h(ev)
	}
}
