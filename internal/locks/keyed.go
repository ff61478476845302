// Package locks содержит мьютексы по ключу (user_id, payment_id).
// Сериализуют read-modify-write одного документа внутри процесса.
package locks

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed — набор мьютексов по ключу. Запись удаляется, когда её никто не держит.
// Нулевое значение не готово к работе, используйте NewKeyed.
type Keyed[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
	enabled bool
}

// NewKeyed создаёт набор мьютексов. При enabled=false Lock ничего не блокирует.
func NewKeyed[K comparable](enabled bool) *Keyed[K] {
	return &Keyed[K]{entries: make(map[K]*entry), enabled: enabled}
}

// Lock захватывает мьютекс ключа и возвращает функцию освобождения.
func (k *Keyed[K]) Lock(key K) (unlock func()) {
	if k == nil || !k.enabled {
		return func() {}
	}

	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// Len — сколько ключей сейчас удерживается (для тестов и метрик).
func (k *Keyed[K]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
