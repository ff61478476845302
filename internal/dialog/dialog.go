// Package dialog хранит состояние пошагового диалога с пользователем
// (конечный автомат): ожидание отзыва, ожидание команды админа.
//
// Состояние живёт в памяти процесса и истекает через TTL:
// после рестарта или таймаута пользователь снова в IDLE.
package dialog

import (
	"sync"
	"time"
)

// State — состояние диалога.
type State string

const (
	Idle                         State = "IDLE"
	AwaitingReview               State = "AWAITING_REVIEW"
	AwaitingAdminTargetTokens    State = "AWAITING_ADMIN_TARGET_TOKENS"
	AwaitingAdminTargetUnlimited State = "AWAITING_ADMIN_TARGET_UNLIMITED"
)

// DefaultTTL — через сколько забывается незавершённый шаг.
const DefaultTTL = 5 * time.Minute

type entry struct {
	state     State
	expiresAt time.Time
}

// Store — состояния пользователей с истечением.
type Store struct {
	mu      sync.Mutex
	entries map[int64]entry
	ttl     time.Duration

	now func() time.Time
}

// NewStore создаёт хранилище состояний. ttl <= 0 — DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{entries: make(map[int64]entry), ttl: ttl, now: time.Now}
}

// Get возвращает текущее состояние. Истёкшее — Idle.
func (s *Store) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return Idle
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, userID)
		return Idle
	}
	return e.state
}

// Set переводит пользователя в состояние и продлевает TTL.
// Set(Idle) равносилен Clear.
func (s *Store) Set(userID int64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state == Idle {
		delete(s.entries, userID)
		return
	}
	s.entries[userID] = entry{state: state, expiresAt: s.now().Add(s.ttl)}
}

// Clear сбрасывает состояние в Idle.
func (s *Store) Clear(userID int64) {
	s.Set(userID, Idle)
}

// Cleanup удаляет истёкшие записи. Возвращает число удалённых.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
