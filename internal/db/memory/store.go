// Package memory — хранилище в памяти процесса.
// Используется для локального запуска без PostgreSQL (STORE_DRIVER=memory)
// и в тестах. Наружу всегда отдаются копии документов.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mindbot.ru/telegram-bot/internal/store"
)

// Store реализует store.Store на map'ах.
type Store struct {
	mu       sync.RWMutex
	users    map[int64]*store.User
	payments map[string]*store.Payment
	reviews  []*store.Review

	// Now подменяется в тестах
	Now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		users:    make(map[int64]*store.User),
		payments: make(map[string]*store.Payment),
		Now:      time.Now,
	}
}

func (s *Store) GetUser(_ context.Context, userID int64) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].Clone(), nil
}

func (s *Store) GetOrCreateUser(_ context.Context, p store.Profile) (*store.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[p.UserID]; ok {
		return u.Clone(), false, nil
	}
	now := s.Now()
	u := &store.User{
		ID:           p.UserID,
		Username:     p.Username,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		CreatedAt:    now,
		LastActivity: now,
	}
	s.users[p.UserID] = u
	return u.Clone(), true, nil
}

func (s *Store) UpdateUser(_ context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *Store) GetUserByReferralCode(_ context.Context, code string) (*store.User, error) {
	if code == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ReferralCode == code {
			return u.Clone(), nil
		}
	}
	return nil, nil
}

func (s *Store) CreatePayment(_ context.Context, p *store.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.Now()
		p.CreatedAt = c.CreatedAt
	}
	s.payments[p.ID] = c
	return nil
}

func (s *Store) GetPayment(_ context.Context, paymentID string) (*store.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payments[paymentID].Clone(), nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, paymentID string, status store.PaymentStatus, chargeID string) (*store.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, nil
	}
	p.Status = status
	if chargeID != "" {
		p.ChargeID = chargeID
	}
	if status == store.StatusSucceeded {
		now := s.Now()
		p.CompletedAt = &now
	}
	return p.Clone(), nil
}

func (s *Store) GetUserPayments(_ context.Context, userID int64) ([]*store.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Payment
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListPendingPayments(_ context.Context, olderThan time.Duration, limit int) ([]*store.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.Now().Add(-olderThan)
	var out []*store.Payment
	for _, p := range s.payments {
		if p.Status == store.StatusPending && !p.CreatedAt.After(cutoff) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateReview(_ context.Context, r *store.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *r
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.Now()
		r.CreatedAt = c.CreatedAt
	}
	s.reviews = append(s.reviews, &c)
	return nil
}

func (s *Store) GetUserReviews(_ context.Context, userID int64) ([]*store.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Review
	for i := len(s.reviews) - 1; i >= 0; i-- {
		if s.reviews[i].UserID == userID {
			c := *s.reviews[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *Store) GetAllReviews(_ context.Context, limit int) ([]*store.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Review
	for i := len(s.reviews) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		c := *s.reviews[i]
		out = append(out, &c)
	}
	return out, nil
}

// Statistics считает статистику одним проходом по пользователям и платежам.
func (s *Store) Statistics(_ context.Context, now time.Time) (*store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dayAgo := now.Add(-24 * time.Hour)
	st := &store.Stats{TotalAmount: decimal.Zero, Amount24h: decimal.Zero}

	for _, u := range s.users {
		st.TotalUsers++
		st.TotalMessages += int64(len(u.History))
		if !u.CreatedAt.Before(dayAgo) {
			st.NewUsers24h++
		}
		for _, h := range u.History {
			if !h.Timestamp.Before(dayAgo) {
				st.Messages24h++
			}
		}
	}
	for _, p := range s.payments {
		if p.Status != store.StatusSucceeded {
			continue
		}
		st.TotalPayments++
		st.TotalAmount = st.TotalAmount.Add(p.Amount)
		if p.CompletedAt != nil && !p.CompletedAt.Before(dayAgo) {
			st.Payments24h++
			st.Amount24h = st.Amount24h.Add(p.Amount)
		}
	}
	return st, nil
}

// BackfillSubscriptionBonus: в памяти нет документов старого формата.
func (s *Store) BackfillSubscriptionBonus(context.Context) (int64, error) {
	return 0, nil
}
