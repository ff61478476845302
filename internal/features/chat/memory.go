// Package chat — диалог с AI-агентом: окно последних реплик,
// HTTP-клиент агента и обработчик сообщений.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowSize — сколько последних реплик хранится на пользователя.
const WindowSize = 20

// Роли реплик
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn — одна реплика в окне.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Window — короткая память диалога. Старые реплики вытесняются.
type Window interface {
	Append(ctx context.Context, userID int64, t Turn) error
	Recent(ctx context.Context, userID int64) ([]Turn, error)
	Clear(ctx context.Context, userID int64) error
}

// ring — кольцевой буфер на WindowSize реплик.
type ring struct {
	buf   [WindowSize]Turn
	start int
	n     int
}

func (r *ring) push(t Turn) {
	if r.n < WindowSize {
		r.buf[(r.start+r.n)%WindowSize] = t
		r.n++
		return
	}
	r.buf[r.start] = t
	r.start = (r.start + 1) % WindowSize
}

func (r *ring) items() []Turn {
	out := make([]Turn, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%WindowSize]
	}
	return out
}

// RingWindow хранит окна в памяти процесса. Теряется при рестарте.
type RingWindow struct {
	mu    sync.Mutex
	rings map[int64]*ring
}

// NewRingWindow создаёт пустое окно.
func NewRingWindow() *RingWindow {
	return &RingWindow{rings: make(map[int64]*ring)}
}

func (w *RingWindow) Append(_ context.Context, userID int64, t Turn) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[userID]
	if !ok {
		r = &ring{}
		w.rings[userID] = r
	}
	r.push(t)
	return nil
}

func (w *RingWindow) Recent(_ context.Context, userID int64) ([]Turn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[userID]
	if !ok {
		return nil, nil
	}
	return r.items(), nil
}

func (w *RingWindow) Clear(_ context.Context, userID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.rings, userID)
	return nil
}

// RedisWindow хранит окно списком в Redis: RPUSH + LTRIM, TTL на ключ.
type RedisWindow struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisWindow создаёт окно поверх клиента Redis. ttl=0 — без истечения.
func NewRedisWindow(rdb redis.UniversalClient, ttl time.Duration) *RedisWindow {
	return &RedisWindow{rdb: rdb, ttl: ttl}
}

func redisKey(userID int64) string {
	return "mindbot:chat:" + strconv.FormatInt(userID, 10)
}

func (w *RedisWindow) Append(ctx context.Context, userID int64, t Turn) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("ошибка сериализации реплики: %w", err)
	}
	key := redisKey(userID)
	_, err = w.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -WindowSize, -1)
		if w.ttl > 0 {
			pipe.Expire(ctx, key, w.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка записи в redis: %w", err)
	}
	return nil
}

func (w *RedisWindow) Recent(ctx context.Context, userID int64) ([]Turn, error) {
	items, err := w.rdb.LRange(ctx, redisKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из redis: %w", err)
	}
	out := make([]Turn, 0, len(items))
	for _, item := range items {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (w *RedisWindow) Clear(ctx context.Context, userID int64) error {
	if err := w.rdb.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("ошибка очистки redis: %w", err)
	}
	return nil
}
