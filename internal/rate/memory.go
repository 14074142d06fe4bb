package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter replica el fixed window del RedisLimiter en memoria.
// Sirve para dev y deployments de un solo nodo.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	mu   sync.Mutex
	hits map[string]*window
	now  func() time.Time
}

type window struct {
	start time.Time
	count int64
}

func NewMemoryLimiter(max int, win time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:    int64(max),
		Window: win,
		hits:   make(map[string]*window),
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.hits[key]
	if !ok || !w.start.Equal(winStart) {
		w = &window{start: winStart}
		l.hits[key] = w
	}
	w.count++

	// Limpieza oportunista de ventanas viejas para que el map no crezca.
	if len(l.hits) > 4096 {
		for k, v := range l.hits {
			if !v.start.Equal(winStart) {
				delete(l.hits, k)
			}
		}
	}

	remaining := l.Max - w.count
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     w.count <= l.Max,
		Remaining:   remaining,
		CurrentHits: w.count,
		WindowTTL:   winStart.Add(l.Window).Sub(now),
	}
	if !res.Allowed {
		res.RetryAfter = res.WindowTTL
	}
	return res, nil
}
