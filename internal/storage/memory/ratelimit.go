package memory

import (
	"sync"
	"time"
)

// rateLimitEntry 单个限流键的固定窗口计数。
type rateLimitEntry struct {
	count     int64
	windowEnd time.Time
}

// RateLimiter 内存限流计数器，固定窗口算法。
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

// NewRateLimiter 创建内存限流计数器。
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		entries: make(map[string]*rateLimitEntry),
	}
}

// IncrementRateLimit 递增指定键在当前窗口内的计数并返回新值。
// 窗口过期后计数重置。
func (r *RateLimiter) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	entry, ok := r.entries[key]
	if !ok || now.After(entry.windowEnd) {
		entry = &rateLimitEntry{windowEnd: now.Add(window)}
		r.entries[key] = entry
	}
	entry.count++

	// 顺带清理已过期的其他键，避免 map 无界增长。
	if len(r.entries) > 1024 {
		for k, e := range r.entries {
			if now.After(e.windowEnd) {
				delete(r.entries, k)
			}
		}
	}
	return entry.count, nil
}
