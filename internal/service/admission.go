package service

import (
	"context"
	"sync"
	"time"

	"pseudo_practice_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// concurrencySpan 并发上限统计的时间范围
const concurrencySpan = time.Second

type AdmissionLimits struct {
	MaxConcurrent int
	MaxRequests   int
	TimeWindow    time.Duration
}

// Admitter 推理调用的本地准入控制。被拒绝的调用立即失败，不排队。
type Admitter interface {
	TryAdmit(ctx context.Context, now time.Time) bool
	SetLimits(limits AdmissionLimits)
}

// SlidingWindow 进程内滑动窗口：记录每次被准入调用的开始时间，
// 检查与追加在同一把锁内完成。
type SlidingWindow struct {
	mu     sync.Mutex
	limits AdmissionLimits
	starts []time.Time
}

func NewSlidingWindow(limits AdmissionLimits) *SlidingWindow {
	return &SlidingWindow{limits: limits}
}

func (w *SlidingWindow) TryAdmit(_ context.Context, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.starts[:0]
	recent := 0
	for _, t := range w.starts {
		age := now.Sub(t)
		if age >= w.limits.TimeWindow {
			continue
		}
		kept = append(kept, t)
		if age < concurrencySpan {
			recent++
		}
	}
	w.starts = kept

	if recent >= w.limits.MaxConcurrent || len(w.starts) >= w.limits.MaxRequests {
		return false
	}
	w.starts = append(w.starts, now)
	return true
}

func (w *SlidingWindow) SetLimits(limits AdmissionLimits) {
	w.mu.Lock()
	w.limits = limits
	w.mu.Unlock()
}

// admitScript 与 SlidingWindow 相同的判定，在 Redis 中原子执行，多实例共享同一个上限
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max_requests = tonumber(ARGV[3])
local max_concurrent = tonumber(ARGV[4])
local span = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= max_requests then
	return 0
end
if redis.call('ZCOUNT', key, '(' .. (now - span), '+inf') >= max_concurrent then
	return 0
end
redis.call('ZADD', key, now, ARGV[6])
redis.call('PEXPIRE', key, window)
return 1
`)

type RedisWindow struct {
	rdb *redis.Client
	key string

	mu     sync.RWMutex
	limits AdmissionLimits
}

func NewRedisWindow(rdb *redis.Client, key string, limits AdmissionLimits) *RedisWindow {
	return &RedisWindow{rdb: rdb, key: key, limits: limits}
}

// TryAdmit Redis 不可用时拒绝准入
func (w *RedisWindow) TryAdmit(ctx context.Context, now time.Time) bool {
	w.mu.RLock()
	limits := w.limits
	w.mu.RUnlock()

	admitted, err := admitScript.Run(ctx, w.rdb, []string{w.key},
		now.UnixMilli(),
		limits.TimeWindow.Milliseconds(),
		limits.MaxRequests,
		limits.MaxConcurrent,
		concurrencySpan.Milliseconds(),
		uuid.New().String(),
	).Int()
	if err != nil {
		logger.Log.Warn("admission backend unavailable, rejecting call", zap.Error(err))
		return false
	}
	return admitted == 1
}

func (w *RedisWindow) SetLimits(limits AdmissionLimits) {
	w.mu.Lock()
	w.limits = limits
	w.mu.Unlock()
}
