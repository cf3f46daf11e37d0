package ircclient

import (
	"sync"
	"time"
)

// floodLimiter 发送限速：计数达到 burst 后须等待计数按 period 逐一衰减
type floodLimiter struct {
	burst  int
	period time.Duration

	mu    sync.Mutex
	count int
	last  time.Time
}

func newFloodLimiter(burst int, period time.Duration) *floodLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &floodLimiter{burst: burst, period: period}
}

// reserve 尝试占用一个发送名额，返回还需等待的时间，0 表示已占用
func (f *floodLimiter) reserve(now time.Time) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.period <= 0 {
		return 0
	}
	if f.count > 0 {
		if dec := int(now.Sub(f.last) / f.period); dec > 0 {
			f.count -= dec
			if f.count < 0 {
				f.count = 0
			}
			f.last = f.last.Add(time.Duration(dec) * f.period)
		}
	}
	if f.count == 0 {
		f.last = now
	}
	if f.count < f.burst {
		f.count++
		return 0
	}
	return f.period - now.Sub(f.last)
}
