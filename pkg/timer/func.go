package timer

import (
	"fmt"
	"sync"
	"time"
)

// Debounce 返回防抖函数：连续调用时只在最后一次调用 wait 之后执行一次
func Debounce(wait time.Duration, fn func()) func() {
	var mu sync.Mutex
	var t *time.Timer
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if t != nil {
			t.Stop()
		}
		t = time.AfterFunc(wait, fn)
	}
}

// Retry 最多尝试 attempts 次，每次失败后等待 delay
func Retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("retry failed after %d attempts: %w", attempts, err)
}
