package session

import (
	"sync/atomic"
	"time"
)

// PumpPollInterval 事件循环检查代数的周期
const PumpPollInterval = time.Second

// Generation 单调递增的连接代数。
// 每次建立或释放连接都会递增，旧连接的事件循环发现代数不匹配后自行退出。
type Generation struct {
	n atomic.Uint64
}

// Next 递增并返回新的代数
func (g *Generation) Next() uint64 {
	return g.n.Add(1)
}

// Current 返回当前代数
func (g *Generation) Current() uint64 {
	return g.n.Load()
}

// IsCurrent 判断 tag 是否仍是当前代数
func (g *Generation) IsCurrent(tag uint64) bool {
	return g.n.Load() == tag
}

// Pump 从 events 读取事件并交给 handle，直到通道关闭或代数过期。
// 即使没有事件，也每隔 poll 检查一次代数。
func Pump[E any](gen *Generation, tag uint64, events <-chan E, poll time.Duration, handle func(E)) {
	if poll <= 0 {
		poll = PumpPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok || !gen.IsCurrent(tag) {
				return
			}
			handle(ev)
		case <-ticker.C:
			if !gen.IsCurrent(tag) {
				return
			}
		}
	}
}
