package statemachine

import (
	"encoding/json"
	"sync"
	"time"
)

// Record 一条转换记录
type Record struct {
	Machine     string    `json:"machine,omitempty"`
	Source      State     `json:"source"`
	Destination State     `json:"destination"`
	Trigger     Trigger   `json:"trigger"`
	Reentry     bool      `json:"reentry,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// History 有界的转换历史，超出容量时丢弃最旧的记录
type History struct {
	mu      sync.RWMutex
	limit   int
	records []Record
}

// NewHistory 创建转换历史，limit <= 0 表示不限制
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Attach 订阅状态机的转换事件
func (h *History) Attach(name string, m *Machine) {
	m.OnTransitioned(func(t Transition) {
		h.Add(Record{
			Machine:     name,
			Source:      t.Source,
			Destination: t.Destination,
			Trigger:     t.Trigger,
			Reentry:     t.IsReentry,
			Timestamp:   time.Now(),
		})
	})
}

// Add 追加一条记录
func (h *History) Add(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	if h.limit > 0 && len(h.records) > h.limit {
		h.records = append([]Record(nil), h.records[len(h.records)-h.limit:]...)
	}
}

// Records 返回记录副本
func (h *History) Records() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Record{}, h.records...)
}

// Last 返回最后 n 条记录
func (h *History) Last(n int) []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.records) {
		n = len(h.records)
	}
	return append([]Record{}, h.records[len(h.records)-n:]...)
}

// Len 返回记录数量
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Clear 清空历史记录
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}

// MarshalJSON 序列化历史记录
func (h *History) MarshalJSON() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return json.Marshal(map[string]interface{}{
		"limit":   h.limit,
		"records": h.records,
	})
}
