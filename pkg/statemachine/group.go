package statemachine

import (
	"fmt"
	"sort"
	"sync"
)

// Group 按名称管理多个状态机，用于汇总各控制器的状态
type Group struct {
	mu       sync.RWMutex
	machines map[string]*Machine
}

// NewGroup 创建状态机组
func NewGroup() *Group {
	return &Group{machines: make(map[string]*Machine)}
}

// Add 添加状态机，同名时覆盖
func (g *Group) Add(name string, m *Machine) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.machines[name] = m
}

// Remove 移除状态机
func (g *Group) Remove(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.machines, name)
}

// Get 获取状态机
func (g *Group) Get(name string) (*Machine, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.machines[name]
	return m, ok
}

// Fire 触发指定状态机
func (g *Group) Fire(name string, trigger Trigger) error {
	m, ok := g.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMachineNotFound, name)
	}
	return m.Fire(trigger)
}

// States 返回所有状态机的当前状态快照
func (g *Group) States() map[string]State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	states := make(map[string]State, len(g.machines))
	for name, m := range g.machines {
		states[name] = m.Current()
	}
	return states
}

// Names 返回排序后的名称列表
func (g *Group) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.machines))
	for name := range g.machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count 返回状态机数量
func (g *Group) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.machines)
}
