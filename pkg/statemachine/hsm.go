package statemachine

import (
	"fmt"
	"sort"
	"sync"
)

// Machine 层次状态机。
//
// 触发器在当前状态上查找，找不到时沿父状态逐级向上查找，最近的声明生效。
// 转换时只退出和进入源与目标最近公共祖先以下的状态。
// 同一状态机上的 Fire 以 run-to-completion 方式执行：正在转换时到达的触发器
// （无论来自动作、观察者还是其他 goroutine）进入队列，由正在执行的 goroutine 依次处理。
type Machine struct {
	mu      sync.RWMutex
	current State
	states  map[State]*stateRepresentation

	handlersMu sync.RWMutex
	onTransit  []TransitionHandler
	unhandled  UnhandledTriggerHandler

	queueMu sync.Mutex
	firing  bool
	queue   []Trigger
}

// NewMachine 创建状态机
func NewMachine(initial State) *Machine {
	m := &Machine{
		current: initial,
		states:  make(map[State]*stateRepresentation),
	}
	m.states[initial] = newStateRepresentation(initial)
	return m
}

// Configure 返回状态的配置器，状态不存在时自动创建
func (m *Machine) Configure(state State) *StateConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &StateConfig{m: m, rep: m.representation(state)}
}

// representation 调用方需持有写锁
func (m *Machine) representation(state State) *stateRepresentation {
	rep, ok := m.states[state]
	if !ok {
		rep = newStateRepresentation(state)
		m.states[state] = rep
	}
	return rep
}

// Current 返回当前状态
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsInState 当前状态为 state 或其子孙状态时返回 true
func (m *Machine) IsInState(state State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.ancestors(m.current) {
		if s == state {
			return true
		}
	}
	return false
}

// OnTransitioned 注册转换观察者，按注册顺序同步调用
func (m *Machine) OnTransitioned(handler TransitionHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.onTransit = append(m.onTransit, handler)
}

// OnUnhandledTrigger 设置排队触发失败时的回调
func (m *Machine) OnUnhandledTrigger(handler UnhandledTriggerHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.unhandled = handler
}

// CanFire 检查触发器在当前状态下是否会成功，无副作用。
// 动态目标会调用一次解析函数，解析结果未配置时返回 false。
func (m *Machine) CanFire(trigger Trigger) bool {
	b, _, err := m.lookup(trigger)
	if err != nil {
		return false
	}
	if b.kind == behaviourIgnore {
		return true
	}
	return m.known(m.destination(b))
}

// PermittedTriggers 返回当前可以引起转换的触发器（不含忽略项）
func (m *Machine) PermittedTriggers() []Trigger {
	m.mu.RLock()
	var candidates []Trigger
	seen := make(map[Trigger]bool)
	for _, s := range m.ancestors(m.current) {
		rep, ok := m.states[s]
		if !ok {
			continue
		}
		for trigger := range rep.triggers {
			if !seen[trigger] {
				seen[trigger] = true
				candidates = append(candidates, trigger)
			}
		}
	}
	m.mu.RUnlock()

	var permitted []Trigger
	for _, trigger := range candidates {
		b, _, err := m.lookup(trigger)
		if err == nil && b.kind != behaviourIgnore {
			permitted = append(permitted, trigger)
		}
	}
	sort.Slice(permitted, func(i, j int) bool { return permitted[i] < permitted[j] })
	return permitted
}

// Fire 触发状态转换。
// 若状态机正在转换中，触发器入队后立即返回 nil，失败通过 OnUnhandledTrigger 报告。
func (m *Machine) Fire(trigger Trigger) error {
	m.queueMu.Lock()
	if m.firing {
		m.queue = append(m.queue, trigger)
		m.queueMu.Unlock()
		return nil
	}
	m.firing = true
	m.queueMu.Unlock()

	err := m.fire(trigger)

	for {
		m.queueMu.Lock()
		if len(m.queue) == 0 {
			m.firing = false
			m.queueMu.Unlock()
			break
		}
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.queueMu.Unlock()

		if qerr := m.fire(next); qerr != nil {
			m.reportUnhandled(next, qerr)
		}
	}
	return err
}

func (m *Machine) reportUnhandled(trigger Trigger, err error) {
	m.handlersMu.RLock()
	handler := m.unhandled
	m.handlersMu.RUnlock()
	if handler != nil {
		handler(m.Current(), trigger, err)
	}
}

// lookup 从当前状态向根查找触发器的行为，守卫在锁外求值
func (m *Machine) lookup(trigger Trigger) (*triggerBehaviour, State, error) {
	m.mu.RLock()
	current := m.current
	type level struct {
		state     State
		behaviour []*triggerBehaviour
	}
	var levels []level
	for _, s := range m.ancestors(current) {
		if rep, ok := m.states[s]; ok && len(rep.triggers[trigger]) > 0 {
			levels = append(levels, level{state: s, behaviour: rep.triggers[trigger]})
		}
	}
	m.mu.RUnlock()

	denied := false
	for _, l := range levels {
		for _, b := range l.behaviour {
			if b.guardPasses() {
				return b, l.state, nil
			}
			denied = true
		}
	}

	if denied {
		return nil, current, fmt.Errorf("%w: %s in state %s", ErrTransitionDenied, trigger, current)
	}
	return nil, current, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, trigger, current)
}

func (m *Machine) fire(trigger Trigger) error {
	b, _, err := m.lookup(trigger)
	if err != nil {
		return err
	}
	if b.kind == behaviourIgnore {
		return nil
	}

	source := m.Current()
	destination := m.destination(b)
	if !m.known(destination) {
		return fmt.Errorf("%w: %s", ErrStateNotFound, destination)
	}

	reentry := b.kind == behaviourReentry || source == destination
	t := Transition{
		Source:      source,
		Destination: destination,
		Trigger:     trigger,
		IsReentry:   reentry,
	}

	m.mu.RLock()
	exitPath, enterPath := m.paths(source, destination, reentry)
	m.mu.RUnlock()

	for _, s := range exitPath {
		for _, action := range m.exitActions(s) {
			action(t)
		}
	}

	m.mu.Lock()
	m.current = destination
	m.mu.Unlock()

	for _, s := range enterPath {
		for _, ea := range m.entryActions(s) {
			if ea.fromTrigger && ea.trigger != trigger {
				continue
			}
			ea.action(t)
		}
	}

	m.handlersMu.RLock()
	handlers := append([]TransitionHandler(nil), m.onTransit...)
	m.handlersMu.RUnlock()
	for _, h := range handlers {
		h(t)
	}
	return nil
}

func (m *Machine) destination(b *triggerBehaviour) State {
	if b.kind == behaviourDynamic {
		return b.resolve()
	}
	return b.target
}

func (m *Machine) known(s State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.states[s]
	return ok
}

func (m *Machine) exitActions(s State) []ActionFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rep, ok := m.states[s]; ok {
		return append([]ActionFunc(nil), rep.exit...)
	}
	return nil
}

func (m *Machine) entryActions(s State) []entryAction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rep, ok := m.states[s]; ok {
		return append([]entryAction(nil), rep.entry...)
	}
	return nil
}

// paths 计算退出路径（由内向外）和进入路径（由外向内）。
// 重入时目标状态本身也会退出再进入；目标为源的祖先时不重新进入目标。
func (m *Machine) paths(from, to State, reentry bool) (exit, enter []State) {
	fromAncestors := m.ancestors(from)
	toAncestors := m.ancestors(to)

	if reentry {
		for _, s := range fromAncestors {
			exit = append(exit, s)
			if s == to {
				break
			}
		}
		return exit, []State{to}
	}

	inTo := make(map[State]bool, len(toAncestors))
	for _, s := range toAncestors {
		inTo[s] = true
	}

	// 最近公共祖先
	var lca State
	hasLCA := false
	for _, s := range fromAncestors {
		if inTo[s] {
			lca, hasLCA = s, true
			break
		}
		exit = append(exit, s)
	}

	for _, s := range toAncestors {
		if hasLCA && s == lca {
			break
		}
		enter = append(enter, s)
	}
	for i := 0; i < len(enter)/2; i++ {
		enter[i], enter[len(enter)-1-i] = enter[len(enter)-1-i], enter[i]
	}
	return exit, enter
}

// ancestors 返回状态自身及其所有祖先，调用方需持有读锁
func (m *Machine) ancestors(state State) []State {
	result := []State{state}
	current := state
	for {
		rep, ok := m.states[current]
		if !ok || !rep.hasParent {
			break
		}
		result = append(result, rep.parent)
		current = rep.parent
	}
	return result
}
