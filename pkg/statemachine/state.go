package statemachine

import "fmt"

// stateRepresentation 状态表中的一个条目
type stateRepresentation struct {
	state     State
	parent    State
	hasParent bool
	triggers  map[Trigger][]*triggerBehaviour
	entry     []entryAction
	exit      []ActionFunc
}

func newStateRepresentation(state State) *stateRepresentation {
	return &stateRepresentation{
		state:    state,
		triggers: make(map[Trigger][]*triggerBehaviour),
	}
}

// StateConfig 用于声明某个状态的行为，所有方法可链式调用。
// 配置错误（环、重复的无守卫转换）会直接 panic。
type StateConfig struct {
	m   *Machine
	rep *stateRepresentation
}

// SubstateOf 声明当前状态是 parent 的子状态
func (c *StateConfig) SubstateOf(parent State) *StateConfig {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()

	for s := parent; ; {
		if s == c.rep.state {
			panic(fmt.Errorf("%w: %s substate of %s", ErrCyclicHierarchy, c.rep.state, parent))
		}
		rep, ok := c.m.states[s]
		if !ok || !rep.hasParent {
			break
		}
		s = rep.parent
	}

	c.m.representation(parent)
	c.rep.parent = parent
	c.rep.hasParent = true
	return c
}

// Permit 无条件转换到 target
func (c *StateConfig) Permit(trigger Trigger, target State) *StateConfig {
	return c.add(trigger, &triggerBehaviour{kind: behaviourPermit, target: target})
}

// PermitIf 守卫通过时转换到 target
func (c *StateConfig) PermitIf(trigger Trigger, target State, guard GuardFunc) *StateConfig {
	return c.add(trigger, &triggerBehaviour{kind: behaviourPermit, target: target, guard: guard})
}

// PermitDynamic 触发时由 resolver 计算目标状态
func (c *StateConfig) PermitDynamic(trigger Trigger, resolver ResolverFunc) *StateConfig {
	return c.add(trigger, &triggerBehaviour{kind: behaviourDynamic, resolve: resolver})
}

// PermitReentry 退出并重新进入当前状态
func (c *StateConfig) PermitReentry(trigger Trigger) *StateConfig {
	return c.add(trigger, &triggerBehaviour{kind: behaviourReentry, target: c.rep.state})
}

// Ignore 忽略触发器，不产生转换也不报错
func (c *StateConfig) Ignore(trigger Trigger) *StateConfig {
	return c.add(trigger, &triggerBehaviour{kind: behaviourIgnore})
}

// OnEntry 进入状态时执行
func (c *StateConfig) OnEntry(action ActionFunc) *StateConfig {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.rep.entry = append(c.rep.entry, entryAction{action: action})
	return c
}

// OnEntryFrom 仅当由 trigger 进入状态时执行
func (c *StateConfig) OnEntryFrom(trigger Trigger, action ActionFunc) *StateConfig {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.rep.entry = append(c.rep.entry, entryAction{trigger: trigger, fromTrigger: true, action: action})
	return c
}

// OnExit 退出状态时执行
func (c *StateConfig) OnExit(action ActionFunc) *StateConfig {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.rep.exit = append(c.rep.exit, action)
	return c
}

func (c *StateConfig) add(trigger Trigger, b *triggerBehaviour) *StateConfig {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()

	if b.guard == nil {
		for _, existing := range c.rep.triggers[trigger] {
			if existing.guard == nil {
				panic(fmt.Errorf("%w: %s on %s", ErrDuplicateTransition, trigger, c.rep.state))
			}
		}
	}
	c.rep.triggers[trigger] = append(c.rep.triggers[trigger], b)
	return c
}
