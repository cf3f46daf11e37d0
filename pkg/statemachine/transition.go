package statemachine

import "fmt"

// Transition 描述一次已发生的状态转换
type Transition struct {
	Source      State   // 源状态
	Destination State   // 目标状态
	Trigger     Trigger // 触发器
	IsReentry   bool    // 是否为重入
}

func (t Transition) String() string {
	return fmt.Sprintf("%s => %s (%s)", t.Source, t.Destination, t.Trigger)
}

type behaviourKind int

const (
	behaviourPermit behaviourKind = iota
	behaviourDynamic
	behaviourReentry
	behaviourIgnore
)

// triggerBehaviour 一个状态对某个触发器的响应方式
type triggerBehaviour struct {
	kind    behaviourKind
	target  State
	guard   GuardFunc
	resolve ResolverFunc
}

func (b *triggerBehaviour) guardPasses() bool {
	return b.guard == nil || b.guard()
}

// entryAction 进入动作，fromTrigger 为 true 时仅在指定触发器下执行
type entryAction struct {
	trigger     Trigger
	fromTrigger bool
	action      ActionFunc
}
