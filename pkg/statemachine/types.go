package statemachine

// State 表示状态树中的一个节点
type State string

// Trigger 表示触发状态转换的事件
type Trigger string

// GuardFunc 在触发时求值，决定转换是否允许
type GuardFunc func() bool

// ResolverFunc 在触发时求值，返回动态转换的目标状态
type ResolverFunc func() State

// ActionFunc 在状态进入或退出时执行
type ActionFunc func(t Transition)

// TransitionHandler 在每次转换完成后被调用
type TransitionHandler func(t Transition)

// UnhandledTriggerHandler 接收排队触发失败时的错误
type UnhandledTriggerHandler func(state State, trigger Trigger, err error)
