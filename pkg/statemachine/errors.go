package statemachine

import "errors"

var (
	// ErrInvalidTransition 当前状态及其祖先都没有声明该触发器
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrTransitionDenied 守卫拒绝了所有候选转换
	ErrTransitionDenied = errors.New("transition denied by guard")

	// ErrStateNotFound 状态未配置
	ErrStateNotFound = errors.New("state not found")

	// ErrDuplicateTransition 同一状态对同一触发器重复声明了无守卫转换
	ErrDuplicateTransition = errors.New("duplicate transition")

	// ErrCyclicHierarchy 子状态关系形成了环
	ErrCyclicHierarchy = errors.New("cyclic state hierarchy")

	// ErrMachineNotFound 状态机组中不存在该名称
	ErrMachineNotFound = errors.New("machine not found")
)
