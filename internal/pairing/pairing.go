package pairing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/junbin-yang/subgames/internal/chatsession"
	"github.com/junbin-yang/subgames/internal/session"
	"github.com/junbin-yang/subgames/pkg/logger"
	"github.com/junbin-yang/subgames/pkg/statemachine"
	"github.com/junbin-yang/subgames/pkg/taskpool"
)

// Connecting 等待两个身份就绪
const Connecting statemachine.State = "Connecting"

// 聚合触发器
const (
	ChatbotsReady   statemachine.Trigger = "ChatbotsReady"
	ChatbotsUnready statemachine.Trigger = "ChatbotsUnready"
)

// Identity 被配对的聊天身份
type Identity interface {
	Start()
	Stop()
	IsReady() bool
	OnTransitioned(fn statemachine.TransitionHandler)
}

// Talker 在频道中收听消息的身份
type Talker interface {
	Identity
	OnMessage(fn func(chatsession.Message))
}

// Whisperer 负责发送私信的身份
type Whisperer interface {
	Identity
	Whisper(target, text string) error
}

// Config 配对控制器配置
type Config struct {
	Talk    Talker
	Whisper Whisperer
	// RelayTarget 非空时把普通身份听到的消息私信给该用户
	RelayTarget string
	// Pool 为空时内部创建
	Pool *taskpool.TaskPool
}

// Pairing 管理共用一份凭据的普通身份与私信身份，
// 两者都就绪时整体就绪。
type Pairing struct {
	Machine *statemachine.Machine

	talk        Talker
	whisper     Whisperer
	relayTarget string
	pool        *taskpool.TaskPool
	ownPool     bool
	log         logger.Logger
	running     atomic.Bool

	// seq 保证聚合值的更新顺序与触发顺序一致
	seq sync.Mutex

	mu        sync.Mutex
	aggregate bool
	fired     map[statemachine.Trigger]uint64
}

// New 创建配对控制器
func New(cfg Config) (*Pairing, error) {
	if cfg.Talk == nil || cfg.Whisper == nil {
		return nil, fmt.Errorf("pairing: both identities are required")
	}

	p := &Pairing{
		Machine:     statemachine.NewMachine(session.SignedOff),
		talk:        cfg.Talk,
		whisper:     cfg.Whisper,
		relayTarget: cfg.RelayTarget,
		pool:        cfg.Pool,
		log:         logger.With(logger.String("component", "pairing")),
		fired:       make(map[statemachine.Trigger]uint64),
	}
	if p.pool == nil {
		p.pool = taskpool.New(taskpool.WithWorkers(2), taskpool.WithQueueSize(16),
			taskpool.WithOnTaskComplete(LogTaskFailure(p.log)))
		p.ownPool = true
	}
	p.configure()

	p.Machine.OnTransitioned(func(t statemachine.Transition) {
		p.log.Debugf("%s => %s (%s)", t.Source, t.Destination, t.Trigger)
	})
	p.talk.OnTransitioned(func(statemachine.Transition) { p.recompute() })
	p.whisper.OnTransitioned(func(statemachine.Transition) { p.recompute() })
	if p.relayTarget != "" {
		p.talk.OnMessage(p.relay)
	}
	return p, nil
}

// LogTaskFailure 返回记录失败任务的完成钩子
func LogTaskFailure(log logger.Logger) func(taskID string, d time.Duration, err error) {
	return func(taskID string, d time.Duration, err error) {
		if err != nil {
			log.Warn("task failed", logger.String("task", taskID), logger.Duration("elapsed", d), logger.Err(err))
		}
	}
}

func (p *Pairing) configure() {
	m := p.Machine

	m.Configure(session.Conceived).
		Permit(session.DisconnectRequested, session.SignedOff)

	m.Configure(session.SignedOff).
		SubstateOf(session.Conceived).
		OnEntry(func(statemachine.Transition) { p.submitBoth("stop", Identity.Stop) }).
		Ignore(session.DisconnectRequested).
		Ignore(ChatbotsReady).
		Ignore(ChatbotsUnready).
		PermitIf(session.ConnectRequested, Connecting, p.running.Load)

	m.Configure(Connecting).
		SubstateOf(session.Conceived).
		OnEntry(func(statemachine.Transition) { p.connecting() }).
		Ignore(session.ConnectRequested).
		Ignore(ChatbotsUnready).
		Permit(ChatbotsReady, session.Ready)

	m.Configure(session.Ready).
		SubstateOf(session.Conceived).
		Ignore(session.ConnectRequested).
		Ignore(ChatbotsReady).
		Permit(ChatbotsUnready, Connecting)
}

func (p *Pairing) connecting() {
	p.submitBoth("start", Identity.Start)

	// 身份可能仍保持着上一轮的就绪状态
	p.mu.Lock()
	ready := p.aggregate
	p.mu.Unlock()
	if ready {
		p.fire(ChatbotsReady)
	}
}

func (p *Pairing) submitBoth(action string, fn func(Identity)) {
	for name, id := range map[string]Identity{"talk": p.talk, "whisper": p.whisper} {
		id := id
		err := p.pool.SubmitAsync(func(ctx context.Context) error {
			fn(id)
			return nil
		}, taskpool.WithTaskID(action+":"+name))
		if err != nil {
			p.log.Warn("submit failed", logger.String("task", action+":"+name), logger.Err(err))
		}
	}
}

// recompute 在身份就绪状态变化时重新聚合，输入未变化时不触发
func (p *Pairing) recompute() {
	p.seq.Lock()
	defer p.seq.Unlock()

	ready := p.talk.IsReady() && p.whisper.IsReady()

	p.mu.Lock()
	if ready == p.aggregate {
		p.mu.Unlock()
		return
	}
	p.aggregate = ready
	p.mu.Unlock()

	if ready {
		p.fire(ChatbotsReady)
	} else {
		p.fire(ChatbotsUnready)
	}
}

func (p *Pairing) fire(trigger statemachine.Trigger) {
	p.mu.Lock()
	p.fired[trigger]++
	p.mu.Unlock()

	if err := p.Machine.Fire(trigger); err != nil {
		p.log.Debug("trigger refused", logger.String("trigger", string(trigger)), logger.Err(err))
	}
}

func (p *Pairing) relay(msg chatsession.Message) {
	if !p.whisper.IsReady() {
		return
	}
	if err := p.whisper.Whisper(p.relayTarget, fmt.Sprintf("[%s] %s", msg.Sender, msg.Text)); err != nil {
		p.log.Debug("relay failed", logger.Err(err))
	}
}

// Start 启动两个身份，已在运行时无操作
func (p *Pairing) Start() {
	if p.running.CompareAndSwap(false, true) {
		p.fire(session.ConnectRequested)
	}
}

// Stop 停止两个身份，未运行时无操作
func (p *Pairing) Stop() {
	if p.running.CompareAndSwap(true, false) {
		p.fire(session.DisconnectRequested)
	}
}

// Dispose 停止并关闭内部任务池
func (p *Pairing) Dispose(ctx context.Context) error {
	p.Stop()
	if !p.ownPool {
		return nil
	}
	return p.pool.Shutdown(ctx)
}

// IsReady 两个身份均已就绪
func (p *Pairing) IsReady() bool {
	return p.Machine.IsInState(session.Ready)
}

// State 返回当前状态
func (p *Pairing) State() statemachine.State {
	return p.Machine.Current()
}

// OnTransitioned 注册转换观察者
func (p *Pairing) OnTransitioned(fn statemachine.TransitionHandler) {
	p.Machine.OnTransitioned(fn)
}

// Fired 返回聚合触发器的触发次数
func (p *Pairing) Fired(trigger statemachine.Trigger) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fired[trigger]
}

// PoolMetrics 返回任务池指标
func (p *Pairing) PoolMetrics() *taskpool.MetricsSnapshot {
	return p.pool.GetMetrics()
}
