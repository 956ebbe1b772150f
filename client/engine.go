package client

import (
	"time"

	"syncarena/logging"
	"syncarena/shared"
)

// DefaultInterpolationDelay 远端实体的固定渲染延迟，需大于服务端广播周期
const DefaultInterpolationDelay = 100 * time.Millisecond

// Keys 本帧按住的方向键
type Keys struct {
	Left, Right, Up, Down bool
}

// InputSender 将输入发往服务端（传输层实现）
type InputSender interface {
	SendInput(in shared.Input) error
}

// Entity 客户端侧实体：预测（本地）或插值（远端）副本
type Entity struct {
	shared.Entity
	buffer positionBuffer // 仅远端实体使用
}

// EngineOptions 客户端引擎参数
type EngineOptions struct {
	Rules              shared.Rules
	InterpolationDelay time.Duration
	Sender             InputSender
}

// Engine 客户端同步引擎：采样与预测、收到状态时对账、远端实体插值。
// 单线程使用；所有操作显式接收 now，不读取时钟。
type Engine struct {
	rules  shared.Rules
	delay  time.Duration
	sender InputSender

	localID  string
	entities map[string]*Entity

	nextSeq   int64
	pending   []shared.Input
	lastFrame time.Time
}

// NewEngine 创建客户端引擎
func NewEngine(opts EngineOptions) *Engine {
	if opts.Rules == (shared.Rules{}) {
		opts.Rules = shared.DefaultRules()
	}
	if opts.InterpolationDelay <= 0 {
		opts.InterpolationDelay = DefaultInterpolationDelay
	}
	return &Engine{
		rules:    opts.Rules,
		delay:    opts.InterpolationDelay,
		sender:   opts.Sender,
		entities: make(map[string]*Entity),
	}
}

// LocalID 本客户端控制的实体 id；尚未收到 welcome 时为空
func (e *Engine) LocalID() string { return e.localID }

// Handle 处理一条服务端消息
func (e *Engine) Handle(msg shared.Message, now time.Time) {
	switch m := msg.(type) {
	case shared.Welcome:
		e.localID = m.EntityID
	case shared.Join:
		e.addEntity(m.Entity, now)
	case shared.Leave:
		e.removeEntity(m.EntityID)
	case shared.StateBatch:
		e.Reconcile(m.States, now)
	case shared.Move:
		// 仅客户端 → 服务端
	}
}

func (e *Engine) addEntity(se shared.Entity, now time.Time) {
	e.entities[se.ID] = &Entity{Entity: se}
	if se.ID == e.localID {
		// 第一个输入的 dt 从实体创建时刻算起
		e.lastFrame = now
	}
}

func (e *Engine) removeEntity(id string) {
	delete(e.entities, id)
	if id == e.localID {
		e.pending = nil
	}
}

// ProcessInputs 采样本帧意图，发送并做本地预测。
// 空闲帧不产生输入、不消耗序列号。
func (e *Engine) ProcessInputs(now time.Time, keys Keys) (shared.Input, bool) {
	self, ok := e.entities[e.localID]
	if !ok {
		return shared.Input{}, false
	}

	if e.lastFrame.IsZero() {
		e.lastFrame = now
	}
	dt := now.Sub(e.lastFrame).Seconds()
	e.lastFrame = now

	in := shared.Input{EntityID: e.localID, Dt: dt}
	// 已贴边时朝边界方向的按键视为未按下
	if keys.Right && self.X < e.rules.Max {
		in.X = 1
	} else if keys.Left && self.X > e.rules.Min {
		in.X = -1
	}
	if keys.Up && self.Y > e.rules.Min {
		in.Y = -1
	} else if keys.Down && self.Y < e.rules.Max {
		in.Y = 1
	}
	if in.X == 0 && in.Y == 0 {
		return shared.Input{}, false
	}

	in.ID = e.nextSeq
	e.nextSeq++

	if e.sender != nil {
		if err := e.sender.SendInput(in); err != nil {
			logging.Log.Debugw("send input failed", "id", in.ID, "err", err)
		}
	}
	e.rules.Apply(&self.Entity, in)
	// 本地校验失败也要记录：服务端才是最终权威
	e.pending = append(e.pending, in)
	return in, true
}

// Reconcile 处理一次状态广播：本地实体对账，远端实体写入插值缓冲
func (e *Engine) Reconcile(states []shared.State, now time.Time) {
	for _, st := range states {
		ent, ok := e.entities[st.EntityID]
		if !ok {
			continue
		}
		if st.EntityID != e.localID {
			ent.buffer.push(sample{at: now, x: st.X, y: st.Y})
			continue
		}

		// 丢弃预测，以权威位置为基准
		ent.X = st.X
		ent.Y = st.Y

		// 去掉已被服务端处理的前缀
		i := 0
		for i < len(e.pending) && e.pending[i].ID <= st.LastProcessedInput {
			i++
		}
		e.pending = append(e.pending[:0], e.pending[i:]...)

		// 按 id 升序重放其余输入；服务端会拒绝的输入这里同样不应用
		for _, in := range e.pending {
			e.rules.Apply(&ent.Entity, in)
		}
	}
}

// Interpolate 将每个远端实体放到 now-delay 时刻的位置；
// 没有两个夹住该时刻的样本时保持不动，不外推
func (e *Engine) Interpolate(now time.Time) {
	render := now.Add(-e.delay)
	for id, ent := range e.entities {
		if id == e.localID {
			continue
		}
		if x, y, ok := ent.buffer.at(render); ok {
			ent.X = x
			ent.Y = y
		}
	}
}

// Entities 当前实体位置（副本），供渲染只读使用
func (e *Engine) Entities() map[string]shared.Entity {
	out := make(map[string]shared.Entity, len(e.entities))
	for id, ent := range e.entities {
		out[id] = ent.Entity
	}
	return out
}

// Pending 尚未被确认的输入（副本）
func (e *Engine) Pending() []shared.Input {
	return append([]shared.Input(nil), e.pending...)
}
