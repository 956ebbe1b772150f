package client

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"syncarena/logging"
	"syncarena/shared"
)

// KeySource 本地输入边界：每帧采样一次方向键
type KeySource interface {
	Keys(now time.Time) Keys
}

// KeySourceFunc 函数适配 KeySource
type KeySourceFunc func(now time.Time) Keys

func (f KeySourceFunc) Keys(now time.Time) Keys { return f(now) }

// RenderFunc 渲染边界：每帧只读地消费实体表
type RenderFunc func(localID string, entities map[string]shared.Entity)

// Runner 按帧驱动引擎：收消息 → 采样预测 → 插值 → 渲染
type Runner struct {
	Engine   *Engine
	Inbound  <-chan shared.Message
	Keys     KeySource
	Render   RenderFunc
	Clock    clockwork.Clock
	Interval time.Duration
}

// Run 直到 ctx 结束或 Inbound 关闭
func (r *Runner) Run(ctx context.Context) error {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if !r.Frame(clock.Now()) {
				logging.Log.Info("server connection closed")
				return nil
			}
		}
	}
}

// Frame 执行一帧；Inbound 已关闭时返回 false
func (r *Runner) Frame(now time.Time) bool {
	open := r.drain(now)
	var keys Keys
	if r.Keys != nil {
		keys = r.Keys.Keys(now)
	}
	r.Engine.ProcessInputs(now, keys)
	r.Engine.Interpolate(now)
	if r.Render != nil {
		r.Render(r.Engine.LocalID(), r.Engine.Entities())
	}
	return open
}

func (r *Runner) drain(now time.Time) bool {
	for {
		select {
		case msg, ok := <-r.Inbound:
			if !ok {
				return false
			}
			r.Engine.Handle(msg, now)
		default:
			return true
		}
	}
}
