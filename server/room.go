package server

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"syncarena/shared"
)

// ErrRoomClosed 房间循环已退出
var ErrRoomClosed = errors.New("room closed")

// RoomOptions 房间的调度参数
type RoomOptions struct {
	Clock             clockwork.Clock
	BroadcastInterval time.Duration
	InputQueueSize    int
	World             WorldOptions
}

type joinRequest struct {
	peer  Peer
	reply chan shared.Entity
}

// Room 单 goroutine 事件循环：独占 World，输入到达即处理，广播按固定周期触发
type Room struct {
	world   *World
	clock   clockwork.Clock
	metrics *Metrics

	interval atomic.Int64 // 当前广播周期（纳秒），供 admin 读取

	joinChan     chan joinRequest
	leaveChan    chan string
	inputChan    chan shared.Input
	intervalChan chan time.Duration
	doChan       chan func(*World)
	done         chan struct{}
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(opts RoomOptions) *Room {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.BroadcastInterval <= 0 {
		opts.BroadcastInterval = 100 * time.Millisecond
	}
	if opts.InputQueueSize <= 0 {
		opts.InputQueueSize = 256
	}
	if opts.World.Metrics == nil {
		opts.World.Metrics = &Metrics{}
	}
	r := &Room{
		world:        NewWorld(opts.World),
		clock:        opts.Clock,
		metrics:      opts.World.Metrics,
		joinChan:     make(chan joinRequest),
		leaveChan:    make(chan string, 64),
		inputChan:    make(chan shared.Input, opts.InputQueueSize), // 足够缓冲，避免网络读阻塞
		intervalChan: make(chan time.Duration, 1),
		doChan:       make(chan func(*World)),
		done:         make(chan struct{}),
	}
	r.interval.Store(int64(opts.BroadcastInterval))
	return r
}

// Metrics 返回房间指标
func (r *Room) Metrics() *Metrics { return r.metrics }

// BroadcastInterval 当前广播周期
func (r *Room) BroadcastInterval() time.Duration {
	return time.Duration(r.interval.Load())
}

// Join 在循环中为 peer 分配实体并返回
func (r *Room) Join(ctx context.Context, peer Peer) (shared.Entity, error) {
	req := joinRequest{peer: peer, reply: make(chan shared.Entity, 1)}
	select {
	case r.joinChan <- req:
	case <-ctx.Done():
		return shared.Entity{}, ctx.Err()
	case <-r.done:
		return shared.Entity{}, ErrRoomClosed
	}
	select {
	case e := <-req.reply:
		return e, nil
	case <-r.done:
		return shared.Entity{}, ErrRoomClosed
	}
}

// Leave 请求在循环中移除实体；房间已关闭则直接返回
func (r *Room) Leave(id string) {
	select {
	case r.leaveChan <- id:
	case <-r.done:
	}
}

// OnInput 入站输入；不阻塞，队列满时丢弃并计数
func (r *Room) OnInput(in shared.Input) {
	select {
	case r.inputChan <- in:
	default:
		r.metrics.IncChanFullDiscarded()
	}
}

// SetBroadcastInterval 热更新广播周期
func (r *Room) SetBroadcastInterval(d time.Duration) error {
	if d <= 0 {
		return errors.New("broadcast interval must be positive")
	}
	select {
	case r.intervalChan <- d:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// Do 在循环 goroutine 中执行 fn，用于安全读取世界状态
func (r *Room) Do(ctx context.Context, fn func(*World)) error {
	finished := make(chan struct{})
	wrapped := func(w *World) {
		defer close(finished)
		fn(w)
	}
	select {
	case r.doChan <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomClosed
	}
	<-finished
	return nil
}
