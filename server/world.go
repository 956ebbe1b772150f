package server

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"syncarena/logging"
	"syncarena/shared"
)

// WorldOptions 世界的规则与依赖；零值字段使用默认
type WorldOptions struct {
	Rules       shared.Rules
	Speed       float64
	Rand        *rand.Rand
	NewID       func() string
	AckRejected bool // 被拒绝的输入也推进游标（已确认的空操作）
	Metrics     *Metrics
}

// World 权威世界状态：实体、连接与确认游标封装在一起。
// 不加锁，必须只由一个 goroutine（Room 的循环）访问。
type World struct {
	rules       shared.Rules
	speed       float64
	rng         *rand.Rand
	newID       func() string
	ackRejected bool
	metrics     *Metrics

	players map[string]*player
}

// NewWorld 创建空世界
func NewWorld(opts WorldOptions) *World {
	if opts.Rules == (shared.Rules{}) {
		opts.Rules = shared.DefaultRules()
	}
	if opts.Speed <= 0 {
		opts.Speed = shared.DefaultSpeed
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Metrics == nil {
		opts.Metrics = &Metrics{}
	}
	return &World{
		rules:       opts.Rules,
		speed:       opts.Speed,
		rng:         opts.Rand,
		newID:       opts.NewID,
		ackRejected: opts.AckRejected,
		metrics:     opts.Metrics,
		players:     make(map[string]*player),
	}
}

// Connect 为新连接分配实体并同步名册：
// 新实体通知所有已连接客户端，所有实体（含新实体）通知新客户端
func (w *World) Connect(peer Peer) shared.Entity {
	span := w.rules.Max - w.rules.Min
	e := shared.Entity{
		ID:    w.newID(),
		X:     w.rules.Min + math.Floor(w.rng.Float64()*span),
		Y:     w.rules.Min + math.Floor(w.rng.Float64()*span),
		Speed: w.speed,
	}

	sendControl(peer, shared.Welcome{EntityID: e.ID})
	joined := mustEncode(shared.Join{Entity: e})
	for _, p := range w.players {
		p.peer.EnqueueControl(joined)
	}

	w.players[e.ID] = &player{entity: e, cursor: shared.NoInput, peer: peer}
	for _, id := range w.ids() {
		sendControl(peer, shared.Join{Entity: w.players[id].entity})
	}

	w.metrics.IncConnects()
	logging.Log.Infow("entity connected", "entity_id", e.ID, "x", e.X, "y", e.Y, "players", len(w.players))
	return e
}

// Disconnect 移除实体及其游标并通知其余客户端；未知 id 忽略
func (w *World) Disconnect(id string) {
	p, ok := w.players[id]
	if !ok {
		return
	}
	delete(w.players, id)
	if p.peer != nil {
		p.peer.Close()
	}

	left := mustEncode(shared.Leave{EntityID: id})
	for _, other := range w.players {
		other.peer.EnqueueControl(left)
	}

	w.metrics.IncDisconnects()
	logging.Log.Infow("entity disconnected", "entity_id", id, "players", len(w.players))
}

// ApplyInput 查找 → 校验 → 应用；查找失败（断开后的迟到输入）静默忽略
func (w *World) ApplyInput(in shared.Input) InputResult {
	p, ok := w.players[in.EntityID]
	if !ok {
		w.metrics.IncStale()
		return InputStale
	}
	if in.ID <= p.cursor {
		w.metrics.IncReplayed()
		return InputReplayed
	}
	if !w.rules.Apply(&p.entity, in) {
		w.metrics.IncRejected()
		if w.ackRejected {
			p.cursor = in.ID
		}
		logging.Log.Debugw("input rejected", "entity_id", in.EntityID, "id", in.ID, "dt", in.Dt, "x", in.X, "y", in.Y)
		return InputRejected
	}
	p.cursor = in.ID
	w.metrics.IncApplied()
	return InputApplied
}

// Snapshot 当前所有实体的权威状态，按 id 排序
func (w *World) Snapshot() []shared.State {
	states := make([]shared.State, 0, len(w.players))
	for _, id := range w.ids() {
		states = append(states, w.players[id].state())
	}
	return states
}

// Broadcast 编码一次，向每个连接投递同一份状态数组
func (w *World) Broadcast() {
	if len(w.players) == 0 {
		return
	}
	b := mustEncode(shared.StateBatch{States: w.Snapshot()})
	for _, p := range w.players {
		p.peer.Enqueue(b)
	}
}

// Roster 当前实体列表（副本），按 id 排序
func (w *World) Roster() []shared.Entity {
	roster := make([]shared.Entity, 0, len(w.players))
	for _, id := range w.ids() {
		roster = append(roster, w.players[id].entity)
	}
	return roster
}

// Cursor 返回实体的确认游标
func (w *World) Cursor(id string) (int64, bool) {
	p, ok := w.players[id]
	if !ok {
		return 0, false
	}
	return p.cursor, true
}

func (w *World) Len() int { return len(w.players) }

func (w *World) ids() []string {
	ids := make([]string, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sendControl(peer Peer, m shared.Message) {
	peer.EnqueueControl(mustEncode(m))
}

// 服务端自己构造的消息总能编码成功
func mustEncode(m shared.Message) []byte {
	b, err := shared.Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}
