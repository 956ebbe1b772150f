package server

import "syncarena/shared"

// Peer 网络连接的发送端；世界只投递已编码好的消息，不关心传输细节。
// Enqueue 用于状态广播，可丢弃；EnqueueControl 用于名册消息，
// 不能丢，投递不了时实现方应断开连接。
type Peer interface {
	Enqueue(b []byte)
	EnqueueControl(b []byte)
	Close()
}

// player 房间内的玩家：权威实体 + 确认游标 + 发送端
type player struct {
	entity shared.Entity
	cursor int64 // last_processed_input，单调不减
	peer   Peer
}

func (p *player) state() shared.State {
	return shared.State{
		EntityID:           p.entity.ID,
		X:                  p.entity.X,
		Y:                  p.entity.Y,
		LastProcessedInput: p.cursor,
	}
}
