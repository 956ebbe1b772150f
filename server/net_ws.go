package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"syncarena/logging"
	"syncarena/shared"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 256
	joinTimeout    = 5 * time.Second
)

// ClientConn 负责发送（写）数据到客户端的轻量包装，实现 Peer
type ClientConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		// 为了实时性直接丢弃，防止阻塞房间循环；下一次广播会覆盖
	}
}

// EnqueueControl 投递名册消息（welcome/new/left）。
// 队列满时不丢弃而是断开连接：丢一条 left 会让客户端永久留下幽灵实体，
// 断开后客户端重连会拿到完整名册。
func (c *ClientConn) EnqueueControl(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		logging.Log.Warnw("send queue full on roster message, closing connection", "queued", len(c.send))
		c.closed = true
		close(c.send)
	}
}

// Close 关闭发送队列，写协程随后关闭底层连接
func (c *ClientConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期发送 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息，只接受绑定实体的 move，注入房间
func (c *ClientConn) readPump(room *Room, entityID string) {
	defer c.ws.Close()
	// 读泵退出时，通知房间在循环中移除该实体
	defer room.Leave(entityID)
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Log.Debugw("read error", "entity_id", entityID, "err", err)
			}
			return
		}
		msg, err := shared.Decode(payload)
		if err != nil {
			room.metrics.IncMalformed()
			logging.Log.Debugw("malformed message dropped", "entity_id", entityID, "err", err)
			continue
		}
		switch m := msg.(type) {
		case shared.Move:
			if m.Input.EntityID != entityID {
				room.metrics.IncSpoofed()
				logging.Log.Debugw("input for foreign entity dropped", "entity_id", entityID, "eid", m.Input.EntityID)
				continue
			}
			room.OnInput(m.Input)
		case shared.Join, shared.Leave, shared.StateBatch, shared.Welcome:
			// 仅服务端下发的消息类型，客户端发来一律丢弃
			room.metrics.IncMalformed()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 跨域由外层 cors 中间件控制
		return true
	},
}

// HandleWS WebSocket 接入：每个连接对应一个新实体
func (r *Room) HandleWS(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		logging.Log.Warnf("upgrade error: %v", err)
		return
	}

	client := NewClientConn(ws)
	// 先启动写协程，加入时的名册通知不会因队列满而丢失
	go client.writePump()

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	entity, err := r.Join(ctx, client)
	if err != nil {
		logging.Log.Warnf("join failed: %v", err)
		client.Close()
		return
	}

	go client.readPump(r, entity.ID)
}
