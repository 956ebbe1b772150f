package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"syncarena/logging"
	"syncarena/shared"
)

const (
	writeWait     = 5 * time.Second
	sendQueueSize = 256
	recvQueueSize = 256
)

// ErrClosed 连接已关闭
var ErrClosed = errors.New("connection closed")

// Conn 客户端 WebSocket 连接：写协程发送输入，读协程把服务端消息放入 Inbound
type Conn struct {
	ws *websocket.Conn

	send    chan []byte
	inbound chan shared.Message
	done    chan struct{}

	closeOnce sync.Once
}

// Dial 连接服务端并启动读写协程
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Conn{
		ws:      ws,
		send:    make(chan []byte, sendQueueSize),
		inbound: make(chan shared.Message, recvQueueSize),
		done:    make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Inbound 服务端消息；连接断开后关闭
func (c *Conn) Inbound() <-chan shared.Message { return c.inbound }

// Done 连接关闭时关闭
func (c *Conn) Done() <-chan struct{} { return c.done }

// SendInput 编码 move 消息并排队发送；队列满时返回错误（输入即丢失）
func (c *Conn) SendInput(in shared.Input) error {
	b, err := shared.Encode(shared.Move{Input: in})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return errors.New("send queue full")
	}
}

// Close 关闭连接
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				logging.Log.Debugw("write failed", "err", err)
				_ = c.Close()
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	defer close(c.inbound)
	defer c.Close()
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := shared.Decode(payload)
		if err != nil {
			logging.Log.Debugw("malformed server message dropped", "err", err)
			continue
		}
		select {
		case c.inbound <- msg:
		case <-c.done:
			return
		}
	}
}
