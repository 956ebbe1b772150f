package shared

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Input 客户端的一次方向意图采样；ID 为每实体严格递增的序列号（即确认游标）
type Input struct {
	EntityID string  `json:"eid"`
	ID       int64   `json:"id"`
	Dt       float64 `json:"dt"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
}

// State 一次广播中某个实体的权威快照
type State struct {
	EntityID           string  `json:"entity_id"`
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	LastProcessedInput int64   `json:"last_processed_input"`
}

// 线路上的消息名
const (
	TypeMove    = "move"
	TypeNew     = "new"
	TypeLeft    = "left"
	TypeState   = "state"
	TypeWelcome = "welcome"
)

// ErrMalformed 消息缺字段、类型未知或取值越界；调用方直接丢弃
var ErrMalformed = errors.New("malformed message")

// Message 封闭的消息变体：Move | Join | Leave | StateBatch | Welcome
type Message interface {
	messageType() string
}

// Move 客户端 → 服务端：一个输入
type Move struct{ Input Input }

// Join 服务端 → 客户端：一个实体加入
type Join struct{ Entity Entity }

// Leave 服务端 → 客户端：一个实体离开
type Leave struct{ EntityID string }

// StateBatch 服务端 → 客户端：一次广播的全部实体状态
type StateBatch struct{ States []State }

// Welcome 服务端 → 客户端：告知新连接所控制的实体
type Welcome struct{ EntityID string }

func (Move) messageType() string       { return TypeMove }
func (Join) messageType() string       { return TypeNew }
func (Leave) messageType() string      { return TypeLeft }
func (StateBatch) messageType() string { return TypeState }
func (Welcome) messageType() string    { return TypeWelcome }

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type idPayload struct {
	EntityID string `json:"entity_id"`
}

// 入站 move 的线路结构；指针字段用于区分缺失与零值
type wireInput struct {
	EntityID *string  `json:"eid"`
	ID       *int64   `json:"id"`
	Dt       *float64 `json:"dt"`
	X        *int     `json:"x"`
	Y        *int     `json:"y"`
}

type wireState struct {
	EntityID           *string  `json:"entity_id"`
	X                  *float64 `json:"x"`
	Y                  *float64 `json:"y"`
	LastProcessedInput *int64   `json:"last_processed_input"`
}

type wireEntity struct {
	EntityID *string  `json:"entity_id"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	Speed    *float64 `json:"speed"`
}

// Encode 将消息编码为 {"type":..., "payload":...}
func Encode(m Message) ([]byte, error) {
	var payload any
	switch v := m.(type) {
	case Move:
		payload = v.Input
	case Join:
		payload = v.Entity
	case Leave:
		payload = idPayload{EntityID: v.EntityID}
	case StateBatch:
		states := v.States
		if states == nil {
			states = []State{}
		}
		payload = states
	case Welcome:
		payload = idPayload{EntityID: v.EntityID}
	default:
		return nil, fmt.Errorf("encode %T: %w", m, ErrMalformed)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", m.messageType(), err)
	}
	return json.Marshal(envelope{Type: m.messageType(), Payload: raw})
}

// Decode 解析消息；任何缺失或越界都返回 ErrMalformed，不产生部分结果
func Decode(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: %q without payload", ErrMalformed, env.Type)
	}
	switch env.Type {
	case TypeMove:
		in, err := decodeInput(env.Payload)
		if err != nil {
			return nil, err
		}
		return Move{Input: in}, nil
	case TypeNew:
		e, err := decodeEntity(env.Payload)
		if err != nil {
			return nil, err
		}
		return Join{Entity: e}, nil
	case TypeLeft:
		id, err := decodeID(env.Payload)
		if err != nil {
			return nil, err
		}
		return Leave{EntityID: id}, nil
	case TypeWelcome:
		id, err := decodeID(env.Payload)
		if err != nil {
			return nil, err
		}
		return Welcome{EntityID: id}, nil
	case TypeState:
		states, err := decodeStates(env.Payload)
		if err != nil {
			return nil, err
		}
		return StateBatch{States: states}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}

func decodeInput(raw json.RawMessage) (Input, error) {
	var w wireInput
	if err := json.Unmarshal(raw, &w); err != nil {
		return Input{}, fmt.Errorf("%w: move: %v", ErrMalformed, err)
	}
	if w.EntityID == nil || w.ID == nil || w.Dt == nil || w.X == nil || w.Y == nil {
		return Input{}, fmt.Errorf("%w: move missing field", ErrMalformed)
	}
	if *w.EntityID == "" || *w.ID < 0 || !validAxis(*w.X) || !validAxis(*w.Y) {
		return Input{}, fmt.Errorf("%w: move out of domain", ErrMalformed)
	}
	return Input{EntityID: *w.EntityID, ID: *w.ID, Dt: *w.Dt, X: *w.X, Y: *w.Y}, nil
}

func decodeEntity(raw json.RawMessage) (Entity, error) {
	var w wireEntity
	if err := json.Unmarshal(raw, &w); err != nil {
		return Entity{}, fmt.Errorf("%w: new: %v", ErrMalformed, err)
	}
	if w.EntityID == nil || *w.EntityID == "" || w.X == nil || w.Y == nil || w.Speed == nil {
		return Entity{}, fmt.Errorf("%w: new missing field", ErrMalformed)
	}
	return Entity{ID: *w.EntityID, X: *w.X, Y: *w.Y, Speed: *w.Speed}, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	var p idPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.EntityID == "" {
		return "", fmt.Errorf("%w: missing entity_id", ErrMalformed)
	}
	return p.EntityID, nil
}

func decodeStates(raw json.RawMessage) ([]State, error) {
	var ws []wireState
	if err := json.Unmarshal(raw, &ws); err != nil {
		return nil, fmt.Errorf("%w: state: %v", ErrMalformed, err)
	}
	states := make([]State, 0, len(ws))
	for i, w := range ws {
		if w.EntityID == nil || w.X == nil || w.Y == nil || w.LastProcessedInput == nil {
			return nil, fmt.Errorf("%w: state[%d] missing field", ErrMalformed, i)
		}
		states = append(states, State{
			EntityID:           *w.EntityID,
			X:                  *w.X,
			Y:                  *w.Y,
			LastProcessedInput: *w.LastProcessedInput,
		})
	}
	return states, nil
}
