package server

// InputResult 服务端对一个输入的处理结果
type InputResult int

const (
	InputApplied  InputResult = iota // 校验通过并应用，游标推进
	InputRejected                    // 越界或 dt 超限，丢弃
	InputStale                       // 实体已断开（迟到的输入）
	InputReplayed                    // id 不大于当前游标，重复或回放
)

func (r InputResult) String() string {
	switch r {
	case InputApplied:
		return "applied"
	case InputRejected:
		return "rejected"
	case InputStale:
		return "stale"
	case InputReplayed:
		return "replayed"
	default:
		return "unknown"
	}
}
