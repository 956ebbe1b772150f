package server

import (
	"sync/atomic"
	"time"
)

// Metrics 记录房间运行期的关键指标（用于监控与调试）
type Metrics struct {
	Connects          int64 // 建立的连接数
	Disconnects       int64 // 断开的连接数
	InputsApplied     int64 // 校验通过并应用的输入数
	InputsRejected    int64 // 校验失败被丢弃的输入数
	StaleIgnored      int64 // 实体已不存在而忽略的输入数
	ReplayIgnored     int64 // id 不大于游标而忽略的输入数
	Malformed         int64 // 无法解析的入站消息数
	Spoofed           int64 // eid 与连接绑定实体不符的输入数
	ChanFullDiscarded int64 // 因通道满被丢弃的输入数
	Broadcasts        int64 // 广播次数
	TotalBroadcastNs  int64 // 广播累计耗时（纳秒）
}

func (m *Metrics) IncConnects()          { atomic.AddInt64(&m.Connects, 1) }
func (m *Metrics) IncDisconnects()       { atomic.AddInt64(&m.Disconnects, 1) }
func (m *Metrics) IncApplied()           { atomic.AddInt64(&m.InputsApplied, 1) }
func (m *Metrics) IncRejected()          { atomic.AddInt64(&m.InputsRejected, 1) }
func (m *Metrics) IncStale()             { atomic.AddInt64(&m.StaleIgnored, 1) }
func (m *Metrics) IncReplayed()          { atomic.AddInt64(&m.ReplayIgnored, 1) }
func (m *Metrics) IncMalformed()         { atomic.AddInt64(&m.Malformed, 1) }
func (m *Metrics) IncSpoofed()           { atomic.AddInt64(&m.Spoofed, 1) }
func (m *Metrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *Metrics) AddBroadcast(d time.Duration) {
	atomic.AddInt64(&m.Broadcasts, 1)
	atomic.AddInt64(&m.TotalBroadcastNs, d.Nanoseconds())
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	n := atomic.LoadInt64(&m.Broadcasts)
	total := atomic.LoadInt64(&m.TotalBroadcastNs)
	var avgMs float64
	if n > 0 {
		avgMs = float64(total) / float64(n) / 1e6
	}
	return map[string]any{
		"connects":            atomic.LoadInt64(&m.Connects),
		"disconnects":         atomic.LoadInt64(&m.Disconnects),
		"inputs_applied":      atomic.LoadInt64(&m.InputsApplied),
		"inputs_rejected":     atomic.LoadInt64(&m.InputsRejected),
		"stale_ignored":       atomic.LoadInt64(&m.StaleIgnored),
		"replay_ignored":      atomic.LoadInt64(&m.ReplayIgnored),
		"malformed":           atomic.LoadInt64(&m.Malformed),
		"spoofed":             atomic.LoadInt64(&m.Spoofed),
		"chan_full_discarded": atomic.LoadInt64(&m.ChanFullDiscarded),
		"broadcasts":          n,
		"avg_broadcast_ms":    avgMs,
	}
}
