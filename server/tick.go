package server

import (
	"context"

	"syncarena/logging"
)

// Run 房间主循环：处理加入/离开/输入，广播计时器独立触发。
// 输入不按 tick 批处理，广播总是反映到目前为止已应用的输入。
func (r *Room) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := r.clock.NewTicker(r.BroadcastInterval())
	defer ticker.Stop()

	logging.Log.Infof("room loop started, broadcast every %v", r.BroadcastInterval())
	for {
		select {
		case <-ctx.Done():
			logging.Log.Info("room loop stopped")
			return ctx.Err()
		case req := <-r.joinChan:
			req.reply <- r.world.Connect(req.peer)
		case id := <-r.leaveChan:
			r.world.Disconnect(id)
		case in := <-r.inputChan:
			r.world.ApplyInput(in)
		case fn := <-r.doChan:
			fn(r.world)
		case d := <-r.intervalChan:
			r.interval.Store(int64(d))
			ticker.Reset(d)
			logging.Log.Infof("broadcast interval updated to %v", d)
		case <-ticker.Chan():
			start := r.clock.Now()
			r.world.Broadcast()
			r.metrics.AddBroadcast(r.clock.Since(start))
		}
	}
}
