package client

import (
	"math"
	"testing"
	"time"

	"syncarena/shared"
)

type recordingSender struct {
	sent []shared.Input
}

func (s *recordingSender) SendInput(in shared.Input) error {
	s.sent = append(s.sent, in)
	return nil
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func ms(v int64) time.Time { return time.UnixMilli(v) }

// newJoinedEngine 本地实体 "me" 位于 (x, 5)，另有远端实体 "other"
func newJoinedEngine(x float64) (*Engine, *recordingSender) {
	s := &recordingSender{}
	e := NewEngine(EngineOptions{Sender: s})
	e.Handle(shared.Welcome{EntityID: "me"}, ms(0))
	e.Handle(shared.Join{Entity: shared.Entity{ID: "me", X: x, Y: 5, Speed: 2}}, ms(0))
	e.Handle(shared.Join{Entity: shared.Entity{ID: "other", X: 1, Y: 1, Speed: 2}}, ms(0))
	return e, s
}

func TestProcessInputs_IdleFramesConsumeNoSequence(t *testing.T) {
	e, s := newJoinedEngine(5)
	if _, ok := e.ProcessInputs(ms(16), Keys{}); ok {
		t.Fatalf("idle frame produced an input")
	}
	in, ok := e.ProcessInputs(ms(32), Keys{Right: true})
	if !ok {
		t.Fatalf("expected input")
	}
	if in.ID != 0 {
		t.Fatalf("expected first id 0, got %d", in.ID)
	}
	if !approx(in.Dt, 0.016) {
		t.Fatalf("expected dt measured from previous frame, got %v", in.Dt)
	}
	if len(s.sent) != 1 || s.sent[0] != in {
		t.Fatalf("expected input to be sent, got %+v", s.sent)
	}
	if got := e.Entities()["me"].X; !approx(got, 5+0.016*2) {
		t.Fatalf("expected predicted x, got %v", got)
	}
}

func TestProcessInputs_KeyPriority(t *testing.T) {
	e, _ := newJoinedEngine(5)
	in, ok := e.ProcessInputs(ms(10), Keys{Right: true, Left: true, Up: true, Down: true})
	if !ok {
		t.Fatalf("expected input")
	}
	// 右优先于左，上优先于下；上为 y=-1
	if in.X != 1 || in.Y != -1 {
		t.Fatalf("unexpected direction %+v", in)
	}
}

func TestProcessInputs_HeldIntoWallIsIdle(t *testing.T) {
	e, s := newJoinedEngine(10)
	in, ok := e.ProcessInputs(ms(10), Keys{Right: true, Up: true})
	if !ok {
		t.Fatalf("expected input")
	}
	if in.X != 0 || in.Y != -1 {
		t.Fatalf("expected wall axis zeroed, got %+v", in)
	}
	if _, ok := e.ProcessInputs(ms(20), Keys{Right: true}); ok {
		t.Fatalf("pushing into a wall should be an idle frame")
	}
	if len(s.sent) != 1 {
		t.Fatalf("expected one input sent, got %d", len(s.sent))
	}
}

func TestProcessInputs_LocallyInvalidStillSentAndTracked(t *testing.T) {
	e, s := newJoinedEngine(5)
	// dt 超过上限：本地不预测，但仍发送并记入待确认队列
	in, ok := e.ProcessInputs(ms(500), Keys{Left: true})
	if !ok {
		t.Fatalf("expected input")
	}
	if len(s.sent) != 1 {
		t.Fatalf("expected input sent")
	}
	if got := e.Entities()["me"].X; got != 5 {
		t.Fatalf("locally invalid input was predicted: x=%v", got)
	}
	if p := e.Pending(); len(p) != 1 || p[0] != in {
		t.Fatalf("expected input pending, got %+v", p)
	}
}

func TestReconcile_Convergence(t *testing.T) {
	e, _ := newJoinedEngine(0)
	for i := int64(1); i <= 5; i++ {
		if _, ok := e.ProcessInputs(ms(20*i), Keys{Right: true}); !ok {
			t.Fatalf("expected input %d", i-1)
		}
	}
	if p := e.Pending(); len(p) != 5 {
		t.Fatalf("expected 5 pending, got %d", len(p))
	}

	authoritative := 3 * (0.02 * 2)
	e.Reconcile([]shared.State{{EntityID: "me", X: authoritative, Y: 5, LastProcessedInput: 2}}, ms(120))

	p := e.Pending()
	if len(p) != 2 || p[0].ID != 3 || p[1].ID != 4 {
		t.Fatalf("expected ids 3,4 pending, got %+v", p)
	}
	want := authoritative + (0.02*2)*2
	if got := e.Entities()["me"].X; !approx(got, want) {
		t.Fatalf("expected x %v, got %v", want, got)
	}
}

func TestReconcile_ReplaySkipsInputsTheServerWouldReject(t *testing.T) {
	e, _ := newJoinedEngine(5)
	// id 0：dt 超限；id 1：合法
	e.ProcessInputs(ms(500), Keys{Left: true})
	e.ProcessInputs(ms(520), Keys{Right: true})
	if got := e.Entities()["me"].X; !approx(got, 5.04) {
		t.Fatalf("expected only the valid input predicted, x=%v", got)
	}

	e.Reconcile([]shared.State{{EntityID: "me", X: 5, Y: 5, LastProcessedInput: shared.NoInput}}, ms(530))
	if p := e.Pending(); len(p) != 2 {
		t.Fatalf("expected both inputs still pending, got %+v", p)
	}
	if got := e.Entities()["me"].X; !approx(got, 5.04) {
		t.Fatalf("expected replay to skip the oversized dt, x=%v", got)
	}

	// 权威位置已贴墙：剩余的向右输入重放时被拒绝，不越界
	e.Reconcile([]shared.State{{EntityID: "me", X: 10, Y: 5, LastProcessedInput: 0}}, ms(540))
	if p := e.Pending(); len(p) != 1 || p[0].ID != 1 {
		t.Fatalf("expected id 1 pending, got %+v", p)
	}
	if got := e.Entities()["me"].X; got != 10 {
		t.Fatalf("expected x pinned at the wall, got %v", got)
	}
}

func TestReconcile_OverwritesPrediction(t *testing.T) {
	e, _ := newJoinedEngine(5)
	e.ProcessInputs(ms(50), Keys{Right: true})
	e.Reconcile([]shared.State{{EntityID: "me", X: 7, Y: 2, LastProcessedInput: 0}}, ms(60))

	me := e.Entities()["me"]
	if me.X != 7 || me.Y != 2 {
		t.Fatalf("expected authoritative position, got %+v", me)
	}
	if len(e.Pending()) != 0 {
		t.Fatalf("expected empty pending queue")
	}
}

func TestReconcile_UnknownEntityIgnored(t *testing.T) {
	e, _ := newJoinedEngine(5)
	e.Reconcile([]shared.State{{EntityID: "ghost", X: 1, Y: 1, LastProcessedInput: 3}}, ms(10))
	if _, ok := e.Entities()["ghost"]; ok {
		t.Fatalf("state for unknown entity created it")
	}
}

func TestInterpolate_Bracket(t *testing.T) {
	e, _ := newJoinedEngine(5)
	e.Reconcile([]shared.State{{EntityID: "other", X: 2, Y: 6, LastProcessedInput: shared.NoInput}}, ms(1000))
	e.Reconcile([]shared.State{{EntityID: "other", X: 4, Y: 8, LastProcessedInput: shared.NoInput}}, ms(1100))

	e.Interpolate(ms(1150)) // render = 1050
	other := e.Entities()["other"]
	if !approx(other.X, 3) || !approx(other.Y, 7) {
		t.Fatalf("expected (3,7), got (%v,%v)", other.X, other.Y)
	}
}

func TestInterpolate_SingleSampleFreezes(t *testing.T) {
	e, _ := newJoinedEngine(5)
	e.Reconcile([]shared.State{{EntityID: "other", X: 9, Y: 9, LastProcessedInput: shared.NoInput}}, ms(1000))
	e.Interpolate(ms(1500))
	if other := e.Entities()["other"]; other.X != 1 || other.Y != 1 {
		t.Fatalf("expected position unchanged, got %+v", other)
	}
}

func TestInterpolate_NoBackwardExtrapolation(t *testing.T) {
	e, _ := newJoinedEngine(5)
	e.Reconcile([]shared.State{{EntityID: "other", X: 2, Y: 2, LastProcessedInput: shared.NoInput}}, ms(1000))
	e.Reconcile([]shared.State{{EntityID: "other", X: 4, Y: 4, LastProcessedInput: shared.NoInput}}, ms(1100))
	e.Interpolate(ms(1050)) // render = 950，早于最旧样本
	if other := e.Entities()["other"]; other.X != 1 || other.Y != 1 {
		t.Fatalf("expected position unchanged, got %+v", other)
	}
}

func TestInterpolate_DropsStaleSamples(t *testing.T) {
	e, _ := newJoinedEngine(5)
	for i, x := range []float64{1, 2, 3, 4} {
		e.Reconcile([]shared.State{{EntityID: "other", X: x, Y: 1, LastProcessedInput: shared.NoInput}}, ms(1000+int64(i)*100))
	}
	e.Interpolate(ms(1350)) // render = 1250，位于 1200 与 1300 之间
	if other := e.Entities()["other"]; !approx(other.X, 3.5) {
		t.Fatalf("expected x 3.5, got %v", other.X)
	}
	if n := len(e.entities["other"].buffer.samples); n != 2 {
		t.Fatalf("expected two samples left, got %d", n)
	}
}

func TestHandle_LeaveEvictsEntity(t *testing.T) {
	e, _ := newJoinedEngine(5)
	e.Reconcile([]shared.State{{EntityID: "other", X: 2, Y: 2, LastProcessedInput: shared.NoInput}}, ms(10))
	e.Handle(shared.Leave{EntityID: "other"}, ms(20))
	if _, ok := e.Entities()["other"]; ok {
		t.Fatalf("expected other to be evicted")
	}
	e.Reconcile([]shared.State{{EntityID: "other", X: 3, Y: 3, LastProcessedInput: shared.NoInput}}, ms(30))
	if _, ok := e.Entities()["other"]; ok {
		t.Fatalf("state after leave resurrected entity")
	}
}
