package client

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"syncarena/server"
	"syncarena/shared"
)

// loopback 将服务端世界与客户端引擎在内存中直连（零延迟、有序）
type loopback struct {
	world  *server.World
	engine *Engine
	now    *time.Time
}

func (l *loopback) Enqueue(b []byte) {
	m, err := shared.Decode(b)
	if err != nil {
		panic(err)
	}
	l.engine.Handle(m, *l.now)
}

func (l *loopback) EnqueueControl(b []byte) { l.Enqueue(b) }

func (l *loopback) Close() {}

func (l *loopback) SendInput(in shared.Input) error {
	l.world.ApplyInput(in)
	return nil
}

func newSim(n int) (*server.World, []*loopback, *time.Time) {
	seq := 0
	world := server.NewWorld(server.WorldOptions{
		Rand:  rand.New(rand.NewSource(3)),
		NewID: func() string { seq++; return fmt.Sprintf("e%02d", seq) },
	})
	now := time.UnixMilli(0)
	var clients []*loopback
	for i := 0; i < n; i++ {
		lb := &loopback{world: world, now: &now}
		lb.engine = NewEngine(EngineOptions{Sender: lb})
		world.Connect(lb)
		clients = append(clients, lb)
	}
	return world, clients, &now
}

func TestSim_RosterConsistencyAfterDisconnect(t *testing.T) {
	world, clients, _ := newSim(4)
	departed := clients[1].engine.LocalID()
	world.Disconnect(departed)

	want := world.Roster()
	for i, c := range clients {
		if i == 1 {
			continue
		}
		got := c.engine.Entities()
		if len(got) != len(want) {
			t.Fatalf("client %d has %d entities, server %d", i, len(got), len(want))
		}
		for _, e := range want {
			if _, ok := got[e.ID]; !ok {
				t.Fatalf("client %d missing %s", i, e.ID)
			}
		}
		if _, ok := got[departed]; ok {
			t.Fatalf("client %d still tracks departed %s", i, departed)
		}
	}
}

func TestSim_PredictionMatchesAuthority(t *testing.T) {
	world, clients, now := newSim(2)
	mover, watcher := clients[0], clients[1]
	id := mover.engine.LocalID()
	start := world.Roster()
	var dir Keys
	for _, e := range start {
		if e.ID == id {
			if e.X < 5 {
				dir.Right = true
			} else {
				dir.Left = true
			}
		}
	}

	for frame := 1; frame <= 30; frame++ {
		*now = now.Add(16 * time.Millisecond)
		mover.engine.ProcessInputs(*now, dir)
		if frame%6 == 0 {
			world.Broadcast()
		}
		watcher.engine.Interpolate(*now)
	}
	world.Broadcast()

	var auth shared.Entity
	for _, e := range world.Roster() {
		if e.ID == id {
			auth = e
		}
	}
	local := mover.engine.Entities()[id]
	if !approx(local.X, auth.X) || !approx(local.Y, auth.Y) {
		t.Fatalf("prediction %+v diverged from authority %+v", local, auth)
	}
	if len(mover.engine.Pending()) != 0 {
		t.Fatalf("expected every input acknowledged, %d pending", len(mover.engine.Pending()))
	}
}

func TestRunner_FrameDrainsInbound(t *testing.T) {
	inbound := make(chan shared.Message, 4)
	e := NewEngine(EngineOptions{})
	var rendered map[string]shared.Entity
	r := &Runner{
		Engine:  e,
		Inbound: inbound,
		Keys:    KeySourceFunc(func(time.Time) Keys { return Keys{Down: true} }),
		Render: func(localID string, entities map[string]shared.Entity) {
			rendered = entities
		},
	}
	inbound <- shared.Welcome{EntityID: "me"}
	inbound <- shared.Join{Entity: shared.Entity{ID: "me", X: 1, Y: 1, Speed: 2}}

	if !r.Frame(time.UnixMilli(10)) {
		t.Fatalf("expected open inbound")
	}
	if _, ok := rendered["me"]; !ok || e.LocalID() != "me" {
		t.Fatalf("expected local entity rendered, got %v", rendered)
	}
	if p := e.Pending(); len(p) != 1 || p[0].Y != 1 {
		t.Fatalf("expected one downward input, got %+v", p)
	}
	close(inbound)
	if r.Frame(time.UnixMilli(20)) {
		t.Fatalf("expected closed inbound to stop the runner")
	}
}
