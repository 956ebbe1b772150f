package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syncarena/client"
	"syncarena/config"
	"syncarena/logging"
	"syncarena/shared"
)

// bot 无界面客户端：随机按键驱动预测/对账/插值，定期把名册写入日志
func main() {
	var cfgPath, url string
	var console bool
	flag.StringVar(&cfgPath, "config", "", "yaml config file (optional)")
	flag.StringVar(&url, "url", "", "server websocket url, overrides config")
	flag.BoolVar(&console, "console", true, "also log to stderr")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}
	if url != "" {
		cfg.ServerURL = url
	}
	if err := logging.Init(logging.Options{FilePath: "bot.log", Level: cfg.LogLevel, Console: console}); err != nil {
		panic(err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	conn, err := client.Dial(dialCtx, cfg.ServerURL)
	cancel()
	if err != nil {
		logging.Log.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	engine := client.NewEngine(client.EngineOptions{
		Rules:              cfg.Rules(),
		InterpolationDelay: cfg.InterpolationDelay(),
		Sender:             conn,
	})

	var frames int
	runner := &client.Runner{
		Engine:   engine,
		Inbound:  conn.Inbound(),
		Keys:     newWanderer(),
		Interval: cfg.FrameInterval(),
		Render: func(localID string, entities map[string]shared.Entity) {
			frames++
			if frames%60 != 0 {
				return
			}
			for id, e := range entities {
				logging.Log.Debugw("entity", "entity_id", id, "local", id == localID, "x", e.X, "y", e.Y)
			}
			logging.Log.Infow("frame", "entities", len(entities), "pending", len(engine.Pending()))
		},
	}
	logging.Log.Infof("bot connected to %s", cfg.ServerURL)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Log.Errorf("runner: %v", err)
	}
}

// wanderer 每隔一段时间随机换一个方向组合
type wanderer struct {
	rng     *rand.Rand
	keys    client.Keys
	changed time.Time
}

func newWanderer() *wanderer {
	return &wanderer{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (w *wanderer) Keys(now time.Time) client.Keys {
	if now.Sub(w.changed) > time.Second {
		w.changed = now
		w.keys = client.Keys{
			Left:  w.rng.Intn(3) == 0,
			Right: w.rng.Intn(3) == 0,
			Up:    w.rng.Intn(3) == 0,
			Down:  w.rng.Intn(3) == 0,
		}
	}
	return w.keys
}
