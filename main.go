package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syncarena/config"
	"syncarena/logging"
	"syncarena/server"
)

// syncarena 入口：启动权威服务端（HTTP + WebSocket），单房间
func main() {
	var cfgPath, addr string
	var console bool
	flag.StringVar(&cfgPath, "config", "", "yaml config file (optional)")
	flag.StringVar(&addr, "addr", "", "server listen address, overrides config, e.g. :8081")
	flag.BoolVar(&console, "console", false, "also log to stderr")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if err := logging.Init(logging.Options{FilePath: cfg.LogFile, Level: cfg.LogLevel, Console: console}); err != nil {
		panic(err)
	}
	defer logging.Sync()

	room := server.NewRoom(server.RoomOptions{
		BroadcastInterval: cfg.BroadcastInterval(),
		InputQueueSize:    cfg.InputQueueSize,
		World: server.WorldOptions{
			Rules:       cfg.Rules(),
			Speed:       cfg.Speed,
			AckRejected: cfg.AckRejectedInputs,
		},
	})
	admin := server.NewAdmin(room, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := room.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Log.Errorf("room loop: %v", err)
		}
	}()

	srv := &http.Server{Addr: cfg.Addr, Handler: admin.Routes()}
	go func() {
		logging.Log.Infof("syncarena listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Log.Errorf("http shutdown: %v", err)
	}
	cancel()
}
