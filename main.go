package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tactigrid/config"
	"tactigrid/server"
)

// tactigrid 入口：读取配置，启动 HTTP + WebSocket 服务，并初始化房间管理器
func main() {
	var cfgPath, addr string
	flag.StringVar(&cfgPath, "config", "config.toml", "path to TOML config")
	flag.StringVar(&addr, "addr", "", "override listen address, e.g. :8080")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := server.InitLogger(cfg.Logging); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer server.SyncLogger()

	var presets []server.SavedAttack
	if cfg.Server.PresetsPath != "" {
		presets, err = server.LoadPresets(cfg.Server.PresetsPath)
		if err != nil {
			server.Log.Warnw("presets not loaded", "err", err)
		}
	}

	rm := server.NewRoomManager(cfg, presets)
	// 先预创建默认房间，便于快速试跑
	_ = rm.GetOrCreateRoom(cfg.Server.DefaultRoom)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rm.HandleWS)
	mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	// 管理与监控接口
	mux.HandleFunc("/admin/board", rm.HandleAdminBoard)
	mux.HandleFunc("/metrics", rm.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	go func() {
		server.Log.Infof("tactigrid listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		server.Log.Warnw("http shutdown", "err", err)
	}
	rm.CloseAll()
}
