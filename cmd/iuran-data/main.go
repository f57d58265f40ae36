package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iuran-data/internal/config"
	httpapi "iuran-data/internal/http"
	"iuran-data/internal/logger"
	"iuran-data/internal/repository"
	"iuran-data/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "iuran-data")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rosterStore, closeStore, err := repository.OpenRosterStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open roster store", zap.Error(err))
	}
	defer closeStore()

	// 事件：MQTT / Redis Streams（可选）+ 统计缓存失效
	rt := service.NewRuntime(ctx, cfg, rosterStore, log)
	defer rt.Close()

	router := httpapi.NewRouter(log)
	router.RegisterRosterRoutes(httpapi.NewRosterHandler(rt.Roster, log))
	router.RegisterDashboardRoutes(httpapi.NewDashboardHandler(rt.Stats, log))
	router.RegisterHealth()

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("HTTP server stopped", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}
