package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/glitch-server/internal/builder"
	appcfg "github.com/park285/glitch-server/internal/config"
	"github.com/park285/glitch-server/internal/gateway"
	"github.com/park285/glitch-server/internal/httpapi"
	"github.com/park285/glitch-server/internal/obslog"
)

func main() {
	if err := appcfg.LoadDotenv(); err != nil {
		log.Fatalf("dotenv error: %v", err)
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := builder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init failed", zap.Error(err))
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("rating store close failed", zap.Error(err))
		}
	}()

	gw := gateway.NewServer(deps.Rooms, deps.Catalog,
		gateway.WithOrigins(cfg.AllowedOrigins),
		gateway.WithWriteTimeout(cfg.WSWriteTimeout),
		gateway.WithSendBuffer(cfg.WSSendBuffer),
		gateway.WithLogger(logger),
	)
	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	wsSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gateway_listen", zap.String("addr", cfg.ListenAddr), zap.Strings("origins", cfg.AllowedOrigins))
		if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var api *httpapi.API
	if cfg.HTTPAddr != "" {
		api = httpapi.New(deps.Rooms, deps.Ratings,
			httpapi.WithCORSOrigins(cfg.AllowedOrigins),
			httpapi.WithLogger(logger),
		)
		go func() {
			logger.Info("http_api_listen", zap.String("addr", cfg.HTTPAddr))
			if err := api.ListenAndServe(cfg.HTTPAddr); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-errCh:
		logger.Error("listener failed", zap.Error(err))
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Close(sctx); err != nil {
		logger.Warn("gateway close", zap.Error(err))
	}
	if err := wsSrv.Shutdown(sctx); err != nil {
		logger.Warn("gateway shutdown", zap.Error(err))
	}
	if api != nil {
		if err := api.Shutdown(sctx); err != nil {
			logger.Warn("http api shutdown", zap.Error(err))
		}
	}
	logger.Info("shutdown_complete", zap.Int("rooms", deps.Rooms.RoomCount()))
}
