// SPDX-FileCopyrightText: 2026 Nextcloud GmbH and Nextcloud contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/livetouch/callcore/internal/api"
	"github.com/livetouch/callcore/internal/constants"
	"github.com/livetouch/callcore/internal/handlers"
	"github.com/livetouch/callcore/internal/service"
)

func main() {
	cfg, err := api.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pflag.Int64Var(&cfg.UserID, "user-id", cfg.UserID, "id of the signed-in user")
	pflag.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "REST backend base URL")
	pflag.StringVar(&cfg.WSURL, "ws-url", cfg.WSURL, "signaling WebSocket URL (derived from --api-url when empty)")
	pflag.StringVar(&cfg.ControlPort, "port", cfg.ControlPort, "control API port")
	pflag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	pflag.Parse()

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting callcore",
		"user_id", cfg.UserID,
		"api_url", cfg.APIURL,
		"ws_url", cfg.WSURL,
		"port", cfg.ControlPort,
	)

	client := api.NewClient(cfg)
	svc, err := service.New(cfg, client)
	if err != nil {
		slog.Error("failed to initialize call service", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	svc.Start(ctx)

	h := handlers.NewHandler(svc)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	skipAuth := map[string]bool{
		"/heartbeat": true,
	}
	authedHandler := api.AuthMiddleware(cfg, skipAuth, mux)

	srv := &http.Server{
		Handler:      authedHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	addr := ":" + cfg.ControlPort
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("failed to listen on TCP", "addr", addr, "error", err)
		os.Exit(1)
	}
	slog.Info("control API listening", "addr", addr)

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	svc.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
