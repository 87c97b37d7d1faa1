package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"phone-party/config"
	"phone-party/discovery"
	"phone-party/hub"
	"phone-party/protocol"
	"phone-party/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	broadcaster := hub.New()
	handler := protocol.NewHandler(broadcaster)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.NewRouter(broadcaster, handler, server.Options{MaxMessageSize: cfg.MaxMessageSize}),
	}
	srv.RegisterOnShutdown(broadcaster.CloseAll)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "path", server.PartyPath+"/{room}")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	if cfg.MDNSEnabled {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil {
			slog.Error("mdns needs a numeric port", "port", cfg.Port)
			os.Exit(1)
		}
		withdraw, err := discovery.Advertise(cfg.MDNSInstance, port, server.PartyPath)
		if err != nil {
			slog.Warn("mdns advertisement disabled", "error", err)
		} else {
			defer withdraw()
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
