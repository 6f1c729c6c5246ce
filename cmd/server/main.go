package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hashpipe/internal/adapter/httpserver"
	"github.com/pscheid92/hashpipe/internal/broker"
	"github.com/pscheid92/hashpipe/internal/platform/config"
	"github.com/pscheid92/hashpipe/internal/platform/logging"
	"github.com/pscheid92/hashpipe/internal/platform/version"
)

const shutdownNotice = "Server shutting down"

func runGracefulShutdown(srv *httpserver.Server, b *broker.Broker) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Tell viewers first; the broker closes their sockets on Stop.
		b.Announce(shutdownNotice)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		b.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func staticDirCheck(dir string) httpserver.HealthCheck {
	return httpserver.HealthCheck{
		Name: "static_dir",
		Check: func(_ context.Context) error {
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		},
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	b := broker.New(broker.Options{
		MaxClients:       cfg.MaxClients,
		MaxMessageLength: cfg.MaxMessageLength,
		PushInterval:     cfg.PushInterval,
	}, clock)
	slog.Info("Broker started",
		"max_clients", cfg.MaxClients,
		"max_message_length", cfg.MaxMessageLength,
		"push_interval", cfg.PushInterval)

	var checks []httpserver.HealthCheck
	if cfg.StaticDir != "" {
		checks = append(checks, staticDirCheck(cfg.StaticDir))
	}
	srv := httpserver.NewServer(cfg, b, checks...)

	done := runGracefulShutdown(srv, b)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
