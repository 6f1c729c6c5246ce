package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/hashpipe/internal/broker"
	"github.com/pscheid92/hashpipe/internal/platform/config"
)

// connectionBroker is the part of the broker the transport needs.
type connectionBroker interface {
	ServeConn(ctx context.Context, conn *websocket.Conn)
	Snapshot() (broker.Snapshot, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	broker   connectionBroker
	upgrader websocket.Upgrader

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires the HTTP surface around b. A readiness check for the broker is
// always installed ahead of any extra checks.
func NewServer(cfg *config.Config, b connectionBroker, healthChecks ...HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:   e,
		config: cfg,
		broker: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		},
		startTime: time.Now(),
	}
	srv.healthChecks = append([]HealthCheck{{Name: "broker", Check: srv.checkBroker}}, healthChecks...)

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
