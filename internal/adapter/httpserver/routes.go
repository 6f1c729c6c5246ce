package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pscheid92/hashpipe/internal/adapter/metrics"
)

// httpMetrics is registered once per process on the default registry.
var httpMetrics = metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(correlationMiddleware)
	s.echo.Use(httpMetrics.Middleware())
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	if s.config.StaticDir != "" {
		slog.Info("Serving static files", "dir", s.config.StaticDir)
		s.echo.Use(middleware.StaticWithConfig(middleware.StaticConfig{
			Root:    s.config.StaticDir,
			Skipper: isUpgrade,
		}))
	}

	limiter := newRateLimiter(s.config.ConnectionsPerSecond, s.config.ConnectionBurst)

	// Pages connect to their own host, so upgrades on "/" reach the broker too.
	s.echo.GET("/", s.handleRoot, limiter)
	s.echo.GET("/ws", s.handleWebSocket, limiter)

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) handleRoot(c echo.Context) error {
	if isUpgrade(c) {
		return s.handleWebSocket(c)
	}
	return c.String(http.StatusOK, "hashpipe broker: open a WebSocket on /ws\n")
}

func isUpgrade(c echo.Context) bool {
	return websocket.IsWebSocketUpgrade(c.Request())
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
