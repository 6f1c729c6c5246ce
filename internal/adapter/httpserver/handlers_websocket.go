package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
)

// handleWebSocket upgrades the request and hands the socket to the broker for
// its whole lifetime.
func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.WarnContext(ctx, "WebSocket upgrade failed", "error", err, "remote_addr", c.RealIP())
		return nil
	}

	slog.DebugContext(ctx, "WebSocket connection opened", "remote_addr", c.RealIP())
	s.broker.ServeConn(ctx, conn)
	return nil
}
