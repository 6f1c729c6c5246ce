package broker

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/hashpipe/internal/metrics"
	"github.com/pscheid92/hashpipe/internal/platform/correlation"
	apperrors "github.com/pscheid92/hashpipe/internal/platform/errors"
)

// ServeConn registers conn and runs its read pump until the connection ends.
// It blocks for the lifetime of the connection.
func (b *Broker) ServeConn(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameBytes)

	id, err := b.Register(conn)
	if err != nil {
		slog.WarnContext(ctx, "Connection rejected", "error", err)
		return
	}
	ctx = correlation.WithClient(ctx, id)

	connectedAt := time.Now()
	defer func() {
		metrics.WebSocketConnectionDuration.Observe(time.Since(connectedAt).Seconds())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.send(unregisterCmd{id: id, reason: classifyReadError(ctx, err)})
			return
		}
		b.Submit(id, data)
	}
}

func classifyReadError(ctx context.Context, err error) string {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		slog.InfoContext(ctx, "Client disconnected")
		return reasonClosed
	case errors.Is(err, websocket.ErrReadLimit):
		slog.ErrorContext(ctx, "Client frame exceeded read limit", "limit", maxFrameBytes)
		return reasonOversize
	case errors.Is(err, net.ErrClosed):
		// The broker closed the socket itself (eviction or shutdown).
		return reasonClosed
	default:
		transportErr := apperrors.TransportError("connection lost", err)
		slog.WarnContext(ctx, "Client connection lost", transportErr.LogAttrs()...)
		return reasonTransport
	}
}
