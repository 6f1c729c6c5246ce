package broker

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/hashpipe/internal/domain"
)

const closeGrace = time.Second

type capacityGuard struct {
	maxClients int
}

// admits reports whether one more client fits next to size existing ones.
func (g capacityGuard) admits(size int) bool {
	return size+1 <= g.maxClients
}

// reject closes a connection that was never registered.
func (g capacityGuard) reject(conn *websocket.Conn) {
	closeConn(conn, domain.CloseTooManyClients, domain.ReasonTooManyClients)
}

// closeConn writes a close frame with code and reason, then drops the socket.
func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	_ = conn.Close()
}
