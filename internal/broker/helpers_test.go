package broker

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const readTimeout = time.Second

// testBroker starts a broker on a fake clock behind a test HTTP server.
func testBroker(t *testing.T, opts Options) (*Broker, *clockwork.FakeClock, func() *ws.Conn) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	broker := New(opts, clock)
	t.Cleanup(func() { broker.Stop() })

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		broker.ServeConn(r.Context(), conn)
	}))
	t.Cleanup(func() { server.Close() })

	dial := func() *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	return broker, clock, dial
}

// dialAssigned dials and consumes the identity assignment.
func dialAssigned(t *testing.T, dial func() *ws.Conn) (*ws.Conn, int64) {
	t.Helper()
	conn := dial()
	msg := readJSON(t, conn)
	require.Equal(t, "assignId", msg["action"])
	return conn, int64(msg["id"].(float64))
}

func readJSON(t *testing.T, conn *ws.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// readCloseError reads until the peer closes and returns the close frame.
func readCloseError(t *testing.T, conn *ws.Conn) *ws.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *ws.CloseError
		require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
		return closeErr
	}
}

// expectSilence asserts nothing arrives within d. The connection is unusable afterwards.
func expectSilence(t *testing.T, conn *ws.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message: %s", data)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

func send(t *testing.T, conn *ws.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(payload)))
}

// waitPending blocks until the broker has buffered an update with attribute key == value.
func waitPending(t *testing.T, b *Broker, key, value string) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := b.Snapshot()
		return err == nil && snap.Pending != nil && snap.Pending.String(key) == value
	}, readTimeout, time.Millisecond)
}

func waitForClientCount(t *testing.T, b *Broker, expected int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.ClientCount() == expected }, readTimeout, time.Millisecond)
}

func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })
	return serverConn, clientConn
}
