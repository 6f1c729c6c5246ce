package broker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hashpipe/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

type clientWriter struct {
	id          int64
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	failed      atomic.Bool
	onFailure   func(id int64, err error)
}

func newClientWriter(id int64, connection *websocket.Conn, clock clockwork.Clock, onFailure func(int64, error)) *clientWriter {
	cw := &clientWriter{
		id:          id,
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
		onFailure:   onFailure,
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// enqueue hands msg to the writer without blocking. False means the client is
// too slow or its socket already failed, and it should be evicted.
func (cw *clientWriter) enqueue(msg []byte) bool {
	if cw.failed.Load() {
		return false
	}
	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			select {
			case <-cw.doneChannel:
				return
			default:
			}
			start := time.Now()
			if err := cw.write(websocket.TextMessage, msg); err != nil {
				cw.fail(err)
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(time.Since(start).Seconds())
		case <-ticker.Chan():
			if err := cw.write(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				cw.fail(err)
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

func (cw *clientWriter) write(messageType int, data []byte) error {
	_ = cw.connection.SetWriteDeadline(time.Now().Add(writeDeadline))
	return cw.connection.WriteMessage(messageType, data)
}

// fail marks the writer dead, drops the socket and reports to the broker. The
// report runs on its own goroutine because the broker may be waiting on this writer.
func (cw *clientWriter) fail(err error) {
	cw.failed.Store(true)
	_ = cw.connection.Close()
	if cw.onFailure != nil {
		go cw.onFailure(cw.id, err)
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// closeWith flushes queued frames, then sends a close frame with code and reason.
func (cw *clientWriter) closeWith(code int, reason string) {
	cw.stopOnce.Do(func() {
		// The run goroutine must exit first; gorilla allows one concurrent writer.
		// A write already in flight to a stalled peer is cut short at the socket,
		// since the broker goroutine waits here.
		close(cw.doneChannel)
		_ = cw.connection.NetConn().SetWriteDeadline(time.Now().Add(closeGrace))
		cw.wg.Wait()

		if !cw.failed.Load() {
			_ = cw.connection.SetWriteDeadline(time.Now().Add(closeGrace))
		flush:
			for {
				select {
				case msg := <-cw.sendChannel:
					if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
						break flush
					}
				default:
					break flush
				}
			}
		}

		closeConn(cw.connection, code, reason)
	})
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(time.Now().Add(pongDeadline))
}
