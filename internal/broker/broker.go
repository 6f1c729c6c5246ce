package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hashpipe/internal/domain"
	"github.com/pscheid92/hashpipe/internal/metrics"
	apperrors "github.com/pscheid92/hashpipe/internal/platform/errors"
)

const (
	commandTimeout    = 5 * time.Second  // Actor command timeout
	stopTimeout       = 10 * time.Second // Graceful shutdown timeout
	commandBufferSize = 256
)

// Eviction reasons, also used as metric labels.
const (
	reasonClosed          = "closed"
	reasonTransport       = "transport_error"
	reasonDeliveryFailure = "delivery_failure"
	reasonOversize        = "oversize"
	reasonDiagnostic      = "diagnostic"
	reasonUnregistered    = "unregistered"
)

// ErrStopped is returned by commands issued after the broker has shut down.
var ErrStopped = errors.New("broker stopped")

// Options configures a Broker. Zero values fall back to DefaultOptions.
type Options struct {
	MaxClients       int
	MaxMessageLength int
	PushInterval     time.Duration
	Transform        TransformFunc
}

// DefaultOptions returns the stock limits: 20 clients, 500-byte messages, 75ms ticks.
func DefaultOptions() Options {
	return Options{
		MaxClients:       20,
		MaxMessageLength: 500,
		PushInterval:     75 * time.Millisecond,
		Transform:        Identity,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxClients <= 0 {
		o.MaxClients = d.MaxClients
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = d.MaxMessageLength
	}
	if o.PushInterval <= 0 {
		o.PushInterval = d.PushInterval
	}
	if o.Transform == nil {
		o.Transform = d.Transform
	}
	return o
}

// Snapshot is a point-in-time view of broker state.
type Snapshot struct {
	Clients    int
	MaxClients int
	Current    domain.StateDocument
	Pending    domain.StateDocument
}

// brokerCmd is the command interface for the Broker actor.
type brokerCmd interface{ isBrokerCmd() }

type baseBrokerCmd struct{}

func (baseBrokerCmd) isBrokerCmd() {}

type registerResult struct {
	id  int64
	err error
}

type registerCmd struct {
	baseBrokerCmd
	connection   *websocket.Conn
	replyChannel chan registerResult
}

type unregisterCmd struct {
	baseBrokerCmd
	id     int64
	reason string
}

type inboundCmd struct {
	baseBrokerCmd
	id   int64
	data []byte
}

type announceCmd struct {
	baseBrokerCmd
	text string
}

type snapshotCmd struct {
	baseBrokerCmd
	replyChannel chan Snapshot
}

type stopCmd struct {
	baseBrokerCmd
}

// Broker owns the connection registry, the update coalescer and the broadcast fan-out.
type Broker struct {
	cmdCh       chan brokerCmd
	clock       clockwork.Clock
	opts        Options
	registry    *registry
	validator   validator
	coalescer   *coalescer
	done        chan struct{}
	stopTimeout time.Duration
}

// New creates a broker and starts its goroutine.
func New(opts Options, clock clockwork.Clock) *Broker {
	b := newBroker(opts, clock)
	go b.run()
	return b
}

func newBroker(opts Options, clock clockwork.Clock) *Broker {
	opts = opts.withDefaults()
	b := &Broker{
		cmdCh:       make(chan brokerCmd, commandBufferSize),
		clock:       clock,
		opts:        opts,
		validator:   validator{maxMessageLength: opts.MaxMessageLength},
		coalescer:   newCoalescer(opts.Transform),
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	b.registry = newRegistry(capacityGuard{maxClients: opts.MaxClients}, b.spawnWriter)
	return b
}

func (b *Broker) spawnWriter(id int64, conn *websocket.Conn) *clientWriter {
	return newClientWriter(id, conn, b.clock, b.onWriteFailure)
}

func (b *Broker) onWriteFailure(id int64, err error) {
	slog.Warn("Failed to send to client", "client_id", id, "error", apperrors.DeliveryFailure("write failed", err))
	b.send(unregisterCmd{id: id, reason: reasonDeliveryFailure})
}

// send posts cmd unless the broker goroutine has exited.
func (b *Broker) send(cmd brokerCmd) bool {
	select {
	case b.cmdCh <- cmd:
		return true
	case <-b.done:
		return false
	}
}

// Register admits conn and returns its id. A connection over capacity is closed
// with the too-many-clients code before Register returns.
func (b *Broker) Register(conn *websocket.Conn) (int64, error) {
	replyCh := make(chan registerResult, 1)
	if !b.send(registerCmd{connection: conn, replyChannel: replyCh}) {
		_ = conn.Close()
		return 0, ErrStopped
	}

	// Use timeout to prevent blocking forever if broker is stuck
	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case res := <-replyCh:
		return res.id, res.err
	case <-b.done:
		return 0, ErrStopped
	case <-timer.Chan():
		return 0, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a client. Unknown ids are ignored.
func (b *Broker) Unregister(id int64) {
	b.send(unregisterCmd{id: id, reason: reasonUnregistered})
}

// Submit hands a raw inbound frame from client id to the broker.
func (b *Broker) Submit(id int64, data []byte) {
	b.send(inboundCmd{id: id, data: data})
}

// Announce sends a serverMsg notice to every client immediately.
func (b *Broker) Announce(text string) {
	b.send(announceCmd{text: text})
}

// Snapshot returns the registry size and the current and pending state.
func (b *Broker) Snapshot() (Snapshot, error) {
	replyCh := make(chan Snapshot, 1)
	if !b.send(snapshotCmd{replyChannel: replyCh}) {
		return Snapshot{}, ErrStopped
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case snap := <-replyCh:
		return snap, nil
	case <-b.done:
		return Snapshot{}, ErrStopped
	case <-timer.Chan():
		return Snapshot{}, fmt.Errorf("snapshot command timed out after %v", commandTimeout)
	}
}

// ClientCount returns the number of registered clients, or -1 if the broker does not answer.
func (b *Broker) ClientCount() int {
	snap, err := b.Snapshot()
	if err != nil {
		slog.Warn("ClientCount failed", "error", err)
		return -1
	}
	return snap.Clients
}

// Current returns the authoritative state, or nil before the first promotion.
func (b *Broker) Current() domain.StateDocument {
	snap, err := b.Snapshot()
	if err != nil {
		return nil
	}
	return snap.Current
}

// Stop closes every client with the going-away code and stops the broker.
// Blocks until the broker goroutine has exited or timeout is reached.
func (b *Broker) Stop() {
	if !b.send(stopCmd{}) {
		return
	}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Broker stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broker stop timeout exceeded", "timeout", b.stopTimeout)
		metrics.BrokerStopTimeoutsTotal.Inc()
	}
}

func (b *Broker) run() {
	defer close(b.done)

	// Panic recovery wrapper
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broker panic recovered", "panic", r)
			metrics.BrokerPanicsTotal.Inc()
			b.closeAllClients(websocket.CloseInternalServerErr, "internal error")
		}
	}()

	ticker := b.clock.NewTicker(b.opts.PushInterval)
	defer ticker.Stop()

	depthTicker := b.clock.NewTicker(time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(b.cmdCh)
			metrics.BrokerCommandChannelDepth.Set(float64(depth))
			if depth > commandBufferSize*4/5 {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(b.cmdCh))
			}

		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				b.handleRegister(c)
			case unregisterCmd:
				b.evict(c.id, c.reason)
			case inboundCmd:
				b.handleInbound(c)
			case announceCmd:
				b.handleAnnounce(c)
			case snapshotCmd:
				c.replyChannel <- b.snapshot()
			case stopCmd:
				b.handleStop()
				return
			default:
				slog.Warn("Broker received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}

		case <-ticker.Chan():
			b.handleTick()
		}
	}
}

func (b *Broker) handleRegister(c registerCmd) {
	id, cw, err := b.registry.register(c.connection)
	if err != nil {
		slog.Warn("Too many clients, disconnecting new client", "clients", b.registry.size(), "max_clients", b.opts.MaxClients)
		metrics.BrokerConnectionsRejected.WithLabelValues("capacity").Inc()
		b.registry.guard.reject(c.connection)
		c.replyChannel <- registerResult{err: err}
		return
	}

	metrics.BrokerConnectedClients.Set(float64(b.registry.size()))
	slog.Info("New client", "client_id", id, "clients", b.registry.size())

	// The new client gets its id, then the current state, ahead of any later broadcast.
	cw.enqueue(mustMarshal(domain.NewAssignID(id)))
	if b.coalescer.hasCurrent() {
		if data, err := b.coalescer.current.Encode(); err == nil {
			cw.enqueue(data)
		}
	}

	c.replyChannel <- registerResult{id: id}
}

func (b *Broker) handleInbound(c inboundCmd) {
	cw, ok := b.registry.get(c.id)
	if !ok {
		// Late frame from a client that was already evicted.
		return
	}

	msg, err := b.validator.validate(c.data)
	switch {
	case err != nil:
		structured := apperrors.AsStructuredError(err)
		if !structured.Fatal() {
			slog.Error("Failed to parse client message", append([]any{"client_id", c.id}, structured.LogAttrs()...)...)
			metrics.BrokerInboundMessages.WithLabelValues("malformed").Inc()
			return
		}
		slog.Error("Client sent oversize message", append([]any{"client_id", c.id}, structured.LogAttrs()...)...)
		metrics.BrokerInboundMessages.WithLabelValues("oversize").Inc()
		cw.closeWith(structured.CloseCode(), structured.CloseReason())
		b.evict(c.id, reasonOversize)

	case msg.diagnostic:
		slog.Info("Received testTooManyClients", "client_id", c.id)
		metrics.BrokerInboundMessages.WithLabelValues("diagnostic").Inc()
		metrics.BrokerConnectionsRejected.WithLabelValues("diagnostic").Inc()
		rejection := apperrors.CapacityExceeded(b.opts.MaxClients)
		cw.closeWith(rejection.CloseCode(), rejection.CloseReason())
		b.evict(c.id, reasonDiagnostic)

	default:
		metrics.BrokerInboundMessages.WithLabelValues("accepted").Inc()
		if b.coalescer.offer(msg.doc.WithID(c.id)) {
			metrics.BrokerCoalescedUpdates.Inc()
		}
	}
}

func (b *Broker) handleTick() {
	next, ok := b.coalescer.next()
	if !ok {
		return
	}

	tickStart := b.clock.Now()
	defer func() {
		metrics.BrokerTickDuration.Observe(b.clock.Since(tickStart).Seconds())
	}()

	if next == nil {
		slog.Debug("Transform dropped pending update")
		b.coalescer.discard()
		return
	}

	data, err := next.Encode()
	if err != nil {
		slog.Error("Failed to encode state, dropping pending update", "error", err)
		b.coalescer.discard()
		return
	}

	b.coalescer.commit(next)
	metrics.BrokerBroadcasts.Inc()
	b.fanOut(data)
}

func (b *Broker) handleAnnounce(c announceCmd) {
	b.fanOut(mustMarshal(domain.NewServerMsg(c.text)))
}

// fanOut delivers data to every client. Clients that cannot take it are evicted
// after the pass so the remaining deliveries are unaffected.
func (b *Broker) fanOut(data []byte) {
	var failed []int64
	b.registry.forEach(func(id int64, cw *clientWriter) {
		if !cw.enqueue(data) {
			failed = append(failed, id)
		}
	})

	for _, id := range failed {
		b.evict(id, reasonDeliveryFailure)
	}
}

// evict unregisters id and tells the remaining clients. No-op for unknown ids.
func (b *Broker) evict(id int64, reason string) {
	if !b.registry.unregister(id) {
		return
	}

	metrics.BrokerEvictions.WithLabelValues(reason).Inc()
	metrics.BrokerConnectedClients.Set(float64(b.registry.size()))
	slog.Info("Removing client", "client_id", id, "reason", reason, "clients", b.registry.size())

	b.fanOut(mustMarshal(domain.Deleted{Deleted: id}))
}

func (b *Broker) snapshot() Snapshot {
	snap := Snapshot{
		Clients:    b.registry.size(),
		MaxClients: b.opts.MaxClients,
	}
	if b.coalescer.current != nil {
		snap.Current = b.coalescer.current.Clone()
	}
	if b.coalescer.pending != nil {
		snap.Pending = b.coalescer.pending.Clone()
	}
	return snap
}

func (b *Broker) handleStop() {
	total := b.registry.size()
	slog.Info("Broker shutting down", "clients", total)

	b.closeAllClients(domain.CloseShutdown, domain.ReasonShutdown)

	slog.Info("Broker shutdown complete", "disconnected_clients", total)
}

// closeAllClients closes all client connections with the given code and reason.
// Used during panic recovery and graceful shutdown.
func (b *Broker) closeAllClients(code int, reason string) {
	for _, cw := range b.registry.drain() {
		cw.closeWith(code, reason)
	}
	metrics.BrokerConnectedClients.Set(0)
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal %T: %v", v, err))
	}
	return data
}
