package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hashpipe/internal/domain"
	apperrors "github.com/pscheid92/hashpipe/internal/platform/errors"
)

const (
	writeDeadline = 5 * time.Second
	closeGrace    = time.Second
)

// Messages surfaced through OnServerMsg when the connection ends.
const (
	MsgDisconnected = "Disconnected from server"
	MsgNoConnection = "No connection to server"
	DefaultHint     = "<br>You can also run your own server."
)

var (
	// ErrNotOpen is returned by ChangeState when the update could not be sent.
	ErrNotOpen = errors.New("reconciler is not open")
	// ErrAlreadyConnected is returned by Connect while a connection is in progress or open.
	ErrAlreadyConnected = errors.New("reconciler already connected")
)

// State is the protocol state of a Reconciler.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handlers are the host callbacks. Any of them may be nil. They run on the
// Reconciler's read goroutine, one at a time, and may call back into the Reconciler.
type Handlers struct {
	// OnStateChange receives state documents that originated from another client.
	OnStateChange func(doc domain.StateDocument)
	// OnServerMsg receives informational notices, including the reason a connection ended.
	OnServerMsg func(text string)
	// OnClientLeft receives the id of a client the broker removed.
	OnClientLeft func(id int64)
}

// Options tunes a Reconciler. Zero values are replaced with defaults.
type Options struct {
	Clock clockwork.Clock
	// Hint is appended to the notice shown when the broker rejects or drops this client.
	Hint string
}

// Reconciler merges local and remote state changes over one broker connection.
type Reconciler struct {
	handlers Handlers
	dialer   *websocket.Dialer
	clock    clockwork.Clock
	hint     string
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	id      int64
	hasID   bool
	current domain.StateDocument
	closing bool

	writeMu sync.Mutex
}

// New creates a disconnected Reconciler. A nil dialer uses websocket.DefaultDialer.
func New(handlers Handlers, dialer *websocket.Dialer, opts Options) *Reconciler {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Hint == "" {
		opts.Hint = DefaultHint
	}
	return &Reconciler{
		handlers: handlers,
		dialer:   dialer,
		clock:    opts.Clock,
		hint:     opts.Hint,
		logger:   slog.With("instance", uuid.NewString()),
		state:    Disconnected,
	}
}

// Connect dials url and starts reading. It returns once the socket is open; the
// identity arrives asynchronously as the first frame.
func (r *Reconciler) Connect(ctx context.Context, url string) error {
	return r.connect(ctx, url, true)
}

// connect dials url. A failed dial emits MsgNoConnection only when notifyFailure is set.
func (r *Reconciler) connect(ctx context.Context, url string, notifyFailure bool) error {
	r.mu.Lock()
	if r.state == Connecting || r.state == Open {
		r.mu.Unlock()
		return ErrAlreadyConnected
	}
	r.state = Connecting
	r.conn = nil
	r.id, r.hasID = 0, false
	r.closing = false
	r.mu.Unlock()

	r.logger.Info("Connecting to server", "url", url)
	conn, resp, err := r.dialer.DialContext(ctx, url, nil)
	if err != nil {
		r.mu.Lock()
		r.state = Closed
		r.mu.Unlock()
		if notifyFailure {
			r.notify(MsgNoConnection)
		}
		dialErr := apperrors.TransportError("dial failed", err).WithField("url", url)
		if resp != nil {
			dialErr = dialErr.WithField("status", resp.StatusCode)
		}
		return dialErr
	}

	r.mu.Lock()
	if r.closing {
		// Close raced the dial.
		r.state = Disconnected
		r.mu.Unlock()
		_ = conn.Close()
		return ErrNotOpen
	}
	r.conn = conn
	r.state = Open
	r.mu.Unlock()

	r.logger.Info("Connection opened")
	go r.readLoop(conn)
	return nil
}

// ChangeState applies doc to the local cache and sends it to the broker. While
// not open the update is dropped and ErrNotOpen is returned.
func (r *Reconciler) ChangeState(doc domain.StateDocument) error {
	out := doc.Clone()
	// The broker stamps the sender id.
	delete(out, "id")

	data, err := out.Encode()
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.state != Open {
		r.mu.Unlock()
		return ErrNotOpen
	}
	conn := r.conn
	r.current = out
	r.mu.Unlock()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperrors.TransportError("send failed", err)
	}
	return nil
}

// Close ends the connection without notifying OnServerMsg and returns to Disconnected.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	conn := r.conn
	if r.state == Connecting {
		r.closing = true
	}
	if r.state != Open {
		r.mu.Unlock()
		return nil
	}
	r.closing = true
	r.state = Disconnected
	r.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	r.logger.Info("Connection closed by host")
	return conn.Close()
}

// State returns the current protocol state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ID returns the identity assigned by the broker, if one has arrived on the current connection.
func (r *Reconciler) ID() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id, r.hasID
}

// Current returns a copy of the last known state, local or remote.
func (r *Reconciler) Current() domain.StateDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	return r.current.Clone()
}

func (r *Reconciler) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.handleClose(conn, err)
			return
		}
		r.handleMessage(data)
	}
}

func (r *Reconciler) handleMessage(data []byte) {
	doc, err := domain.DecodeStateDocument(data)
	if err != nil {
		r.logger.Warn("Dropping undecodable message", apperrors.MalformedPayload(err).LogAttrs()...)
		return
	}

	r.mu.Lock()
	if !r.hasID {
		id, ok := doc.ID()
		if doc.Action() != domain.ActionAssignID || !ok {
			r.mu.Unlock()
			r.logger.Warn("Expected identity assignment, dropping message", "action", doc.Action())
			return
		}
		r.id, r.hasID = id, true
		r.mu.Unlock()
		r.logger.Info("Assigned client id", "client_id", id)
		return
	}

	// Broker notices never carry an id. A stamped one was relayed from a peer
	// and is plain state.
	if _, stamped := doc.ID(); !stamped && doc.Action() == domain.ActionServerMsg {
		r.mu.Unlock()
		r.notify(doc.String("value"))
		return
	}

	if left, ok := departure(doc); ok {
		r.mu.Unlock()
		if r.handlers.OnClientLeft != nil {
			r.handlers.OnClientLeft(left)
		}
		return
	}

	r.current = doc
	sender, _ := doc.ID()
	echo := sender == r.id
	r.mu.Unlock()

	if echo {
		r.logger.Debug("Ignoring echo of own update")
		return
	}
	if r.handlers.OnStateChange != nil {
		r.handlers.OnStateChange(doc.Clone())
	}
}

func (r *Reconciler) handleClose(conn *websocket.Conn, err error) {
	r.mu.Lock()
	if r.conn != conn || r.closing {
		r.mu.Unlock()
		return
	}
	r.state = Closed
	r.mu.Unlock()

	r.logger.Warn("Connection closed", "error", err)
	r.notify(r.closeNotice(err))
}

// closeNotice renders the host-facing text for a connection the broker ended.
func (r *Reconciler) closeNotice(err error) string {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return MsgNoConnection
	}
	if closeErr.Code != domain.CloseTooManyClients && closeErr.Code != domain.CloseMessageTooLong {
		return MsgNoConnection
	}

	msg := MsgDisconnected
	if closeErr.Text != "" {
		msg += ": " + closeErr.Text
	}
	return msg + r.hint
}

func (r *Reconciler) notify(text string) {
	if r.handlers.OnServerMsg != nil {
		r.handlers.OnServerMsg(text)
	}
}

// departure reports whether doc is a {deleted:id} notice.
func departure(doc domain.StateDocument) (int64, bool) {
	if len(doc) != 1 {
		return 0, false
	}
	raw, ok := doc["deleted"]
	if !ok {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}
