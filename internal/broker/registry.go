package broker

import (
	"maps"
	"slices"

	"github.com/gorilla/websocket"
	apperrors "github.com/pscheid92/hashpipe/internal/platform/errors"
)

type spawnFunc func(id int64, conn *websocket.Conn) *clientWriter

// registry owns the id -> connection mapping. Only the broker goroutine touches it.
type registry struct {
	guard   capacityGuard
	spawn   spawnFunc
	nextID  int64
	clients map[int64]*clientWriter
}

func newRegistry(guard capacityGuard, spawn spawnFunc) *registry {
	return &registry{
		guard:   guard,
		spawn:   spawn,
		nextID:  1,
		clients: make(map[int64]*clientWriter),
	}
}

// register admits conn and assigns the next id. Ids are never reused.
func (r *registry) register(conn *websocket.Conn) (int64, *clientWriter, error) {
	if !r.guard.admits(len(r.clients)) {
		return 0, nil, apperrors.CapacityExceeded(r.guard.maxClients)
	}

	id := r.nextID
	r.nextID++

	cw := r.spawn(id, conn)
	r.clients[id] = cw
	return id, cw, nil
}

// unregister stops and removes the client. Removing an absent id is a no-op and returns false.
func (r *registry) unregister(id int64) bool {
	cw, exists := r.clients[id]
	if !exists {
		return false
	}
	cw.stop()
	delete(r.clients, id)
	return true
}

func (r *registry) get(id int64) (*clientWriter, bool) {
	cw, ok := r.clients[id]
	return cw, ok
}

// forEach visits clients in ascending id order.
func (r *registry) forEach(fn func(id int64, cw *clientWriter)) {
	for _, id := range slices.Sorted(maps.Keys(r.clients)) {
		fn(id, r.clients[id])
	}
}

func (r *registry) size() int {
	return len(r.clients)
}

// drain removes every client without stopping it and returns them in id order.
func (r *registry) drain() []*clientWriter {
	out := make([]*clientWriter, 0, len(r.clients))
	r.forEach(func(_ int64, cw *clientWriter) { out = append(out, cw) })
	clear(r.clients)
	return out
}
