// Package broker implements the state-sync broker using the actor pattern.
//
// One goroutine owns the client registry and the pending/current state. It consumes a command channel
// and a fixed-interval ticker, so registry and state mutation is always single-writer (no mutexes).
// Updates received within one tick are coalesced (last one wins) and broadcast at most once per tick.
// Per-connection writer goroutines own socket writes; a client whose queue is full or whose socket
// fails is evicted without affecting the others.
package broker
