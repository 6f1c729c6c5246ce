// Package client implements the Reconciler, the client side of the state-sync
// protocol. A Reconciler owns one connection, the identity the broker assigned to
// it and a cache of the last known state. It reports remote changes to its host
// and suppresses echoes of its own updates. It never reconnects on its own.
package client
