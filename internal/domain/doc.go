// Package domain defines the wire model shared by the broker and the client reconciler.
//
// StateDocument is the synchronized attribute bag; protocol.go holds the envelopes and
// close codes that frame it. No implementation code beyond encoding helpers.
package domain
