// Package hashnav is the reference host for the client reconciler: it keeps a
// navigation position (a URL fragment such as "#slide3") in sync across viewers.
package hashnav
