package httpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/hashpipe/internal/broker"
	"github.com/pscheid92/hashpipe/internal/platform/config"
)

// stubBroker answers Snapshot with a fixed result and closes every connection.
type stubBroker struct {
	snapshot broker.Snapshot
	err      error
	block    chan struct{}
}

func (b *stubBroker) ServeConn(_ context.Context, conn *websocket.Conn) {
	_ = conn.Close()
}

func (b *stubBroker) Snapshot() (broker.Snapshot, error) {
	if b.block != nil {
		<-b.block
	}
	return b.snapshot, b.err
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:               "development",
		Port:                 "8080",
		MaxClients:           20,
		MaxMessageLength:     500,
		ConnectionsPerSecond: 100,
		ConnectionBurst:      100,
	}
}

type serverOption func(*config.Config, *[]HealthCheck)

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(_ *config.Config, hc *[]HealthCheck) { *hc = append(*hc, checks...) }
}

func withConfig(fn func(cfg *config.Config)) serverOption {
	return func(cfg *config.Config, _ *[]HealthCheck) { fn(cfg) }
}

func newTestServer(t *testing.T, b connectionBroker, opts ...serverOption) *Server {
	t.Helper()
	cfg := testConfig()
	var checks []HealthCheck
	for _, opt := range opts {
		opt(cfg, &checks)
	}
	return NewServer(cfg, b, checks...)
}

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}
