package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broker Metrics
var (
	// BrokerConnectedClients tracks the current registry size
	BrokerConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_connected_clients",
			Help: "Number of clients currently registered with the broker",
		},
	)

	// BrokerConnectionsRejected tracks refused connections by reason (capacity, diagnostic, rate_limit)
	BrokerConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_connections_rejected_total",
			Help: "Connections refused by the broker by reason",
		},
		[]string{"reason"},
	)

	// BrokerInboundMessages tracks inbound frames by validation result
	BrokerInboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_inbound_messages_total",
			Help: "Inbound messages by validation result (accepted/oversize/malformed/diagnostic)",
		},
		[]string{"result"},
	)

	// BrokerCoalescedUpdates tracks buffered updates overwritten before a tick promoted them
	BrokerCoalescedUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_coalesced_updates_total",
			Help: "Pending updates discarded because a newer update arrived within the same tick",
		},
	)

	// BrokerBroadcasts tracks state promotions that were fanned out
	BrokerBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_broadcasts_total",
			Help: "State broadcasts performed by the coalescing ticker",
		},
	)

	// BrokerEvictions tracks clients removed by reason (closed, delivery_failure, oversize, diagnostic)
	BrokerEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_evictions_total",
			Help: "Clients removed from the registry by reason",
		},
		[]string{"reason"},
	)

	// BrokerTickDuration tracks how long a promoting tick takes
	BrokerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broker_tick_duration_seconds",
			Help:    "Duration of ticks that promoted and broadcast an update",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)

	// BrokerCommandChannelDepth tracks current command channel depth
	BrokerCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_command_channel_depth",
			Help: "Current command channel depth",
		},
	)

	// BrokerPanicsTotal tracks broker loop panic recoveries
	BrokerPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_panics_total",
			Help: "Total broker panic recoveries",
		},
	)

	// BrokerStopTimeoutsTotal tracks broker stops that exceeded timeout
	BrokerStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_stop_timeouts_total",
			Help: "Broker stops that exceeded timeout",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketMessageSendDuration tracks time to write a single frame
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time to write a single frame to a client",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	// WebSocketPingFailures tracks keepalive pings that could not be written
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Keepalive pings that failed to write",
		},
	)

	// WebSocketConnectionDuration tracks how long accepted connections stay open
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "Lifetime of accepted WebSocket connections",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400},
		},
	)
)
