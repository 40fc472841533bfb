// Package metrics exposes the server's Prometheus collectors. Collectors
// are registered on the default registry at init; the admin HTTP server
// serves them under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsOpen tracks live client connections per channel.
	ConnectionsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "strife_connections_open",
		Help: "Open client connections per channel.",
	}, []string{"channel"})

	// HandshakesTotal counts handshake attempts by outcome
	// (ok, error, duplicate).
	HandshakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strife_handshakes_total",
		Help: "Handshake attempts per channel and outcome.",
	}, []string{"channel", "outcome"})

	// FramesRead counts decrypted inbound frames per channel.
	FramesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strife_frames_read_total",
		Help: "Inbound frames successfully read and decrypted.",
	}, []string{"channel"})

	// FramesSent counts outbound frames per channel.
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strife_frames_sent_total",
		Help: "Outbound frames written to peers.",
	}, []string{"channel"})

	// FramesDropped counts frames that never reached a handler or peer,
	// by reason (decrypt, decode, no_conn, write, handler_error).
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strife_frames_dropped_total",
		Help: "Frames dropped before delivery, per channel and reason.",
	}, []string{"channel", "reason"})

	// DispatchTotal counts handler invocations per channel and opname.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strife_dispatch_total",
		Help: "Handler invocations per channel and opname.",
	}, []string{"channel", "opname"})

	// SessionsOpen tracks signed-in users.
	SessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "strife_sessions_open",
		Help: "Users currently signed in.",
	})
)
