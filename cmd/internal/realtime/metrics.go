package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics, registered on the default prometheus registry and served
// by the app's /metrics endpoint.
var (
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loom_ws_connections",
		Help: "Number of live websocket connections.",
	})

	wsRejectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_ws_rejects_total",
		Help: "Handshake rejections by reason.",
	}, []string{"reason"})

	wsEnvelopesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_ws_envelopes_total",
		Help: "Envelopes accepted from clients by type.",
	}, []string{"type"})
)
