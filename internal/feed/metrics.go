package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks the number of open feed connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "timeclock",
		Subsystem: "feed",
		Name:      "connections_active",
		Help:      "Number of open live feed connections.",
	})

	// EventsSentTotal counts events written to feed connections by type.
	EventsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timeclock",
		Subsystem: "feed",
		Name:      "events_sent_total",
		Help:      "Total events written to feed connections.",
	}, []string{"type"})

	// ReplaysTotal counts reconnects that requested event replay.
	ReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "timeclock",
		Subsystem: "feed",
		Name:      "replays_total",
		Help:      "Total reconnects that replayed missed events.",
	})
)
