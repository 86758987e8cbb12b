package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crease_deliveries_applied_total",
		Help: "Deliveries accepted by the engine, by extra type.",
	}, []string{"extra"})

	commandsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crease_commands_rejected_total",
		Help: "Commands rejected by the engine, by rejection code.",
	}, []string{"code"})

	wicketsFallen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crease_wickets_fallen_total",
		Help: "Wickets recorded across all games.",
	})

	liveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crease_live_subscribers",
		Help: "Currently connected live feed websocket clients.",
	})
)

func extraLabel(extra string) string {
	if extra == "" {
		return "none"
	}
	return extra
}
