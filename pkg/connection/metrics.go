package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pingsAnswered = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "palantir",
	Subsystem: "connection",
	Name:      "pings_answered_total",
	Help:      "Server pings answered with a pong.",
})
