package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "palantir",
		Subsystem: "session",
		Name:      "room_operations_total",
		Help:      "Room lifecycle operations sent to the server.",
	}, []string{"op"})

	ackTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "palantir",
		Subsystem: "session",
		Name:      "ack_timeouts_total",
		Help:      "Room operations abandoned because no acknowledgment arrived in time.",
	})
)
