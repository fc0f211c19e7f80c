package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Channel metrics, registered on the default registerer.
var (
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "palantir",
		Subsystem: "channel",
		Name:      "messages_sent_total",
		Help:      "Messages successfully written to the transport.",
	}, []string{"kind"})

	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "palantir",
		Subsystem: "channel",
		Name:      "messages_received_total",
		Help:      "Messages received and successfully decoded.",
	}, []string{"kind"})

	decodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "palantir",
		Subsystem: "channel",
		Name:      "decode_errors_total",
		Help:      "Frames dropped because they failed decoding or validation.",
	})

	sendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "palantir",
		Subsystem: "channel",
		Name:      "send_errors_total",
		Help:      "Messages dropped because encoding or the transport write failed.",
	})
)
