package channel

// Callbacks receive transport signals. All callbacks are invoked from the
// transport's delivery goroutine, one at a time, in arrival order.
type Callbacks struct {
	// Open fires once when the transport is established.
	Open func()

	// Message fires once per received frame.
	Message func(data []byte)

	// Closed fires once when the transport is torn down, whether by either
	// party or by network failure. The causes are not distinguished.
	Closed func()
}

// Transport is the bidirectional byte stream the channel rides on. The
// production implementation is the websocket transport; tests substitute a
// scripted fake.
type Transport interface {
	// Start begins the asynchronous connect and routes signals to cb.
	// It must be called exactly once.
	Start(cb Callbacks)

	// Send writes one frame. It may only succeed after Open has fired.
	Send(data []byte) error

	// Close requests teardown. Idempotent; Closed still fires exactly once.
	Close()
}
