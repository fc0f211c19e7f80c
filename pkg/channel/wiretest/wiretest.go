// Package wiretest provides a scripted in-memory Transport for exercising
// the channel, connection and session layers without a network. Tests
// drive the server side of the conversation by delivering frames and
// inspect what the client sent.
package wiretest

import (
	"sync"
	"testing"

	"github.com/palantir-watch/palantir-go/pkg/channel"
	"github.com/palantir-watch/palantir-go/pkg/protocol"
)

// Transport is a fake channel.Transport. Signals are delivered
// synchronously on the calling goroutine, which keeps tests deterministic.
type Transport struct {
	mu      sync.Mutex
	cb      channel.Callbacks
	started bool
	open    bool
	closed  bool
	sendErr error
	sent    [][]byte
}

// New returns an idle fake transport. Call Open to simulate the connect
// completing.
func New() *Transport {
	return &Transport{}
}

// Start implements channel.Transport.
func (t *Transport) Start(cb channel.Callbacks) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		panic("wiretest: Start called twice")
	}
	t.started = true
	t.cb = cb
}

// Send implements channel.Transport, recording the frame.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	if !t.open || t.closed {
		return channel.ErrTransportNotOpen
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	t.sent = append(t.sent, buf)
	return nil
}

// Close implements channel.Transport. Teardown is reported synchronously.
func (t *Transport) Close() {
	t.signalClosed()
}

// Open simulates the transport connect completing.
func (t *Transport) Open() {
	t.mu.Lock()
	t.open = true
	cb := t.cb
	t.mu.Unlock()
	if cb.Open != nil {
		cb.Open()
	}
}

// Deliver injects one raw frame as if received from the server.
func (t *Transport) Deliver(data []byte) {
	t.mu.Lock()
	cb := t.cb
	t.mu.Unlock()
	if cb.Message != nil {
		cb.Message(data)
	}
}

// DeliverBody encodes body with a fresh timestamp and injects it.
func (t *Transport) DeliverBody(tb testing.TB, body protocol.Body) {
	tb.Helper()
	data, err := protocol.Encode(body)
	if err != nil {
		tb.Fatalf("wiretest: encode %s: %v", body.Kind(), err)
	}
	t.Deliver(data)
}

// Drop simulates the transport dying underneath the client.
func (t *Transport) Drop() {
	t.signalClosed()
}

// FailSends makes subsequent Send calls return err.
func (t *Transport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// Sent returns copies of all frames written so far.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// SentBodies decodes all frames written so far.
func (t *Transport) SentBodies(tb testing.TB) []protocol.Body {
	tb.Helper()
	frames := t.Sent()
	bodies := make([]protocol.Body, 0, len(frames))
	for _, data := range frames {
		msg, err := protocol.Decode(data)
		if err != nil {
			tb.Fatalf("wiretest: client sent undecodable frame: %v", err)
		}
		bodies = append(bodies, msg.Body)
	}
	return bodies
}

// LastBody decodes the most recent frame, or fails if none were sent.
func (t *Transport) LastBody(tb testing.TB) protocol.Body {
	tb.Helper()
	bodies := t.SentBodies(tb)
	if len(bodies) == 0 {
		tb.Fatal("wiretest: no frames sent")
	}
	return bodies[len(bodies)-1]
}

// Closed reports whether teardown was signaled.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) signalClosed() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.open = false
	cb := t.cb
	t.mu.Unlock()
	if cb.Closed != nil {
		cb.Closed()
	}
}
