package channel

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/palantir-watch/palantir-go/pkg/protocol"
)

// ErrTransportNotOpen is returned by Send before the websocket is
// established or after teardown.
var ErrTransportNotOpen = errors.New("channel: transport not open")

// wsTransport is the production Transport over a gorilla websocket.
type wsTransport struct {
	url          string
	dialer       *websocket.Dialer
	writeTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	closing bool

	closedSignaled atomic.Bool
}

func newWSTransport(url string, handshakeTimeout, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		writeTimeout: writeTimeout,
	}
}

func (t *wsTransport) Start(cb Callbacks) {
	go t.run(cb)
}

// run dials, then reads frames until the connection dies. It owns the
// delivery of every callback, so consumers see open/message/closed in
// strict order.
func (t *wsTransport) run(cb Callbacks) {
	conn, resp, err := t.dialer.Dial(t.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.signalClosed(cb)
		return
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		conn.Close()
		t.signalClosed(cb)
		return
	}
	t.conn = conn
	t.mu.Unlock()

	conn.SetReadLimit(protocol.MaxFrameSize)

	if cb.Open != nil {
		cb.Open()
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if cb.Message != nil {
			cb.Message(data)
		}
	}

	conn.Close()
	t.signalClosed(cb)
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closing {
		return ErrTransportNotOpen
	}
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *wsTransport) Close() {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return
	}
	t.closing = true
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		// Best-effort close handshake; the read loop unblocks either way.
		deadline := time.Now().Add(t.writeTimeout)
		conn.SetWriteDeadline(deadline)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
}

func (t *wsTransport) signalClosed(cb Callbacks) {
	if t.closedSignaled.CompareAndSwap(false, true) && cb.Closed != nil {
		cb.Closed()
	}
}
