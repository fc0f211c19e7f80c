// Package channel owns one transport connection and translates its raw
// byte frames into typed protocol messages. It is a thin event-translating
// shell with no state machine of its own: frames that fail to decode are
// logged, counted and dropped without closing the transport, and Send is
// fire-and-forget.
package channel

import (
	"log/slog"
	"time"

	"github.com/palantir-watch/palantir-go/pkg/events"
	"github.com/palantir-watch/palantir-go/pkg/protocol"
)

// Config configures a Channel.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// HandshakeTimeout bounds the websocket dial.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// Logger receives frame traffic at debug level and failures at error
	// level. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults for url.
func DefaultConfig(url string) *Config {
	return &Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = 10 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}

// Channel wraps one Transport and emits open, closed and message events.
type Channel struct {
	transport Transport
	url       string
	logger    *slog.Logger

	open    events.Signal
	closed  events.Signal
	message events.Emitter[*protocol.Message]
}

// Dial opens a Channel over a new websocket transport. The connection
// attempt starts immediately and completes asynchronously; subscribe to
// OnOpen/OnClosed for the outcome.
func Dial(cfg *Config) *Channel {
	cfg = cfg.withDefaults()
	return New(newWSTransport(cfg.URL, cfg.HandshakeTimeout, cfg.WriteTimeout), cfg)
}

// New wraps an existing Transport. The transport is started immediately.
func New(transport Transport, cfg *Config) *Channel {
	cfg = cfg.withDefaults()
	c := &Channel{
		transport: transport,
		url:       cfg.URL,
		logger:    cfg.Logger.With("component", "channel", "url", cfg.URL),
	}
	transport.Start(Callbacks{
		Open:    c.onOpen,
		Message: c.onData,
		Closed:  c.onClosed,
	})
	return c
}

// URL returns the transport endpoint.
func (c *Channel) URL() string { return c.url }

// OnOpen registers a listener for transport establishment.
func (c *Channel) OnOpen(fn func()) events.Subscription { return c.open.Listen(fn) }

// OnClosed registers a listener for transport teardown.
func (c *Channel) OnClosed(fn func()) events.Subscription { return c.closed.Listen(fn) }

// OnMessage registers a listener for decoded, validated messages.
func (c *Channel) OnMessage(fn func(*protocol.Message)) events.Subscription {
	return c.message.Subscribe(fn)
}

// Send encodes body and writes it to the transport. Failures (transport
// not open, encoding error) are logged and swallowed: delivery is
// best-effort and callers must not assume it.
func (c *Channel) Send(body protocol.Body) {
	data, err := protocol.Encode(body)
	if err != nil {
		sendErrors.Inc()
		c.logger.Error("encode failed", "kind", body.Kind(), "error", err)
		return
	}
	if err := c.transport.Send(data); err != nil {
		sendErrors.Inc()
		c.logger.Error("send failed", "kind", body.Kind(), "error", err)
		return
	}
	messagesSent.WithLabelValues(string(body.Kind())).Inc()
	c.logger.Debug("sent message", "kind", body.Kind(), "bytes", len(data))
}

// Close requests transport teardown. Idempotent at the transport level;
// the closed event fires once the teardown completes.
func (c *Channel) Close() {
	c.transport.Close()
}

func (c *Channel) onOpen() {
	c.logger.Debug("transport open")
	c.open.Fire()
}

func (c *Channel) onClosed() {
	c.logger.Debug("transport closed")
	c.closed.Fire()
}

// onData decodes one raw frame. Invalid frames are dropped here and never
// reach consumers.
func (c *Channel) onData(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		decodeErrors.Inc()
		c.logger.Error("dropping undecodable frame", "bytes", len(data), "error", err)
		return
	}
	messagesReceived.WithLabelValues(string(msg.Kind())).Inc()
	c.logger.Debug("received message", "kind", msg.Kind())
	c.message.Emit(msg)
}
